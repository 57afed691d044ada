package ice

import (
	"encoding/base32"
	"fmt"
	"hash/fnv"
)

// CandidateType identifies how a candidate was obtained.
type CandidateType int

const (
	Host CandidateType = iota
	ServerReflexive
	PeerReflexive
	Relayed
)

func (t CandidateType) String() string {
	switch t {
	case Host:
		return "host"
	case ServerReflexive:
		return "srflx"
	case PeerReflexive:
		return "prflx"
	case Relayed:
		return "relay"
	default:
		return fmt.Sprintf("CandidateType(%d)", int(t))
	}
}

// typePreference is the first term of the priority formula.
func (t CandidateType) typePreference() uint32 {
	switch t {
	case Host:
		return 126
	case PeerReflexive:
		return 110
	case ServerReflexive:
		return 100
	case Relayed:
		return 0
	default:
		panic("ice: invalid candidate type")
	}
}

// localPreference is fixed at the maximum value: this core gathers from a
// single local IP address per base, so there is never a need to rank one
// local address over another.
const localPreference = 65535

// Candidate represents one potential endpoint for a media stream.
type Candidate struct {
	Type        CandidateType
	TAddr       TransportAddress
	ComponentID uint16
	Priority    uint32
	Foundation  string
	IsDefault   bool

	// Base is the candidate this one sends from. Host and Relayed
	// candidates are self-based, represented here by a nil Base -- use
	// BaseCandidate to resolve that. ServerReflexive candidates point to
	// the Host candidate they were derived from; PeerReflexive candidates
	// point to whichever local candidate received the triggering check.
	Base *Candidate
}

// BaseCandidate resolves the weak base reference, returning c itself for
// self-based (Host, Relayed) candidates.
func (c *Candidate) BaseCandidate() *Candidate {
	if c.Base == nil {
		return c
	}
	return c.Base
}

// computePriority implements the RFC 5245 §4.1.2.1 priority formula:
//
//	(type_pref << 24) | (local_pref << 8) | (256 - component_id)
func computePriority(typ CandidateType, componentID uint16) uint32 {
	return (typ.typePreference() << 24) | (localPreference << 8) | (256 - uint32(componentID))
}

// peerReflexivePriority computes the priority this candidate would have if
// it were advertised as peer-reflexive: the local pair priority with the
// type-preference byte replaced by PeerReflexive's. Used for the PRIORITY
// attribute on outbound binding requests.
func (c *Candidate) peerReflexivePriority() uint32 {
	return (c.Priority & 0x00FFFFFF) | (PeerReflexive.typePreference() << 24)
}

// computeFoundation derives a short token such that foundation equality
// tracks (type, base.ip) equality within a check list: hash a fingerprint
// string and keep the first 8 base32 characters of the hash, rather than
// keep a growing table of previously-seen fingerprints.
func computeFoundation(typ CandidateType, baseIP string) string {
	fingerprint := fmt.Sprintf("%s/%s", typ, baseIP)
	hash := fnv.New64()
	hash.Write([]byte(fingerprint))
	return base32.StdEncoding.EncodeToString(hash.Sum(nil))[0:8]
}

// newHostCandidate creates a self-based Host candidate for the given base
// address and component.
func newHostCandidate(taddr TransportAddress, componentID uint16) *Candidate {
	return &Candidate{
		Type:        Host,
		TAddr:       taddr,
		ComponentID: componentID,
		Priority:    computePriority(Host, componentID),
		Foundation:  computeFoundation(Host, taddr.IP),
	}
}

// newServerReflexiveCandidate creates a ServerReflexive candidate derived
// from the given Host base.
func newServerReflexiveCandidate(mapped TransportAddress, base *Candidate) *Candidate {
	return &Candidate{
		Type:        ServerReflexive,
		TAddr:       mapped,
		ComponentID: base.ComponentID,
		Priority:    computePriority(ServerReflexive, base.ComponentID),
		Foundation:  computeFoundation(ServerReflexive, base.TAddr.IP),
		Base:        base,
	}
}

// newPeerReflexiveCandidate creates a PeerReflexive candidate learned from
// an inbound binding request or response. The foundation is freshly
// generated (arbitrary) since there is no wire representation to derive it
// from.
func newPeerReflexiveCandidate(taddr TransportAddress, componentID uint16, priority uint32, base *Candidate, foundationSeq uint32) *Candidate {
	return &Candidate{
		Type:        PeerReflexive,
		TAddr:       taddr,
		ComponentID: componentID,
		Priority:    priority,
		Foundation:  fmt.Sprintf("prflx%d", foundationSeq),
		Base:        base,
	}
}

// sameEndpoint reports whether two candidates are redundant siblings that
// should be pruned from a candidate list: equal type, transport address,
// component, and priority.
func sameEndpoint(a, b *Candidate) bool {
	return a.Type == b.Type &&
		a.TAddr == b.TAddr &&
		a.ComponentID == b.ComponentID &&
		a.Priority == b.Priority
}
