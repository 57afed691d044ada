package ice

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ChecklistState is the lifecycle state of a whole CheckList, as distinct
// from the state of any one CandidatePair within it.
type ChecklistState int

const (
	Running ChecklistState = iota
	Completed
	ChecklistFailed
)

func (s ChecklistState) String() string {
	switch s {
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	case ChecklistFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// SuccessCallback is invoked exactly once, when a CheckList transitions
// to Completed, with the CheckList so the media layer can read out the
// nominated pairs.
type SuccessCallback func(cl *CheckList)

// CheckList owns one media stream's candidates, formed pairs, and
// connectivity-check bookkeeping. It is driven externally: Process is
// called once per scheduler tick, and HandleStunPacket is called as
// parsed STUN events arrive. Neither method starts a goroutine; both take
// the check list's own mutex, so calls to the two are serialized per
// check list.
type CheckList struct {
	Mid string

	session   *Session
	transport Transport
	codec     StunCodec

	LocalCandidates  []*Candidate
	RemoteCandidates []*Candidate

	Pairs []*CandidatePair
	// List is the prioritized, sorted, capped view of Pairs.
	List []*CandidatePair

	TriggeredQueue []*CandidatePair
	ValidList      []ValidPair

	ComponentIDs map[uint16]struct{}
	Foundations  map[PairFoundation]struct{}

	// RemoteUfrag/RemotePwd are optional per-stream credentials that
	// override the session's when set.
	RemoteUfrag string
	RemotePwd   string

	State ChecklistState

	TaTime              time.Time
	KeepaliveTime       time.Time
	foundationGenerator uint32

	onSuccess SuccessCallback

	mu sync.Mutex
}

// NewCheckList creates an empty CheckList bound to session under the
// given media stream identifier, sending and receiving through transport
// and speaking STUN through codec.
func NewCheckList(session *Session, mid string, transport Transport, codec StunCodec) *CheckList {
	return &CheckList{
		Mid:          mid,
		session:      session,
		transport:    transport,
		codec:        codec,
		ComponentIDs: make(map[uint16]struct{}),
		Foundations:  make(map[PairFoundation]struct{}),
		State:        Running,
	}
}

// Destroy releases the check list's candidates and pairs. Present for
// symmetry with the external API; in Go the garbage collector reclaims
// everything once the CheckList is dropped.
func (cl *CheckList) Destroy() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.LocalCandidates = nil
	cl.RemoteCandidates = nil
	cl.Pairs = nil
	cl.List = nil
	cl.TriggeredQueue = nil
	cl.ValidList = nil
}

// RegisterSuccessCallback installs the function invoked once when this
// check list completes.
func (cl *CheckList) RegisterSuccessCallback(cb SuccessCallback) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.onSuccess = cb
}

// SetRemoteCredentials overrides the session's remote ufrag/pwd for this
// stream only.
func (cl *CheckList) SetRemoteCredentials(ufrag, pwd string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.RemoteUfrag = ufrag
	cl.RemotePwd = pwd
}

func (cl *CheckList) remoteUfrag() string {
	if cl.RemoteUfrag != "" {
		return cl.RemoteUfrag
	}
	return cl.session.RemoteUfrag
}

func (cl *CheckList) remotePwd() string {
	if cl.RemotePwd != "" {
		return cl.RemotePwd
	}
	return cl.session.RemotePwd
}

// AddLocalCandidate appends a new local candidate of the given type. base
// is nil for self-based (Host, Relayed) candidates.
func (cl *CheckList) AddLocalCandidate(typ CandidateType, ip string, port uint16, componentID uint16, base *Candidate) (*Candidate, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if len(cl.LocalCandidates) >= maxCandidatesPerSide {
		return nil, errTooManyCandidates
	}

	taddr := TransportAddress{IP: ip, Port: port}
	var c *Candidate
	switch typ {
	case Host, Relayed:
		c = &Candidate{
			Type:        typ,
			TAddr:       taddr,
			ComponentID: componentID,
			Priority:    computePriority(typ, componentID),
			Foundation:  computeFoundation(typ, taddr.IP),
		}
	case ServerReflexive:
		if base == nil {
			return nil, errors.New("ice: server-reflexive candidate requires a base")
		}
		c = newServerReflexiveCandidate(taddr, base)
	case PeerReflexive:
		cl.foundationGenerator++
		c = newPeerReflexiveCandidate(taddr, componentID, computePriority(typ, componentID), base, cl.foundationGenerator)
	default:
		return nil, errors.New("ice: unknown candidate type")
	}

	cl.LocalCandidates = append(cl.LocalCandidates, c)
	cl.ComponentIDs[componentID] = struct{}{}
	return c, nil
}

// AddRemoteCandidate appends a new remote candidate as advertised by the
// peer (priority and foundation arrive on the wire rather than being
// computed locally).
func (cl *CheckList) AddRemoteCandidate(typ CandidateType, ip string, port uint16, componentID uint16, priority uint32, foundation string) (*Candidate, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if len(cl.RemoteCandidates) >= maxCandidatesPerSide {
		return nil, errTooManyCandidates
	}

	c := &Candidate{
		Type:        typ,
		TAddr:       TransportAddress{IP: ip, Port: port},
		ComponentID: componentID,
		Priority:    priority,
		Foundation:  foundation,
	}
	cl.RemoteCandidates = append(cl.RemoteCandidates, c)
	return c, nil
}

// PairCandidates forms a CandidatePair for every (local, remote)
// combination sharing a component id, replaces server-reflexive local
// candidates by their base, prunes duplicates, rebuilds the sorted
// check-list view (capped at the session's max_connectivity_checks),
// derives the foundations set, and -- for the first check list in the
// session only -- unfreezes the single best pair.
func (cl *CheckList) PairCandidates(firstStream bool) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	for _, local := range cl.LocalCandidates {
		for _, remote := range cl.RemoteCandidates {
			if local.ComponentID != remote.ComponentID {
				continue
			}
			if len(cl.Pairs) >= maxCandidatesPerSide*maxCandidatesPerSide {
				return errTooManyPairs
			}
			effectiveLocal := local
			if local.Type == ServerReflexive {
				effectiveLocal = local.BaseCandidate()
			}
			cl.Pairs = append(cl.Pairs, newCandidatePair(effectiveLocal, remote, cl.session.Role))
		}
	}

	cl.Pairs = prunePairs(cl.Pairs)
	cl.rebuildCheckListLocked()

	if firstStream {
		cl.unfreezeBestLocked()
	}

	return nil
}

// prunePairs removes duplicate pairs, keeping the higher-priority one of
// any two that compare equal in (local, remote) endpoints; ties are
// broken by list order (first seen wins).
func prunePairs(pairs []*CandidatePair) []*CandidatePair {
	kept := make([]*CandidatePair, 0, len(pairs))
	for _, p := range pairs {
		dup := -1
		for i, k := range kept {
			if samePairEndpoints(p, k) {
				dup = i
				break
			}
		}
		if dup < 0 {
			kept = append(kept, p)
			continue
		}
		if p.Priority > kept[dup].Priority {
			kept[dup] = p
		}
	}
	return kept
}

// rebuildCheckListLocked sorts Pairs by descending priority into List,
// truncating to the session's max_connectivity_checks, and refreshes the
// foundations set. Callers must hold cl.mu.
func (cl *CheckList) rebuildCheckListLocked() {
	sorted := make([]*CandidatePair, len(cl.Pairs))
	copy(sorted, cl.Pairs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	max := cl.session.MaxConnectivityChecks
	if len(sorted) > max {
		sorted = sorted[:max]
	}
	cl.List = sorted

	cl.Foundations = make(map[PairFoundation]struct{}, len(cl.List))
	for _, p := range cl.List {
		cl.Foundations[pairFoundationOf(p)] = struct{}{}
	}
}

// unfreezeBestLocked selects the pair that minimizes component id and,
// among those, maximizes priority, and moves it to Waiting. Callers must
// hold cl.mu.
func (cl *CheckList) unfreezeBestLocked() {
	var best *CandidatePair
	for _, p := range cl.List {
		if best == nil ||
			p.ComponentID < best.ComponentID ||
			(p.ComponentID == best.ComponentID && p.Priority > best.Priority) {
			best = p
		}
	}
	if best != nil {
		best.setState(Waiting)
	}
}

// findPairLocked returns the first pair in Pairs matching (local, remote)
// transport addresses, or nil. Callers must hold cl.mu.
func (cl *CheckList) findPairLocked(localTAddr, remoteTAddr TransportAddress) *CandidatePair {
	for _, p := range cl.Pairs {
		if p.Local.TAddr == localTAddr && p.Remote.TAddr == remoteTAddr {
			return p
		}
	}
	return nil
}

// findLocalCandidateLocked returns the local candidate with the given
// transport address, or nil. Callers must hold cl.mu.
func (cl *CheckList) findLocalCandidateLocked(taddr TransportAddress) *Candidate {
	for _, c := range cl.LocalCandidates {
		if c.TAddr == taddr {
			return c
		}
	}
	return nil
}

// findRemoteCandidateLocked returns the remote candidate with the given
// transport address, or nil. Callers must hold cl.mu.
func (cl *CheckList) findRemoteCandidateLocked(taddr TransportAddress) *Candidate {
	for _, c := range cl.RemoteCandidates {
		if c.TAddr == taddr {
			return c
		}
	}
	return nil
}

// enqueueTriggeredLocked appends p to the triggered-checks FIFO unless it
// is already present. Callers must hold cl.mu.
func (cl *CheckList) enqueueTriggeredLocked(p *CandidatePair) {
	for _, q := range cl.TriggeredQueue {
		if q == p {
			return
		}
	}
	cl.TriggeredQueue = append(cl.TriggeredQueue, p)
}

// recomputeAllPairPriorities updates every pair's priority after a role
// flip. Must complete before the next check is issued.
func (cl *CheckList) recomputeAllPairPriorities(role Role) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.recomputeAllPairPrioritiesLocked(role)
}

// recomputeAllPairPrioritiesLocked is the body of recomputeAllPairPriorities
// for callers that already hold cl.mu (a role conflict discovered mid
// request/response handling, where the check list that owns the
// triggering pair is already locked by the caller).
func (cl *CheckList) recomputeAllPairPrioritiesLocked(role Role) {
	for _, p := range cl.Pairs {
		p.Role = role
		p.recomputePriority()
	}
	cl.rebuildCheckListLocked()
}

// GetRemoteAddrAndPortsFromValidPairs reports the remote transport
// address of the nominated valid pair for component 1, along with the
// RTP and RTCP ports found across all nominated valid pairs.
func (cl *CheckList) GetRemoteAddrAndPortsFromValidPairs() (ip string, rtpPort, rtcpPort uint16, ok bool) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	for _, vp := range cl.ValidList {
		if !vp.Valid.IsNominated {
			continue
		}
		switch vp.Valid.ComponentID {
		case 1:
			ip = vp.Valid.Remote.TAddr.IP
			rtpPort = vp.Valid.Remote.TAddr.Port
			ok = true
		case 2:
			rtcpPort = vp.Valid.Remote.TAddr.Port
		}
	}
	return ip, rtpPort, rtcpPort, ok
}
