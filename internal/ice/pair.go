package ice

import (
	"fmt"
	"time"
)

// PairState is the lifecycle state of a CandidatePair.
type PairState int

const (
	Frozen PairState = iota
	Waiting
	InProgress
	Succeeded
	Failed
)

func (s PairState) String() string {
	switch s {
	case Frozen:
		return "Frozen"
	case Waiting:
		return "Waiting"
	case InProgress:
		return "In-Progress"
	case Succeeded:
		return "Succeeded"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("PairState(%d)", int(s))
	}
}

// Role is the agent's ICE role within a session, used both for
// role-conflict arbitration and for pair priority computation.
type Role int

const (
	Controlling Role = iota
	Controlled
)

func (r Role) String() string {
	if r == Controlling {
		return "controlling"
	}
	return "controlled"
}

func (r Role) opposite() Role {
	if r == Controlling {
		return Controlled
	}
	return Controlling
}

// CandidatePair is a (local, remote) candidate tuple subject to a
// connectivity check.
type CandidatePair struct {
	Local  *Candidate
	Remote *Candidate

	Foundation  string
	ComponentID uint16

	Priority    uint64
	State       PairState
	Role        Role
	IsDefault   bool
	IsNominated bool

	TransactionID [12]byte

	RTO                    time.Duration
	Retransmissions        uint32
	TransmissionTime       time.Time
	WaitTransactionTimeout bool
}

// newCandidatePair forms a Frozen pair for the given (local, remote)
// candidates, as seen from role.
func newCandidatePair(local, remote *Candidate, role Role) *CandidatePair {
	if local.ComponentID != remote.ComponentID {
		panic("ice: paired candidates have different component ids")
	}
	p := &CandidatePair{
		Local:       local,
		Remote:      remote,
		Foundation:  local.Foundation + "/" + remote.Foundation,
		ComponentID: local.ComponentID,
		State:       Frozen,
		Role:        role,
	}
	p.recomputePriority()
	return p
}

// recomputePriority implements the pair priority formula: G is the
// priority of the controlling side's candidate, D the other side's.
//
//	priority = (min(G,D) << 32) | (max(G,D) << 1) | (G > D ? 1 : 0)
//
// Must be called whenever the pair's role changes.
func (p *CandidatePair) recomputePriority() {
	var g, d uint64
	if p.Role == Controlling {
		g = uint64(p.Local.Priority)
		d = uint64(p.Remote.Priority)
	} else {
		g = uint64(p.Remote.Priority)
		d = uint64(p.Local.Priority)
	}
	var b uint64
	if g > d {
		b = 1
	}
	p.Priority = (minU64(g, d) << 32) | (maxU64(g, d) << 1) | b
}

// setState transitions the pair to state, zeroing the stored transaction
// id exactly when the new state is Waiting or Failed -- a pair in either
// state has no in-flight transaction to match a response against.
func (p *CandidatePair) setState(state PairState) {
	p.State = state
	if state == Waiting || state == Failed {
		p.TransactionID = [12]byte{}
	}
}

func (p *CandidatePair) String() string {
	return fmt.Sprintf("%s -> %s [%s]", p.Local.TAddr, p.Remote.TAddr, p.State)
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// samePairEndpoints reports whether two pairs are duplicates per the
// pruning rule: both endpoints compare equal in (type, taddr,
// component_id, priority).
func samePairEndpoints(a, b *CandidatePair) bool {
	return sameEndpoint(a.Local, b.Local) && sameEndpoint(a.Remote, b.Remote)
}

// ValidPair is produced when a connectivity check succeeds.
type ValidPair struct {
	Valid         *CandidatePair
	GeneratedFrom *CandidatePair
}

// sameValidPair reports whether two ValidPairs are duplicates: both the
// valid pair and its generating pair match.
func sameValidPair(a, b ValidPair) bool {
	return a.Valid == b.Valid && a.GeneratedFrom == b.GeneratedFrom
}

// PairFoundation is the distinct (local, remote) foundation combination
// used to unfreeze sibling pairs together.
type PairFoundation struct {
	LocalFound  string
	RemoteFound string
}

func pairFoundationOf(p *CandidatePair) PairFoundation {
	return PairFoundation{LocalFound: p.Local.Foundation, RemoteFound: p.Remote.Foundation}
}
