package ice

import (
	"github.com/pkg/errors"
)

// SessionState gates which setters are allowed: credentials can only be
// rewritten while the session hasn't started checking yet.
type SessionState int

const (
	Stopped SessionState = iota
	SessionRunning
)

// Session is the process-wide container for one ICE negotiation across
// however many media streams it carries. It holds the agent role, the
// tie-breaker used to arbitrate role conflicts, short-term credentials,
// pacing parameters, and the ordered list of check lists.
type Session struct {
	Streams []*CheckList

	transport Transport
	codec     StunCodec

	Role       Role
	State      SessionState
	TieBreaker uint64

	LocalUfrag  string
	LocalPwd    string
	RemoteUfrag string
	RemotePwd   string

	TaMs                  int
	KeepaliveTimeoutS     int
	MaxConnectivityChecks int
}

// NewSession creates a Session with freshly generated local credentials
// and tie-breaker, and the default pacing parameters. transport and codec
// are the external collaborators every check list added to this session
// will use to send and parse STUN traffic.
func NewSession(role Role, transport Transport, codec StunCodec) (*Session, error) {
	ufrag, err := generateUfrag()
	if err != nil {
		return nil, errors.Wrap(err, "ice: generating local ufrag")
	}
	pwd, err := generatePwd()
	if err != nil {
		return nil, errors.Wrap(err, "ice: generating local pwd")
	}
	tieBreaker, err := generateTieBreaker()
	if err != nil {
		return nil, errors.Wrap(err, "ice: generating tie-breaker")
	}

	return &Session{
		transport:             transport,
		codec:                 codec,
		Role:                  role,
		State:                 Stopped,
		TieBreaker:            tieBreaker,
		LocalUfrag:            ufrag,
		LocalPwd:              pwd,
		TaMs:                  defaultTaMillis,
		KeepaliveTimeoutS:     minKeepaliveSeconds,
		MaxConnectivityChecks: defaultMaxConnectivityChecks,
	}, nil
}

// Destroy drops every check list owned by the session.
func (s *Session) Destroy() {
	for _, cl := range s.Streams {
		cl.Destroy()
	}
	s.Streams = nil
}

// SetRole changes the session's role. Existing pairs are not
// recomputed by this call alone; callers handling a role conflict use
// FlipRoleAndRecompute instead so the flip and the recompute stay atomic
// with respect to the triggering event.
func (s *Session) SetRole(role Role) {
	s.Role = role
}

// FlipRoleAndRecompute switches the session to role and, in the same
// call, recomputes every pair's priority in every stream, so the flip can
// never be observed half-applied by the next tick. callerLocked names the
// check list whose mutex the caller already holds (nil if called from
// outside any check list handler) -- a role conflict is always discovered
// while handling a request or response for one specific check list, and
// that one must be recomputed without re-acquiring its own lock.
func (s *Session) FlipRoleAndRecompute(role Role, callerLocked *CheckList) {
	s.Role = role
	for _, cl := range s.Streams {
		if cl == callerLocked {
			cl.recomputeAllPairPrioritiesLocked(role)
		} else {
			cl.recomputeAllPairPriorities(role)
		}
	}
}

// SetLocalCredentials replaces the session's local ufrag/pwd. Only valid
// while the session is Stopped.
func (s *Session) SetLocalCredentials(ufrag, pwd string) error {
	if s.State != Stopped {
		return errSessionNotRunning
	}
	s.LocalUfrag = ufrag
	s.LocalPwd = pwd
	return nil
}

// SetRemoteCredentials replaces the session's remote ufrag/pwd wholesale,
// as happens on every (re-)offer.
func (s *Session) SetRemoteCredentials(ufrag, pwd string) {
	s.RemoteUfrag = ufrag
	s.RemotePwd = pwd
}

// SetMaxConnectivityChecks caps how many pairs a check list's sorted view
// may hold.
func (s *Session) SetMaxConnectivityChecks(n int) {
	s.MaxConnectivityChecks = n
}

// SetKeepaliveTimeout sets the keepalive interval, clamped to a 15 second
// floor.
func (s *Session) SetKeepaliveTimeout(seconds int) {
	if seconds < minKeepaliveSeconds {
		seconds = minKeepaliveSeconds
	}
	s.KeepaliveTimeoutS = seconds
}

// AddCheckList creates and attaches a new CheckList for the named media
// stream.
func (s *Session) AddCheckList(mid string) *CheckList {
	cl := NewCheckList(s, mid, s.transport, s.codec)
	s.Streams = append(s.Streams, cl)
	return cl
}

// ComputeCandidatesFoundations recomputes the foundation of every host,
// relayed, and based server-reflexive local candidate across every
// stream; peer-reflexive candidates and server-reflexive candidates
// without a base keep the foundation they already have. Called after
// gathering settles, once server-reflexive candidates have a base
// assigned by SetBaseForSrflxCandidates.
func (s *Session) ComputeCandidatesFoundations() {
	for _, cl := range s.Streams {
		cl.mu.Lock()
		for _, c := range cl.LocalCandidates {
			switch c.Type {
			case Host, Relayed:
				c.Foundation = computeFoundation(c.Type, c.TAddr.IP)
			case ServerReflexive:
				if c.Base != nil {
					c.Foundation = computeFoundation(c.Type, c.Base.TAddr.IP)
				}
			}
		}
		cl.mu.Unlock()
	}
}

// ChooseDefaultCandidates marks, per stream and component, the local
// candidate with the highest priority as the default.
func (s *Session) ChooseDefaultCandidates() {
	for _, cl := range s.Streams {
		cl.mu.Lock()
		best := make(map[uint16]*Candidate)
		for _, c := range cl.LocalCandidates {
			c.IsDefault = false
			if cur, ok := best[c.ComponentID]; !ok || c.Priority > cur.Priority {
				best[c.ComponentID] = c
			}
		}
		for _, c := range best {
			c.IsDefault = true
		}
		cl.mu.Unlock()
	}
}

// SetBaseForSrflxCandidates assigns each server-reflexive local candidate
// without a base the host candidate sharing its component id. This is how
// a gathering pipeline that discovers the mapped address asynchronously
// from the host socket reconnects the two afterwards.
func (s *Session) SetBaseForSrflxCandidates() {
	for _, cl := range s.Streams {
		cl.mu.Lock()
		for _, c := range cl.LocalCandidates {
			if c.Type != ServerReflexive || c.Base != nil {
				continue
			}
			for _, host := range cl.LocalCandidates {
				if host.Type == Host && host.ComponentID == c.ComponentID {
					c.Base = host
					break
				}
			}
		}
		cl.mu.Unlock()
	}
}

// PairCandidates forms and prunes pairs for every stream. Only the first
// stream gets its best pair unfrozen immediately; the rest stay Frozen
// until some shared foundation succeeds elsewhere.
func (s *Session) PairCandidates() error {
	for i, cl := range s.Streams {
		if err := cl.PairCandidates(i == 0); err != nil {
			return err
		}
	}
	return nil
}
