package ice

import (
	"time"

	"github.com/pkg/errors"
)

// Process drives the scheduler for one tick. It is the only place
// outbound connectivity checks and keepalives originate from; callers
// invoke it at a steady rate (the session's Ta by default). It holds the
// CheckList's mutex for the whole tick, so it never interleaves with
// HandleStunPacket for the same CheckList.
func (cl *CheckList) Process(now time.Time) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.State == ChecklistFailed {
		return nil
	}

	for _, p := range cl.Pairs {
		if p.State != InProgress {
			continue
		}
		if now.Sub(p.TransmissionTime) >= p.RTO {
			if err := cl.sendCheckLocked(p, now); err != nil {
				log.Warn("ice: retransmission failed: %s", err)
			}
		}
	}

	if cl.State == Completed {
		cl.sendKeepalivesLocked(now)
	}

	if now.Sub(cl.TaTime) < time.Duration(cl.session.TaMs)*time.Millisecond {
		return nil
	}
	cl.TaTime = now

	if len(cl.TriggeredQueue) > 0 {
		p := cl.TriggeredQueue[0]
		cl.TriggeredQueue = cl.TriggeredQueue[1:]
		return cl.sendCheckLocked(p, now)
	}

	if cl.State == Running {
		if p := cl.firstInStateLocked(Waiting); p != nil {
			return cl.sendCheckLocked(p, now)
		}
		if p := cl.firstInStateLocked(Frozen); p != nil {
			return cl.sendCheckLocked(p, now)
		}
	}

	if !cl.anyRetriesRemainingLocked() {
		cl.concludeLocked(now)
	}

	return nil
}

// firstInStateLocked returns the highest-priority pair in List (which is
// kept sorted by descending priority) with the given state. Callers must
// hold cl.mu.
func (cl *CheckList) firstInStateLocked(state PairState) *CandidatePair {
	for _, p := range cl.List {
		if p.State == state {
			return p
		}
	}
	return nil
}

// anyRetriesRemainingLocked reports whether some pair is still
// In-Progress with retransmissions left to attempt. Callers must hold
// cl.mu.
func (cl *CheckList) anyRetriesRemainingLocked() bool {
	for _, p := range cl.List {
		if p.State == InProgress && p.Retransmissions <= maxRetransmissions {
			return true
		}
	}
	return false
}

// sendCheckLocked implements the outbound binding request pre-send logic
// and composes/sends the STUN request. Callers must hold cl.mu.
func (cl *CheckList) sendCheckLocked(p *CandidatePair, now time.Time) error {
	kind, err := socketKindForComponent(p.ComponentID)
	if err != nil {
		return err
	}

	switch {
	case p.State == InProgress && p.WaitTransactionTimeout:
		p.WaitTransactionTimeout = false
		p.setState(Waiting)
		cl.enqueueTriggeredLocked(p)
		return nil

	case p.State == InProgress:
		p.Retransmissions++
		if p.Retransmissions > maxRetransmissions {
			p.setState(Failed)
			return nil
		}
		p.RTO *= 2
		p.TransmissionTime = now

	default:
		p.RTO = initialRTOMillis * time.Millisecond
		p.Retransmissions = 0
		p.Role = cl.session.Role
		txID, genErr := generateTransactionID()
		if genErr != nil {
			return errors.Wrap(genErr, "ice: generating transaction id")
		}
		p.TransactionID = txID
		p.TransmissionTime = now
		p.State = InProgress
	}

	req := newStunBindingRequest(BindingRequestParams{
		TransactionID: p.TransactionID,
		Username:      cl.remoteUfrag() + ":" + cl.session.LocalUfrag,
		Priority:      p.Local.peerReflexivePriority(),
		UseCandidate:  p.Role == Controlling && p.IsNominated,
		Role:          p.Role,
		TieBreaker:    cl.session.TieBreaker,
	})

	packet, err := cl.codec.Encode(req, cl.remotePwd())
	if err != nil {
		return errors.Wrap(err, "ice: encoding binding request")
	}

	socket, err := cl.socketForKindLocked(kind)
	if err != nil {
		return err
	}

	log.Debug("ice: sending check %s -> %s [%s]", p.Local.TAddr, p.Remote.TAddr, p.State)
	return cl.transport.SendPacket(socket, packet, p.Remote.TAddr.IP, p.Remote.TAddr.Port)
}

// sendKeepalivesLocked sends a STUN binding indication through each
// component with a nominated valid pair, once per keepalive interval.
// Callers must hold cl.mu.
func (cl *CheckList) sendKeepalivesLocked(now time.Time) {
	interval := time.Duration(cl.session.KeepaliveTimeoutS) * time.Second
	if now.Sub(cl.KeepaliveTime) < interval {
		return
	}
	cl.KeepaliveTime = now

	sent := make(map[uint16]bool)
	for _, vp := range cl.ValidList {
		p := vp.Valid
		if !p.IsNominated || sent[p.ComponentID] {
			continue
		}
		kind, err := socketKindForComponent(p.ComponentID)
		if err != nil {
			continue
		}
		socket, err := cl.socketForKindLocked(kind)
		if err != nil {
			continue
		}
		packet, err := cl.codec.Encode(newStunBindingIndication(), "")
		if err != nil {
			log.Warn("ice: encoding keepalive: %s", err)
			continue
		}
		if err := cl.transport.SendPacket(socket, packet, p.Remote.TAddr.IP, p.Remote.TAddr.Port); err != nil {
			log.Warn("ice: sending keepalive: %s", err)
			continue
		}
		sent[p.ComponentID] = true
	}
}

func (cl *CheckList) socketForKindLocked(kind SocketKind) (interface{}, error) {
	if kind == RTPSocket {
		return cl.transport.RTPSocket(cl.Mid)
	}
	return cl.transport.RTCPSocket(cl.Mid)
}
