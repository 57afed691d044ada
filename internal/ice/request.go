package ice

import (
	"strings"
	"time"
)

// HandleStunPacket dispatches one parsed inbound STUN event to the
// appropriate handler. now is the current monotonic time, threaded
// through explicitly so the handler never reads the clock itself. Each
// handler holds the CheckList's mutex, so it never interleaves with
// Process for the same CheckList.
func (cl *CheckList) HandleStunPacket(now time.Time, event StunEvent) error {
	switch event.Message.Class {
	case StunRequest:
		return cl.handleBindingRequest(now, event)
	case StunSuccessResponse:
		return cl.handleBindingResponse(now, event)
	case StunErrorResponse:
		return cl.handleErrorResponse(now, event)
	default:
		// Indications (keepalives) require no processing.
		return nil
	}
}

// handleBindingRequest implements the received-request path: validation,
// role-conflict detection, peer-reflexive learning, triggering the check,
// nomination, and the success response.
func (cl *CheckList) handleBindingRequest(now time.Time, event StunEvent) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	msg := event.Message

	if fail, code := cl.validateRequestStructureLocked(msg); fail {
		return cl.sendErrorLocked(event, msg.TransactionID, code, "malformed request")
	}

	if !cl.codec.VerifyIntegrityShortTerm(event.RawPacket, cl.session.LocalPwd) {
		return cl.sendErrorLocked(event, msg.TransactionID, integrityErrorCode, "integrity check failed")
	}

	ufrag := strings.SplitN(msg.Username, ":", 2)[0]
	if ufrag != cl.session.LocalUfrag {
		return cl.sendErrorLocked(event, msg.TransactionID, integrityErrorCode, "unknown username")
	}

	if conflict, abort := cl.handleRoleConflictLocked(msg); abort {
		if conflict {
			return cl.sendErrorLocked(event, msg.TransactionID, roleConflictErrorClass*100+roleConflictErrorNumber, "role conflict")
		}
		return nil
	}

	localTAddr := TransportAddress{IP: event.LocalIP, Port: event.LocalPort}
	remoteTAddr := TransportAddress{IP: event.SrcIP, Port: event.SrcPort}

	remote := cl.findRemoteCandidateLocked(remoteTAddr)
	if remote == nil {
		cl.foundationGenerator++
		remote = newPeerReflexiveCandidate(remoteTAddr, event.ComponentID, msg.Priority, nil, cl.foundationGenerator)
		cl.RemoteCandidates = append(cl.RemoteCandidates, remote)
	}

	local := cl.findLocalCandidateLocked(localTAddr)
	if local == nil {
		// The receiving socket must correspond to a gathered local
		// candidate; without one there is no base to pair from.
		return cl.sendErrorLocked(event, msg.TransactionID, badRequestErrorCode, "unknown local address")
	}

	p := cl.triggerCheckLocked(local, remote)

	if msg.HasUseCandidate && cl.session.Role == Controlled && p.State == Succeeded {
		p.IsNominated = true
	}

	resp := newStunBindingResponse(msg.TransactionID, remoteTAddr)
	packet, err := cl.codec.Encode(resp, cl.session.LocalPwd)
	if err != nil {
		return err
	}
	if err := cl.transport.SendPacket(event.Socket, packet, event.SrcIP, event.SrcPort); err != nil {
		log.Warn("ice: sending binding response: %s", err)
	}

	cl.concludeLocked(now)
	return nil
}

const (
	badRequestErrorCode = 400
	integrityErrorCode  = 431
)

// validateRequestStructureLocked checks the attribute-presence
// requirements that must hold before integrity can even be verified:
// MESSAGE-INTEGRITY, USERNAME, FINGERPRINT, PRIORITY, and exactly one of
// ICE-CONTROLLING/ICE-CONTROLLED. Callers must hold cl.mu.
func (cl *CheckList) validateRequestStructureLocked(msg *StunMessage) (fail bool, code int) {
	switch {
	case !msg.HasMessageIntegrity:
		return true, badRequestErrorCode
	case !msg.HasUsername:
		return true, badRequestErrorCode
	case !msg.HasFingerprint:
		return true, badRequestErrorCode
	case !msg.HasPriority:
		return true, badRequestErrorCode
	case msg.HasIceControlling == msg.HasIceControlled:
		return true, badRequestErrorCode
	default:
		return false, 0
	}
}

// handleRoleConflictLocked applies the role-conflict rules. abort is true
// when the request must not be processed further; conflict indicates a
// 487 must be sent (as opposed to a silent role flip followed by normal
// processing).
func (cl *CheckList) handleRoleConflictLocked(msg *StunMessage) (conflict, abort bool) {
	if cl.session.Role == Controlling && msg.HasIceControlling {
		if cl.session.TieBreaker >= msg.IceControlling {
			return true, true
		}
		cl.session.FlipRoleAndRecompute(Controlled, cl)
		return false, false
	}
	if cl.session.Role == Controlled && msg.HasIceControlled {
		if cl.session.TieBreaker >= msg.IceControlled {
			cl.session.FlipRoleAndRecompute(Controlling, cl)
			return false, false
		}
		return true, true
	}
	return false, false
}

// triggerCheckLocked locates or creates the pair for (local, remote) and
// applies the triggered-check state transition. Callers must hold cl.mu.
func (cl *CheckList) triggerCheckLocked(local, remote *Candidate) *CandidatePair {
	p := cl.findPairLocked(local.TAddr, remote.TAddr)
	if p == nil {
		p = newCandidatePair(local, remote, cl.session.Role)
		p.setState(Waiting)
		cl.Pairs = append(cl.Pairs, p)
		cl.rebuildCheckListLocked()
		cl.enqueueTriggeredLocked(p)
		return p
	}

	switch p.State {
	case Waiting, Frozen, Failed:
		p.setState(Waiting)
		cl.enqueueTriggeredLocked(p)
	case InProgress:
		p.WaitTransactionTimeout = true
	case Succeeded:
		// No state change.
	}
	return p
}

// sendErrorLocked sends a STUN error response back to the sender of
// event. The rejected request itself is not reported as a Go error: the
// error response is the handling. The returned error is non-nil only when
// encoding or sending that response fails. Callers must hold cl.mu.
func (cl *CheckList) sendErrorLocked(event StunEvent, transactionID [12]byte, code int, reason string) error {
	resp := newStunErrorResponse(transactionID, code/100, code%100, reason)
	packet, err := cl.codec.Encode(resp, "")
	if err != nil {
		return err
	}
	return cl.transport.SendPacket(event.Socket, packet, event.SrcIP, event.SrcPort)
}
