package ice

import (
	"sort"
	"time"
)

// handleBindingResponse implements the received-response path: matching,
// the symmetric address check, peer-reflexive local discovery, valid
// pair construction, state updates, and nomination inheritance.
func (cl *CheckList) handleBindingResponse(now time.Time, event StunEvent) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	msg := event.Message

	p := cl.findPairByTransactionLocked(msg.TransactionID)
	if p == nil {
		log.Debug("ice: response for unknown transaction, ignoring")
		return nil
	}

	srcTAddr := TransportAddress{IP: event.SrcIP, Port: event.SrcPort}
	localTAddr := TransportAddress{IP: event.LocalIP, Port: event.LocalPort}
	if srcTAddr != p.Remote.TAddr || localTAddr != p.Local.TAddr {
		p.setState(Failed)
		cl.concludeLocked(now)
		return nil
	}

	if !msg.HasUsername || !msg.HasFingerprint || !msg.HasXorMappedAddress {
		log.Warn("ice: success response missing a required attribute, ignoring")
		return nil
	}

	mapped := msg.XorMappedAddress
	var validLocal *Candidate
	if cl.findLocalCandidateLocked(mapped) == nil {
		cl.foundationGenerator++
		validLocal = newPeerReflexiveCandidate(mapped, p.ComponentID, computePriority(PeerReflexive, p.ComponentID), p.Local, cl.foundationGenerator)
		cl.LocalCandidates = append(cl.LocalCandidates, validLocal)
	} else {
		validLocal = cl.findLocalCandidateLocked(localTAddr)
	}

	valid := cl.findPairLocked(validLocal.TAddr, p.Remote.TAddr)
	if valid == nil {
		valid = newCandidatePair(validLocal, p.Remote, cl.session.Role)
		cl.Pairs = append(cl.Pairs, valid)
	}

	cl.insertValidPairLocked(ValidPair{Valid: valid, GeneratedFrom: p})

	prevState := p.State
	p.setState(Succeeded)

	pf := pairFoundationOf(p)
	for _, q := range cl.List {
		if q.State == Frozen && pairFoundationOf(q) == pf {
			q.setState(Waiting)
		}
	}

	if cl.session.Role == Controlling {
		if p.IsNominated {
			valid.IsNominated = true
		}
	} else if prevState == InProgress {
		valid.IsNominated = true
	}

	cl.concludeLocked(now)
	return nil
}

// handleErrorResponse implements the received-error path: matching,
// marking the pair Failed, and -- for a 487 role conflict -- flipping the
// agent's role relative to the pair's recorded role and retrying.
func (cl *CheckList) handleErrorResponse(now time.Time, event StunEvent) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	msg := event.Message
	p := cl.findPairByTransactionLocked(msg.TransactionID)
	if p == nil {
		log.Debug("ice: error response for unknown transaction, ignoring")
		return nil
	}

	p.setState(Failed)

	if msg.HasErrorCode && isRoleConflict(msg.ErrorCode) {
		cl.session.FlipRoleAndRecompute(p.Role.opposite(), cl)
		p.setState(Waiting)
		cl.enqueueTriggeredLocked(p)
	}

	cl.concludeLocked(now)
	return nil
}

// findPairByTransactionLocked returns the pair whose stored transaction
// id matches id, or nil. Callers must hold cl.mu.
func (cl *CheckList) findPairByTransactionLocked(id [12]byte) *CandidatePair {
	if id == ([12]byte{}) {
		return nil
	}
	for _, p := range cl.Pairs {
		if p.TransactionID == id {
			return p
		}
	}
	return nil
}

// insertValidPairLocked adds vp to ValidList in descending-priority
// order, unless an equal (valid, generated_from) entry already exists.
// Callers must hold cl.mu.
func (cl *CheckList) insertValidPairLocked(vp ValidPair) {
	for _, existing := range cl.ValidList {
		if sameValidPair(existing, vp) {
			return
		}
	}
	cl.ValidList = append(cl.ValidList, vp)
	sort.SliceStable(cl.ValidList, func(i, j int) bool {
		return cl.ValidList[i].Valid.Priority > cl.ValidList[j].Valid.Priority
	})
}
