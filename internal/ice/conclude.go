package ice

import "time"

// concludeLocked runs the conclusion steps: regular nomination, canceling
// checks made redundant by a nomination, and the completion/failure
// tests. Callers must hold cl.mu.
//
// Step 1 nominates only the highest-priority still-unnominated valid pair
// per component, rather than every unnominated entry: nominating a
// lower-priority pair when a better one is already valid would contradict
// the whole point of racing checks. This is a deliberate tightening of
// naive "nominate everything in valid_list" logic.
func (cl *CheckList) concludeLocked(now time.Time) {
	if cl.session.Role == Controlling {
		cl.performRegularNominationLocked()
	}
	cl.cancelRedundantChecksLocked()

	if cl.State != Completed && cl.allComponentsNominatedLocked() {
		cl.State = Completed
		cl.KeepaliveTime = now
		if cl.onSuccess != nil {
			cl.onSuccess(cl)
		}
		return
	}

	if cl.State == Running && cl.allPairsTerminalLocked() {
		cl.State = ChecklistFailed
	}
}

// performRegularNominationLocked marks, for each component, the
// highest-priority not-yet-nominated valid pair's generating pair as
// nominated and enqueues it as a triggered check. Callers must hold
// cl.mu.
func (cl *CheckList) performRegularNominationLocked() {
	bestByComponent := make(map[uint16]*ValidPair)
	for i := range cl.ValidList {
		vp := &cl.ValidList[i]
		if vp.Valid.IsNominated {
			continue
		}
		cur, ok := bestByComponent[vp.Valid.ComponentID]
		if !ok || vp.Valid.Priority > cur.Valid.Priority {
			bestByComponent[vp.Valid.ComponentID] = vp
		}
	}
	for _, vp := range bestByComponent {
		vp.GeneratedFrom.IsNominated = true
		cl.enqueueTriggeredLocked(vp.GeneratedFrom)
	}
}

// cancelRedundantChecksLocked drops Waiting/Frozen pairs and forces
// In-Progress pairs to stop retransmitting within any component that now
// has a nominated valid pair. Callers must hold cl.mu.
func (cl *CheckList) cancelRedundantChecksLocked() {
	nominatedComponents := make(map[uint16]bool)
	for _, vp := range cl.ValidList {
		if vp.Valid.IsNominated {
			nominatedComponents[vp.Valid.ComponentID] = true
		}
	}
	if len(nominatedComponents) == 0 {
		return
	}

	filterPairs := func(pairs []*CandidatePair) []*CandidatePair {
		kept := pairs[:0]
		for _, p := range pairs {
			if nominatedComponents[p.ComponentID] {
				switch p.State {
				case Waiting, Frozen:
					continue
				case InProgress:
					p.Retransmissions = maxRetransmissions + 1
				}
			}
			kept = append(kept, p)
		}
		return kept
	}

	cl.List = filterPairs(cl.List)
	cl.TriggeredQueue = filterPairs(cl.TriggeredQueue)
}

// allComponentsNominatedLocked reports whether every component id known
// to this check list has at least one nominated pair in ValidList.
// Callers must hold cl.mu.
func (cl *CheckList) allComponentsNominatedLocked() bool {
	for componentID := range cl.ComponentIDs {
		found := false
		for _, vp := range cl.ValidList {
			if vp.Valid.ComponentID == componentID && vp.Valid.IsNominated {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return len(cl.ComponentIDs) > 0
}

// allPairsTerminalLocked reports whether every pair in the check-list
// view is Failed or Succeeded. Callers must hold cl.mu.
func (cl *CheckList) allPairsTerminalLocked() bool {
	for _, p := range cl.List {
		if p.State != Failed && p.State != Succeeded {
			return false
		}
	}
	return true
}
