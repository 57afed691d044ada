package ice

import "github.com/pkg/errors"

// Typed errors returned by the core. None of these terminate the session on
// their own; callers decide whether to tear down or keep running.
var (
	errTooManyCandidates = errors.New("ice: candidate list already has the maximum of 10 entries")
	errTooManyPairs      = errors.New("ice: check list already has the maximum of 100 pairs")
	errUnknownComponent  = errors.New("ice: component id must be 1 (RTP) or 2 (RTCP)")
	errChecklistNotFound = errors.New("ice: no check list with that mid")
	errSessionNotRunning = errors.New("ice: credentials can only be changed while the session is stopped")
)
