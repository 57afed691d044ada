// Package ice implements the core of an Interactive Connectivity
// Establishment agent: candidate pairing, the connectivity-check scheduler,
// the STUN binding request/response/error state machine, role-conflict
// arbitration, and nomination.
//
// Candidate gathering, STUN wire encoding, and UDP socket I/O are treated as
// external collaborators (see StunCodec and Transport) and are never
// imported directly by this package. The enclosing media pipeline drives
// the scheduler by calling CheckList.Process once per tick and delivers
// parsed STUN events via CheckList.HandleStunPacket; this package performs
// no I/O and starts no goroutines of its own.
package ice

import (
	"github.com/lanikai/iceagent/internal/logging"
)

var log = logging.DefaultLogger.WithTag("ice")

const (
	// maxCandidatesPerSide bounds how many local or remote candidates a
	// check list will accept.
	maxCandidatesPerSide = 10

	// maxRetransmissions is the retry count beyond which an in-progress
	// pair is declared Failed.
	maxRetransmissions = 7

	// initialRTOMillis is the starting retransmission timeout; it doubles
	// on every retry.
	initialRTOMillis = 100

	// defaultTaMillis is the default minimum spacing between newly
	// dispatched connectivity checks.
	defaultTaMillis = 20

	// minKeepaliveSeconds is the lower bound enforced on the keepalive
	// interval.
	minKeepaliveSeconds = 15

	// defaultMaxConnectivityChecks caps the length of a check list.
	defaultMaxConnectivityChecks = 100
)
