package ice

// StunMessageClass distinguishes STUN requests, indications, and the two
// response classes.
type StunMessageClass int

const (
	StunRequest StunMessageClass = iota
	StunIndication
	StunSuccessResponse
	StunErrorResponse
)

// StunErrorCode carries a STUN ERROR-CODE attribute's class and number,
// e.g. class=4, number=87 for a 487 role-conflict response.
type StunErrorCode struct {
	Class  int
	Number int
	Reason string
}

// StunMessage is the parsed form of a STUN packet. Presence of optional
// attributes is tracked with the Has* booleans rather than nil pointers,
// matching the wire model where an attribute is either present or absent.
type StunMessage struct {
	Class         StunMessageClass
	TransactionID [12]byte

	HasUsername bool
	Username    string

	HasMessageIntegrity bool

	HasFingerprint bool

	HasPriority bool
	Priority    uint32

	HasUseCandidate bool

	HasIceControlling bool
	IceControlling    uint64

	HasIceControlled bool
	IceControlled    uint64

	HasXorMappedAddress bool
	XorMappedAddress    TransportAddress

	HasErrorCode bool
	ErrorCode    StunErrorCode
}

// StunCodec is the external collaborator that turns bytes on the wire
// into StunMessage values and back. The core never touches STUN wire
// format directly; everything it needs from the message is expressed
// through this interface.
type StunCodec interface {
	// Parse decodes a received STUN packet.
	Parse(packet []byte) (*StunMessage, error)

	// Encode serializes msg, appending MESSAGE-INTEGRITY (computed with
	// key, when the message is supposed to carry one) and FINGERPRINT.
	Encode(msg *StunMessage, key string) ([]byte, error)

	// VerifyIntegrityShortTerm recomputes MESSAGE-INTEGRITY over packet
	// using key as the short-term credential, with the STUN length field
	// temporarily reduced by 8 bytes so FINGERPRINT is excluded from the
	// HMAC input, and reports whether it matches.
	VerifyIntegrityShortTerm(packet []byte, key string) bool
}

// BindingRequestParams are the fields schedule.go needs to compose an
// outbound binding request for a given pair and role.
type BindingRequestParams struct {
	TransactionID  [12]byte
	Username       string
	IntegrityKey   string
	Priority       uint32
	UseCandidate   bool
	Role           Role
	TieBreaker     uint64
	FingerprintSet bool
}

// newStunBindingRequest builds the StunMessage for an outbound
// connectivity check per the composition rules: USERNAME, PRIORITY,
// USE-CANDIDATE (when nominating as controlling), and the role
// attribute carrying the session tie-breaker. MESSAGE-INTEGRITY and
// FINGERPRINT are computed by the codec at Encode time, not here.
func newStunBindingRequest(p BindingRequestParams) *StunMessage {
	msg := &StunMessage{
		Class:           StunRequest,
		TransactionID:   p.TransactionID,
		HasUsername:     true,
		Username:        p.Username,
		HasPriority:     true,
		Priority:        p.Priority,
		HasUseCandidate: p.UseCandidate,
	}
	if p.Role == Controlling {
		msg.HasIceControlling = true
		msg.IceControlling = p.TieBreaker
	} else {
		msg.HasIceControlled = true
		msg.IceControlled = p.TieBreaker
	}
	return msg
}

// newStunBindingResponse builds a success response carrying the sender's
// observed address as XOR-MAPPED-ADDRESS.
func newStunBindingResponse(transactionID [12]byte, mapped TransportAddress) *StunMessage {
	return &StunMessage{
		Class:               StunSuccessResponse,
		TransactionID:       transactionID,
		HasXorMappedAddress: true,
		XorMappedAddress:    mapped,
	}
}

// newStunErrorResponse builds an error response with the given class and
// number (e.g. 4/0 for a 400-class parse error, 4/31 for an integrity
// failure, 4/87 for a role conflict).
func newStunErrorResponse(transactionID [12]byte, class, number int, reason string) *StunMessage {
	return &StunMessage{
		Class:         StunErrorResponse,
		TransactionID: transactionID,
		HasErrorCode:  true,
		ErrorCode:     StunErrorCode{Class: class, Number: number, Reason: reason},
	}
}

// newStunBindingIndication builds a keepalive indication: no
// MESSAGE-INTEGRITY, FINGERPRINT present (added by the codec).
func newStunBindingIndication() *StunMessage {
	return &StunMessage{Class: StunIndication}
}

const roleConflictErrorClass = 4
const roleConflictErrorNumber = 87

func isRoleConflict(code StunErrorCode) bool {
	return code.Class == roleConflictErrorClass && code.Number == roleConflictErrorNumber
}
