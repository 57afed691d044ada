// Package stunio adapts github.com/pion/stun/v3 to the ice.StunCodec
// interface. This is where STUN wire format, HMAC-SHA1 message
// integrity, and CRC32 fingerprints actually live; internal/ice only
// ever sees the parsed ice.StunMessage shape.
package stunio

import (
	"net"

	"github.com/pion/stun/v3"
	"github.com/pkg/errors"

	"github.com/lanikai/iceagent/internal/ice"
)

// Numeric attribute codes for the ICE-specific attributes pion/stun
// doesn't know about natively. These match the values assigned in
// RFC 5245 §19.1.
const (
	attrPriority       stun.AttrType = 0x0024
	attrUseCandidate   stun.AttrType = 0x0025
	attrIceControlled  stun.AttrType = 0x8029
	attrIceControlling stun.AttrType = 0x802A
)

// Codec implements ice.StunCodec on top of pion/stun/v3.
type Codec struct{}

// New returns a ready-to-use Codec. There is no per-instance state; STUN
// encode/decode is purely a function of the bytes and key given to it.
func New() *Codec {
	return &Codec{}
}

func (Codec) Parse(packet []byte) (*ice.StunMessage, error) {
	m := new(stun.Message)
	if err := stun.Decode(packet, m); err != nil {
		return nil, errors.Wrap(err, "stunio: decoding packet")
	}

	out := &ice.StunMessage{
		Class:         classFromWire(m.Type.Class),
		TransactionID: m.TransactionID,
	}

	var username stun.Username
	if username.GetFrom(m) == nil {
		out.HasUsername = true
		out.Username = username.String()
	}

	if _, err := m.Get(stun.AttrMessageIntegrity); err == nil {
		out.HasMessageIntegrity = true
	}
	if _, err := m.Get(stun.AttrFingerprint); err == nil {
		out.HasFingerprint = true
	}

	if raw, err := m.Get(attrPriority); err == nil && len(raw) == 4 {
		out.HasPriority = true
		out.Priority = beUint32(raw)
	}
	if _, err := m.Get(attrUseCandidate); err == nil {
		out.HasUseCandidate = true
	}
	if raw, err := m.Get(attrIceControlling); err == nil && len(raw) == 8 {
		out.HasIceControlling = true
		out.IceControlling = beUint64(raw)
	}
	if raw, err := m.Get(attrIceControlled); err == nil && len(raw) == 8 {
		out.HasIceControlled = true
		out.IceControlled = beUint64(raw)
	}

	var xorAddr stun.XORMappedAddress
	if xorAddr.GetFrom(m) == nil {
		out.HasXorMappedAddress = true
		out.XorMappedAddress = ice.TransportAddress{IP: xorAddr.IP.String(), Port: uint16(xorAddr.Port)}
	}

	var errCode stun.ErrorCodeAttribute
	if errCode.GetFrom(m) == nil {
		out.HasErrorCode = true
		out.ErrorCode = ice.StunErrorCode{
			Class:  int(errCode.Code) / 100,
			Number: int(errCode.Code) % 100,
			Reason: string(errCode.Reason),
		}
	}

	return out, nil
}

func (Codec) Encode(msg *ice.StunMessage, key string) ([]byte, error) {
	m := new(stun.Message)
	m.TransactionID = msg.TransactionID
	m.Type = typeForWire(msg.Class)

	setters := []stun.Setter{}

	if msg.HasUsername {
		setters = append(setters, stun.NewUsername(msg.Username))
	}
	if msg.HasXorMappedAddress {
		setters = append(setters, &stun.XORMappedAddress{
			IP:   parseIP(msg.XorMappedAddress.IP),
			Port: int(msg.XorMappedAddress.Port),
		})
	}
	if msg.HasErrorCode {
		setters = append(setters, &stun.ErrorCodeAttribute{
			Code:   stun.ErrorCode(msg.ErrorCode.Class*100 + msg.ErrorCode.Number),
			Reason: []byte(msg.ErrorCode.Reason),
		})
	}

	if err := m.Build(setters...); err != nil {
		return nil, errors.Wrap(err, "stunio: building message")
	}

	// PRIORITY, USE-CANDIDATE, ICE-CONTROLLING and ICE-CONTROLLED have no
	// pion/stun attribute type of their own; add them as raw attributes
	// directly.
	if msg.HasPriority {
		raw := make([]byte, 4)
		putUint32(raw, msg.Priority)
		m.Add(attrPriority, raw)
	}
	if msg.HasUseCandidate {
		m.Add(attrUseCandidate, nil)
	}
	if msg.HasIceControlling {
		raw := make([]byte, 8)
		putUint64(raw, msg.IceControlling)
		m.Add(attrIceControlling, raw)
	}
	if msg.HasIceControlled {
		raw := make([]byte, 8)
		putUint64(raw, msg.IceControlled)
		m.Add(attrIceControlled, raw)
	}

	if key != "" {
		integrity := stun.NewShortTermIntegrity(key)
		if err := integrity.AddTo(m); err != nil {
			return nil, errors.Wrap(err, "stunio: adding message integrity")
		}
	}
	if err := stun.Fingerprint.AddTo(m); err != nil {
		return nil, errors.Wrap(err, "stunio: adding fingerprint")
	}

	return m.Raw, nil
}

func (Codec) VerifyIntegrityShortTerm(packet []byte, key string) bool {
	m := new(stun.Message)
	if err := stun.Decode(packet, m); err != nil {
		return false
	}
	return stun.NewShortTermIntegrity(key).Check(m) == nil
}

func classFromWire(c stun.MessageClass) ice.StunMessageClass {
	switch c {
	case stun.ClassRequest:
		return ice.StunRequest
	case stun.ClassIndication:
		return ice.StunIndication
	case stun.ClassSuccessResponse:
		return ice.StunSuccessResponse
	default:
		return ice.StunErrorResponse
	}
}

func typeForWire(c ice.StunMessageClass) stun.MessageType {
	switch c {
	case ice.StunRequest:
		return stun.NewType(stun.MethodBinding, stun.ClassRequest)
	case ice.StunIndication:
		return stun.NewType(stun.MethodBinding, stun.ClassIndication)
	case ice.StunSuccessResponse:
		return stun.NewType(stun.MethodBinding, stun.ClassSuccessResponse)
	default:
		return stun.NewType(stun.MethodBinding, stun.ClassErrorResponse)
	}
}

func parseIP(s string) net.IP {
	return net.ParseIP(s)
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}
