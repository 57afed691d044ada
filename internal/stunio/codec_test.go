package stunio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/iceagent/internal/ice"
)

func TestEncodeParseRoundTripsBindingRequest(t *testing.T) {
	codec := New()

	msg := &ice.StunMessage{
		Class:             ice.StunRequest,
		TransactionID:     [12]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		HasUsername:       true,
		Username:          "ufragA:ufragB",
		HasPriority:       true,
		Priority:          1234567890,
		HasUseCandidate:   true,
		HasIceControlling: true,
		IceControlling:    0xdeadbeefcafef00d,
	}

	packet, err := codec.Encode(msg, "sharedsecret")
	require.NoError(t, err)

	parsed, err := codec.Parse(packet)
	require.NoError(t, err)

	assert.Equal(t, ice.StunRequest, parsed.Class)
	assert.Equal(t, msg.TransactionID, parsed.TransactionID)
	assert.True(t, parsed.HasUsername)
	assert.Equal(t, "ufragA:ufragB", parsed.Username)
	assert.True(t, parsed.HasPriority)
	assert.Equal(t, uint32(1234567890), parsed.Priority)
	assert.True(t, parsed.HasUseCandidate)
	assert.True(t, parsed.HasIceControlling)
	assert.Equal(t, uint64(0xdeadbeefcafef00d), parsed.IceControlling)
	assert.True(t, parsed.HasMessageIntegrity)
	assert.True(t, parsed.HasFingerprint)
}

func TestVerifyIntegrityShortTermAcceptsMatchingKeyRejectsWrongKey(t *testing.T) {
	codec := New()

	msg := &ice.StunMessage{
		Class:         ice.StunRequest,
		TransactionID: [12]byte{9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9},
		HasUsername:   true,
		Username:      "a:b",
		HasPriority:   true,
		Priority:      1,
	}

	packet, err := codec.Encode(msg, "correct-password")
	require.NoError(t, err)

	assert.True(t, codec.VerifyIntegrityShortTerm(packet, "correct-password"))
	assert.False(t, codec.VerifyIntegrityShortTerm(packet, "wrong-password"))
}

func TestEncodeErrorResponseParsesBackErrorCode(t *testing.T) {
	codec := New()

	msg := &ice.StunMessage{
		Class:         ice.StunErrorResponse,
		TransactionID: [12]byte{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		HasErrorCode:  true,
		ErrorCode:     ice.StunErrorCode{Class: 4, Number: 87, Reason: "role conflict"},
	}

	packet, err := codec.Encode(msg, "")
	require.NoError(t, err)

	parsed, err := codec.Parse(packet)
	require.NoError(t, err)

	assert.Equal(t, ice.StunErrorResponse, parsed.Class)
	require.True(t, parsed.HasErrorCode)
	assert.Equal(t, 4, parsed.ErrorCode.Class)
	assert.Equal(t, 87, parsed.ErrorCode.Number)
}

func TestEncodeXorMappedAddressRoundTrips(t *testing.T) {
	codec := New()

	msg := &ice.StunMessage{
		Class:               ice.StunSuccessResponse,
		TransactionID:       [12]byte{2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2},
		HasXorMappedAddress: true,
		XorMappedAddress:    ice.TransportAddress{IP: "203.0.113.5", Port: 54321},
	}

	packet, err := codec.Encode(msg, "")
	require.NoError(t, err)

	parsed, err := codec.Parse(packet)
	require.NoError(t, err)

	require.True(t, parsed.HasXorMappedAddress)
	assert.Equal(t, "203.0.113.5", parsed.XorMappedAddress.IP)
	assert.Equal(t, uint16(54321), parsed.XorMappedAddress.Port)
}
