package ice

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/pion/randutil"
)

// ufragAlphabet and pwdAlphabet mirror the character classes RFC 5245
// recommends for short-term credentials: ufrag needs at least 4 bits of
// entropy per character and pwd at least 128 bits total, which
// randutil.GenerateCryptoRandomString easily clears at these lengths.
const (
	ufragAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	pwdAlphabet   = ufragAlphabet

	ufragLength = 8
	pwdLength   = 24
)

// generateUfrag returns a fresh random username fragment.
func generateUfrag() (string, error) {
	return randutil.GenerateCryptoRandomString(ufragLength, ufragAlphabet)
}

// generatePwd returns a fresh random short-term password.
func generatePwd() (string, error) {
	return randutil.GenerateCryptoRandomString(pwdLength, pwdAlphabet)
}

// generateTieBreaker returns a cryptographically strong 64-bit value used
// to arbitrate role conflicts.
func generateTieBreaker() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// generateTransactionID returns a fresh 96-bit STUN transaction id.
func generateTransactionID() ([12]byte, error) {
	var id [12]byte
	_, err := rand.Read(id[:])
	return id, err
}
