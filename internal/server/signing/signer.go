// Package signing holds the enclave's only cryptographic primitive: an
// HMAC-SHA256 over canonical message strings, keyed by a single process-wide
// secret. It also issues report tokens under a key derived from that secret.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Prefix marks signatures produced by Sign.
const Prefix = "hmac:"

// Signer is safe for concurrent use; the key never changes after creation.
type Signer struct {
	key []byte
}

func NewSigner(key string) (*Signer, error) {
	if key == "" {
		return nil, errors.New("signing key is empty")
	}
	return &Signer{key: []byte(key)}, nil
}

// Sign returns "hmac:<hex>" over message.
func (s *Signer) Sign(message string) string {
	return Prefix + s.SignHex(message)
}

// SignHex returns the bare hex MAC, as used by the signed signup count.
func (s *Signer) SignHex(message string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the MAC over message and compares it with signature in
// constant time. Both "hmac:<hex>" and bare hex are accepted.
func (s *Signer) Verify(message, signature string) bool {
	got, err := hex.DecodeString(strings.TrimPrefix(signature, Prefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(message))
	return hmac.Equal(got, mac.Sum(nil))
}
