package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"

	id "cardvault/pkg/domain"
)

const fingerprintInfo = "cardvault card fingerprint v1"

// deriveFingerprintKey stretches the configured pepper into an HMAC key.
// An empty pepper yields nil, which disables registration.
func deriveFingerprintKey(pepper string) []byte {
	if pepper == "" {
		return nil
	}
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(pepper), nil, []byte(fingerprintInfo)), key); err != nil {
		return nil
	}
	return key
}

// fingerprint is scoped per owner: the same card held by two users yields two
// fingerprints, so uniqueness means one registration per (owner, card).
func fingerprint(key []byte, owner id.UserID, normalizedNumber string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(owner.String()))
	mac.Write([]byte{':'})
	mac.Write([]byte(normalizedNumber))
	return hex.EncodeToString(mac.Sum(nil))
}
