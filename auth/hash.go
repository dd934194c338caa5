// Package auth computes the shared-secret digest carried by every message
// exchanged with the Paynow gateway.
//
// The digest is the uppercase hex SHA-512 of all field values (never the keys)
// concatenated in message order, followed by the integration key. Any field
// named "hash", in any letter case, is skipped.
package auth

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/trakkie-id/paynow/codec"
)

// HashField is the name of the digest field in key-value messages.
const HashField = "hash"

// Compute returns the digest of fields under secret.
func Compute(fields codec.Fields, secret string) string {
	h := sha512.New()
	for _, field := range fields {
		if strings.EqualFold(field.Key, HashField) {
			continue
		}
		h.Write([]byte(field.Value))
	}
	h.Write([]byte(secret))
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}

// Verify recomputes the digest and compares it with provided, ignoring case.
func Verify(fields codec.Fields, provided, secret string) bool {
	expected := Compute(fields, secret)
	provided = strings.ToUpper(strings.TrimSpace(provided))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

// Sign returns fields followed by their digest under the "hash" key.
func Sign(fields codec.Fields, secret string) codec.Fields {
	signed := make(codec.Fields, 0, len(fields)+1)
	for _, field := range fields {
		if strings.EqualFold(field.Key, HashField) {
			continue
		}
		signed = append(signed, field)
	}
	return signed.Add(HashField, Compute(fields, secret))
}

// Authenticator binds the digest operations to one integration key.
type Authenticator struct {
	secret string
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: secret}
}

func (a *Authenticator) Compute(fields codec.Fields) string {
	return Compute(fields, a.secret)
}

func (a *Authenticator) Verify(fields codec.Fields, provided string) bool {
	return Verify(fields, provided, a.secret)
}

func (a *Authenticator) Sign(fields codec.Fields) codec.Fields {
	return Sign(fields, a.secret)
}

// VerifySigned checks a decoded key-value message against its own hash field.
// A message without a hash field never verifies.
func (a *Authenticator) VerifySigned(fields codec.Fields) bool {
	for _, field := range fields {
		if strings.EqualFold(field.Key, HashField) {
			return a.Verify(fields, field.Value)
		}
	}
	return false
}
