// Package auth holds the operator token check used by the run control
// endpoints.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"
)

// HashToken returns the SHA-256 digest of the trimmed token.
func HashToken(token string) [sha256.Size]byte {
	return sha256.Sum256([]byte(strings.TrimSpace(token)))
}

// Verifier checks presented tokens against one operator token.
// Only the digest of the configured token is kept.
type Verifier struct {
	digest [sha256.Size]byte
}

// NewVerifier returns a Verifier for token.
func NewVerifier(token string) *Verifier {
	return &Verifier{digest: HashToken(token)}
}

// Verify reports whether presented matches the operator token. Digests are
// compared in constant time, so the comparison does not depend on the
// token length either.
func (v *Verifier) Verify(presented string) bool {
	got := HashToken(presented)
	return subtle.ConstantTimeCompare(got[:], v.digest[:]) == 1
}
