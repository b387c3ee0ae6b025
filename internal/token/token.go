// Package token issues the capability tokens that grant access to a single
// assignment.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// Size is the number of random bytes in a token. Encoded tokens are twice as long.
const Size = 32

// Issuer generates tokens from a random source.
type Issuer struct {
	rand io.Reader
}

// NewIssuer returns an Issuer reading from r. A nil reader uses crypto/rand.
func NewIssuer(r io.Reader) *Issuer {
	if r == nil {
		r = rand.Reader
	}
	return &Issuer{rand: r}
}

// Issue returns a new hex-encoded token.
func (i *Issuer) Issue() (string, error) {
	b := make([]byte, Size)
	if _, err := io.ReadFull(i.rand, b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Valid reports whether s has the shape of an issued token.
func Valid(s string) bool {
	if len(s) != hex.EncodedLen(Size) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
