// Package token issues opaque, URL-safe identifiers. Every externally
// addressable asset (image, thumbnail, expiring link) is referenced only by
// such a token; numeric database IDs never leave the service.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// entropyBytes is the amount of random material per token. 128 bits makes
// collisions between independently issued tokens negligible, so issuance
// performs no uniqueness check against existing tokens.
const entropyBytes = 16

// Issue generates a new URL-safe random token.
func Issue() (string, error) {
	buf := make([]byte, entropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
