package cloud

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// verifierLength is the number of random bytes in a PKCE code verifier.
// RFC 7636 permits 32-96 bytes; the vendor's own client uses 64.
const verifierLength = 64

// newVerifier generates a PKCE code verifier: random bytes encoded as
// unpadded base64url.
func newVerifier() (string, error) {
	buf := make([]byte, verifierLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating PKCE verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// challengeFor derives the S256 code challenge for a verifier.
func challengeFor(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
