package agentcore

import (
	"crypto/rand"
	"encoding/hex"
)

// CookieByteLength is the number of random bytes backing a cookie before
// hex encoding (spec.md §3: "32 random bytes, hex-encoded").
const CookieByteLength = 32

// GenerateCookie produces a fresh 64-hex-character cookie, attached as a
// channel property once negotiation succeeds and presented on subsequent
// reconnects so the controller can evict the previous session.
func GenerateCookie() (string, error) {
	buf := make([]byte, CookieByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", Internalf("generating cookie: %v", err)
	}
	return hex.EncodeToString(buf), nil
}
