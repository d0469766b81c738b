// Package hmacauth gates authorization initiation behind an HMAC digest so
// only callers holding the environment secret can open flows for arbitrary
// connection ids.
package hmacauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Verifier checks HMAC-SHA256 digests over ordered value tuples.
type Verifier struct {
	enabled bool
	key     string
}

// New creates a verifier. A disabled verifier accepts every request.
func New(enabled bool, key string) *Verifier {
	return &Verifier{enabled: enabled, key: key}
}

// Enabled reports whether HMAC protection is active.
func (v *Verifier) Enabled() bool {
	return v.enabled && v.key != ""
}

// Digest computes the hex HMAC-SHA256 over values joined by ":".
func (v *Verifier) Digest(values ...string) string {
	h := hmac.New(sha256.New, []byte(v.key))
	h.Write([]byte(strings.Join(values, ":")))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify compares digest against the expected HMAC for values using a
// constant-time comparison.
func (v *Verifier) Verify(digest string, values ...string) bool {
	expected := v.Digest(values...)
	return hmac.Equal([]byte(digest), []byte(expected))
}
