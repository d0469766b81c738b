// Package oauth2c implements the outbound OAuth2 protocol pieces: PKCE
// material, authorization URL construction with provider-specific
// post-processing, the authorization-code token exchange, and the direct
// client-credentials exchange.
package oauth2c

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// GenerateVerifier returns a fresh PKCE code verifier: 32 cryptographically
// random bytes hex-encoded (64 characters, 256-bit entropy). A verifier is
// generated for every flow regardless of whether the provider uses PKCE.
func GenerateVerifier() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// ChallengeS256 derives the S256 code challenge from a verifier:
// base64url(SHA-256(verifier)) with padding stripped (RFC 7636).
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
