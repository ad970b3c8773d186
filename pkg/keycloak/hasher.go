package keycloak

import (
	"crypto/sha256"
	"encoding/hex"
)

// TokenHasher derives fixed-length, collision-resistant cache keys from
// raw token values. The digest is SHA-256 over token bytes concatenated
// with the current salt, hex-encoded to 64 characters. Salting prevents
// precomputed cache-key correlation; SHA-256 makes collisions between
// distinct tokens cryptographically negligible.
//
// A TokenHasher is stateless apart from the injected [SaltManager] and is
// safe for concurrent use.
type TokenHasher struct {
	salts *SaltManager
}

// NewTokenHasher creates a TokenHasher over the given salt manager.
func NewTokenHasher(salts *SaltManager) *TokenHasher {
	return &TokenHasher{salts: salts}
}

// Hash returns the 64-character lowercase hex digest of the token under
// the current salt. Deterministic for a fixed salt generation; cache
// writes always use this value.
func (h *TokenHasher) Hash(token string) string {
	return hashWithSalt(token, h.salts.Current())
}

// HashWithFallback returns the current-salt hash first, followed by the
// previous-salt hash when a previous generation exists. Cache lookups try
// each in order so entries written before a rotation stay reachable;
// writes must only ever use the first element.
func (h *TokenHasher) HashWithFallback(token string) []string {
	hashes := []string{h.Hash(token)}
	if prev, ok := h.salts.Previous(); ok {
		hashes = append(hashes, hashWithSalt(token, prev))
	}
	return hashes
}

func hashWithSalt(token, salt string) string {
	sum := sha256.Sum256([]byte(token + salt))
	return hex.EncodeToString(sum[:])
}
