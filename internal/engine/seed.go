package engine

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// ServerSeedBytes is the entropy of a freshly generated server seed.
const ServerSeedBytes = 32

// NewServerSeed returns 32 random bytes hex-encoded. The hex string itself
// (not the decoded bytes) is the HMAC key.
func NewServerSeed() (string, error) {
	b := make([]byte, ServerSeedBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate server seed: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashSeed returns the SHA-256 commitment of a server seed as lowercase hex.
func HashSeed(serverSeed string) string {
	sum := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(sum[:])
}

// VerifyCommitment reports whether serverSeed hashes to the published hash.
func VerifyCommitment(serverSeed, publishedHash string) bool {
	got := HashSeed(serverSeed)
	want := strings.ToLower(strings.TrimSpace(publishedHash))
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
