// Package sha256 fingerprints scrape archives.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements pet.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
