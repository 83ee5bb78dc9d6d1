// Package sha256 provides the content digest used for deduplication.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements crawler.Hasher with hex-encoded SHA-256 digests.
type Hasher struct {
	// Size truncates the hex digest to this many characters when positive.
	Size int
}

// New returns a Hasher producing full-length digests.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if h.Size > 0 && h.Size < len(digest) {
		digest = digest[:h.Size]
	}
	return digest, nil
}
