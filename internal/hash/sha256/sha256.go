// Package sha256 derives stable hex digests used as storage keys.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// fieldSeparator keeps ("ab","c") and ("a","bc") from colliding.
const fieldSeparator = 0x1f

// Hasher produces SHA-256 hex digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes data and returns a hex digest.
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFields hashes the ordered fields with an unambiguous separator.
func (h *Hasher) HashFields(fields ...string) string {
	digest := sha256.New()
	for i, field := range fields {
		if i > 0 {
			digest.Write([]byte{fieldSeparator})
		}
		digest.Write([]byte(field))
	}
	return hex.EncodeToString(digest.Sum(nil))
}
