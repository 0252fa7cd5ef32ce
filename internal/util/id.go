package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a prefixed 128-bit random id, e.g. doc_3f2a… The randomness
// makes concurrent creates collision-free without coordination.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
