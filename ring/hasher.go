package ring

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Hasher maps arbitrary input to a 64-bit position on the ring.
// Implementations must be deterministic and safe for concurrent use.
type Hasher interface {
	// Sum64 returns the ring position for the given input.
	Sum64(data []byte) uint64

	// Name returns the hasher name for logging and stats.
	Name() string
}

// SHA256Hasher positions entries using the first 8 bytes of the SHA-256
// digest. This is the default: slower than non-cryptographic hashes but
// with excellent distribution regardless of input shape.
type SHA256Hasher struct{}

// Sum64 returns the first 8 bytes of the SHA-256 digest as a uint64.
func (SHA256Hasher) Sum64(data []byte) uint64 {
	sum := sha256.Sum256(data)
	return binary.BigEndian.Uint64(sum[:8])
}

// Name returns the hasher name.
func (SHA256Hasher) Name() string { return "sha256" }

// XXHasher positions entries using xxHash. Roughly an order of magnitude
// faster than SHA-256 with distribution quality that is indistinguishable
// for ring placement purposes.
type XXHasher struct{}

// Sum64 returns the xxHash digest of the input.
func (XXHasher) Sum64(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Name returns the hasher name.
func (XXHasher) Name() string { return "xxhash" }
