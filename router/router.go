// Package router provides the selection-strategy library for choosing a
// provider (or key) from a candidate set.
//
// Each strategy is a pure function over its inputs: callers pass the
// candidate annotations they have (weights, connection counts, latency
// history, multi-dimensional metrics, historical outcomes) and get back
// a single chosen key. Strategies hold no state of their own except the
// randomness source, which is injectable for deterministic tests.
//
// Available strategies:
//   - WeightedRandom: single-pass weighted pick
//   - RoundRobin: sequential rotation from a caller-held index
//   - LeastConnections: minimum active connections
//   - PowerOfTwoChoices: sample two, keep the less loaded
//   - LatencyBased: exponentially-decayed latency inverted into weights
//   - HashBased: deterministic session affinity without a ring
//   - MultiCriteria: normalized weighted sum over latency/load/cost/capability
//   - Adaptive: epsilon-greedy over historical outcomes
package router

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	mathrand "math/rand/v2"
	"sync"
)

// Common errors returned by strategies.
var (
	// ErrNoCandidates is returned when the candidate set is empty.
	ErrNoCandidates = errors.New("router: no candidates")
)

// Candidate pairs a key with its routing weight.
type Candidate struct {
	Key    string
	Weight float64
}

// Rand is the randomness source consumed by the randomized strategies.
// *math/rand/v2.Rand satisfies it; tests inject a seeded instance for
// reproducible draws.
type Rand interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64

	// IntN returns a uniform value in [0, n). Panics if n <= 0.
	IntN(n int) int
}

// lockedRand makes a single PCG source safe for concurrent callers.
// The package default; individual calls can pass their own Rand.
type lockedRand struct {
	r  *mathrand.Rand
	mu sync.Mutex
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

var defaultRand Rand = &lockedRand{r: mathrand.New(mathrand.NewPCG(cryptoSeed(), cryptoSeed()))}

// cryptoSeed draws a seed from crypto/rand, falling back to a fixed
// value if the system source is unavailable.
func cryptoSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 1
	}
	return binary.LittleEndian.Uint64(b[:])
}

// orDefault substitutes the package randomness source for a nil Rand.
func orDefault(rng Rand) Rand {
	if rng == nil {
		return defaultRand
	}
	return rng
}
