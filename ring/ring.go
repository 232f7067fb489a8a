// Package ring implements a consistent-hash ring with virtual nodes.
//
// The ring maps arbitrary input (request ids, session keys, caller ids)
// to one of a dynamic set of owning keys (provider or API-key
// identifiers). Each key occupies a configurable number of virtual-node
// positions so that adding or removing one key out of N remaps only
// about 1/N of the keyspace instead of reshuffling everything.
//
// Lookups are read-lock only and safe for unlimited concurrent readers;
// topology changes take the write lock.
package ring

import (
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultVirtualNodes is the number of ring positions each key occupies
// when no override is given.
const DefaultVirtualNodes = 150

// Ring is a consistent-hash ring. The zero value is not usable; create
// instances with New.
type Ring struct {
	hasher Hasher
	owners map[uint64]string
	keys   map[string][]uint64
	hashes []uint64
	vnodes int
	logger *zerolog.Logger
	mu     sync.RWMutex
}

// Option configures a Ring.
type Option func(*Ring)

// WithVirtualNodes overrides the number of virtual nodes per key.
// Values <= 0 fall back to DefaultVirtualNodes.
func WithVirtualNodes(n int) Option {
	return func(r *Ring) {
		if n > 0 {
			r.vnodes = n
		}
	}
}

// WithHasher overrides the hash function used for ring placement.
func WithHasher(h Hasher) Option {
	return func(r *Ring) {
		if h != nil {
			r.hasher = h
		}
	}
}

// WithLogger attaches a logger for topology-change events.
func WithLogger(logger *zerolog.Logger) Option {
	return func(r *Ring) {
		r.logger = logger
	}
}

// New creates an empty ring with SHA-256 placement and
// DefaultVirtualNodes virtual nodes per key unless overridden.
func New(opts ...Option) *Ring {
	r := &Ring{
		hasher: SHA256Hasher{},
		owners: make(map[uint64]string),
		keys:   make(map[string][]uint64),
		vnodes: DefaultVirtualNodes,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddKey inserts a key and its virtual nodes onto the ring.
// Adding a key that is already present is a no-op.
func (r *Ring) AddKey(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.keys[key]; exists {
		return
	}

	positions := make([]uint64, 0, r.vnodes)
	for i := 0; i < r.vnodes; i++ {
		h := r.hasher.Sum64([]byte(key + ":" + strconv.Itoa(i)))
		if _, taken := r.owners[h]; taken {
			// 64-bit collision with an existing entry. Vanishingly rare;
			// the earlier owner keeps the position.
			continue
		}
		r.owners[h] = key
		positions = append(positions, h)
	}
	r.keys[key] = positions
	r.hashes = append(r.hashes, positions...)
	sort.Slice(r.hashes, func(i, j int) bool { return r.hashes[i] < r.hashes[j] })

	if r.logger != nil {
		r.logger.Debug().
			Str("key", key).
			Int("virtual_nodes", len(positions)).
			Int("ring_size", len(r.hashes)).
			Msg("ring key added")
	}
}

// RemoveKey removes a key and all of its virtual nodes from the ring.
// Removing an absent key is a no-op.
func (r *Ring) RemoveKey(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	positions, exists := r.keys[key]
	if !exists {
		return
	}

	removed := make(map[uint64]struct{}, len(positions))
	for _, h := range positions {
		removed[h] = struct{}{}
		delete(r.owners, h)
	}
	delete(r.keys, key)

	kept := r.hashes[:0]
	for _, h := range r.hashes {
		if _, drop := removed[h]; !drop {
			kept = append(kept, h)
		}
	}
	r.hashes = kept

	if r.logger != nil {
		r.logger.Debug().
			Str("key", key).
			Int("ring_size", len(r.hashes)).
			Msg("ring key removed")
	}
}

// GetKey returns the key owning the given input, using clockwise
// successor lookup from the input's hash. The second return value is
// false when the ring is empty.
func (r *Ring) GetKey(input string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.hashes) == 0 {
		return "", false
	}
	idx := r.successor(r.hasher.Sum64([]byte(input)))
	return r.owners[r.hashes[idx]], true
}

// GetKeys walks the ring clockwise from the input's hash and collects up
// to n distinct keys, wrapping around at most once. Useful for picking
// replica or backup owners. Returns nil when the ring is empty or n <= 0.
func (r *Ring) GetKeys(input string, n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.hashes) == 0 || n <= 0 {
		return nil
	}
	if n > len(r.keys) {
		n = len(r.keys)
	}

	start := r.successor(r.hasher.Sum64([]byte(input)))
	result := make([]string, 0, n)
	seen := make(map[string]struct{}, n)

	for i := 0; i < len(r.hashes) && len(result) < n; i++ {
		owner := r.owners[r.hashes[(start+i)%len(r.hashes)]]
		if _, dup := seen[owner]; dup {
			continue
		}
		seen[owner] = struct{}{}
		result = append(result, owner)
	}
	return result
}

// ListKeys returns all keys currently on the ring in sorted order.
func (r *Ring) ListKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.keys))
	for key := range r.keys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Stats describes the current ring topology.
type Stats struct {
	Keys         int    `json:"keys"`
	VirtualNodes int    `json:"virtual_nodes"`
	RingSize     int    `json:"ring_size"`
	Hasher       string `json:"hasher"`
}

// Stats returns a snapshot of the ring topology.
func (r *Ring) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		Keys:         len(r.keys),
		VirtualNodes: r.vnodes,
		RingSize:     len(r.hashes),
		Hasher:       r.hasher.Name(),
	}
}

// Distribution returns the fraction of the hash space owned by each key,
// computed from arc lengths between consecutive ring positions. The arc
// ending at a position belongs to that position's owner. Fractions sum
// to ~1.0 for any non-empty ring.
func (r *Ring) Distribution() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dist := make(map[string]float64, len(r.keys))
	if len(r.hashes) == 0 {
		return dist
	}
	if len(r.hashes) == 1 {
		dist[r.owners[r.hashes[0]]] = 1.0
		return dist
	}

	const space = float64(1 << 63) * 2 // 2^64
	for i, h := range r.hashes {
		var arc uint64
		if i == 0 {
			// Wrap-around arc from the last position to the first;
			// unsigned subtraction wraps to the right length.
			arc = h - r.hashes[len(r.hashes)-1]
		} else {
			arc = h - r.hashes[i-1]
		}
		dist[r.owners[h]] += float64(arc) / space
	}
	return dist
}

// successor returns the index of the first ring position at or after h,
// wrapping to index 0 past the end. Callers must hold at least a read
// lock and must have checked that the ring is non-empty.
func (r *Ring) successor(h uint64) int {
	idx := sort.Search(len(r.hashes), func(i int) bool {
		return r.hashes[i] >= h
	})
	if idx == len(r.hashes) {
		idx = 0
	}
	return idx
}
