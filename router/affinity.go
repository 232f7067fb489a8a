package router

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// DefaultAffinityTTL is how long a session sticks to its chosen key
// when no override is given.
const DefaultAffinityTTL = 15 * time.Minute

// Affinity remembers which key a session was routed to so follow-up
// requests from the same session land on the same provider. Entries
// expire after a TTL and are evicted under memory pressure, so a stale
// session simply falls through to a fresh strategy pick.
type Affinity struct {
	cache *ristretto.Cache[string, string]
	ttl   time.Duration
}

// NewAffinity creates a sticky-session cache holding up to maxSessions
// entries. A ttl <= 0 falls back to DefaultAffinityTTL.
func NewAffinity(maxSessions int64, ttl time.Duration) (*Affinity, error) {
	if maxSessions <= 0 {
		maxSessions = 10_000
	}
	if ttl <= 0 {
		ttl = DefaultAffinityTTL
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: maxSessions * 10,
		MaxCost:     maxSessions,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &Affinity{cache: cache, ttl: ttl}, nil
}

// Lookup returns the remembered key for a session, if any.
func (a *Affinity) Lookup(sessionKey string) (string, bool) {
	return a.cache.Get(sessionKey)
}

// Remember pins a session to the given key for the configured TTL.
// Writes are asynchronous; a dropped write only means the next request
// re-runs strategy selection.
func (a *Affinity) Remember(sessionKey, key string) {
	a.cache.SetWithTTL(sessionKey, key, 1, a.ttl)
}

// Forget removes a session's pin, e.g. when its provider failed over.
func (a *Affinity) Forget(sessionKey string) {
	a.cache.Del(sessionKey)
}

// Wait blocks until pending writes are applied. Tests use this to make
// Remember visible before asserting on Lookup.
func (a *Affinity) Wait() {
	a.cache.Wait()
}

// Close releases the cache's internal goroutines.
func (a *Affinity) Close() {
	a.cache.Close()
}
