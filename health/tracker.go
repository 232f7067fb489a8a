package health

import (
	"sync"

	"github.com/rs/zerolog"
)

const trackerShards = 16

// Tracker manages per-resource circuit breakers. Breakers are created
// lazily on first use and distributed across shards keyed by resource
// name, so hot resources never serialize behind a single registry lock.
type Tracker struct {
	shards   [trackerShards]trackerShard
	config   Config
	logger   *zerolog.Logger
	onChange StateChangeFunc
}

type trackerShard struct {
	circuits map[string]*CircuitBreaker
	mu       sync.RWMutex
}

// NewTracker creates a Tracker. The logger and onChange hook may be nil;
// the hook is invoked for every breaker state transition and must not
// block.
func NewTracker(cfg Config, logger *zerolog.Logger, onChange StateChangeFunc) *Tracker {
	t := &Tracker{
		config:   cfg,
		logger:   logger,
		onChange: onChange,
	}
	for i := range t.shards {
		t.shards[i].circuits = make(map[string]*CircuitBreaker)
	}
	return t
}

func (t *Tracker) shard(resource string) *trackerShard {
	var hash uint32
	for i := 0; i < len(resource); i++ {
		hash = hash*31 + uint32(resource[i])
	}
	return &t.shards[hash%trackerShards]
}

// GetOrCreate returns the breaker for a resource, creating it lazily.
func (t *Tracker) GetOrCreate(resource string) *CircuitBreaker {
	shard := t.shard(resource)

	shard.mu.RLock()
	cb, exists := shard.circuits[resource]
	shard.mu.RUnlock()
	if exists {
		return cb
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if cb, exists = shard.circuits[resource]; exists {
		return cb
	}

	cb = newCircuitBreaker(resource, t.config, t.logger, t.onChange)
	shard.circuits[resource] = cb

	if t.logger != nil {
		t.logger.Debug().Str("resource", resource).Msg("created circuit breaker")
	}
	return cb
}

// Allow checks whether a call to the resource may proceed. On success
// the returned done func must be called with the outcome. Returns
// ErrCircuitOpen while the circuit is open.
func (t *Tracker) Allow(resource string) (done func(err error), err error) {
	return t.GetOrCreate(resource).Allow()
}

// RecordSuccess records a successful call against the resource.
func (t *Tracker) RecordSuccess(resource string) {
	t.GetOrCreate(resource).ReportSuccess()
}

// RecordFailure records a failed call against the resource.
func (t *Tracker) RecordFailure(resource string, err error) {
	t.GetOrCreate(resource).ReportFailure(err)
}

// GetState returns the resource's circuit state. Resources never seen
// report StateClosed: unknown means healthy by default.
func (t *Tracker) GetState(resource string) State {
	shard := t.shard(resource)
	shard.mu.RLock()
	cb, exists := shard.circuits[resource]
	shard.mu.RUnlock()

	if !exists {
		return StateClosed
	}
	return cb.State()
}

// IsHealthyFunc returns a closure reporting whether the resource's
// circuit admits traffic (closed or half-open). Designed for wiring
// into candidate filters.
func (t *Tracker) IsHealthyFunc(resource string) func() bool {
	return func() bool {
		return t.GetState(resource) != StateOpen
	}
}

// Reset re-arms a resource's breaker by replacing it with a fresh
// closed one. gobreaker exposes no in-place reset; swapping the
// instance gives the same observable result. No-op for unknown
// resources.
func (t *Tracker) Reset(resource string) {
	shard := t.shard(resource)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if _, exists := shard.circuits[resource]; !exists {
		return
	}
	shard.circuits[resource] = newCircuitBreaker(resource, t.config, t.logger, t.onChange)

	if t.logger != nil {
		t.logger.Info().Str("resource", resource).Msg("circuit breaker reset")
	}
}

// AllStates returns a snapshot of every tracked resource's state.
func (t *Tracker) AllStates() map[string]State {
	states := make(map[string]State)
	for i := range t.shards {
		shard := &t.shards[i]
		shard.mu.RLock()
		for resource, cb := range shard.circuits {
			states[resource] = cb.State()
		}
		shard.mu.RUnlock()
	}
	return states
}
