// Package ratelimit provides per-(caller, resource) admission control.
//
// Each (caller, resource) pair owns a token bucket: capped capacity,
// time-proportional refill, and a request cost scaled by the caller's
// priority tier. A per-resource circuit breaker is consulted before the
// bucket, so a genuinely failing resource fails fast for every caller
// while an over-eager caller is throttled without punishing anyone
// else.
//
// When adaptive limiting is enabled, recorded outcomes nudge each
// bucket's capacity: sustained success grows it slowly (+10% per
// streak), any failure shrinks it fast (-20%), bounded to
// [1, 2x baseline]. Idle buckets are evicted by a background janitor.
//
// All methods are safe for concurrent use; buckets live in a sharded
// store so unrelated pairs never contend.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/steerd/steer/health"
)

const limiterShards = 16

// Limiter is the per-(caller, resource) rate limiter.
type Limiter struct {
	shards  [limiterShards]bucketShard
	cfg     Config
	tracker *health.Tracker
	logger  *zerolog.Logger
	clock   func() time.Time

	// lastLimited tracks, per resource, when a rate_limited decision
	// last happened. The failover manager reads it for scoring.
	lastLimited sync.Map // resource -> time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type bucketShard struct {
	buckets map[string]*bucket
	mu      sync.RWMutex
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock injects a time source. Tests use this to refill buckets
// without sleeping.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithTracker shares an existing circuit-breaker registry instead of
// creating a private one. The failover manager passes its tracker here
// so both see the same breaker states.
func WithTracker(tracker *health.Tracker) Option {
	return func(l *Limiter) {
		if tracker != nil {
			l.tracker = tracker
		}
	}
}

// NewLimiter creates a Limiter. The logger may be nil. Call Start to
// run the idle-bucket janitor and Stop to tear it down.
func NewLimiter(cfg Config, logger *zerolog.Logger, opts ...Option) *Limiter {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Limiter{
		cfg:    cfg,
		logger: logger,
		clock:  time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
	for i := range l.shards {
		l.shards[i].buckets = make(map[string]*bucket)
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.tracker == nil {
		l.tracker = health.NewTracker(cfg.Breaker, logger, nil)
	}
	return l
}

// Tracker returns the circuit-breaker registry the limiter consults.
func (l *Limiter) Tracker() *health.Tracker {
	return l.tracker
}

const keySep = "\x1f"

func (l *Limiter) shard(key string) *bucketShard {
	var hash uint32
	for i := 0; i < len(key); i++ {
		hash = hash*31 + uint32(key[i])
	}
	return &l.shards[hash%limiterShards]
}

func (l *Limiter) getOrCreate(caller, resource string) *bucket {
	key := caller + keySep + resource
	shard := l.shard(key)

	shard.mu.RLock()
	b, exists := shard.buckets[key]
	shard.mu.RUnlock()
	if exists {
		return b
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if b, exists = shard.buckets[key]; exists {
		return b
	}

	now := l.clock()
	b = &bucket{
		caller:       caller,
		resource:     resource,
		tokens:       l.cfg.GetMaxTokens(),
		maxTokens:    l.cfg.GetMaxTokens(),
		baselineMax:  l.cfg.GetMaxTokens(),
		refillPerSec: l.cfg.GetRefillPerSec(),
		priority:     PriorityNormal,
		lastRefill:   now,
		lastAccess:   now,
	}
	shard.buckets[key] = b
	return b
}

// Acquire admits or rejects a request costing the given tokens. The
// resource's circuit breaker is consulted first; a tripped breaker
// rejects regardless of the caller's budget. On admission the scaled
// cost is deducted; on rejection the bucket is left untouched and
// RetryAfter hints when to come back.
func (l *Limiter) Acquire(caller, resource string, tokens float64) Decision {
	return l.admit(caller, resource, tokens, true)
}

// CheckAvailable is Acquire without the deduction: the same decision
// computation as a dry run.
func (l *Limiter) CheckAvailable(caller, resource string, tokens float64) Decision {
	return l.admit(caller, resource, tokens, false)
}

func (l *Limiter) admit(caller, resource string, tokens float64, consume bool) Decision {
	if l.tracker.GetState(resource) == health.StateOpen {
		return Decision{Status: StatusCircuitOpen}
	}
	if tokens < 0 {
		tokens = 0
	}

	b := l.getOrCreate(caller, resource)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(l.clock())
	cost := b.cost(tokens)

	if b.tokens >= cost {
		if consume {
			b.tokens -= cost
		}
		return Decision{Status: StatusOK, Remaining: b.tokens}
	}

	deficit := cost - b.tokens
	retryAfter := time.Duration(deficit / b.refillPerSec * float64(time.Second))
	if consume {
		l.lastLimited.Store(resource, l.clock())
		if l.logger != nil {
			l.logger.Debug().
				Str("caller", caller).
				Str("resource", resource).
				Float64("cost", cost).
				Float64("tokens", b.tokens).
				Dur("retry_after", retryAfter).
				Msg("rate limited")
		}
	}
	return Decision{Status: StatusRateLimited, RetryAfter: retryAfter, Remaining: b.tokens}
}

// RecordOutcome feeds a call's result back into the resource's circuit
// breaker and, when adaptive limiting is on, adjusts the pair's bucket
// capacity.
func (l *Limiter) RecordOutcome(caller, resource string, success bool) {
	if success {
		l.tracker.RecordSuccess(resource)
	} else {
		l.tracker.RecordFailure(resource, nil)
	}

	if !l.cfg.Adaptive {
		return
	}

	b := l.getOrCreate(caller, resource)
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.successStreak++
		if b.successStreak >= l.cfg.GetGrowthStreak() {
			b.growLocked()
			b.successStreak = 0
		}
		return
	}
	b.successStreak = 0
	b.shrinkLocked()
}

// SetPriority updates the tier on every existing bucket belonging to
// the caller. Buckets created later default to PriorityNormal; callers
// that need a standing tier should re-apply it after topology changes.
func (l *Limiter) SetPriority(caller string, p Priority) {
	if !p.Valid() {
		p = PriorityNormal
	}
	for i := range l.shards {
		shard := &l.shards[i]
		shard.mu.RLock()
		for _, b := range shard.buckets {
			if b.caller != caller {
				continue
			}
			b.mu.Lock()
			b.priority = p
			b.mu.Unlock()
		}
		shard.mu.RUnlock()
	}
}

// RecentlyLimited reports whether any bucket for the resource returned
// rate_limited within the window.
func (l *Limiter) RecentlyLimited(resource string, window time.Duration) bool {
	v, ok := l.lastLimited.Load(resource)
	if !ok {
		return false
	}
	last, ok := v.(time.Time)
	return ok && l.clock().Sub(last) <= window
}

// GetStats returns a snapshot of one bucket, or false if the pair has
// never been seen.
func (l *Limiter) GetStats(caller, resource string) (BucketStats, bool) {
	key := caller + keySep + resource
	shard := l.shard(key)

	shard.mu.RLock()
	b, exists := shard.buckets[key]
	shard.mu.RUnlock()
	if !exists {
		return BucketStats{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(l.clock())
	return b.snapshotLocked(), true
}

// AllStats returns snapshots of every live bucket.
func (l *Limiter) AllStats() []BucketStats {
	var all []BucketStats
	now := l.clock()
	for i := range l.shards {
		shard := &l.shards[i]
		shard.mu.RLock()
		for _, b := range shard.buckets {
			b.mu.Lock()
			b.refillLocked(now)
			all = append(all, b.snapshotLocked())
			b.mu.Unlock()
		}
		shard.mu.RUnlock()
	}
	return all
}

// Reset discards the pair's bucket; the next Acquire starts from a full
// baseline bucket. No-op for unknown pairs.
func (l *Limiter) Reset(caller, resource string) {
	key := caller + keySep + resource
	shard := l.shard(key)
	shard.mu.Lock()
	delete(shard.buckets, key)
	shard.mu.Unlock()
}

// ResetAll discards every bucket.
func (l *Limiter) ResetAll() {
	for i := range l.shards {
		shard := &l.shards[i]
		shard.mu.Lock()
		shard.buckets = make(map[string]*bucket)
		shard.mu.Unlock()
	}
}

// Start launches the idle-bucket janitor.
func (l *Limiter) Start() {
	interval := l.cfg.GetSweepInterval()
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-l.ctx.Done():
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()

	if l.logger != nil {
		l.logger.Info().
			Dur("interval", interval).
			Dur("idle_window", l.cfg.GetIdleWindow()).
			Msg("rate limiter janitor started")
	}
}

// Stop cancels the janitor and waits for it to exit.
func (l *Limiter) Stop() {
	l.cancel()
	l.wg.Wait()
}

// sweep evicts buckets untouched for longer than the idle window.
func (l *Limiter) sweep() {
	cutoff := l.clock().Add(-l.cfg.GetIdleWindow())
	evicted := 0

	for i := range l.shards {
		shard := &l.shards[i]
		shard.mu.Lock()
		for key, b := range shard.buckets {
			b.mu.Lock()
			idle := b.lastAccess.Before(cutoff)
			b.mu.Unlock()
			if idle {
				delete(shard.buckets, key)
				evicted++
			}
		}
		shard.mu.Unlock()
	}

	if evicted > 0 && l.logger != nil {
		l.logger.Debug().Int("evicted", evicted).Msg("evicted idle buckets")
	}
}
