// Package steer composes the resilience components into one traffic
// distribution core: a consistent-hash ring, pluggable routing
// strategies, per-resource circuit breakers, an adaptive rate limiter,
// and a failover manager.
//
// The request pipeline is Route -> call -> Report. Route filters the
// registered providers through the failover manager's cached health
// and the circuit breakers, picks one with the configured strategy,
// and charges the caller's token bucket. Report feeds the observed
// outcome back into the limiter and breakers, which the failover
// manager folds into its next composite score.
package steer

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/do/v2"
	"github.com/samber/lo"

	"github.com/steerd/steer/config"
	"github.com/steerd/steer/failover"
	"github.com/steerd/steer/health"
	"github.com/steerd/steer/ratelimit"
	"github.com/steerd/steer/ring"
	"github.com/steerd/steer/router"
)

// ErrNoAvailableProvider is returned by Route when health filtering
// leaves no provider standing.
var ErrNoAvailableProvider = errors.New("steer: no available provider")

// statsWindow bounds the per-provider latency and outcome histories
// consumed by the latency-based and adaptive strategies.
const statsWindow = 32

// Provider describes one traffic destination.
type Provider struct {
	// Name identifies the provider everywhere: ring key, breaker
	// resource, rate-limit resource, failover subject.
	Name string

	// Weight biases weighted-random selection. Zero means 1.
	Weight float64

	// Cost is the relative price of this provider, consumed by the
	// multi-criteria strategy. Lower is better.
	Cost float64

	// Capability scores what this provider can do, consumed by the
	// multi-criteria strategy. Higher is better.
	Capability float64
}

// Request is one unit of work to place.
type Request struct {
	// Caller identifies the tenant charged for admission.
	Caller string

	// SessionKey, when set, enables sticky sessions and hash-based
	// placement.
	SessionKey string

	// Cost is the token cost charged on admission. Zero means 1.
	Cost float64
}

// Assignment is a successful placement.
type Assignment struct {
	Provider string
	Decision ratelimit.Decision
}

type providerStats struct {
	weight      float64
	cost        float64
	capability  float64
	connections int
	latencies   []time.Duration
	outcomes    []router.Outcome
}

// Core is the assembled traffic distribution pipeline.
type Core struct {
	injector *do.RootScope
	cfg      *config.Config
	logger   *zerolog.Logger
	ring     *ring.Ring
	tracker  *health.Tracker
	limiter  *ratelimit.Limiter
	manager  *failover.Manager
	affinity *router.Affinity
	rng      router.Rand

	providers map[string]*providerStats
	rrIndex   int
	mu        sync.Mutex
}

// New assembles a Core from the configuration. Invalid configuration
// fails here, never at runtime.
func New(cfg *config.Config, opts ...Option) (*Core, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := coreOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	injector := do.New()
	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, o)
	registerServices(injector)

	core, err := do.Invoke[*Core](injector)
	if err != nil {
		_ = injector.Shutdown()
		return nil, fmt.Errorf("steer: assembly failed: %w", err)
	}
	core.injector = injector
	return core, nil
}

// Start launches the background loops: the limiter's idle-bucket
// janitor and the failover manager's health checks.
func (c *Core) Start() {
	c.limiter.Start()
	c.manager.Start()
}

// Shutdown tears the core down in reverse assembly order: manager
// loop, janitor, affinity cache.
func (c *Core) Shutdown() error {
	if c.injector == nil {
		return nil
	}
	report := c.injector.Shutdown()
	if report != nil && !report.Succeed {
		return fmt.Errorf("steer: shutdown failed: %s", report.Error())
	}
	return nil
}

// RegisterProvider adds or updates a traffic destination. The provider
// joins the ring and the failover manager's evaluation set.
func (c *Core) RegisterProvider(p Provider) {
	if p.Name == "" {
		return
	}
	if p.Weight <= 0 {
		p.Weight = 1
	}

	c.mu.Lock()
	st, exists := c.providers[p.Name]
	if !exists {
		st = &providerStats{}
		c.providers[p.Name] = st
	}
	st.weight = p.Weight
	st.cost = p.Cost
	st.capability = p.Capability
	c.mu.Unlock()

	c.ring.AddKey(p.Name)
	c.manager.AddProvider(p.Name)
}

// DeregisterProvider removes a provider from the ring and the failover
// set. Rate-limit buckets against it are left to the janitor.
func (c *Core) DeregisterProvider(name string) {
	c.mu.Lock()
	delete(c.providers, name)
	c.mu.Unlock()

	c.ring.RemoveKey(name)
	c.manager.RemoveProvider(name)
}

// SetBackups configures the ordered failover targets for a provider.
func (c *Core) SetBackups(provider string, backups []string) {
	c.manager.ConfigureBackups(provider, backups)
}

// Providers lists the registered provider names, sorted.
func (c *Core) Providers() []string {
	c.mu.Lock()
	names := lo.Keys(c.providers)
	c.mu.Unlock()
	sort.Strings(names)
	return names
}

// Route runs the placement pipeline for one request: health-filter the
// providers, pick one with the configured strategy (sticky sessions
// first), then charge the caller's bucket. The returned assignment
// must be closed out with Report.
func (c *Core) Route(req Request) (Assignment, error) {
	cost := req.Cost
	if cost <= 0 {
		cost = 1
	}

	candidates := c.candidates()
	if len(candidates) == 0 {
		return Assignment{}, ErrNoAvailableProvider
	}

	provider, sticky := c.stickyChoice(req.SessionKey, candidates)
	if !sticky {
		var err error
		provider, err = c.selectProvider(req, candidates)
		if err != nil {
			return Assignment{}, err
		}
	}

	dec := c.limiter.Acquire(req.Caller, provider, cost)
	if !dec.Allowed() {
		return Assignment{Provider: provider, Decision: dec}, dec.Err()
	}

	if c.affinity != nil && req.SessionKey != "" {
		c.affinity.Remember(req.SessionKey, provider)
	}

	c.mu.Lock()
	if st, ok := c.providers[provider]; ok {
		st.connections++
	}
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Debug().
			Str("caller", req.Caller).
			Str("provider", provider).
			Bool("sticky", sticky).
			Msg("routed")
	}

	return Assignment{Provider: provider, Decision: dec}, nil
}

// Report closes out an assignment with the observed outcome. It feeds
// the limiter's adaptive capacity, the provider's circuit breaker, and
// the stats the latency-based and adaptive strategies select on.
func (c *Core) Report(caller, provider string, latency time.Duration, callErr error) {
	success := callErr == nil
	c.limiter.RecordOutcome(caller, provider, success)

	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.providers[provider]
	if !ok {
		return
	}
	if st.connections > 0 {
		st.connections--
	}
	st.latencies = appendBounded(st.latencies, latency, statsWindow)
	st.outcomes = appendBounded(st.outcomes, router.Outcome{Latency: latency, Success: success}, statsWindow)
}

// Admit charges the caller's bucket for a resource without routing.
func (c *Core) Admit(caller, resource string, cost float64) ratelimit.Decision {
	if cost <= 0 {
		cost = 1
	}
	return c.limiter.Acquire(caller, resource, cost)
}

// SetPriority adjusts a caller's rate-limit priority across all its
// buckets.
func (c *Core) SetPriority(caller string, p ratelimit.Priority) {
	c.limiter.SetPriority(caller, p)
}

// Ring exposes the hash ring.
func (c *Core) Ring() *ring.Ring { return c.ring }

// Tracker exposes the circuit breaker registry shared by the limiter
// and the failover manager.
func (c *Core) Tracker() *health.Tracker { return c.tracker }

// Limiter exposes the rate limiter.
func (c *Core) Limiter() *ratelimit.Limiter { return c.limiter }

// Manager exposes the failover manager.
func (c *Core) Manager() *failover.Manager { return c.manager }

// candidates returns the providers a request may land on right now:
// failed-over providers are replaced by their redirect target, open
// circuits and unusable statuses are filtered out.
func (c *Core) candidates() []string {
	names := c.Providers()

	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		effective := name
		if target, ok := c.manager.RedirectTarget(name); ok {
			effective = target
		}
		if seen[effective] {
			continue
		}
		if c.tracker.GetState(effective) == health.StateOpen {
			continue
		}
		if ph, tracked := c.manager.GetProviderHealth(effective); tracked && !ph.Status.Usable() {
			continue
		}
		seen[effective] = true
		out = append(out, effective)
	}
	return out
}

// stickyChoice honors an existing session pin when its provider is
// still a candidate; stale pins are dropped.
func (c *Core) stickyChoice(sessionKey string, candidates []string) (string, bool) {
	if c.affinity == nil || sessionKey == "" {
		return "", false
	}
	choice, ok := c.affinity.Lookup(sessionKey)
	if !ok {
		return "", false
	}
	if lo.Contains(candidates, choice) {
		return choice, true
	}
	c.affinity.Forget(sessionKey)
	return "", false
}

func (c *Core) selectProvider(req Request, candidates []string) (string, error) {
	switch c.cfg.Routing.GetEffectiveStrategy() {
	case config.StrategyRoundRobin:
		c.mu.Lock()
		key, next, err := router.RoundRobin(candidates, c.rrIndex)
		c.rrIndex = next
		c.mu.Unlock()
		return key, err

	case config.StrategyLeastConnections:
		return router.LeastConnections(c.connectionCounts(candidates))

	case config.StrategyPowerOfTwoChoices:
		return router.PowerOfTwoChoices(c.rng, c.connectionCounts(candidates))

	case config.StrategyLatencyBased:
		return router.LatencyBased(c.rng, c.latencyHistory(candidates), router.DefaultLatencyDecay)

	case config.StrategyHashBased:
		return c.hashChoice(req.SessionKey, candidates)

	case config.StrategyMultiCriteria:
		return router.MultiCriteria(c.criteria(candidates), router.DefaultCriteriaWeights())

	case config.StrategyAdaptive:
		rate := c.cfg.Routing.GetExplorationRateOption().OrElse(router.DefaultExplorationRate)
		return router.Adaptive(c.rng, c.outcomeHistory(candidates), rate)

	default:
		return router.WeightedRandom(c.rng, c.weightedCandidates(candidates))
	}
}

// hashChoice walks the ring's preference order for the session key and
// takes the first key that survived health filtering. Sessions without
// a key fall back to weighted random.
func (c *Core) hashChoice(sessionKey string, candidates []string) (string, error) {
	if sessionKey == "" {
		return router.WeightedRandom(c.rng, c.weightedCandidates(candidates))
	}

	allowed := make(map[string]bool, len(candidates))
	for _, key := range candidates {
		allowed[key] = true
	}
	for _, key := range c.ring.GetKeys(sessionKey, c.ring.Stats().Keys) {
		if allowed[key] {
			return key, nil
		}
	}
	// Candidate not on the ring (e.g. a redirect target registered
	// elsewhere): hash directly over the candidate set.
	return router.HashBased(candidates, sessionKey)
}

func (c *Core) weightedCandidates(candidates []string) []router.Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]router.Candidate, 0, len(candidates))
	for _, name := range candidates {
		weight := 1.0
		if st, ok := c.providers[name]; ok {
			weight = st.weight
		}
		out = append(out, router.Candidate{Key: name, Weight: weight})
	}
	return out
}

func (c *Core) connectionCounts(candidates []string) map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int, len(candidates))
	for _, name := range candidates {
		if st, ok := c.providers[name]; ok {
			out[name] = st.connections
		} else {
			out[name] = 0
		}
	}
	return out
}

func (c *Core) latencyHistory(candidates []string) map[string][]time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string][]time.Duration, len(candidates))
	for _, name := range candidates {
		if st, ok := c.providers[name]; ok && len(st.latencies) > 0 {
			out[name] = append([]time.Duration(nil), st.latencies...)
		} else {
			out[name] = nil
		}
	}
	return out
}

func (c *Core) outcomeHistory(candidates []string) map[string][]router.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string][]router.Outcome, len(candidates))
	for _, name := range candidates {
		if st, ok := c.providers[name]; ok && len(st.outcomes) > 0 {
			out[name] = append([]router.Outcome(nil), st.outcomes...)
		} else {
			out[name] = nil
		}
	}
	return out
}

func (c *Core) criteria(candidates []string) map[string]router.Criteria {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]router.Criteria, len(candidates))
	for _, name := range candidates {
		cr := router.Criteria{}
		if st, ok := c.providers[name]; ok {
			cr.Load = float64(st.connections)
			cr.Cost = st.cost
			cr.Capability = st.capability
			if len(st.latencies) > 0 {
				var total time.Duration
				for _, l := range st.latencies {
					total += l
				}
				cr.Latency = float64(total) / float64(len(st.latencies))
			}
		}
		out[name] = cr
	}
	return out
}

func appendBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}
