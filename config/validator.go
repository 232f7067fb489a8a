package config

import (
	"math"

	"github.com/steerd/steer/failover"
)

// Valid hasher names.
var validHashers = map[string]bool{
	"":           true, // Empty defaults to sha256
	HasherSHA256: true,
	HasherXXHash: true,
}

// Valid routing strategies.
var validRoutingStrategies = map[string]bool{
	"":                        true, // Empty defaults to weighted_random
	StrategyWeightedRandom:    true,
	StrategyRoundRobin:        true,
	StrategyLeastConnections:  true,
	StrategyPowerOfTwoChoices: true,
	StrategyLatencyBased:      true,
	StrategyHashBased:         true,
	StrategyMultiCriteria:     true,
	StrategyAdaptive:          true,
}

// Valid logging levels.
var validLogLevels = map[string]bool{
	"":         true, // Empty defaults to info
	LevelDebug: true,
	LevelInfo:  true,
	LevelWarn:  true,
	LevelError: true,
}

// Valid logging formats.
var validLogFormats = map[string]bool{
	"":        true, // Empty defaults to json
	"json":    true,
	"console": true,
	"pretty":  true,
}

// Validate checks the configuration for errors. It validates all
// value ranges and cross-field constraints. Returns a ValidationError
// containing all errors found, or nil if valid.
func (c *Config) Validate() error {
	errs := &ValidationError{}

	validateRing(&c.Ring, errs)
	validateRouting(&c.Routing, errs)
	validateBreaker(c, errs)
	validateRateLimit(c, errs)
	validateFailover(c, errs)
	validateLogging(&c.Logging, errs)

	return errs.ToError()
}

func validateRing(r *RingConfig, errs *ValidationError) {
	if r.VirtualNodes < 0 {
		errs.Add("ring.virtual_nodes must be >= 0")
	}
	if !validHashers[r.Hasher] {
		errs.Addf("ring.hasher is invalid (got %q, valid: sha256, xxhash)", r.Hasher)
	}
}

func validateRouting(r *RoutingConfig, errs *ValidationError) {
	if !validRoutingStrategies[r.Strategy] {
		errs.Addf("routing.strategy is invalid (got %q, valid: weighted_random, round_robin, "+
			"least_connections, power_of_two, latency, hash, multi_criteria, adaptive)",
			r.Strategy)
	}
	if r.AffinitySessions < 0 {
		errs.Add("routing.affinity_sessions must be >= 0")
	}
	if r.AffinityTTLMS < 0 {
		errs.Add("routing.affinity_ttl_ms must be >= 0")
	}
	if r.ExplorationRate < 0 || r.ExplorationRate > 1 {
		errs.Addf("routing.exploration_rate must be in [0, 1] (got %g)", r.ExplorationRate)
	}
}

func validateBreaker(c *Config, errs *ValidationError) {
	if c.Breaker.FailureThreshold < 0 {
		errs.Add("breaker.failure_threshold must be >= 0")
	}
	if c.Breaker.SuccessThreshold < 0 {
		errs.Add("breaker.success_threshold must be >= 0")
	}
	if c.Breaker.RecoveryTimeout < 0 {
		errs.Add("breaker.recovery_timeout must be >= 0")
	}
}

func validateRateLimit(c *Config, errs *ValidationError) {
	rl := &c.RateLimit
	if rl.MaxTokens < 0 {
		errs.Add("rate_limit.max_tokens must be >= 0")
	}
	if rl.RefillPerSec < 0 {
		errs.Add("rate_limit.refill_per_sec must be >= 0")
	}
	if rl.GrowthStreak < 0 {
		errs.Add("rate_limit.growth_streak must be >= 0")
	}
	if rl.IdleWindow < 0 {
		errs.Add("rate_limit.idle_window must be >= 0")
	}
	if rl.SweepInterval < 0 {
		errs.Add("rate_limit.sweep_interval must be >= 0")
	}
}

func validateFailover(c *Config, errs *ValidationError) {
	f := &c.Failover
	if f.CheckInterval < 0 {
		errs.Add("failover.check_interval must be >= 0")
	}
	if f.RecoveryInterval < 0 {
		errs.Add("failover.recovery_interval must be >= 0")
	}
	if f.HistoryLimit < 0 {
		errs.Add("failover.history_limit must be >= 0")
	}

	validateWeights(f, errs)
	validateThresholds(f, errs)
}

func validateWeights(f *failover.Config, errs *ValidationError) {
	w := f.Weights
	if w.Circuit < 0 || w.RateLimit < 0 || w.Registry < 0 {
		errs.Add("failover.weights must each be >= 0")
		return
	}
	sum := w.Circuit + w.RateLimit + w.Registry
	// Zero value means "use the defaults".
	if sum != 0 && math.Abs(sum-1.0) > 1e-6 {
		errs.Addf("failover.weights must sum to 1.0 (got %g)", sum)
	}
}

func validateThresholds(f *failover.Config, errs *ValidationError) {
	t := f.Thresholds
	for _, v := range []float64{t.Healthy, t.Degraded, t.Unhealthy} {
		if v < 0 || v > 1 {
			errs.Add("failover.thresholds must each be in [0, 1]")
			return
		}
	}
	zero := t.Healthy == 0 && t.Degraded == 0 && t.Unhealthy == 0
	if !zero && (t.Healthy < t.Degraded || t.Degraded < t.Unhealthy) {
		errs.Add("failover.thresholds must be ordered healthy >= degraded >= unhealthy")
	}
}

func validateLogging(l *LoggingConfig, errs *ValidationError) {
	if !validLogLevels[l.Level] {
		errs.Addf("logging.level is invalid (got %q, valid: debug, info, warn, error)", l.Level)
	}
	if !validLogFormats[l.Format] {
		errs.Addf("logging.format is invalid (got %q, valid: json, console, pretty)", l.Format)
	}
}
