// Package config provides configuration loading, parsing, and
// validation for steer.
package config

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/mo"

	"github.com/steerd/steer/failover"
	"github.com/steerd/steer/health"
	"github.com/steerd/steer/ratelimit"
)

// Hasher name constants for RingConfig.Hasher.
const (
	HasherSHA256 = "sha256"
	HasherXXHash = "xxhash"
)

// Routing strategy names.
const (
	StrategyWeightedRandom    = "weighted_random"
	StrategyRoundRobin        = "round_robin"
	StrategyLeastConnections  = "least_connections"
	StrategyPowerOfTwoChoices = "power_of_two"
	StrategyLatencyBased      = "latency"
	StrategyHashBased         = "hash"
	StrategyMultiCriteria     = "multi_criteria"
	StrategyAdaptive          = "adaptive"
)

// Log level constants.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Config represents the complete steer configuration.
type Config struct {
	Ring      RingConfig       `yaml:"ring"`
	Routing   RoutingConfig    `yaml:"routing"`
	Breaker   health.Config    `yaml:"breaker"`
	RateLimit ratelimit.Config `yaml:"rate_limit"`
	Failover  failover.Config  `yaml:"failover"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// RingConfig defines hash ring construction.
type RingConfig struct {
	// VirtualNodes is the number of ring positions per key.
	// Default: 150.
	VirtualNodes int `yaml:"virtual_nodes"`

	// Hasher selects the position hash: "sha256" (default) or
	// "xxhash".
	Hasher string `yaml:"hasher"`
}

// GetEffectiveHasher returns the hasher name with default fallback.
func (r *RingConfig) GetEffectiveHasher() string {
	if r.Hasher == "" {
		return HasherSHA256
	}
	return r.Hasher
}

// GetVirtualNodesOption returns the virtual node count as an Option.
// Returns None when unset, letting the ring apply its own default.
func (r *RingConfig) GetVirtualNodesOption() mo.Option[int] {
	if r.VirtualNodes <= 0 {
		return mo.None[int]()
	}
	return mo.Some(r.VirtualNodes)
}

// RoutingConfig defines how requests are distributed across the
// candidates the ring and health gate leave standing.
type RoutingConfig struct {
	// Strategy selects the candidate-selection algorithm.
	// Default: weighted_random.
	Strategy string `yaml:"strategy"`

	// AffinitySessions caps the sticky-session cache. Zero disables
	// session affinity.
	AffinitySessions int64 `yaml:"affinity_sessions"`

	// AffinityTTLMS is the sticky-session lifetime in milliseconds.
	// Zero takes the router default.
	AffinityTTLMS int `yaml:"affinity_ttl_ms"`

	// ExplorationRate overrides the adaptive strategy's exploration
	// probability. Zero takes the router default.
	ExplorationRate float64 `yaml:"exploration_rate"`
}

// GetEffectiveStrategy returns the routing strategy with default
// fallback.
func (r *RoutingConfig) GetEffectiveStrategy() string {
	if r.Strategy == "" {
		return StrategyWeightedRandom
	}
	return r.Strategy
}

// GetAffinityTTLOption returns the sticky-session TTL as a duration
// Option. Returns None if AffinityTTLMS is zero or negative.
func (r *RoutingConfig) GetAffinityTTLOption() mo.Option[time.Duration] {
	if r.AffinityTTLMS <= 0 {
		return mo.None[time.Duration]()
	}
	return mo.Some(time.Duration(r.AffinityTTLMS) * time.Millisecond)
}

// GetExplorationRateOption returns the exploration rate as an Option.
// Returns None when unset.
func (r *RoutingConfig) GetExplorationRateOption() mo.Option[float64] {
	if r.ExplorationRate <= 0 {
		return mo.None[float64]()
	}
	return mo.Some(r.ExplorationRate)
}

// IsAffinityEnabled reports whether sticky sessions are configured.
func (r *RoutingConfig) IsAffinityEnabled() bool {
	return r.AffinitySessions > 0
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	// Level is the minimum level to emit: debug, info (default), warn,
	// error.
	Level string `yaml:"level"`

	// Format selects json (default) or console/pretty output.
	Format string `yaml:"format"`

	// Output is the destination: stdout (default), stderr, or a file
	// path.
	Output string `yaml:"output"`
}

// GetEffectiveLevel returns the log level with default fallback.
func (l *LoggingConfig) GetEffectiveLevel() string {
	if l.Level == "" {
		return LevelInfo
	}
	return l.Level
}

// ParseLevel converts the configured level string to a zerolog.Level.
// Unknown values fall back to info.
func (l *LoggingConfig) ParseLevel() zerolog.Level {
	switch l.Level {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	case LevelInfo, "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

// GetOutputOption returns the output destination as an Option.
// Returns None for the stdout default.
func (l *LoggingConfig) GetOutputOption() mo.Option[string] {
	if l.Output == "" || l.Output == "stdout" {
		return mo.None[string]()
	}
	return mo.Some(l.Output)
}
