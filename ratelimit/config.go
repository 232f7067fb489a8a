package ratelimit

import (
	"time"

	"github.com/steerd/steer/health"
)

// Default configuration values.
const (
	DefaultMaxTokens     = 100.0            // bucket capacity
	DefaultRefillPerSec  = 10.0             // tokens refilled per second
	DefaultGrowthStreak  = 5                // successes per adaptive growth step
	DefaultGrowthFactor  = 1.10             // +10% capacity per growth step
	DefaultShrinkFactor  = 0.80             // -20% capacity per failure
	DefaultIdleWindow    = time.Hour        // evict buckets untouched this long
	DefaultSweepInterval = 5 * time.Minute  // janitor cadence
	minAdaptiveCapacity  = 1.0              // capacity never shrinks below this
	maxAdaptiveGrowth    = 2.0              // capacity never exceeds baseline * this
)

// Config defines limiter behavior. Zero fields take defaults via the
// getters, matching how the rest of the system treats configuration.
type Config struct {
	// MaxTokens is the baseline bucket capacity. Default: 100.
	MaxTokens float64 `yaml:"max_tokens"`

	// RefillPerSec is the bucket refill rate in tokens/second.
	// Default: 10.
	RefillPerSec float64 `yaml:"refill_per_sec"`

	// Adaptive enables capacity adjustment from recorded outcomes:
	// sustained success grows a bucket slowly, any failure shrinks it
	// fast, bounded to [1, 2*MaxTokens].
	Adaptive bool `yaml:"adaptive"`

	// GrowthStreak is how many consecutive successes earn one growth
	// step. Default: 5.
	GrowthStreak int `yaml:"growth_streak"`

	// IdleWindow is how long an untouched bucket survives before the
	// janitor evicts it. Default: 1h.
	IdleWindow time.Duration `yaml:"idle_window"`

	// SweepInterval is how often the janitor scans for idle buckets.
	// Default: 5m.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Breaker configures the per-resource circuit breakers embedded in
	// the limiter.
	Breaker health.Config `yaml:"breaker"`
}

// GetMaxTokens returns the configured capacity or the default.
func (c *Config) GetMaxTokens() float64 {
	if c.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return c.MaxTokens
}

// GetRefillPerSec returns the configured refill rate or the default.
func (c *Config) GetRefillPerSec() float64 {
	if c.RefillPerSec <= 0 {
		return DefaultRefillPerSec
	}
	return c.RefillPerSec
}

// GetGrowthStreak returns the configured streak length or the default.
func (c *Config) GetGrowthStreak() int {
	if c.GrowthStreak <= 0 {
		return DefaultGrowthStreak
	}
	return c.GrowthStreak
}

// GetIdleWindow returns the configured idle window or the default.
func (c *Config) GetIdleWindow() time.Duration {
	if c.IdleWindow <= 0 {
		return DefaultIdleWindow
	}
	return c.IdleWindow
}

// GetSweepInterval returns the configured sweep cadence or the default.
func (c *Config) GetSweepInterval() time.Duration {
	if c.SweepInterval <= 0 {
		return DefaultSweepInterval
	}
	return c.SweepInterval
}
