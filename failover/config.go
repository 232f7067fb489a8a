package failover

import "time"

// Default configuration values.
const (
	DefaultCheckInterval    = 30 * time.Second
	DefaultRecoveryInterval = 2 * time.Minute
	DefaultHistoryLimit     = 100
	DefaultRebalanceEvery   = 10 * time.Second
)

// ScoreWeights are the relative contributions of the three health
// signals to the composite score. They should sum to 1.
type ScoreWeights struct {
	Circuit   float64 `yaml:"circuit"`
	RateLimit float64 `yaml:"rate_limit"`
	Registry  float64 `yaml:"registry"`
}

// DefaultScoreWeights returns ScoreWeights{0.4, 0.3, 0.3}.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Circuit: 0.4, RateLimit: 0.3, Registry: 0.3}
}

// StatusThresholds map a composite score onto a provider status:
// score >= Healthy is healthy, >= Degraded is degraded, >= Unhealthy is
// unhealthy, anything below is failed.
type StatusThresholds struct {
	Healthy   float64 `yaml:"healthy"`
	Degraded  float64 `yaml:"degraded"`
	Unhealthy float64 `yaml:"unhealthy"`
}

// DefaultStatusThresholds returns StatusThresholds{0.8, 0.7, 0.3}.
func DefaultStatusThresholds() StatusThresholds {
	return StatusThresholds{Healthy: 0.8, Degraded: 0.7, Unhealthy: 0.3}
}

// Config defines failover manager behavior.
type Config struct {
	// CheckInterval is the cadence of the periodic health evaluation.
	// Default: 30s.
	CheckInterval time.Duration `yaml:"check_interval"`

	// RecoveryInterval is how long after a failover the failed provider
	// is re-examined. Default: 2m.
	RecoveryInterval time.Duration `yaml:"recovery_interval"`

	// HistoryLimit bounds the failover record history. Default: 100.
	HistoryLimit int `yaml:"history_limit"`

	// RebalanceEvery throttles outgoing rebalance signals so status
	// flapping cannot spam the external distributor. Default: 10s.
	RebalanceEvery time.Duration `yaml:"rebalance_every"`

	// Weights are the composite-score contributions. Zero value takes
	// DefaultScoreWeights.
	Weights ScoreWeights `yaml:"weights"`

	// Thresholds map scores to statuses. Zero value takes
	// DefaultStatusThresholds.
	Thresholds StatusThresholds `yaml:"thresholds"`
}

// GetCheckInterval returns the configured interval or the default.
func (c *Config) GetCheckInterval() time.Duration {
	if c.CheckInterval <= 0 {
		return DefaultCheckInterval
	}
	return c.CheckInterval
}

// GetRecoveryInterval returns the configured interval or the default.
func (c *Config) GetRecoveryInterval() time.Duration {
	if c.RecoveryInterval <= 0 {
		return DefaultRecoveryInterval
	}
	return c.RecoveryInterval
}

// GetHistoryLimit returns the configured limit or the default.
func (c *Config) GetHistoryLimit() int {
	if c.HistoryLimit <= 0 {
		return DefaultHistoryLimit
	}
	return c.HistoryLimit
}

// GetRebalanceEvery returns the configured throttle or the default.
func (c *Config) GetRebalanceEvery() time.Duration {
	if c.RebalanceEvery <= 0 {
		return DefaultRebalanceEvery
	}
	return c.RebalanceEvery
}

// GetWeights returns the configured weights or the defaults.
func (c *Config) GetWeights() ScoreWeights {
	if c.Weights == (ScoreWeights{}) {
		return DefaultScoreWeights()
	}
	return c.Weights
}

// GetThresholds returns the configured thresholds or the defaults.
func (c *Config) GetThresholds() StatusThresholds {
	if c.Thresholds == (StatusThresholds{}) {
		return DefaultStatusThresholds()
	}
	return c.Thresholds
}
