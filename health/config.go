package health

import "time"

// Default configuration values.
const (
	DefaultFailureThreshold = 5                // consecutive failures to open
	DefaultSuccessThreshold = 2                // half-open successes to close
	DefaultRecoveryTimeout  = 30 * time.Second // open duration before half-open
)

// Config defines circuit breaker behavior for one registry of breakers.
type Config struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens. Default: 5.
	FailureThreshold int `yaml:"failure_threshold"`

	// SuccessThreshold is the number of trial successes in half-open
	// state required to close the circuit. It also bounds how many
	// trial calls may be in flight concurrently. Default: 2.
	SuccessThreshold int `yaml:"success_threshold"`

	// RecoveryTimeout is how long the circuit stays open before a call
	// is allowed to probe the resource again. Default: 30s.
	RecoveryTimeout time.Duration `yaml:"recovery_timeout"`
}

// GetFailureThreshold returns the configured threshold or the default.
func (c *Config) GetFailureThreshold() int {
	if c.FailureThreshold <= 0 {
		return DefaultFailureThreshold
	}
	return c.FailureThreshold
}

// GetSuccessThreshold returns the configured threshold or the default.
func (c *Config) GetSuccessThreshold() int {
	if c.SuccessThreshold <= 0 {
		return DefaultSuccessThreshold
	}
	return c.SuccessThreshold
}

// GetRecoveryTimeout returns the configured timeout or the default.
func (c *Config) GetRecoveryTimeout() time.Duration {
	if c.RecoveryTimeout <= 0 {
		return DefaultRecoveryTimeout
	}
	return c.RecoveryTimeout
}
