package failover

// Status is a provider's health classification.
type Status int

// Provider statuses, from best to worst.
const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Usable reports whether a provider in this status can absorb
// redirected traffic: healthy and degraded providers can, unhealthy
// and failed ones cannot.
func (s Status) Usable() bool {
	return s == StatusHealthy || s == StatusDegraded
}

// RegistryHealth is the health signal supplied by the external provider
// registry.
type RegistryHealth int

// Registry health values.
const (
	RegistryHealthy RegistryHealth = iota
	RegistryDegraded
	RegistryUnhealthy
	RegistryError
)

// Score maps the registry enum onto its composite-score contribution.
func (h RegistryHealth) Score() float64 {
	switch h {
	case RegistryHealthy:
		return 1.0
	case RegistryDegraded:
		return 0.7
	case RegistryUnhealthy:
		return 0.3
	default:
		return 0.0
	}
}

// Registry reads provider health from an external registry. A nil
// Registry is treated as reporting every provider healthy.
type Registry interface {
	RegistryHealth(provider string) RegistryHealth
}

// Rebalancer is the external load-distribution mechanism the manager
// signals when provider weights should be re-derived. The manager only
// signals; it never redistributes load itself.
type Rebalancer interface {
	Rebalance()
}
