package ratelimit

// Priority is a caller's admission tier. Higher tiers pay a discounted
// token cost per request, so the same bucket stretches further for
// callers the operator cares about most.
type Priority int

// Priority tiers.
const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// String returns the tier name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// Multiplier returns the cost divisor for the tier: a high-priority
// caller needs half the tokens of a normal one, a low-priority caller
// twice as many.
func (p Priority) Multiplier() float64 {
	switch p {
	case PriorityLow:
		return 0.5
	case PriorityHigh:
		return 2.0
	default:
		return 1.0
	}
}

// Valid reports whether p is a known tier.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityHigh
}
