package router

import (
	"sort"

	"github.com/samber/lo"
)

// Criteria holds the per-candidate dimensions consumed by MultiCriteria.
// Latency, Load and Cost are "lower is better"; Capability is "higher is
// better". Units do not matter, only relative magnitudes: each dimension
// is normalized across the candidate set before weighting.
type Criteria struct {
	Latency    float64
	Load       float64
	Cost       float64
	Capability float64
}

// CriteriaWeights controls the relative importance of each dimension.
type CriteriaWeights struct {
	Latency    float64
	Load       float64
	Cost       float64
	Capability float64
}

// DefaultCriteriaWeights returns CriteriaWeights{0.30, 0.25, 0.25, 0.20}.
func DefaultCriteriaWeights() CriteriaWeights {
	return CriteriaWeights{
		Latency:    0.30,
		Load:       0.25,
		Cost:       0.25,
		Capability: 0.20,
	}
}

// MultiCriteria normalizes every dimension to [0, 1] across the
// candidate set (latency, load and cost inverted so less is better),
// computes the weighted sum per candidate, and returns the argmax.
// Zero weights fall back to DefaultCriteriaWeights. Ties break toward
// the lexicographically smaller key.
func MultiCriteria(metrics map[string]Criteria, weights CriteriaWeights) (string, error) {
	if len(metrics) == 0 {
		return "", ErrNoCandidates
	}
	if weights == (CriteriaWeights{}) {
		weights = DefaultCriteriaWeights()
	}

	keys := lo.Keys(metrics)
	sort.Strings(keys)
	if len(keys) == 1 {
		return keys[0], nil
	}

	latency := dimensionRange(keys, metrics, func(c Criteria) float64 { return c.Latency })
	load := dimensionRange(keys, metrics, func(c Criteria) float64 { return c.Load })
	cost := dimensionRange(keys, metrics, func(c Criteria) float64 { return c.Cost })
	capability := dimensionRange(keys, metrics, func(c Criteria) float64 { return c.Capability })

	best := keys[0]
	bestScore := -1.0
	for _, key := range keys {
		m := metrics[key]
		score := weights.Latency*(1-latency.normalize(m.Latency)) +
			weights.Load*(1-load.normalize(m.Load)) +
			weights.Cost*(1-cost.normalize(m.Cost)) +
			weights.Capability*capability.normalize(m.Capability)
		if score > bestScore {
			best = key
			bestScore = score
		}
	}
	return best, nil
}

type valueRange struct {
	min float64
	max float64
}

func dimensionRange(keys []string, metrics map[string]Criteria, dim func(Criteria) float64) valueRange {
	r := valueRange{min: dim(metrics[keys[0]]), max: dim(metrics[keys[0]])}
	for _, key := range keys[1:] {
		v := dim(metrics[key])
		if v < r.min {
			r.min = v
		}
		if v > r.max {
			r.max = v
		}
	}
	return r
}

// normalize maps v into [0, 1] within the range. A degenerate range
// (all candidates equal) normalizes to 0.5 so the dimension neither
// rewards nor punishes anyone.
func (r valueRange) normalize(v float64) float64 {
	if r.max == r.min {
		return 0.5
	}
	return (v - r.min) / (r.max - r.min)
}
