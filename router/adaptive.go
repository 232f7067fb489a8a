package router

import (
	"sort"
	"time"

	"github.com/samber/lo"
)

// Outcome is one historical observation of a candidate handling a call.
type Outcome struct {
	Latency time.Duration
	Success bool
}

// DefaultExplorationRate is the epsilon used when none is configured.
const DefaultExplorationRate = 0.1

// Relative weight of success rate vs. latency in the exploitation score.
const (
	adaptiveSuccessWeight = 0.7
	adaptiveLatencyWeight = 0.3
)

// Adaptive implements epsilon-greedy selection over outcome history.
// With probability explorationRate it picks uniformly at random so that
// under-observed candidates keep accumulating data; otherwise it scores
// each candidate as 0.7*successRate + 0.3*latencyScore and feeds the
// scores into WeightedRandom, so better performers win more often
// without starving the rest.
//
// Latency scores are inverse average latencies normalized against the
// fastest candidate. Candidates with no history score as if perfectly
// average, which biases early traffic toward the unknown.
func Adaptive(rng Rand, history map[string][]Outcome, explorationRate float64) (string, error) {
	if len(history) == 0 {
		return "", ErrNoCandidates
	}
	if explorationRate <= 0 || explorationRate >= 1 {
		explorationRate = DefaultExplorationRate
	}
	rng = orDefault(rng)

	keys := lo.Keys(history)
	sort.Strings(keys)

	// Exploration: uniform pick.
	if rng.Float64() < explorationRate {
		return keys[rng.IntN(len(keys))], nil
	}

	// Exploitation: score from success rate and latency.
	avgLatency := make(map[string]float64, len(keys))
	fastest := 0.0
	for _, key := range keys {
		outcomes := history[key]
		if len(outcomes) == 0 {
			continue
		}
		total := 0.0
		for _, o := range outcomes {
			total += o.Latency.Seconds()
		}
		avg := total / float64(len(outcomes))
		if avg <= 0 {
			avg = time.Microsecond.Seconds()
		}
		avgLatency[key] = avg
		if fastest == 0 || avg < fastest {
			fastest = avg
		}
	}

	candidates := make([]Candidate, 0, len(keys))
	for _, key := range keys {
		outcomes := history[key]
		if len(outcomes) == 0 {
			// No observations yet: neutral score.
			candidates = append(candidates, Candidate{
				Key:    key,
				Weight: adaptiveSuccessWeight*0.5 + adaptiveLatencyWeight*0.5,
			})
			continue
		}

		successes := lo.CountBy(outcomes, func(o Outcome) bool { return o.Success })
		successRate := float64(successes) / float64(len(outcomes))

		latencyScore := 0.0
		if avg := avgLatency[key]; avg > 0 && fastest > 0 {
			latencyScore = fastest / avg // 1.0 for the fastest, <1 for slower
		}

		candidates = append(candidates, Candidate{
			Key:    key,
			Weight: adaptiveSuccessWeight*successRate + adaptiveLatencyWeight*latencyScore,
		})
	}

	return WeightedRandom(rng, candidates)
}
