package router

import (
	"time"
)

// DefaultLatencyDecay is the per-step weight multiplier applied to older
// latency samples when none is configured.
const DefaultLatencyDecay = 0.8

// LatencyBased picks a candidate weighted by the inverse of its
// exponentially-decayed average latency: faster providers receive
// proportionally more traffic while slow ones keep a trickle so
// recovery is observable.
//
// Samples are ordered oldest to newest. The newest sample carries
// weight 1 and each step back multiplies the weight by decay, so stale
// measurements fade instead of dominating. Keys with no samples are
// treated as having the average score of the sampled keys, giving new
// candidates a neutral start.
func LatencyBased(rng Rand, history map[string][]time.Duration, decay float64) (string, error) {
	if len(history) == 0 {
		return "", ErrNoCandidates
	}
	if decay <= 0 || decay >= 1 {
		decay = DefaultLatencyDecay
	}

	scores := make([]Candidate, 0, len(history))
	unsampled := make([]int, 0)
	sum := 0.0

	for key, samples := range history {
		if len(samples) == 0 {
			unsampled = append(unsampled, len(scores))
			scores = append(scores, Candidate{Key: key})
			continue
		}
		avg := decayedAverage(samples, decay)
		score := 1.0 / avg.Seconds()
		scores = append(scores, Candidate{Key: key, Weight: score})
		sum += score
	}

	if sampled := len(scores) - len(unsampled); sampled > 0 {
		neutral := sum / float64(sampled)
		for _, idx := range unsampled {
			scores[idx].Weight = neutral
		}
	}

	return WeightedRandom(rng, scores)
}

// decayedAverage computes the exponentially-weighted average of the
// samples, newest weighted 1.0.
func decayedAverage(samples []time.Duration, decay float64) time.Duration {
	weight := 1.0
	weightSum := 0.0
	total := 0.0
	for i := len(samples) - 1; i >= 0; i-- {
		total += samples[i].Seconds() * weight
		weightSum += weight
		weight *= decay
	}
	avg := total / weightSum
	if avg <= 0 {
		// Zero-duration samples would otherwise produce an infinite score.
		avg = time.Microsecond.Seconds()
	}
	return time.Duration(avg * float64(time.Second))
}
