package router

// WeightedRandom picks a candidate with probability proportional to its
// weight. A single uniform draw in [0, totalWeight) walks the list
// accumulating weights until the draw is covered. If the total weight is
// zero or negative the pick degrades to uniform random.
func WeightedRandom(rng Rand, candidates []Candidate) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}
	rng = orDefault(rng)

	total := 0.0
	for _, c := range candidates {
		if c.Weight > 0 {
			total += c.Weight
		}
	}
	if total <= 0 {
		return candidates[rng.IntN(len(candidates))].Key, nil
	}

	roll := rng.Float64() * total
	for _, c := range candidates {
		if c.Weight <= 0 {
			continue
		}
		if roll < c.Weight {
			return c.Key, nil
		}
		roll -= c.Weight
	}

	// Floating-point accumulation can leave a sliver past the last
	// positive weight; the last candidate absorbs it.
	for i := len(candidates) - 1; i >= 0; i-- {
		if candidates[i].Weight > 0 {
			return candidates[i].Key, nil
		}
	}
	return candidates[len(candidates)-1].Key, nil
}
