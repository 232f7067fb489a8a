package router

import (
	"sort"

	"github.com/samber/lo"
)

// LeastConnections returns the key with the fewest active connections.
// Ties break toward the lexicographically smaller key so repeated calls
// with the same counts always agree.
func LeastConnections(counts map[string]int) (string, error) {
	if len(counts) == 0 {
		return "", ErrNoCandidates
	}

	keys := lo.Keys(counts)
	sort.Strings(keys)

	best := keys[0]
	for _, key := range keys[1:] {
		if counts[key] < counts[best] {
			best = key
		}
	}
	return best, nil
}
