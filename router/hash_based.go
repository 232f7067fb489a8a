package router

import (
	"github.com/cespare/xxhash/v2"
)

// HashBased maps a session key onto a candidate via hash(sessionKey)
// mod len(candidates). It gives deterministic session affinity for a
// fixed candidate list without maintaining a full consistent-hash ring;
// when candidates change, affinity shifts for roughly all sessions, so
// use ring.Ring when topology churn matters.
func HashBased(candidates []string, sessionKey string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}
	idx := xxhash.Sum64String(sessionKey) % uint64(len(candidates))
	return candidates[idx], nil
}
