package router

// RoundRobin returns the candidate after lastIndex, wrapping at the end
// of the list, along with the new index for the caller to hold. Passing
// a negative lastIndex starts at the first candidate.
func RoundRobin(candidates []string, lastIndex int) (string, int, error) {
	if len(candidates) == 0 {
		return "", lastIndex, ErrNoCandidates
	}

	next := (lastIndex + 1) % len(candidates)
	if next < 0 {
		next += len(candidates)
	}
	return candidates[next], next, nil
}
