package ratelimit

// Sweep runs one janitor pass synchronously for tests.
func (l *Limiter) Sweep() {
	l.sweep()
}

// BucketCount returns the number of live buckets for tests.
func (l *Limiter) BucketCount() int {
	count := 0
	for i := range l.shards {
		shard := &l.shards[i]
		shard.mu.RLock()
		count += len(shard.buckets)
		shard.mu.RUnlock()
	}
	return count
}
