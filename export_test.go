package steer

// AffinityWait blocks until pending sticky-session writes are visible.
func (c *Core) AffinityWait() {
	if c.affinity != nil {
		c.affinity.Wait()
	}
}
