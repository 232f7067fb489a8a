package failover

// CheckNow runs a single evaluation pass over every registered
// provider, exactly as the periodic loop would.
func (m *Manager) CheckNow() {
	m.checkAll()
}

// CheckProviderNow evaluates a single provider.
func (m *Manager) CheckProviderNow(provider string) {
	m.checkProvider(provider)
}

// RecoveryCheckNow runs the recovery evaluation for one failed-over
// provider without waiting for its timer.
func (m *Manager) RecoveryCheckNow(provider string) {
	m.recoveryCheck(provider)
}

// CompositeScore exposes the score calculation.
func (m *Manager) CompositeScore(provider string) float64 {
	return m.compositeScore(provider)
}
