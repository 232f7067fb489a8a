// Package failover continuously scores provider health and redirects
// traffic away from providers that degrade.
//
// A periodic evaluator folds three signals into one composite score per
// provider: the circuit breaker state (weight 0.4), recent rate-limit
// pressure (0.3), and the external registry's health verdict (0.3).
// The score maps onto healthy / degraded / unhealthy / failed, and
// status transitions drive the actions: failing providers hand their
// load to the first usable backup and get a scheduled recovery check,
// degraded ones trigger a rebalance signal without a full failover, and
// recovered ones get their load restored and their recovery timer
// cancelled.
//
// Every transition lands in a bounded history and is emitted to the
// configured event sink. The manager performs no network I/O of its
// own: registry health arrives through the Registry interface and load
// redistribution happens behind the Rebalancer interface.
package failover

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/steerd/steer/event"
	"github.com/steerd/steer/health"
	"github.com/steerd/steer/ratelimit"
)

// ErrNoHealthyBackup is returned when a failover found no usable backup
// among the configured candidates.
var ErrNoHealthyBackup = &NoHealthyBackupError{}

// NoHealthyBackupError reports a failover that exhausted its backups.
type NoHealthyBackupError struct {
	Provider string
}

func (e *NoHealthyBackupError) Error() string {
	if e.Provider == "" {
		return "failover: no healthy backup available"
	}
	return "failover: no healthy backup available for " + e.Provider
}

// Is lets errors.Is match any NoHealthyBackupError against the
// package-level sentinel.
func (e *NoHealthyBackupError) Is(target error) bool {
	_, ok := target.(*NoHealthyBackupError)
	return ok
}

// ProviderHealth is a snapshot of one provider's evaluated health.
type ProviderHealth struct {
	Provider    string    `json:"provider"`
	Status      Status    `json:"status"`
	Score       float64   `json:"score"`
	LastChecked time.Time `json:"last_checked"`
	FailedOver  bool      `json:"failed_over"`
	RedirectTo  string    `json:"redirect_to,omitempty"`
}

// Stats summarizes the manager's activity.
type Stats struct {
	Failovers       int      `json:"failovers"`
	Recoveries      int      `json:"recoveries"`
	ActiveFailovers int      `json:"active_failovers"`
	History         []Record `json:"history"`
}

type providerState struct {
	status      Status
	score       float64
	lastChecked time.Time
	failedOver  bool
	redirectTo  string
	recovery    *time.Timer
}

// Manager is the failover manager. Create with New, register providers
// and backups, then Start the evaluation loop.
type Manager struct {
	cfg        Config
	tracker    *health.Tracker
	limiter    *ratelimit.Limiter
	registry   Registry
	sink       event.Sink
	rebalancer Rebalancer
	logger     *zerolog.Logger
	clock      func() time.Time
	throttle   *rate.Limiter

	providers map[string]*providerState
	backups   map[string][]string
	history   []Record
	failovers int
	recovered int
	mu        sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithRegistry supplies the external provider registry.
func WithRegistry(r Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithEvents supplies the event sink.
func WithEvents(s event.Sink) Option {
	return func(m *Manager) {
		if s != nil {
			m.sink = s
		}
	}
}

// WithRebalancer supplies the external load-distribution signal.
func WithRebalancer(r Rebalancer) Option {
	return func(m *Manager) { m.rebalancer = r }
}

// WithLogger attaches a logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock injects a time source for timestamps and score windows.
// Recovery timers still run on real time.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// New creates a Manager reading circuit state from tracker and
// rate-limit pressure from limiter.
func New(cfg Config, tracker *health.Tracker, limiter *ratelimit.Limiter, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:       cfg,
		tracker:   tracker,
		limiter:   limiter,
		sink:      event.NopSink{},
		clock:     time.Now,
		providers: make(map[string]*providerState),
		backups:   make(map[string][]string),
		ctx:       ctx,
		cancel:    cancel,
	}
	every := cfg.GetRebalanceEvery()
	m.throttle = rate.NewLimiter(rate.Every(every), 1)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddProvider registers a provider for health evaluation. Idempotent.
func (m *Manager) AddProvider(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.providers[provider]; exists {
		return
	}
	m.providers[provider] = &providerState{status: StatusHealthy}
}

// RemoveProvider drops a provider and cancels any pending recovery
// timer it holds.
func (m *Manager) RemoveProvider(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, exists := m.providers[provider]; exists && st.recovery != nil {
		st.recovery.Stop()
	}
	delete(m.providers, provider)
	delete(m.backups, provider)
}

// ConfigureBackups sets the ordered backup list consulted when the
// provider fails over.
func (m *Manager) ConfigureBackups(provider string, backups []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backups[provider] = append([]string(nil), backups...)
}

// Start launches the periodic evaluation loop. A small random jitter is
// added to the interval so co-deployed instances do not tick in phase.
func (m *Manager) Start() {
	interval := m.cfg.GetCheckInterval() + cryptoRandDuration(2*time.Second)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.checkAll()
			}
		}
	}()

	if m.logger != nil {
		m.logger.Info().Dur("interval", interval).Msg("failover manager started")
	}
}

// Stop cancels the evaluation loop and all pending recovery timers.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.providers {
		if st.recovery != nil {
			st.recovery.Stop()
			st.recovery = nil
		}
	}
}

// checkAll evaluates every registered provider once.
func (m *Manager) checkAll() {
	m.mu.Lock()
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		m.checkProvider(name)
	}
}

// checkProvider re-scores one provider and applies any transition.
func (m *Manager) checkProvider(provider string) {
	score := m.compositeScore(provider)
	status := m.statusFor(score)

	m.mu.Lock()
	st, exists := m.providers[provider]
	if !exists {
		m.mu.Unlock()
		return
	}
	prev := st.status
	st.score = score
	st.lastChecked = m.clock()
	st.status = status

	var effects []func()
	if status != prev {
		effects = m.transitionLocked(provider, st, prev, status)
	}
	m.mu.Unlock()

	for _, effect := range effects {
		effect()
	}
}

// compositeScore folds circuit, rate-limit and registry signals into
// one number in [0, 1].
func (m *Manager) compositeScore(provider string) float64 {
	weights := m.cfg.GetWeights()

	circuit := 0.0
	switch m.tracker.GetState(provider) {
	case health.StateClosed:
		circuit = 1.0
	case health.StateHalfOpen:
		circuit = 0.6
	case health.StateOpen:
		circuit = 0.0
	}

	rateLimit := 1.0
	if m.limiter != nil && m.limiter.RecentlyLimited(provider, m.cfg.GetCheckInterval()) {
		rateLimit = 0.5
	}

	registry := RegistryHealthy.Score()
	if m.registry != nil {
		registry = m.registry.RegistryHealth(provider).Score()
	}

	return weights.Circuit*circuit + weights.RateLimit*rateLimit + weights.Registry*registry
}

func (m *Manager) statusFor(score float64) Status {
	thresholds := m.cfg.GetThresholds()
	switch {
	case score >= thresholds.Healthy:
		return StatusHealthy
	case score >= thresholds.Degraded:
		return StatusDegraded
	case score >= thresholds.Unhealthy:
		return StatusUnhealthy
	default:
		return StatusFailed
	}
}

// transitionLocked applies the action for a status transition. Must be
// called with m.mu held; returns side effects to run after unlock.
func (m *Manager) transitionLocked(provider string, st *providerState, from, to Status) []func() {
	if m.logger != nil {
		entry := m.logger.Info()
		if !to.Usable() {
			entry = m.logger.Warn()
		}
		entry.
			Str("provider", provider).
			Str("from", from.String()).
			Str("to", to.String()).
			Float64("score", st.score).
			Msg("provider status change")
	}

	effects := []func(){m.emitEffect("provider.status_change", map[string]any{
		"provider": provider,
		"from":     from.String(),
		"to":       to.String(),
		"score":    st.score,
	})}

	switch {
	case !to.Usable() && !st.failedOver:
		reason := "status " + from.String() + " -> " + to.String()
		failoverEffects, _ := m.failoverLocked(provider, st, reason)
		effects = append(effects, failoverEffects...)

	case to == StatusDegraded && from == StatusHealthy:
		m.appendRecordLocked(newRecord(m.clock(), provider, "degraded", ActionRebalance, ""))
		effects = append(effects, m.rebalanceEffect())

	case to == StatusHealthy && st.failedOver:
		effects = append(effects, m.recoverLocked(provider, st, "recovered from "+from.String())...)
	}

	return effects
}

// failoverLocked redirects a provider's load to its first usable
// backup and schedules a recovery check. Must be called with m.mu
// held.
func (m *Manager) failoverLocked(provider string, st *providerState, reason string) ([]func(), error) {
	backup, found := m.pickBackupLocked(provider)
	if !found {
		m.appendRecordLocked(newRecord(m.clock(), provider, reason, ActionNone, ""))
		if m.logger != nil {
			m.logger.Error().Str("provider", provider).Str("reason", reason).Msg("no healthy backup available")
		}
		return []func(){m.emitEffect("provider.failover_exhausted", map[string]any{
			"provider": provider,
			"reason":   reason,
		})}, &NoHealthyBackupError{Provider: provider}
	}

	st.failedOver = true
	st.redirectTo = backup
	m.failovers++
	m.appendRecordLocked(newRecord(m.clock(), provider, reason, ActionFailover, backup))
	m.scheduleRecoveryLocked(provider, st)

	if m.logger != nil {
		m.logger.Warn().
			Str("provider", provider).
			Str("backup", backup).
			Str("reason", reason).
			Msg("failing over")
	}

	return []func(){
		m.emitEffect("provider.failover", map[string]any{
			"provider": provider,
			"backup":   backup,
			"reason":   reason,
		}),
		m.rebalanceEffect(),
	}, nil
}

// pickBackupLocked returns the first configured backup that is
// currently usable. Backups the manager does not track are scored on
// the spot.
func (m *Manager) pickBackupLocked(provider string) (string, bool) {
	for _, backup := range m.backups[provider] {
		if backup == provider {
			continue
		}
		if st, tracked := m.providers[backup]; tracked {
			if st.status.Usable() && !st.failedOver {
				return backup, true
			}
			continue
		}
		if m.statusFor(m.compositeScore(backup)).Usable() {
			return backup, true
		}
	}
	return "", false
}

// recoverLocked restores a failed-over provider. Must be called with
// m.mu held; returns side effects.
func (m *Manager) recoverLocked(provider string, st *providerState, reason string) []func() {
	if st.recovery != nil {
		st.recovery.Stop()
		st.recovery = nil
	}
	st.failedOver = false
	backup := st.redirectTo
	st.redirectTo = ""
	m.recovered++
	m.appendRecordLocked(newRecord(m.clock(), provider, reason, ActionRecover, backup))

	if m.logger != nil {
		m.logger.Info().Str("provider", provider).Str("reason", reason).Msg("restoring load")
	}

	return []func(){
		m.emitEffect("provider.recovered", map[string]any{
			"provider": provider,
			"reason":   reason,
		}),
		m.rebalanceEffect(),
	}
}

// scheduleRecoveryLocked (re)arms the provider's recovery timer. Must
// be called with m.mu held.
func (m *Manager) scheduleRecoveryLocked(provider string, st *providerState) {
	if st.recovery != nil {
		st.recovery.Stop()
	}
	st.recovery = time.AfterFunc(m.cfg.GetRecoveryInterval(), func() {
		m.recoveryCheck(provider)
	})
}

// recoveryCheck re-scores a single failed-over provider: recovered
// providers get their load back, the rest get another timer.
func (m *Manager) recoveryCheck(provider string) {
	select {
	case <-m.ctx.Done():
		return
	default:
	}

	score := m.compositeScore(provider)
	status := m.statusFor(score)

	m.mu.Lock()
	st, exists := m.providers[provider]
	if !exists || !st.failedOver {
		m.mu.Unlock()
		return
	}
	st.score = score
	st.lastChecked = m.clock()
	st.status = status

	var effects []func()
	if status == StatusHealthy {
		effects = m.recoverLocked(provider, st, "recovery check passed")
	} else {
		m.scheduleRecoveryLocked(provider, st)
		if m.logger != nil {
			m.logger.Debug().
				Str("provider", provider).
				Str("status", status.String()).
				Msg("recovery check failed, rescheduling")
		}
	}
	m.mu.Unlock()

	for _, effect := range effects {
		effect()
	}
}

// TriggerFailover manually fails a provider over, regardless of its
// current score. Returns ErrNoHealthyBackup when no backup can absorb
// the load.
func (m *Manager) TriggerFailover(provider string, reason string) error {
	m.mu.Lock()
	st, exists := m.providers[provider]
	if !exists {
		st = &providerState{status: StatusHealthy}
		m.providers[provider] = st
	}
	if st.failedOver {
		m.mu.Unlock()
		return nil
	}
	effects, err := m.failoverLocked(provider, st, reason)
	m.mu.Unlock()

	for _, effect := range effects {
		effect()
	}
	return err
}

// GetProviderHealth returns the provider's last evaluation, or false if
// the provider is not registered.
func (m *Manager) GetProviderHealth(provider string) (ProviderHealth, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, exists := m.providers[provider]
	if !exists {
		return ProviderHealth{}, false
	}
	return ProviderHealth{
		Provider:    provider,
		Status:      st.status,
		Score:       st.score,
		LastChecked: st.lastChecked,
		FailedOver:  st.failedOver,
		RedirectTo:  st.redirectTo,
	}, true
}

// IsFailedOver reports whether the provider's load is currently
// redirected to a backup.
func (m *Manager) IsFailedOver(provider string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, exists := m.providers[provider]
	return exists && st.failedOver
}

// RedirectTarget returns the backup currently absorbing the provider's
// load, if any.
func (m *Manager) RedirectTarget(provider string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, exists := m.providers[provider]
	if !exists || !st.failedOver {
		return "", false
	}
	return st.redirectTo, true
}

// GetFailoverStats returns activity counters and a copy of the bounded
// history, newest last.
func (m *Manager) GetFailoverStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := lo.CountBy(lo.Values(m.providers), func(st *providerState) bool {
		return st.failedOver
	})
	return Stats{
		Failovers:       m.failovers,
		Recoveries:      m.recovered,
		ActiveFailovers: active,
		History:         append([]Record(nil), m.history...),
	}
}

// appendRecordLocked appends to the bounded history. Must be called
// with m.mu held.
func (m *Manager) appendRecordLocked(r Record) {
	m.history = append(m.history, r)
	if limit := m.cfg.GetHistoryLimit(); len(m.history) > limit {
		m.history = m.history[len(m.history)-limit:]
	}
}

// emitEffect defers an event emission until after the lock is
// released.
func (m *Manager) emitEffect(name string, data map[string]any) func() {
	return func() { m.sink.Emit(name, data) }
}

// rebalanceEffect defers a throttled rebalance signal.
func (m *Manager) rebalanceEffect() func() {
	return func() {
		if m.rebalancer == nil {
			return
		}
		if !m.throttle.Allow() {
			return
		}
		m.rebalancer.Rebalance()
	}
}

// cryptoRandDuration returns a random duration in [0, maxDur) to
// de-phase periodic work.
func cryptoRandDuration(maxDur time.Duration) time.Duration {
	if maxDur <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	n := binary.LittleEndian.Uint64(b[:])
	//nolint:gosec // maxDur is positive, safe conversion
	return time.Duration(n % uint64(maxDur))
}
