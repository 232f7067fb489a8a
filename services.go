package steer

import (
	"github.com/rs/zerolog"
	"github.com/samber/do/v2"

	"github.com/steerd/steer/config"
	"github.com/steerd/steer/event"
	"github.com/steerd/steer/failover"
	"github.com/steerd/steer/health"
	"github.com/steerd/steer/logging"
	"github.com/steerd/steer/ratelimit"
	"github.com/steerd/steer/ring"
	"github.com/steerd/steer/router"
)

// coreOptions carries the construction-time collaborators that do not
// belong in the configuration file.
type coreOptions struct {
	logger     *zerolog.Logger
	registry   failover.Registry
	sink       event.Sink
	rebalancer failover.Rebalancer
	rng        router.Rand
}

// Option configures Core construction.
type Option func(*coreOptions)

// WithLogger supplies a logger instead of building one from the
// logging configuration.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *coreOptions) { o.logger = logger }
}

// WithRegistry supplies the external provider registry consulted by
// the failover manager's composite score.
func WithRegistry(r failover.Registry) Option {
	return func(o *coreOptions) { o.registry = r }
}

// WithEvents supplies the sink failover transitions are emitted to.
func WithEvents(s event.Sink) Option {
	return func(o *coreOptions) { o.sink = s }
}

// WithRebalancer supplies the external load-distribution signal.
func WithRebalancer(r failover.Rebalancer) Option {
	return func(o *coreOptions) { o.rebalancer = r }
}

// WithRand injects the randomness source used by the probabilistic
// strategies. Tests pass a seeded source for determinism.
func WithRand(rng router.Rand) Option {
	return func(o *coreOptions) { o.rng = rng }
}

// registerServices wires the component constructors into the injector
// in dependency order: logger, ring, tracker, limiter, manager,
// affinity, core.
func registerServices(i do.Injector) {
	do.Provide(i, newLoggerService)
	do.Provide(i, newRingService)
	do.Provide(i, newTrackerService)
	do.Provide(i, newLimiterService)
	do.Provide(i, newManagerService)
	do.Provide(i, newAffinityService)
	do.Provide(i, newCore)
}

type loggerService struct {
	Logger *zerolog.Logger
}

func newLoggerService(i do.Injector) (*loggerService, error) {
	opts := do.MustInvoke[coreOptions](i)
	if opts.logger != nil {
		return &loggerService{Logger: opts.logger}, nil
	}

	cfg := do.MustInvoke[*config.Config](i)
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return &loggerService{Logger: &logger}, nil
}

type ringService struct {
	Ring *ring.Ring
}

func newRingService(i do.Injector) (*ringService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*loggerService](i).Logger

	opts := []ring.Option{ring.WithLogger(logger)}
	if n, ok := cfg.Ring.GetVirtualNodesOption().Get(); ok {
		opts = append(opts, ring.WithVirtualNodes(n))
	}
	if cfg.Ring.GetEffectiveHasher() == config.HasherXXHash {
		opts = append(opts, ring.WithHasher(ring.XXHasher{}))
	}

	return &ringService{Ring: ring.New(opts...)}, nil
}

type trackerService struct {
	Tracker *health.Tracker
}

func newTrackerService(i do.Injector) (*trackerService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*loggerService](i).Logger

	return &trackerService{Tracker: health.NewTracker(cfg.Breaker, logger, nil)}, nil
}

type limiterService struct {
	Limiter *ratelimit.Limiter
}

func newLimiterService(i do.Injector) (*limiterService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*loggerService](i).Logger
	tracker := do.MustInvoke[*trackerService](i).Tracker

	// The limiter shares the core's breaker registry so admission,
	// outcome recording and failover scoring all see the same state.
	rlCfg := cfg.RateLimit
	rlCfg.Breaker = cfg.Breaker

	limiter := ratelimit.NewLimiter(rlCfg, logger, ratelimit.WithTracker(tracker))
	return &limiterService{Limiter: limiter}, nil
}

// Shutdown stops the idle-bucket janitor.
func (s *limiterService) Shutdown() error {
	s.Limiter.Stop()
	return nil
}

type managerService struct {
	Manager *failover.Manager
}

func newManagerService(i do.Injector) (*managerService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	opts := do.MustInvoke[coreOptions](i)
	logger := do.MustInvoke[*loggerService](i).Logger
	tracker := do.MustInvoke[*trackerService](i).Tracker
	limiter := do.MustInvoke[*limiterService](i).Limiter

	mopts := []failover.Option{failover.WithLogger(logger)}
	if opts.registry != nil {
		mopts = append(mopts, failover.WithRegistry(opts.registry))
	}
	if opts.sink != nil {
		mopts = append(mopts, failover.WithEvents(opts.sink))
	}
	if opts.rebalancer != nil {
		mopts = append(mopts, failover.WithRebalancer(opts.rebalancer))
	}

	return &managerService{Manager: failover.New(cfg.Failover, tracker, limiter, mopts...)}, nil
}

// Shutdown stops the health-check loop and pending recovery timers.
func (s *managerService) Shutdown() error {
	s.Manager.Stop()
	return nil
}

type affinityService struct {
	Affinity *router.Affinity
}

func newAffinityService(i do.Injector) (*affinityService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if !cfg.Routing.IsAffinityEnabled() {
		return &affinityService{}, nil
	}

	ttl := cfg.Routing.GetAffinityTTLOption().OrElse(router.DefaultAffinityTTL)
	affinity, err := router.NewAffinity(cfg.Routing.AffinitySessions, ttl)
	if err != nil {
		return nil, err
	}
	return &affinityService{Affinity: affinity}, nil
}

// Shutdown releases the session cache.
func (s *affinityService) Shutdown() error {
	if s.Affinity != nil {
		s.Affinity.Close()
	}
	return nil
}

func newCore(i do.Injector) (*Core, error) {
	cfg := do.MustInvoke[*config.Config](i)
	opts := do.MustInvoke[coreOptions](i)

	return &Core{
		cfg:       cfg,
		logger:    do.MustInvoke[*loggerService](i).Logger,
		ring:      do.MustInvoke[*ringService](i).Ring,
		tracker:   do.MustInvoke[*trackerService](i).Tracker,
		limiter:   do.MustInvoke[*limiterService](i).Limiter,
		manager:   do.MustInvoke[*managerService](i).Manager,
		affinity:  do.MustInvoke[*affinityService](i).Affinity,
		rng:       opts.rng,
		providers: make(map[string]*providerStats),
		rrIndex:   -1,
	}, nil
}
