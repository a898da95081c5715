package winddown

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/winddown/alarms"
	"github.com/hazyhaar/winddown/watch"
	"github.com/hazyhaar/winddown/winddown/internal/store"
)

// Service wires the engine to its infrastructure: the durable store, the
// wake-up scheduler, the settings watcher and the sink. Construct with New,
// run the loops with Start, stop by cancelling the Start context and
// calling Close.
type Service struct {
	cfg    Config
	store  *store.Store
	sched  *alarms.Scheduler
	engine *Engine
	logger *slog.Logger

	wg      sync.WaitGroup
	started bool
}

// ServiceOption customizes a Service. Engine options are forwarded.
type ServiceOption func(*serviceConfig)

type serviceConfig struct {
	logger     *slog.Logger
	engineOpts []EngineOption
}

// WithServiceLogger sets the logger for the service and its engine.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(c *serviceConfig) { c.logger = l }
}

// WithEngineOptions forwards options to the embedded engine.
func WithEngineOptions(opts ...EngineOption) ServiceOption {
	return func(c *serviceConfig) { c.engineOpts = append(c.engineOpts, opts...) }
}

// New opens the store, begins the session, builds the engine and runs
// recovery. When the configured session id matches the stored one, timers
// from the previous run are reconciled; a new session starts empty.
func New(ctx context.Context, cfg Config, opts ...ServiceOption) (*Service, error) {
	cfg.defaults()
	sc := serviceConfig{logger: slog.Default()}
	for _, o := range opts {
		o(&sc)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	fresh, err := st.BeginSession(ctx, cfg.SessionID)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("begin session: %w", err)
	}

	sched := alarms.New(alarms.Options{Tick: cfg.AlarmTick, Logger: sc.logger})
	engOpts := append([]EngineOption{WithLogger(sc.logger)}, sc.engineOpts...)
	eng, err := NewEngine(ctx, sched, st, engOpts...)
	if err != nil {
		st.Close()
		return nil, err
	}
	if !fresh {
		eng.Recover(ctx)
	} else {
		sc.logger.Info("service: new session, starting empty", "session", cfg.SessionID)
	}

	return &Service{cfg: cfg, store: st, sched: sched, engine: eng, logger: sc.logger}, nil
}

// Engine exposes the embedded engine for transports and tests.
func (s *Service) Engine() *Engine { return s.engine }

// Store exposes the durable store for the query surface.
func (s *Service) Store() *store.Store { return s.store }

// Start launches the scheduler loop, the wake-up consumer, the periodic
// badge refresh and the settings watcher. It returns immediately; the
// loops stop when ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	if s.started {
		return
	}
	s.started = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sched.Run(ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for fired := range s.sched.Fired() {
			s.engine.HandleWakeup(ctx, fired.Name)
		}
	}()

	s.sched.CreatePeriodic(BadgeWakeupName, time.Minute)

	watcher := watch.New(s.store.DB, watch.Options{
		Interval: s.cfg.SettingsPoll,
		Logger:   s.logger,
	})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		watcher.OnChange(ctx, func() error {
			return s.engine.ReloadSettings(ctx)
		})
	}()

	s.logger.Info("service: started", "db", s.cfg.DBPath, "session", s.cfg.SessionID)
}

// Close waits for the loops to drain and closes the store. The Start
// context must already be cancelled.
func (s *Service) Close() error {
	s.wg.Wait()
	return s.store.Close()
}
