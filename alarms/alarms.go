// Package alarms implements a named wake-up scheduler: delayed one-shot and
// recurring callbacks keyed by name, delivered on a channel.
//
// The scheduler is deliberately in-memory. Entries do not survive a process
// restart, and the facility makes no durability promise of its own — exactly
// the contract of a browser alarm API. Consumers that need to survive a
// restart persist their own state and re-arm missing entries on startup.
//
// Typical usage:
//
//	s := alarms.New(alarms.Options{})
//	go s.Run(ctx)
//	s.Create("winddown_7", 30*time.Minute)
//	for f := range s.Fired() { ... }
package alarms

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Fired is a wake-up notification.
type Fired struct {
	// Name is the key the entry was created under.
	Name string
	// At is when the entry became due.
	At time.Time
}

// Options tunes scheduler behaviour.
type Options struct {
	// Tick is the deadline-check resolution. Entries fire on the first tick
	// at or after their deadline. Default: 1s.
	Tick time.Duration
	// Buffer is the capacity of the Fired channel. When the consumer falls
	// behind, due notifications are dropped with a warning; the entry itself
	// is still consumed. Default: 64.
	Buffer int
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Tick <= 0 {
		o.Tick = time.Second
	}
	if o.Buffer <= 0 {
		o.Buffer = 64
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type entry struct {
	deadline time.Time
	period   time.Duration // 0 for one-shot
}

// Scheduler holds named pending wake-ups. Safe for concurrent use.
type Scheduler struct {
	opts Options

	mu      sync.Mutex
	entries map[string]entry
	fired   chan Fired
}

// New creates a Scheduler. Call Run to start delivery.
func New(opts Options) *Scheduler {
	opts.defaults()
	return &Scheduler{
		opts:    opts,
		entries: make(map[string]entry),
		fired:   make(chan Fired, opts.Buffer),
	}
}

// Create schedules a one-shot wake-up after delay. An existing entry under
// the same name is replaced.
func (s *Scheduler) Create(name string, delay time.Duration) {
	s.mu.Lock()
	s.entries[name] = entry{deadline: time.Now().Add(delay)}
	s.mu.Unlock()
	s.opts.Logger.Debug("alarms: created", "name", name, "delay", delay)
}

// CreatePeriodic schedules a recurring wake-up every period, first firing one
// period from now. An existing entry under the same name is replaced.
func (s *Scheduler) CreatePeriodic(name string, period time.Duration) {
	s.mu.Lock()
	s.entries[name] = entry{deadline: time.Now().Add(period), period: period}
	s.mu.Unlock()
	s.opts.Logger.Debug("alarms: created periodic", "name", name, "period", period)
}

// Clear removes the entry under name. Returns false if none existed.
func (s *Scheduler) Clear(name string) bool {
	s.mu.Lock()
	_, ok := s.entries[name]
	delete(s.entries, name)
	s.mu.Unlock()
	return ok
}

// Get reports whether an entry exists under name.
func (s *Scheduler) Get(name string) bool {
	s.mu.Lock()
	_, ok := s.entries[name]
	s.mu.Unlock()
	return ok
}

// Len returns the number of pending entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	n := len(s.entries)
	s.mu.Unlock()
	return n
}

// Fired returns the notification channel. Closed when Run returns.
func (s *Scheduler) Fired() <-chan Fired {
	return s.fired
}

// Run delivers due wake-ups until ctx is cancelled. One-shot entries are
// removed when they fire; periodic entries are re-armed for the next period.
func (s *Scheduler) Run(ctx context.Context) {
	log := s.opts.Logger
	log.Info("alarms: started", "tick", s.opts.Tick)

	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alarms: stopped")
			close(s.fired)
			return
		case now := <-ticker.C:
			s.fireDue(now)
		}
	}
}

func (s *Scheduler) fireDue(now time.Time) {
	s.mu.Lock()
	var due []Fired
	for name, e := range s.entries {
		if e.deadline.After(now) {
			continue
		}
		due = append(due, Fired{Name: name, At: e.deadline})
		if e.period > 0 {
			e.deadline = now.Add(e.period)
			s.entries[name] = e
		} else {
			delete(s.entries, name)
		}
	}
	s.mu.Unlock()

	for _, f := range due {
		select {
		case s.fired <- f:
		default:
			s.opts.Logger.Warn("alarms: consumer behind, dropping wake-up", "name", f.Name)
		}
	}
}
