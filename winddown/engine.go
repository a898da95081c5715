// Package winddown implements the late-night streaming wind-down engine:
// per-tab watch timers, snooze and countdown flow, bedtime reminders, and
// crash recovery of scheduled wake-ups from the durable timer store.
//
// The engine is the single owner of all timer state. Every mutation happens
// under one lock, runs to completion, persists the full timer set, and only
// then lets the next event in — mirroring a single-threaded event loop.
package winddown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hazyhaar/winddown/winddown/internal/store"
)

var (
	// ErrTimerExists is returned by StartTimer when the tab already has a
	// live timer. Restarting is an explicit clear-then-start.
	ErrTimerExists = errors.New("winddown: timer already exists for tab")
	// ErrNoTimer is returned by operations that require a live timer.
	ErrNoTimer = errors.New("winddown: no timer for tab")
	// ErrPaused is returned when starting timers while paused for tonight.
	ErrPaused = errors.New("winddown: paused for tonight")
)

// Scheduler is the engine's view of the wake-up service. It is
// deliberately non-durable: after a restart the engine re-arms wake-ups
// from the store during recovery.
type Scheduler interface {
	Create(name string, delay time.Duration)
	CreatePeriodic(name string, period time.Duration)
	Clear(name string) bool
	Get(name string) bool
}

// TabSource answers liveness questions about tabs and can close them.
// It is optional: without one the engine assumes every tab with a record
// is still open and DismissTimer falls back to clearing the timer.
type TabSource interface {
	// TabExists reports whether the tab is still open.
	TabExists(ctx context.Context, tabID int) (bool, error)
	// ListTabs returns the ids and URLs of all open tabs.
	ListTabs(ctx context.Context) (map[int]string, error)
	// CloseTab closes a tab.
	CloseTab(ctx context.Context, tabID int) error
}

// Engine coordinates timers, the scheduler, the store and the sink.
type Engine struct {
	mu        sync.Mutex
	records   map[int]*TimerRecord
	settings  Settings
	activeTab int
	focused   bool

	sched  Scheduler
	store  *store.Store
	events *store.EventLogger
	sink   Sink
	tabs   TabSource
	logger *slog.Logger
	now    func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithSink sets the notification sink. Default is a no-op Callback.
func WithSink(s Sink) EngineOption { return func(e *Engine) { e.sink = s } }

// WithTabSource sets the tab liveness source.
func WithTabSource(t TabSource) EngineOption { return func(e *Engine) { e.tabs = t } }

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption { return func(e *Engine) { e.logger = l } }

// WithClock overrides the engine clock. Tests use this to pin time.
func WithClock(now func() time.Time) EngineOption { return func(e *Engine) { e.now = now } }

// NewEngine creates an engine bound to a scheduler and a store. Settings are
// loaded from the store, falling back to defaults when the settings slot is
// empty or corrupt.
func NewEngine(ctx context.Context, sched Scheduler, st *store.Store, opts ...EngineOption) (*Engine, error) {
	if sched == nil {
		return nil, errors.New("winddown: nil scheduler")
	}
	if st == nil {
		return nil, errors.New("winddown: nil store")
	}
	e := &Engine{
		records:   map[int]*TimerRecord{},
		sched:     sched,
		store:     st,
		events:    store.NewEventLogger(st),
		sink:      &Callback{},
		logger:    slog.Default(),
		now:       time.Now,
		activeTab: -1,
		focused:   true,
	}
	for _, o := range opts {
		o(e)
	}
	s, err := e.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	e.settings = s
	return e, nil
}

func (e *Engine) loadSettings(ctx context.Context) (Settings, error) {
	payload, ok, err := e.store.GetSettings(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	if !ok {
		s := DefaultSettings()
		raw, err := s.MarshalJSONPayload()
		if err != nil {
			return Settings{}, err
		}
		if err := e.store.SetSettings(ctx, raw); err != nil {
			return Settings{}, fmt.Errorf("seed settings: %w", err)
		}
		return s, nil
	}
	s, err := ParseSettings(payload)
	if err != nil {
		e.logger.Warn("engine: stored settings unreadable, using defaults", "error", err)
		return DefaultSettings(), nil
	}
	if err := s.Validate(); err != nil {
		e.logger.Warn("engine: stored settings invalid, using defaults", "error", err)
		return DefaultSettings(), nil
	}
	return s, nil
}

// Settings returns a copy of the current settings.
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// UpdateSettings validates, persists and applies new settings. The diff
// against the previous settings drives pause/resume and duration changes.
func (e *Engine) UpdateSettings(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	raw, err := s.MarshalJSONPayload()
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.SetSettings(ctx, raw); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	old := e.settings
	e.settings = s
	e.applySettingsLocked(ctx, old, s)
	return nil
}

// ReloadSettings re-reads the settings slot and applies any change. Called
// by the config watcher when another writer touches the database. Invalid
// stored settings are logged and ignored, keeping the previous settings.
// The read happens under the engine lock so a concurrent UpdateSettings
// cannot slip between the read and the apply and be overwritten by a stale
// payload.
func (e *Engine) ReloadSettings(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	payload, ok, err := e.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("reload settings: %w", err)
	}
	if !ok {
		return nil
	}
	s, err := ParseSettings(payload)
	if err != nil {
		e.logger.Warn("engine: stored settings unreadable, keeping current", "error", err)
		return nil
	}
	if err := s.Validate(); err != nil {
		e.logger.Warn("engine: stored settings invalid, keeping current", "error", err)
		return nil
	}
	if e.settings.Equal(s) {
		return nil
	}
	old := e.settings
	e.settings = s
	e.applySettingsLocked(ctx, old, s)
	return nil
}

// applySettingsLocked reacts to a settings change. Caller holds e.mu.
func (e *Engine) applySettingsLocked(ctx context.Context, old, cur Settings) {
	switch {
	case !old.PausedForTonight && cur.PausedForTonight:
		// Pausing clears every live timer and its wake-up.
		for tabID := range e.records {
			e.sched.Clear(WakeupName(tabID))
		}
		e.records = map[int]*TimerRecord{}
		e.persistLocked(ctx)
		e.events.Log(ctx, "paused", 0, "")
		e.logger.Info("engine: paused for tonight, timers cleared")
	case old.PausedForTonight && !cur.PausedForTonight:
		e.events.Log(ctx, "resumed", 0, "")
		e.logger.Info("engine: resumed")
		e.rescanTabsLocked(ctx)
	case old.WatchMinutes != cur.WatchMinutes && !cur.PausedForTonight:
		// A new watch duration restarts every live timer from now.
		now := e.now()
		for tabID, rec := range e.records {
			rec.State = StateWatching
			rec.StartTime = now.UnixMilli()
			rec.SnoozedUntil = 0
			e.sched.Create(WakeupName(tabID), time.Duration(cur.WatchMinutes)*time.Minute)
		}
		e.persistLocked(ctx)
		e.logger.Info("engine: watch duration changed, timers restarted",
			"minutes", cur.WatchMinutes, "timers", len(e.records))
	}
	e.refreshBadgeLocked(ctx)
}

// rescanTabsLocked starts timers for any open tracked tab that lacks one.
// Caller holds e.mu.
func (e *Engine) rescanTabsLocked(ctx context.Context) {
	if e.tabs == nil {
		return
	}
	open, err := e.tabs.ListTabs(ctx)
	if err != nil {
		e.logger.Warn("engine: tab rescan failed", "error", err)
		return
	}
	started := 0
	for tabID, url := range open {
		if _, ok := e.records[tabID]; ok {
			continue
		}
		if !e.settings.Tracks(url) {
			continue
		}
		e.startTimerLocked(ctx, tabID, url)
		started++
	}
	if started > 0 {
		e.persistLocked(ctx)
	}
}

// StartTimer begins watching a tab. It fails if a timer already exists or
// tracking is paused for tonight.
func (e *Engine) StartTimer(ctx context.Context, tabID int, url string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.settings.PausedForTonight {
		return ErrPaused
	}
	if _, ok := e.records[tabID]; ok {
		return ErrTimerExists
	}
	e.startTimerLocked(ctx, tabID, url)
	e.persistLocked(ctx)
	e.refreshBadgeLocked(ctx)
	return nil
}

func (e *Engine) startTimerLocked(ctx context.Context, tabID int, url string) {
	now := e.now()
	e.records[tabID] = &TimerRecord{
		TabID:     tabID,
		State:     StateWatching,
		StartTime: now.UnixMilli(),
		URL:       url,
	}
	e.sched.Create(WakeupName(tabID), time.Duration(e.settings.WatchMinutes)*time.Minute)
	e.events.Log(ctx, "timer_started", tabID, url)
	e.logger.Info("engine: timer started", "tab", tabID, "url", url,
		"minutes", e.settings.WatchMinutes)
}

// ClearTimer removes a tab's timer and wake-up. Clearing a tab with no
// timer is a no-op.
func (e *Engine) ClearTimer(ctx context.Context, tabID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clearTimerLocked(ctx, tabID)
	e.refreshBadgeLocked(ctx)
}

func (e *Engine) clearTimerLocked(ctx context.Context, tabID int) {
	if _, ok := e.records[tabID]; !ok {
		e.sched.Clear(WakeupName(tabID))
		return
	}
	delete(e.records, tabID)
	e.sched.Clear(WakeupName(tabID))
	e.persistLocked(ctx)
	e.events.Log(ctx, "timer_cleared", tabID, "")
	e.logger.Info("engine: timer cleared", "tab", tabID)
}

// SnoozeTimer grants the tab another snooze interval. The original
// StartTime is preserved so elapsed time keeps accumulating across snoozes.
func (e *Engine) SnoozeTimer(ctx context.Context, tabID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[tabID]
	if !ok {
		return ErrNoTimer
	}
	now := e.now()
	delay := time.Duration(e.settings.SnoozeMinutes) * time.Minute
	rec.State = StateSnoozed
	rec.SnoozedUntil = now.Add(delay).UnixMilli()
	e.sched.Clear(WakeupName(tabID))
	e.sched.Create(WakeupName(tabID), delay)
	e.persistLocked(ctx)
	e.events.Log(ctx, "timer_snoozed", tabID, "")
	e.logger.Info("engine: timer snoozed", "tab", tabID, "minutes", e.settings.SnoozeMinutes)
	e.refreshBadgeLocked(ctx)
	return nil
}

// DismissTimer ends the session for a tab: the tab is closed when a tab
// source is attached, and the timer is cleared either way.
func (e *Engine) DismissTimer(ctx context.Context, tabID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.records[tabID]; !ok {
		return ErrNoTimer
	}
	if e.tabs != nil {
		if err := e.tabs.CloseTab(ctx, tabID); err != nil {
			e.logger.Warn("engine: tab close failed, clearing timer anyway",
				"tab", tabID, "error", err)
		}
	}
	delete(e.records, tabID)
	e.sched.Clear(WakeupName(tabID))
	e.persistLocked(ctx)
	e.events.Log(ctx, "timer_dismissed", tabID, "")
	e.logger.Info("engine: timer dismissed", "tab", tabID)
	e.refreshBadgeLocked(ctx)
	return nil
}

// HandleWakeup processes a fired wake-up. Stale wake-ups whose record is
// gone are ignored; wake-ups for closed tabs clear the orphan record;
// otherwise the timer expires and the countdown overlay is shown.
func (e *Engine) HandleWakeup(ctx context.Context, name string) {
	if name == BadgeWakeupName {
		e.mu.Lock()
		e.refreshBadgeLocked(ctx)
		e.mu.Unlock()
		return
	}
	tabID, ok := TabIDFromWakeup(name)
	if !ok {
		e.logger.Warn("engine: unrecognized wakeup", "name", name)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[tabID]
	if !ok {
		e.logger.Debug("engine: stale wakeup ignored", "tab", tabID)
		return
	}
	if e.tabs != nil {
		exists, err := e.tabs.TabExists(ctx, tabID)
		if err != nil {
			e.logger.Warn("engine: tab liveness check failed", "tab", tabID, "error", err)
		} else if !exists {
			e.clearTimerLocked(ctx, tabID)
			e.refreshBadgeLocked(ctx)
			return
		}
	}
	rec.State = StateExpired
	rec.SnoozedUntil = 0
	e.persistLocked(ctx)
	e.events.Log(ctx, "timer_expired", tabID, "")
	e.logger.Info("engine: timer expired", "tab", tabID,
		"elapsed_min", rec.ElapsedMinutes(e.now()))
	if err := e.sink.ShowCountdown(ctx, tabID, e.settings.CountdownSeconds); err != nil {
		e.logger.Warn("engine: countdown delivery failed", "tab", tabID, "error", err)
	}
	e.refreshBadgeLocked(ctx)
}

// HandleNavigation processes a completed navigation in a tab. Navigating
// to a tracked site starts a timer if none exists; navigating away clears
// any timer. During the bedtime window a one-time reminder is shown.
func (e *Engine) HandleNavigation(ctx context.Context, tabID int, url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.settings.Tracks(url) {
		e.clearTimerLocked(ctx, tabID)
		e.refreshBadgeLocked(ctx)
		return
	}
	if e.settings.PausedForTonight {
		return
	}
	rec, ok := e.records[tabID]
	if !ok {
		e.startTimerLocked(ctx, tabID, url)
		rec = e.records[tabID]
		e.persistLocked(ctx)
	} else if rec.URL != url {
		rec.URL = url
		e.persistLocked(ctx)
	}
	if e.inBedtimeWindowLocked() && !rec.NotifiedBedtime {
		rec.NotifiedBedtime = true
		e.persistLocked(ctx)
		e.events.Log(ctx, "bedtime_reminder", tabID, "")
		if err := e.sink.ShowBedtime(ctx, tabID); err != nil {
			e.logger.Warn("engine: bedtime delivery failed", "tab", tabID, "error", err)
		}
	}
	e.refreshBadgeLocked(ctx)
}

// inBedtimeWindowLocked reports whether the local time is inside the
// reminder window [bedtime hour, 06:00). Caller holds e.mu.
func (e *Engine) inBedtimeWindowLocked() bool {
	if !e.settings.BedtimeEnabled {
		return false
	}
	h := e.now().Hour()
	return h >= e.settings.BedtimeHour && h < 6
}

// HandleTabRemoved clears state for a closed tab.
func (e *Engine) HandleTabRemoved(ctx context.Context, tabID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clearTimerLocked(ctx, tabID)
	if e.activeTab == tabID {
		e.activeTab = -1
	}
	e.refreshBadgeLocked(ctx)
}

// HandleTabActivated records the new active tab and refreshes the badge.
func (e *Engine) HandleTabActivated(ctx context.Context, tabID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activeTab = tabID
	e.refreshBadgeLocked(ctx)
}

// HandleFocusChanged records whether the browser window has focus.
func (e *Engine) HandleFocusChanged(ctx context.Context, focused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.focused = focused
	e.refreshBadgeLocked(ctx)
}

// TimerStatus describes a tab's timer to callers of the query surface.
type TimerStatus struct {
	TabID          int    `json:"tab_id"`
	State          State  `json:"state"`
	URL            string `json:"url,omitempty"`
	ElapsedMinutes int    `json:"elapsed_minutes"`
	SnoozedUntil   int64  `json:"snoozed_until,omitempty"`
}

// Status returns the timer status for one tab.
func (e *Engine) Status(tabID int) (TimerStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[tabID]
	if !ok {
		return TimerStatus{}, false
	}
	return e.statusLocked(rec), true
}

// ListTimers returns all live timers ordered by tab id.
func (e *Engine) ListTimers() []TimerStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TimerStatus, 0, len(e.records))
	for _, rec := range e.records {
		out = append(out, e.statusLocked(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TabID < out[j].TabID })
	return out
}

func (e *Engine) statusLocked(rec *TimerRecord) TimerStatus {
	return TimerStatus{
		TabID:          rec.TabID,
		State:          rec.State,
		URL:            rec.URL,
		ElapsedMinutes: rec.ElapsedMinutes(e.now()),
		SnoozedUntil:   rec.SnoozedUntil,
	}
}

// CurrentBadge computes the badge for the current state without pushing it.
func (e *Engine) CurrentBadge() Badge {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.badgeLocked()
}

// badgeLocked derives the badge from the timer set. Caller holds e.mu.
func (e *Engine) badgeLocked() Badge {
	if len(e.records) == 0 {
		return Badge{}
	}
	if rec, ok := e.records[e.activeTab]; ok {
		return Badge{
			Text:  fmt.Sprintf("%dm", rec.ElapsedMinutes(e.now())),
			Color: badgeColorActive,
		}
	}
	return Badge{Text: fmt.Sprintf("%d", len(e.records)), Color: badgeColorCount}
}

// refreshBadgeLocked pushes the current badge to the sink. Caller holds e.mu.
func (e *Engine) refreshBadgeLocked(ctx context.Context) {
	if err := e.sink.UpdateBadge(ctx, e.badgeLocked()); err != nil {
		e.logger.Warn("engine: badge update failed", "error", err)
	}
}

// persistLocked writes the full timer set to the store. Persistence
// failures are logged but never abort the in-memory mutation: the store
// catches up on the next successful save. Caller holds e.mu.
func (e *Engine) persistLocked(ctx context.Context) {
	rows := make([]store.TimerRow, 0, len(e.records))
	for _, rec := range e.records {
		rows = append(rows, store.TimerRow{
			TabID:           rec.TabID,
			State:           string(rec.State),
			StartTime:       rec.StartTime,
			SnoozedUntil:    rec.SnoozedUntil,
			NotifiedBedtime: rec.NotifiedBedtime,
			URL:             rec.URL,
		})
	}
	if err := e.store.SaveTimers(ctx, rows); err != nil {
		e.logger.Warn("engine: timer persistence failed", "timers", len(rows), "error", err)
	}
}
