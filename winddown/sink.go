package winddown

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Badge is the presence indicator derived from the timer set: elapsed
// minutes for the active tracked tab, a count of live timers otherwise,
// empty when nothing is tracked.
type Badge struct {
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
}

const (
	// badgeColorActive marks the active tab's elapsed-minutes badge.
	badgeColorActive = "#8b5cf6"
	// badgeColorCount marks the live-timer-count badge.
	badgeColorCount = "#6366f1"
)

// Sink is the output interface toward the view layer. Implementations
// deliver overlay and reminder notifications to the tab's content view and
// badge updates to whatever renders presence.
type Sink interface {
	// ShowCountdown tells the tab's view to display the wind-down overlay
	// with a countdown of the given length.
	ShowCountdown(ctx context.Context, tabID, seconds int) error
	// ShowBedtime tells the tab's view to display the one-time bedtime toast.
	ShowBedtime(ctx context.Context, tabID int) error
	// UpdateBadge pushes a new presence display.
	UpdateBadge(ctx context.Context, b Badge) error
	Close() error
}

// CountdownFunc, BedtimeFunc and BadgeFunc are the callback forms of the
// Sink methods. Any of them may be nil.
type (
	CountdownFunc func(ctx context.Context, tabID, seconds int) error
	BedtimeFunc   func(ctx context.Context, tabID int) error
	BadgeFunc     func(ctx context.Context, b Badge) error
)

// Callback delivers notifications as in-process function calls — the path
// used when the view layer lives in the same binary, and by tests.
type Callback struct {
	OnCountdown CountdownFunc
	OnBedtime   BedtimeFunc
	OnBadge     BadgeFunc
}

func (c *Callback) ShowCountdown(ctx context.Context, tabID, seconds int) error {
	if c.OnCountdown != nil {
		return c.OnCountdown(ctx, tabID, seconds)
	}
	return nil
}

func (c *Callback) ShowBedtime(ctx context.Context, tabID int) error {
	if c.OnBedtime != nil {
		return c.OnBedtime(ctx, tabID)
	}
	return nil
}

func (c *Callback) UpdateBadge(ctx context.Context, b Badge) error {
	if c.OnBadge != nil {
		return c.OnBadge(ctx, b)
	}
	return nil
}

func (c *Callback) Close() error { return nil }

// Writer writes notifications as JSON lines to an io.Writer (default
// os.Stdout). Useful for piping into external view layers and for debugging.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriter creates a Writer sink. If w is nil, os.Stdout is used.
func NewWriter(w io.Writer) *Writer {
	if w == nil {
		w = os.Stdout
	}
	return &Writer{enc: json.NewEncoder(w)}
}

type envelope struct {
	Type    string `json:"type"`
	TabID   int    `json:"tab_id,omitempty"`
	Seconds int    `json:"seconds,omitempty"`
	Badge   *Badge `json:"badge,omitempty"`
}

func (s *Writer) ShowCountdown(_ context.Context, tabID, seconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(envelope{Type: "countdown", TabID: tabID, Seconds: seconds})
}

func (s *Writer) ShowBedtime(_ context.Context, tabID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(envelope{Type: "bedtime", TabID: tabID})
}

func (s *Writer) UpdateBadge(_ context.Context, b Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(envelope{Type: "badge", Badge: &b})
}

func (s *Writer) Close() error { return nil }

// Router fans notifications out to several sinks. Delivery failures are
// logged per sink and do not stop the others.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out sink.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

func (r *Router) ShowCountdown(ctx context.Context, tabID, seconds int) error {
	for _, s := range r.sinks {
		if err := s.ShowCountdown(ctx, tabID, seconds); err != nil {
			r.logger.Warn("sink: countdown delivery failed", "tab", tabID, "error", err)
		}
	}
	return nil
}

func (r *Router) ShowBedtime(ctx context.Context, tabID int) error {
	for _, s := range r.sinks {
		if err := s.ShowBedtime(ctx, tabID); err != nil {
			r.logger.Warn("sink: bedtime delivery failed", "tab", tabID, "error", err)
		}
	}
	return nil
}

func (r *Router) UpdateBadge(ctx context.Context, b Badge) error {
	for _, s := range r.sinks {
		if err := s.UpdateBadge(ctx, b); err != nil {
			r.logger.Warn("sink: badge delivery failed", "error", err)
		}
	}
	return nil
}

func (r *Router) Close() error {
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			r.logger.Warn("sink: close failed", "error", err)
		}
	}
	return nil
}
