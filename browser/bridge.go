// Package browser attaches to a running Chrome over the DevTools protocol
// and bridges its tab lifecycle into the wind-down engine: page opens,
// navigations, closures and focus changes become engine events, and the
// engine's overlays are injected back into the pages.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Config configures the bridge.
type Config struct {
	// ControlURL is the WebSocket URL of the browser's DevTools endpoint.
	ControlURL string

	// PollInterval is how often the tab set is re-read. Default: 1s.
	PollInterval time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Events is the engine-side surface the bridge feeds. Satisfied by
// *winddown.Engine.
type Events interface {
	HandleNavigation(ctx context.Context, tabID int, url string)
	HandleTabRemoved(ctx context.Context, tabID int)
	HandleTabActivated(ctx context.Context, tabID int)
}

type tabState struct {
	page *rod.Page
	url  string
}

// Bridge maps DevTools targets to stable integer tab ids and keeps the
// engine's view of the tab set current.
type Bridge struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	ids     map[proto.TargetTargetID]int
	tabs    map[int]*tabState
	nextID  int
	active  int
}

// New creates a bridge. Call Connect before Run.
func New(cfg Config) *Bridge {
	cfg.defaults()
	return &Bridge{
		cfg:    cfg,
		ids:    map[proto.TargetTargetID]int{},
		tabs:   map[int]*tabState{},
		nextID: 1,
		active: -1,
	}
}

// Connect dials the browser's DevTools endpoint.
func (b *Bridge) Connect() error {
	br := rod.New().ControlURL(b.cfg.ControlURL)
	if err := br.Connect(); err != nil {
		return fmt.Errorf("browser: connect %s: %w", b.cfg.ControlURL, err)
	}
	b.mu.Lock()
	b.browser = br
	b.mu.Unlock()
	b.cfg.Logger.Info("browser: connected", "url", b.cfg.ControlURL)
	return nil
}

// Close disconnects from the browser without closing it.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		b.browser.Close()
		b.browser = nil
	}
	return nil
}

// Prime reads the tab set once without emitting events. Called before the
// engine's recovery pass so liveness checks see the real tab set instead of
// an empty map.
func (b *Bridge) Prime(ctx context.Context) error {
	return b.sync(ctx, nil)
}

// Run polls the tab set until ctx is cancelled, emitting navigation,
// removal and activation events for every observed change.
func (b *Bridge) Run(ctx context.Context, events Events) {
	log := b.cfg.Logger
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.sync(ctx, events); err != nil {
				log.Warn("browser: tab sync failed", "error", err)
			}
		}
	}
}

// sync diffs the live tab set against the last snapshot. A nil events
// updates the snapshot silently.
func (b *Bridge) sync(ctx context.Context, events Events) error {
	b.mu.Lock()
	br := b.browser
	b.mu.Unlock()
	if br == nil {
		return fmt.Errorf("browser: not connected")
	}

	pages, err := br.Pages()
	if err != nil {
		return fmt.Errorf("browser: list pages: %w", err)
	}

	type observed struct {
		tabID int
		page  *rod.Page
		url   string
		isNew bool
	}
	var seen []observed

	b.mu.Lock()
	live := map[int]bool{}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if info.Type != proto.TargetTargetInfoTypePage {
			continue
		}
		tabID, known := b.ids[info.TargetID]
		if !known {
			tabID = b.nextID
			b.nextID++
			b.ids[info.TargetID] = tabID
			b.tabs[tabID] = &tabState{page: p, url: ""}
		}
		live[tabID] = true
		prev := b.tabs[tabID]
		prev.page = p
		seen = append(seen, observed{
			tabID: tabID,
			page:  p,
			url:   info.URL,
			isNew: !known || prev.url != info.URL,
		})
	}

	var removed []int
	for target, tabID := range b.ids {
		if !live[tabID] {
			removed = append(removed, tabID)
			delete(b.ids, target)
			delete(b.tabs, tabID)
		}
	}
	b.mu.Unlock()

	for _, o := range seen {
		if !o.isNew {
			continue
		}
		b.mu.Lock()
		if st, ok := b.tabs[o.tabID]; ok {
			st.url = o.url
		}
		b.mu.Unlock()
	}

	if events == nil {
		return nil
	}

	for _, tabID := range removed {
		events.HandleTabRemoved(ctx, tabID)
	}
	for _, o := range seen {
		if o.isNew {
			events.HandleNavigation(ctx, o.tabID, o.url)
		}
	}

	// The visible page is the active tab.
	for _, o := range seen {
		res, err := o.page.Eval(`() => document.visibilityState === "visible"`)
		if err != nil {
			continue
		}
		if res.Value.Bool() {
			b.mu.Lock()
			changed := b.active != o.tabID
			b.active = o.tabID
			b.mu.Unlock()
			if changed {
				events.HandleTabActivated(ctx, o.tabID)
			}
			break
		}
	}
	return nil
}

// TabExists reports whether the tab is still open. Satisfies the engine's
// tab source.
func (b *Bridge) TabExists(_ context.Context, tabID int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.tabs[tabID]
	return ok, nil
}

// ListTabs returns the current tab ids and URLs.
func (b *Bridge) ListTabs(_ context.Context) (map[int]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[int]string, len(b.tabs))
	for id, st := range b.tabs {
		out[id] = st.url
	}
	return out, nil
}

// CloseTab closes a tab in the browser.
func (b *Bridge) CloseTab(_ context.Context, tabID int) error {
	b.mu.Lock()
	st, ok := b.tabs[tabID]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("browser: no tab %d", tabID)
	}
	if err := st.page.Close(); err != nil {
		return fmt.Errorf("browser: close tab %d: %w", tabID, err)
	}
	return nil
}

func (b *Bridge) pageFor(tabID int) (*rod.Page, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.tabs[tabID]
	if !ok {
		return nil, false
	}
	return st.page, true
}
