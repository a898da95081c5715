package browser

import (
	"context"
	"fmt"

	"github.com/hazyhaar/winddown/winddown"
)

// overlayJS renders the full-screen wind-down overlay with a live countdown
// and snooze/close buttons wired to the daemon's HTTP API. Injected into the
// page's main world; re-injection replaces any previous overlay.
const overlayJS = `(tabId, seconds, snoozeMinutes, apiBase) => {
	const old = document.getElementById('winddown-overlay');
	if (old) old.remove();

	const overlay = document.createElement('div');
	overlay.id = 'winddown-overlay';
	overlay.style.cssText = 'position:fixed;inset:0;z-index:2147483647;' +
		'background:rgba(15,15,35,0.96);display:flex;flex-direction:column;' +
		'align-items:center;justify-content:center;color:#e2e8f0;' +
		'font-family:system-ui,sans-serif;';

	const title = document.createElement('div');
	title.textContent = 'Time to wind down';
	title.style.cssText = 'font-size:28px;font-weight:600;margin-bottom:12px;';

	const count = document.createElement('div');
	count.style.cssText = 'font-size:56px;font-weight:700;color:#8b5cf6;margin-bottom:24px;';

	const row = document.createElement('div');
	row.style.cssText = 'display:flex;gap:16px;';

	const mkButton = (label, bg) => {
		const btn = document.createElement('button');
		btn.textContent = label;
		btn.style.cssText = 'padding:12px 28px;border:none;border-radius:8px;' +
			'font-size:16px;cursor:pointer;color:#fff;background:' + bg + ';';
		return btn;
	};
	const snooze = mkButton(snoozeMinutes + ' more minutes', '#6366f1');
	const close = mkButton('Close tab', '#475569');

	let remaining = seconds;
	count.textContent = remaining + 's';
	const tick = setInterval(() => {
		remaining -= 1;
		count.textContent = remaining + 's';
		if (remaining <= 0) {
			clearInterval(tick);
			fetch(apiBase + '/api/timers/' + tabId + '/dismiss', {method: 'POST'});
		}
	}, 1000);

	snooze.onclick = () => {
		clearInterval(tick);
		overlay.remove();
		fetch(apiBase + '/api/timers/' + tabId + '/snooze', {method: 'POST'});
	};
	close.onclick = () => {
		clearInterval(tick);
		fetch(apiBase + '/api/timers/' + tabId + '/dismiss', {method: 'POST'});
	};

	row.append(snooze, close);
	overlay.append(title, count, row);
	document.body.appendChild(overlay);
}`

// bedtimeJS shows a small dismissable toast in the corner of the page.
const bedtimeJS = `() => {
	if (document.getElementById('winddown-bedtime')) return;
	const toast = document.createElement('div');
	toast.id = 'winddown-bedtime';
	toast.textContent = "It's past bedtime — consider calling it a night";
	toast.style.cssText = 'position:fixed;bottom:24px;right:24px;z-index:2147483646;' +
		'background:#312e81;color:#e0e7ff;padding:14px 20px;border-radius:10px;' +
		'font-family:system-ui,sans-serif;font-size:15px;box-shadow:0 4px 24px rgba(0,0,0,0.4);';
	toast.onclick = () => toast.remove();
	document.body.appendChild(toast);
	setTimeout(() => toast.remove(), 15000);
}`

// OverlaySink delivers engine notifications by injecting script into the
// affected pages. Badge updates have no in-page rendering; they are logged
// at debug level and served through the HTTP badge endpoint instead.
type OverlaySink struct {
	bridge *Bridge
	// APIBase is the daemon's HTTP base URL the overlay buttons call back to.
	APIBase string
	// Snooze supplies the current snooze interval in minutes so the
	// overlay's snooze button label matches what the engine will grant.
	// Nil falls back to the built-in default.
	Snooze func() int
}

// NewOverlaySink creates a sink that injects overlays through the bridge.
func NewOverlaySink(bridge *Bridge, apiBase string) *OverlaySink {
	return &OverlaySink{bridge: bridge, APIBase: apiBase}
}

func (s *OverlaySink) snoozeMinutes() int {
	if s.Snooze != nil {
		return s.Snooze()
	}
	return 15
}

func (s *OverlaySink) ShowCountdown(_ context.Context, tabID, seconds int) error {
	page, ok := s.bridge.pageFor(tabID)
	if !ok {
		return fmt.Errorf("browser: no page for tab %d", tabID)
	}
	_, err := page.Eval(overlayJS, tabID, seconds, s.snoozeMinutes(), s.APIBase)
	if err != nil {
		return fmt.Errorf("browser: inject overlay: %w", err)
	}
	return nil
}

func (s *OverlaySink) ShowBedtime(_ context.Context, tabID int) error {
	page, ok := s.bridge.pageFor(tabID)
	if !ok {
		return fmt.Errorf("browser: no page for tab %d", tabID)
	}
	if _, err := page.Eval(bedtimeJS); err != nil {
		return fmt.Errorf("browser: inject bedtime toast: %w", err)
	}
	return nil
}

func (s *OverlaySink) UpdateBadge(_ context.Context, b winddown.Badge) error {
	s.bridge.cfg.Logger.Debug("browser: badge", "text", b.Text)
	return nil
}

func (s *OverlaySink) Close() error { return nil }
