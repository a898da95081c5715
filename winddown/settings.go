package winddown

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Settings are the user-tunable knobs. They live in the settings slot of the
// database; every write is observed by the engine through the settings
// watcher and diffed against the previous value.
type Settings struct {
	// WatchMinutes is how long a tracked tab may stay open before the
	// countdown overlay appears.
	WatchMinutes int `json:"watch_minutes" yaml:"watch_minutes"`
	// CountdownSeconds is the overlay countdown length.
	CountdownSeconds int `json:"countdown_seconds" yaml:"countdown_seconds"`
	// SnoozeMinutes is how much extra time a snooze grants.
	SnoozeMinutes int `json:"snooze_minutes" yaml:"snooze_minutes"`
	// BedtimeHour is the local hour (0-5) past which the one-time bedtime
	// reminder fires. The reminder window runs from BedtimeHour to 6am.
	BedtimeHour    int  `json:"bedtime_hour" yaml:"bedtime_hour"`
	BedtimeEnabled bool `json:"bedtime_enabled" yaml:"bedtime_enabled"`
	// PausedForTonight suspends all timer creation and destroys existing
	// timers until switched back off.
	PausedForTonight bool `json:"paused_for_tonight" yaml:"paused_for_tonight"`
	// Domains is the built-in tracked-site list; CustomDomains holds
	// user-added entries. Matching is substring containment on the tab URL.
	Domains       []string `json:"domains" yaml:"domains"`
	CustomDomains []string `json:"custom_domains,omitempty" yaml:"custom_domains,omitempty"`
}

// DefaultSettings returns the embedded defaults. Panics only on a corrupt
// build (the asset is compiled in).
func DefaultSettings() Settings {
	var s Settings
	if err := yaml.Unmarshal(defaultsYAML, &s); err != nil {
		panic("winddown: embedded defaults.yaml corrupt: " + err.Error())
	}
	return s
}

// ParseSettings decodes the JSON payload stored in the settings slot.
func ParseSettings(payload []byte) (Settings, error) {
	var s Settings
	if err := json.Unmarshal(payload, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	return s, nil
}

// MarshalJSONPayload encodes the settings for the settings slot.
func (s Settings) MarshalJSONPayload() ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return raw, nil
}

// Validate rejects settings the engine cannot act on. The bedtime window
// runs to 6am, so an enabled bedtime hour of 6 or later would describe an
// empty or inverted window; it is rejected as invalid input rather than
// silently reinterpreted.
func (s *Settings) Validate() error {
	if s.WatchMinutes <= 0 {
		return fmt.Errorf("watch_minutes must be positive, got %d", s.WatchMinutes)
	}
	if s.CountdownSeconds <= 0 {
		return fmt.Errorf("countdown_seconds must be positive, got %d", s.CountdownSeconds)
	}
	if s.SnoozeMinutes <= 0 {
		return fmt.Errorf("snooze_minutes must be positive, got %d", s.SnoozeMinutes)
	}
	if s.BedtimeEnabled && (s.BedtimeHour < 0 || s.BedtimeHour > 5) {
		return fmt.Errorf("bedtime_hour must be between 0 and 5, got %d", s.BedtimeHour)
	}
	return nil
}

// Tracked returns the full tracked-domain list: built-ins first, then custom
// entries, duplicates removed.
func (s *Settings) Tracked() []string {
	out := make([]string, 0, len(s.Domains)+len(s.CustomDomains))
	out = append(out, s.Domains...)
	for _, d := range s.CustomDomains {
		if !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}

// Tracks reports whether url belongs to a tracked site.
func (s *Settings) Tracks(url string) bool {
	if url == "" {
		return false
	}
	for _, d := range s.Tracked() {
		if d != "" && strings.Contains(url, d) {
			return true
		}
	}
	return false
}

// Equal reports whether two settings are identical field for field.
func (s Settings) Equal(o Settings) bool {
	return s.WatchMinutes == o.WatchMinutes &&
		s.CountdownSeconds == o.CountdownSeconds &&
		s.SnoozeMinutes == o.SnoozeMinutes &&
		s.BedtimeHour == o.BedtimeHour &&
		s.BedtimeEnabled == o.BedtimeEnabled &&
		s.PausedForTonight == o.PausedForTonight &&
		slices.Equal(s.Domains, o.Domains) &&
		slices.Equal(s.CustomDomains, o.CustomDomains)
}
