package winddown

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the service-level knobs: where the database lives, where the
// HTTP surface listens, and the tick rates of the internal loops. User-facing
// behavior (watch duration, bedtime, domains) lives in Settings instead, in
// the database, so external writers can change it at runtime.
type Config struct {
	// DBPath is the SQLite database path. ":memory:" is accepted for tests.
	DBPath string `yaml:"db_path"`
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// SessionID identifies the browser session. A new id wipes stored
	// timers on startup; reusing the previous id triggers recovery.
	SessionID string `yaml:"session_id"`
	// AlarmTick is the wake-up scheduler resolution.
	AlarmTick time.Duration `yaml:"alarm_tick"`
	// SettingsPoll is how often the settings watcher checks for external
	// writes to the database.
	SettingsPoll time.Duration `yaml:"settings_poll"`
	// BrowserURL is the DevTools control URL of a running browser. Empty
	// disables browser attachment; tab events then arrive over HTTP only.
	BrowserURL string `yaml:"browser_url"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "winddown.db"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8790"
	}
	if c.AlarmTick <= 0 {
		c.AlarmTick = time.Second
	}
	if c.SettingsPoll <= 0 {
		c.SettingsPoll = 500 * time.Millisecond
	}
}

// LoadConfigFile reads a YAML config file. A missing path yields defaults.
func LoadConfigFile(path string) (Config, error) {
	var c Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	c.defaults()
	return c, nil
}
