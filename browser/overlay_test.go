package browser

import (
	"strings"
	"testing"
)

func TestOverlaySnoozeMinutes(t *testing.T) {
	s := NewOverlaySink(nil, "http://127.0.0.1:8790")
	if got := s.snoozeMinutes(); got != 15 {
		t.Fatalf("default snooze minutes: got %d, want 15", got)
	}

	s.Snooze = func() int { return 25 }
	if got := s.snoozeMinutes(); got != 25 {
		t.Fatalf("provided snooze minutes: got %d, want 25", got)
	}
}

func TestOverlayScriptUsesConfiguredSnooze(t *testing.T) {
	// The button label is built from the injected parameter, never a
	// hardcoded interval.
	if !strings.Contains(overlayJS, "snoozeMinutes + ' more minutes'") {
		t.Fatal("overlay snooze label must come from the snoozeMinutes parameter")
	}
	if strings.Contains(overlayJS, "'15 more minutes'") {
		t.Fatal("overlay must not hardcode the snooze interval")
	}
}
