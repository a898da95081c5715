package winddown

import (
	"strconv"
	"strings"
	"time"
)

// State is the explicit per-timer state. A record is Watching from creation,
// Snoozed after the user asks for more time, and Expired once its wake-up has
// fired and the countdown overlay is showing. Expired is terminal: the record
// is either destroyed (tab closed, dismissed) or returns to Snoozed.
type State string

const (
	StateWatching State = "watching"
	StateSnoozed  State = "snoozed"
	StateExpired  State = "expired"
)

// TimerRecord is one tracked tab's watch session. Timestamps are Unix
// milliseconds, the representation the store persists.
//
// Invariant: SnoozedUntil is non-zero if and only if State is StateSnoozed.
// StartTime survives snoozes, so elapsed display time accumulates from the
// original start. It resets only when the watch duration setting changes.
type TimerRecord struct {
	TabID           int
	State           State
	StartTime       int64
	SnoozedUntil    int64
	NotifiedBedtime bool
	URL             string
}

// ElapsedMinutes is the whole minutes watched since StartTime.
func (r *TimerRecord) ElapsedMinutes(now time.Time) int {
	return int(now.Sub(time.UnixMilli(r.StartTime)) / time.Minute)
}

const wakeupPrefix = "winddown_"

// BadgeWakeupName is the recurring one-per-minute wake-up that drives the
// periodic badge refresh.
const BadgeWakeupName = "badge_refresh"

// WakeupName returns the wake-up key for a tab. The name is a pure function
// of the tab id: the recovery path recomputes it to re-associate wake-ups
// with persisted records after a restart, so it must never carry anything a
// restart could lose.
func WakeupName(tabID int) string {
	return wakeupPrefix + strconv.Itoa(tabID)
}

// TabIDFromWakeup inverts WakeupName. ok is false for foreign names such as
// the badge wake-up.
func TabIDFromWakeup(name string) (tabID int, ok bool) {
	rest, found := strings.CutPrefix(name, wakeupPrefix)
	if !found {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return id, true
}
