package phase

import (
	"fmt"
	"time"
)

// TimerDisabled is shown when no time limit was set.
const TimerDisabled = "Timer Disabled"

// FormatCountdown renders the time left as "DDd HH:MM:SS".
func FormatCountdown(deadlineMS int64, now time.Time) string {
	if deadlineMS == 0 {
		return TimerDisabled
	}
	d := Remaining(deadlineMS, now)
	if d < 0 {
		return "00d 00:00:00"
	}
	total := int64(d / time.Second)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02dd %02d:%02d:%02d", days, hours, minutes, seconds)
}
