package trend

import (
	"fmt"
	"time"
)

// WeekKey returns the ISO-8601 week key for a date: the ISO year of the
// week's Thursday plus the zero-padded week number, e.g. "2024-W05". Keys
// sort lexically in chronological order.
func WeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}
