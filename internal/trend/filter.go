package trend

import (
	"time"

	"scaletrend/pkg/contracts/domain"
)

// Window bounds an analysis to a date range. Nil ends are open; a bucket is
// kept when its week key falls inside both bounds.
type Window struct {
	Start *time.Time
	End   *time.Time
}

// IsOpen reports whether the window imposes no bounds at all.
func (w Window) IsOpen() bool {
	return w.Start == nil && w.End == nil
}

// FilterBuckets returns the buckets whose week keys lie within the window.
// Bounds are converted to week keys and compared lexically, which matches
// chronological order for the zero-padded key format. The input order is
// preserved and the result is never nil.
func FilterBuckets(buckets []domain.WeekBucket, window Window) []domain.WeekBucket {
	var startKey, endKey string
	if window.Start != nil {
		startKey = WeekKey(*window.Start)
	}
	if window.End != nil {
		endKey = WeekKey(*window.End)
	}

	out := make([]domain.WeekBucket, 0, len(buckets))
	for _, b := range buckets {
		if startKey != "" && b.Week < startKey {
			continue
		}
		if endKey != "" && b.Week > endKey {
			continue
		}
		out = append(out, b)
	}
	return out
}
