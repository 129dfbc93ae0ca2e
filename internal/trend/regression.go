package trend

import (
	"scaletrend/pkg/contracts/domain"
)

// minTrendBuckets is the smallest number of weighted buckets ordinary least
// squares can fit a line through.
const minTrendBuckets = 2

// FitTrend fits weekly average weight in kilograms against bucket ordinal
// using ordinary least squares. The ordinal is the bucket's position in the
// full filtered list, so weeks without weight data still occupy an x slot
// and leave a visible gap in the fit. Fewer than minTrendBuckets weighted
// buckets yield an undefined result.
func FitTrend(buckets []domain.WeekBucket) domain.RegressionResult {
	var xs, ys []float64
	for i, b := range buckets {
		if !b.HasWeight() {
			continue
		}
		xs = append(xs, float64(i))
		ys = append(ys, *b.AvgWeightKG)
	}
	if len(xs) < minTrendBuckets {
		return domain.RegressionResult{}
	}

	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	n := float64(len(xs))
	mx /= n
	my /= n

	var sxx, sxy float64
	for i := range xs {
		dx := xs[i] - mx
		sxx += dx * dx
		sxy += dx * (ys[i] - my)
	}
	if sxx == 0 {
		return domain.RegressionResult{}
	}

	slope := sxy / sxx
	intercept := my - slope*mx
	return domain.RegressionResult{
		SlopeKGPerWeek: &slope,
		InterceptKG:    &intercept,
	}
}
