package trend

import (
	"scaletrend/pkg/contracts/domain"
)

// projectionHorizonWeeks is how far past the last observed bucket the
// weight projection extends.
const projectionHorizonWeeks = 4

// EnergyBalance derives daily energy figures from the fitted weight trend
// and the observed intake. All fields are nil when the underlying inputs
// are missing.
type EnergyBalance struct {
	EstDailyChange       *float64
	OverallAvgEnergy     *float64
	EstimatedMaintenance *float64
}

// ComputeEnergyBalance translates the weekly weight slope into an estimated
// daily energy change and, when intake data exists, an estimated
// maintenance level. The slope in kilograms per week is scaled by the
// energy density of body mass and spread over seven days; maintenance is
// the overall average intake minus that change.
func ComputeEnergyBalance(buckets []domain.WeekBucket, fit domain.RegressionResult) EnergyBalance {
	var out EnergyBalance

	if fit.Defined() {
		change := *fit.SlopeKGPerWeek * domain.KcalPerKilogram / 7
		out.EstDailyChange = &change
	}

	var sum float64
	var n int
	for _, b := range buckets {
		if b.HasEnergy() {
			sum += *b.AvgEnergy
			n++
		}
	}
	if n > 0 {
		avg := sum / float64(n)
		out.OverallAvgEnergy = &avg
	}

	if out.EstDailyChange != nil && out.OverallAvgEnergy != nil {
		maint := *out.OverallAvgEnergy - *out.EstDailyChange
		out.EstimatedMaintenance = &maint
	}
	return out
}

// ProjectWeights extends the fitted line projectionHorizonWeeks past each
// bucket's ordinal, producing one projected kilogram value per bucket. With
// an undefined fit every entry is nil.
func ProjectWeights(buckets []domain.WeekBucket, fit domain.RegressionResult) []*float64 {
	out := make([]*float64, len(buckets))
	if !fit.Defined() {
		return out
	}
	for i := range buckets {
		v := *fit.InterceptKG + *fit.SlopeKGPerWeek*float64(i+projectionHorizonWeeks)
		out[i] = &v
	}
	return out
}
