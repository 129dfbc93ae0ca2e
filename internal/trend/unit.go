package trend

import (
	"scaletrend/pkg/contracts/domain"
)

// unitThreshold splits plausible adult body weights: bucket means above it
// are read as pounds, at or below as kilograms.
const unitThreshold = 80.0

// DetectUnit resolves the weight unit for a set of weekly buckets. An
// explicit kg or lb override wins and marks the result as overridden.
// Otherwise the mean of the bucket weight averages decides: above
// unitThreshold means pounds, anything else kilograms. Buckets without a
// weight average do not vote.
func DetectUnit(buckets []domain.WeekBucket, override domain.WeightUnit) (domain.WeightUnit, bool) {
	if override == domain.UnitKilograms || override == domain.UnitPounds {
		return override, true
	}

	var sum float64
	var n int
	for _, b := range buckets {
		if b.AvgWeight != nil {
			sum += *b.AvgWeight
			n++
		}
	}
	if n == 0 {
		return domain.UnitKilograms, false
	}
	if sum/float64(n) > unitThreshold {
		return domain.UnitPounds, false
	}
	return domain.UnitKilograms, false
}

// ConvertToKilograms fills AvgWeightKG on a copy of the buckets. For
// kilogram inputs the value is carried over unchanged; for pound inputs it
// is scaled by the exact conversion factor. Original AvgWeight values are
// preserved so callers can still report the source unit.
func ConvertToKilograms(buckets []domain.WeekBucket, unit domain.WeightUnit) []domain.WeekBucket {
	out := make([]domain.WeekBucket, len(buckets))
	copy(out, buckets)
	for i := range out {
		if out[i].AvgWeight == nil {
			out[i].AvgWeightKG = nil
			continue
		}
		kg := *out[i].AvgWeight
		if unit == domain.UnitPounds {
			kg *= domain.PoundsToKilograms
		}
		out[i].AvgWeightKG = &kg
	}
	return out
}
