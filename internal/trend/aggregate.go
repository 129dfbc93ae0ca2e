package trend

import (
	"sort"

	"scaletrend/internal/ingest"
	"scaletrend/pkg/contracts/domain"
)

// Aggregate groups records into ISO-week buckets. Averages are taken over
// present values only; sample counts include every record in the week no
// matter which measurements it carried. Weeks absent from the input get no
// bucket. The result is sorted ascending by week key.
func Aggregate(records []ingest.Record) []domain.WeekBucket {
	type accumulator struct {
		weightSum float64
		weightN   int
		energySum float64
		energyN   int
		samples   int
	}

	byWeek := make(map[string]*accumulator)
	for _, rec := range records {
		key := WeekKey(rec.Date)
		acc := byWeek[key]
		if acc == nil {
			acc = &accumulator{}
			byWeek[key] = acc
		}
		acc.samples++
		if rec.HasWeight() {
			acc.weightSum += *rec.Weight
			acc.weightN++
		}
		if rec.HasEnergy() {
			acc.energySum += *rec.Energy
			acc.energyN++
		}
	}

	buckets := make([]domain.WeekBucket, 0, len(byWeek))
	for key, acc := range byWeek {
		b := domain.WeekBucket{Week: key, SampleCount: acc.samples}
		if acc.weightN > 0 {
			avg := acc.weightSum / float64(acc.weightN)
			b.AvgWeight = &avg
		}
		if acc.energyN > 0 {
			avg := acc.energySum / float64(acc.energyN)
			b.AvgEnergy = &avg
		}
		buckets = append(buckets, b)
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Week < buckets[j].Week
	})
	return buckets
}
