package domain

import (
	"fmt"
	"regexp"
	"time"
)

// WeightUnit identifies the unit a weight series is expressed in.
type WeightUnit string

const (
	UnitKilograms WeightUnit = "kg"
	UnitPounds    WeightUnit = "lb"

	// UnitAuto is a request-side directive, never a detection result.
	UnitAuto WeightUnit = "auto"
)

// PoundsToKilograms is the exact avoirdupois conversion factor.
const PoundsToKilograms = 0.45359237

// KcalPerKilogram is the physiological approximation for the energy
// equivalent of one kilogram of body-mass change.
const KcalPerKilogram = 7700.0

// EnergySource records where the per-day energy series came from.
type EnergySource string

const (
	// EnergySourceColumn means a dedicated energy/kcal/calorie column was found.
	EnergySourceColumn EnergySource = "energy_column"
	// EnergySourceMacrosKcal means macro columns were summed as-is because their
	// magnitudes indicated they were already kcal.
	EnergySourceMacrosKcal EnergySource = "macros_as_kcal"
	// EnergySourceMacrosGrams means macro columns were treated as grams and
	// converted with per-macro energy factors.
	EnergySourceMacrosGrams EnergySource = "macros_in_grams_converted"
	// EnergySourceNone means the dataset carried no usable energy signal.
	EnergySourceNone EnergySource = "none"
)

// WeekBucket is the per-ISO-week aggregate of the normalized input rows.
// One bucket exists per distinct week present in the data; weeks with no
// contributing rows are never synthesized.
//
// AvgWeight keeps the as-reported unit for display; AvgWeightKG is the
// converted series all downstream math runs on. A nil average means no row
// in that week carried the measurement. SampleCount counts every row whose
// date fell in the week, regardless of which measurements it carried.
type WeekBucket struct {
	Week        string   `json:"week" validate:"required,weekkey"`
	AvgWeight   *float64 `json:"avg_weight"`
	AvgWeightKG *float64 `json:"avg_weight_kg"`
	AvgEnergy   *float64 `json:"avg_energy"`
	SampleCount int      `json:"sample_count" validate:"min=1"`
}

// HasWeight reports whether the bucket carries a converted weight average.
func (b WeekBucket) HasWeight() bool { return b.AvgWeightKG != nil }

// HasEnergy reports whether the bucket carries an energy average.
func (b WeekBucket) HasEnergy() bool { return b.AvgEnergy != nil }

// RegressionResult holds the least-squares fit of avg_weight_kg against the
// bucket's 0-based ordinal in the current bucket list. Slope and intercept
// are defined together or absent together; fewer than two weighted buckets
// leaves both nil.
type RegressionResult struct {
	SlopeKGPerWeek *float64 `json:"slope_kg_per_week"`
	InterceptKG    *float64 `json:"intercept_kg"`
}

// Defined reports whether a fit exists.
func (r RegressionResult) Defined() bool {
	return r.SlopeKGPerWeek != nil && r.InterceptKG != nil
}

// Summary is the complete analysis result for one dataset and one filter
// window. It is recomputed fresh on every invocation; unknown quantities are
// nil rather than zero so callers can distinguish "no trend" from "flat".
type Summary struct {
	// Buckets is sorted ascending by week key. Lexical order is chronological
	// because the year is four digits and the week number is zero-padded.
	Buckets []WeekBucket `json:"buckets"`

	Regression RegressionResult `json:"regression"`

	// EstDailyChange is the daily caloric surplus (positive) or deficit
	// (negative) implied by the fitted slope.
	EstDailyChange *float64 `json:"est_daily_change"`

	// OverallAvgEnergy is the mean of the per-week energy averages over the
	// current bucket list.
	OverallAvgEnergy *float64 `json:"overall_avg_energy"`

	// EstimatedMaintenance is the daily intake at which the observed trend
	// would flatten: observed average intake minus the implied daily change.
	EstimatedMaintenance *float64 `json:"estimated_maintenance"`

	// PredictedWeightIn4Weeks is aligned index-for-index with Buckets: a naive
	// linear extrapolation four weeks past each bucket's own ordinal. Only the
	// entry for the most recent bucket is practically meaningful.
	PredictedWeightIn4Weeks []*float64 `json:"predicted_weight_in_4_weeks"`

	DetectedUnit   WeightUnit `json:"detected_unit"`
	UnitOverridden bool       `json:"unit_overridden"`

	Meta SummaryMeta `json:"meta"`
}

// SummaryMeta carries ingestion and aggregation observability counts.
type SummaryMeta struct {
	// RowsTotal is the raw row count before any normalization.
	RowsTotal int `json:"rows_total"`
	// RowsValid is the count of rows that survived date parsing.
	RowsValid int `json:"rows_valid"`
	// RowsDropped is the count of rows discarded for an unparseable date.
	RowsDropped int `json:"rows_dropped"`
	// RowsFiltered is the count of valid rows removed by the optional
	// incomplete-day filter.
	RowsFiltered int `json:"rows_filtered"`
	// Weeks is the bucket count in the current window.
	Weeks int `json:"weeks"`

	EnergySource EnergySource `json:"energy_source"`
	GeneratedAt  time.Time    `json:"generated_at"`
}

// LatestProjection returns the 4-week-ahead projection anchored at the most
// recent bucket, or nil when no fit exists or the bucket list is empty.
func (s *Summary) LatestProjection() *float64 {
	if len(s.PredictedWeightIn4Weeks) == 0 {
		return nil
	}
	return s.PredictedWeightIn4Weeks[len(s.PredictedWeightIn4Weeks)-1]
}

// TotalSamples sums sample counts across the current bucket list.
func (s *Summary) TotalSamples() int {
	total := 0
	for _, b := range s.Buckets {
		total += b.SampleCount
	}
	return total
}

// weekKeyPattern matches "<ISO year>-W<2-digit week>", e.g. "2024-W05".
var weekKeyPattern = regexp.MustCompile(`^\d{4}-W\d{2}$`)

// IsValidWeekKey reports whether s has the canonical week-key shape.
func IsValidWeekKey(s string) bool {
	return weekKeyPattern.MatchString(s)
}

// ValidateSummary checks the structural invariants a well-formed Summary
// must satisfy: canonical ascending week keys, positive sample counts, and
// a projection slice aligned with the bucket list.
func ValidateSummary(s *Summary) error {
	if s == nil {
		return fmt.Errorf("summary cannot be nil")
	}
	if len(s.PredictedWeightIn4Weeks) != len(s.Buckets) {
		return fmt.Errorf("projection length %d does not match bucket count %d",
			len(s.PredictedWeightIn4Weeks), len(s.Buckets))
	}
	prev := ""
	for i, b := range s.Buckets {
		if !IsValidWeekKey(b.Week) {
			return fmt.Errorf("bucket %d: malformed week key %q", i, b.Week)
		}
		if b.Week <= prev {
			return fmt.Errorf("bucket %d: week key %q not strictly after %q", i, b.Week, prev)
		}
		if b.SampleCount < 1 {
			return fmt.Errorf("bucket %d: sample count must be positive, got %d", i, b.SampleCount)
		}
		prev = b.Week
	}
	switch s.DetectedUnit {
	case UnitKilograms, UnitPounds:
	default:
		return fmt.Errorf("detected unit must be kg or lb, got %q", s.DetectedUnit)
	}
	if (s.Regression.SlopeKGPerWeek == nil) != (s.Regression.InterceptKG == nil) {
		return fmt.Errorf("regression slope and intercept must be defined together")
	}
	return nil
}

// ParseWeightUnit normalizes a user-supplied unit directive. The empty
// string means auto-detect.
func ParseWeightUnit(s string) (WeightUnit, error) {
	switch WeightUnit(s) {
	case UnitKilograms:
		return UnitKilograms, nil
	case UnitPounds:
		return UnitPounds, nil
	case UnitAuto, "":
		return UnitAuto, nil
	}
	return "", fmt.Errorf("unknown weight unit %q (want auto, kg, or lb)", s)
}
