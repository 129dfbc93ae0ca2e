package trend

import (
	"context"
	"log/slog"
	"time"

	"scaletrend/internal/ingest"
	"scaletrend/pkg/contracts/domain"
)

// Analysis is the retained state of one analyzed dataset. It keeps the full
// converted bucket list so later windows can both narrow and widen without
// re-reading the source. The detected unit is fixed at analysis time and
// never revised by refiltering.
type Analysis struct {
	// Buckets is every week present in the dataset, converted to kilograms,
	// sorted ascending by week key.
	Buckets []domain.WeekBucket

	DetectedUnit   domain.WeightUnit
	UnitOverridden bool

	// Window is the filter supplied when the analysis was created. Summaries
	// for the analysis's default view use it; ad hoc windows override it.
	Window Window

	Meta ingest.Meta
}

// Options controls a single analysis run.
type Options struct {
	// Unit forces the weight unit. UnitAuto (or empty) detects from the data.
	Unit domain.WeightUnit

	// Window bounds the default summary view. The full dataset is still
	// aggregated and retained.
	Window Window
}

// Analyzer turns normalized datasets into weekly trend summaries.
type Analyzer struct {
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer. A nil logger falls back to slog.Default.
func NewAnalyzer(logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{logger: logger}
}

// Analyze aggregates a dataset into week buckets, resolves the weight unit,
// and converts the weight series to kilograms. It never fails: an empty
// dataset produces an analysis with no buckets. Unit detection always runs
// over the full dataset so the result is stable across window changes.
func (a *Analyzer) Analyze(ctx context.Context, dataset *ingest.Dataset, opts Options) *Analysis {
	buckets := Aggregate(dataset.Records)
	unit, overridden := DetectUnit(buckets, opts.Unit)
	buckets = ConvertToKilograms(buckets, unit)

	a.logger.InfoContext(ctx, "dataset analyzed",
		"weeks", len(buckets),
		"unit", string(unit),
		"unit_overridden", overridden,
		"energy_source", string(dataset.Meta.EnergySource))

	return &Analysis{
		Buckets:        buckets,
		DetectedUnit:   unit,
		UnitOverridden: overridden,
		Window:         opts.Window,
		Meta:           dataset.Meta,
	}
}

// Summarize computes the full summary for one window over an analysis.
// Everything downstream of the bucket list is recomputed from scratch:
// the regression, the energy balance, and the projection all see only the
// windowed buckets, with ordinals re-derived from the filtered positions.
func (a *Analyzer) Summarize(ctx context.Context, state *Analysis, window Window) *domain.Summary {
	buckets := FilterBuckets(state.Buckets, window)
	fit := FitTrend(buckets)
	if !fit.Defined() {
		a.logger.DebugContext(ctx, "not enough weighted weeks for a trend line",
			"weeks", len(buckets))
	}
	balance := ComputeEnergyBalance(buckets, fit)
	projection := ProjectWeights(buckets, fit)

	return &domain.Summary{
		Buckets:                 buckets,
		Regression:              fit,
		EstDailyChange:          balance.EstDailyChange,
		OverallAvgEnergy:        balance.OverallAvgEnergy,
		EstimatedMaintenance:    balance.EstimatedMaintenance,
		PredictedWeightIn4Weeks: projection,
		DetectedUnit:            state.DetectedUnit,
		UnitOverridden:          state.UnitOverridden,
		Meta: domain.SummaryMeta{
			RowsTotal:    state.Meta.RowsTotal,
			RowsValid:    state.Meta.RowsValid,
			RowsDropped:  state.Meta.RowsDropped,
			RowsFiltered: state.Meta.RowsFiltered,
			Weeks:        len(buckets),
			EnergySource: state.Meta.EnergySource,
			GeneratedAt:  time.Now().UTC(),
		},
	}
}
