// Package trend derives weekly weight and energy-balance summaries from
// normalized daily records.
//
// # Architecture
//
// The package is a chain of pure transforms orchestrated by Analyzer:
//
// 1. Aggregate: group records into ISO-week buckets with per-week averages
// 2. DetectUnit / ConvertToKilograms: classify and convert the weight series
// 3. FitTrend: least-squares slope of weight against bucket ordinal
// 4. ComputeEnergyBalance / ProjectWeights: caloric terms and extrapolation
// 5. FilterBuckets: restrict a bucket list to a calendar-date window
//
// # Usage
//
// Full analysis of a dataset, then interactive re-windowing:
//
//	analyzer := trend.NewAnalyzer(logger)
//	state := analyzer.Analyze(ctx, dataset, trend.Options{Unit: domain.UnitAuto})
//	summary := analyzer.Summarize(ctx, state, trend.Window{})
//
//	// later, without re-ingesting:
//	narrower := analyzer.Summarize(ctx, state, trend.Window{Start: &from, End: &to})
//
// Analyze builds an explicit state object so concurrent sessions never share
// mutable aggregation state; Summarize recomputes every derived quantity
// fresh for the requested window.
//
// # Unknown Values
//
// Fewer than two weighted buckets leaves the regression undefined. That is
// not an error: slope, intercept, daily change, and maintenance are nil in
// the summary while buckets and counts are still returned.
package trend
