package exporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"scaletrend/pkg/contracts/domain"
)

// FileSummary pairs one analyzed input with its summary.
type FileSummary struct {
	Source  string          `json:"source"`
	Summary *domain.Summary `json:"summary"`
}

// WriteJSON renders results as an indented JSON array, one element per
// analyzed input.
func WriteJSON(w io.Writer, results []FileSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("encode summaries: %w", err)
	}
	return nil
}

// WriteCSV flattens the weekly bucket tables of all results into one CSV
// document, one row per week.
func WriteCSV(w io.Writer, results []FileSummary) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(summaryHeaders()); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	for _, result := range results {
		for i, bucket := range result.Summary.Buckets {
			var projection *float64
			if i < len(result.Summary.PredictedWeightIn4Weeks) {
				projection = result.Summary.PredictedWeightIn4Weeks[i]
			}
			if err := writer.Write(bucketRow(result.Source, bucket, projection)); err != nil {
				return fmt.Errorf("failed to write record for %s week %s: %w", result.Source, bucket.Week, err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

// summaryHeaders returns the CSV headers for weekly bucket rows
func summaryHeaders() []string {
	return []string{
		"source", "week", "avg_weight", "avg_weight_kg", "avg_energy",
		"sample_count", "predicted_weight_in_4_weeks",
	}
}

// bucketRow converts a week bucket to a CSV row
func bucketRow(source string, bucket domain.WeekBucket, projection *float64) []string {
	return []string{
		source,
		bucket.Week,
		formatOptionalFloat(bucket.AvgWeight),
		formatOptionalFloat(bucket.AvgWeightKG),
		formatOptionalFloat(bucket.AvgEnergy),
		formatInt(bucket.SampleCount),
		formatOptionalFloat(projection),
	}
}
