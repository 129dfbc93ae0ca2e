// Package ingest normalizes heterogeneous tabular input into typed daily
// records ready for weekly aggregation.
//
// # Architecture
//
// The package is organized into three main components:
//
// 1. Readers: decode CSV or XLSX bytes into a raw Table
// 2. Matchers: locate columns by case-insensitive keyword search
// 3. Normalizer: coerce rows into dated records with optional measurements
//
// # Usage
//
// Decoding and normalizing an upload:
//
//	table, err := ingest.Decode(file, "export.csv")
//	if err != nil {
//	    return err
//	}
//	normalizer := ingest.NewNormalizer(logger, ingest.DefaultNormalizerConfig())
//	dataset, err := normalizer.Normalize(ctx, table)
//
// # Schema Discovery
//
// Column discovery is schema-agnostic: the date column is any header
// containing "date", the weight column any header containing "weight", and
// the energy column any header containing "energy", "kcal", or "calorie".
// Exports from different logging apps parse without per-app adapters. When
// no energy column exists, macronutrient columns (alcohol, fat, carbs,
// protein) are summed into a derived energy series.
//
// # Error Handling
//
// Only structural failures are errors: undecodable input, no date column,
// no measurement columns. Per-row problems are recovered locally (a row
// with an unparseable date is dropped, an unparseable measurement cell
// becomes a missing value) and surfaced as counts in Dataset.Meta.
package ingest
