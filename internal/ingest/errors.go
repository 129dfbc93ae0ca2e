package ingest

import "errors"

// Fatal ingestion errors. Per-row parse failures are never fatal; those are
// recovered by dropping the row or nulling the field and counted in Meta.
var (
	// ErrMalformedInput means the tabular structure itself could not be decoded.
	ErrMalformedInput = errors.New("malformed tabular input")

	// ErrMissingDateColumn means no header matched a date column and the
	// positional fallback found nothing date-like either.
	ErrMissingDateColumn = errors.New("no date column found")

	// ErrNoMeasurementColumns means neither a weight column nor any energy
	// signal (dedicated column or macro columns) could be located.
	ErrNoMeasurementColumns = errors.New("no weight or calorie column detected")
)
