// Package exporter renders analysis summaries for the offline CLI.
//
// Two encodings are supported:
//
// WriteJSON: the complete summary contract as an indented JSON array, one
// element per analyzed input.
//
// WriteCSV: the weekly bucket tables of all inputs flattened into a single
// CSV document with the originating source in the first column. Scalar trend
// statistics do not fit the table shape; use JSON when they are needed.
package exporter
