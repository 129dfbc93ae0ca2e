package ingest

import (
	"time"

	"scaletrend/pkg/contracts/domain"
)

// Table is raw tabular input decoded from CSV or XLSX: one header row plus
// the data rows beneath it. Rows may be ragged; cells are untyped strings.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Record is one normalized input row. Date is always valid; rows whose date
// cannot be parsed never become Records. A nil measurement means the row did
// not carry a usable value for it.
type Record struct {
	Date   time.Time
	Weight *float64
	Energy *float64
}

// HasWeight reports whether the record carries a weight measurement.
func (r Record) HasWeight() bool { return r.Weight != nil }

// HasEnergy reports whether the record carries an energy measurement.
func (r Record) HasEnergy() bool { return r.Energy != nil }

// Empty reports whether the record carries no measurement at all.
func (r Record) Empty() bool { return r.Weight == nil && r.Energy == nil }

// Dataset is the output of normalization: date-ordered records plus the
// observability counts accumulated while producing them.
type Dataset struct {
	Records []Record
	Meta    Meta
}

// Meta records what happened to the raw rows on their way to Records.
// RowsTotal = RowsValid + RowsDropped; RowsFiltered counts valid rows
// removed afterwards by the optional incomplete-day filter.
type Meta struct {
	RowsTotal    int
	RowsValid    int
	RowsDropped  int
	RowsFiltered int

	EnergySource domain.EnergySource
}
