package ingest

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// headerScanLimit bounds how deep into a sheet the header-row probe looks.
// Workbook exports sometimes carry a title block above the real header.
const headerScanLimit = 10

// ReadXLSX decodes a workbook into a Table. Sheets are scanned in workbook
// order; the first sheet with a recognizable header row (one naming a date
// or measurement column) wins. When no sheet is recognizable the first
// non-empty sheet is used as-is so normalization can report the precise
// missing-column error instead of a generic decode failure.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	defer f.Close()

	var fallback [][]string
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil || len(rows) == 0 {
			continue
		}
		if fallback == nil {
			fallback = rows
		}
		if idx := findHeaderRow(rows); idx >= 0 {
			return &Table{Headers: rows[idx], Rows: rows[idx+1:]}, nil
		}
	}

	if fallback == nil {
		return nil, fmt.Errorf("%w: workbook contains no data", ErrMalformedInput)
	}
	return &Table{Headers: fallback[0], Rows: fallback[1:]}, nil
}

// findHeaderRow returns the index of the first row within the scan limit
// where a date, weight, or energy column is recognizable, or -1.
func findHeaderRow(rows [][]string) int {
	limit := len(rows)
	if limit > headerScanLimit {
		limit = headerScanLimit
	}
	matchers := []KeywordMatcher{DateMatcher(), WeightMatcher(), EnergyMatcher()}
	for i := 0; i < limit; i++ {
		if len(rows[i]) == 0 {
			continue
		}
		for _, m := range matchers {
			if _, ok := m.Match(rows[i]); ok {
				return i
			}
		}
	}
	return -1
}
