package ingest

import (
	"io"
	"path/filepath"
	"strings"
)

// Decode picks a reader from the uploaded filename: workbook extensions go
// through excelize, everything else is treated as delimited text.
func Decode(r io.Reader, filename string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm", ".xls":
		return ReadXLSX(r)
	default:
		return ReadCSV(r)
	}
}
