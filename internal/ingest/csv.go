package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ReadCSV decodes comma-separated input into a Table. The first record is
// the header row, matching how logging apps export. Ragged rows are kept;
// the normalizer treats missing cells as missing values.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: input is empty", ErrMalformedInput)
	}

	headers := records[0]
	if len(headers) > 0 {
		// Excel and some exporters prepend a UTF-8 BOM to the first cell.
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	}

	return &Table{Headers: headers, Rows: records[1:]}, nil
}
