package testutil

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// DatasetRow is one diary line used to build upload fixtures. Empty strings
// become empty cells, which the ingest layer treats as absent measurements.
type DatasetRow struct {
	Date     string
	Weight   string
	Calories string
}

// SteadyLossRows builds a daily diary covering the given number of ISO weeks,
// starting Monday 2024-01-01. Every day of week i weighs in at 70-i kg and
// logs 2000 kcal, so the weekly averages fall exactly 1 kg per week.
func SteadyLossRows(weeks int) []DatasetRow {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := make([]DatasetRow, 0, weeks*7)
	for w := 0; w < weeks; w++ {
		for d := 0; d < 7; d++ {
			date := start.AddDate(0, 0, w*7+d)
			rows = append(rows, DatasetRow{
				Date:     date.Format("2006-01-02"),
				Weight:   fmt.Sprintf("%.1f", 70.0-float64(w)),
				Calories: "2000",
			})
		}
	}
	return rows
}

// CSVDataset renders rows under the canonical Date,Weight,Calories header.
func CSVDataset(rows []DatasetRow) []byte {
	var b strings.Builder
	b.WriteString("Date,Weight,Calories\n")
	for _, r := range rows {
		b.WriteString(r.Date)
		b.WriteByte(',')
		b.WriteString(r.Weight)
		b.WriteByte(',')
		b.WriteString(r.Calories)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// CSVFrom renders an arbitrary header and cell grid as CSV. Useful for
// datasets with macro columns, reordered columns, or missing headers.
func CSVFrom(headers []string, rows [][]string) []byte {
	var b strings.Builder
	b.WriteString(strings.Join(headers, ","))
	b.WriteByte('\n')
	for _, row := range rows {
		b.WriteString(strings.Join(row, ","))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// XLSXDataset renders rows as a single-sheet workbook under the canonical
// Date,Weight,Calories header.
func XLSXDataset(rows []DatasetRow) ([]byte, error) {
	grid := make([][]string, 0, len(rows))
	for _, r := range rows {
		grid = append(grid, []string{r.Date, r.Weight, r.Calories})
	}
	return XLSXFrom([]string{"Date", "Weight", "Calories"}, grid)
}

// XLSXFrom renders an arbitrary header and cell grid as a workbook.
func XLSXFrom(headers []string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)

	writeRow := func(rowIdx int, cells []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowIdx)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(cells))
		for i, c := range cells {
			values[i] = c
		}
		return f.SetSheetRow(sheet, cell, &values)
	}

	if err := writeRow(1, headers); err != nil {
		return nil, err
	}
	for i, row := range rows {
		if err := writeRow(i+2, row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MultipartUpload wraps file content in a multipart form body the upload
// endpoint accepts. Extra form fields (unit, start, end) ride alongside the
// file part. Returns the body and the Content-Type header value.
func MultipartUpload(fieldName, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(fieldName, filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}

	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", k, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}
