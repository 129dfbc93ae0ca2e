package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReadCSV tests CSV decoding into a raw Table.
func TestReadCSV(t *testing.T) {
	t.Run("basic", func(t *testing.T) {
		input := "Date,Weight (kg),Energy (kcal)\n2024-01-01,70.5,2100\n2024-01-02,70.1,1950\n"

		table, err := ReadCSV(strings.NewReader(input))
		require.NoError(t, err)

		assert.Equal(t, []string{"Date", "Weight (kg)", "Energy (kcal)"}, table.Headers)
		require.Len(t, table.Rows, 2)
		assert.Equal(t, []string{"2024-01-01", "70.5", "2100"}, table.Rows[0])
	})

	t.Run("strips byte order mark", func(t *testing.T) {
		input := "\ufeffDate,Weight\n2024-01-01,70\n"

		table, err := ReadCSV(strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, "Date", table.Headers[0])
	})

	t.Run("ragged rows are kept", func(t *testing.T) {
		input := "Date,Weight,Calories\n2024-01-01,70\n2024-01-02,70.2,2000,extra\n"

		table, err := ReadCSV(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, table.Rows, 2)
		assert.Len(t, table.Rows[0], 2)
		assert.Len(t, table.Rows[1], 4)
	})

	t.Run("undecodable input", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("Date,Weight\n\"unterminated,70\n"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader(""))
		assert.ErrorIs(t, err, ErrMalformedInput)
	})
}

// TestDecode tests format dispatch by filename.
func TestDecode(t *testing.T) {
	csvBody := "Date,Weight\n2024-01-01,70\n"

	table, err := Decode(strings.NewReader(csvBody), "export.csv")
	require.NoError(t, err)
	assert.Len(t, table.Rows, 1)

	// Unknown extensions fall back to delimited text.
	table, err = Decode(strings.NewReader(csvBody), "export.txt")
	require.NoError(t, err)
	assert.Len(t, table.Rows, 1)

	// Workbook extensions go through the XLSX reader, which rejects text.
	_, err = Decode(strings.NewReader(csvBody), "export.xlsx")
	assert.ErrorIs(t, err, ErrMalformedInput)
}
