package exporter

import (
	"strconv"
	"strings"
)

// formatFloat renders a value with up to six decimal places, trailing zeros
// trimmed.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// formatOptionalFloat renders a nilable value, leaving the field empty when
// the measurement is absent.
func formatOptionalFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

// formatInt formats an int value for CSV output
func formatInt(i int) string {
	return strconv.Itoa(i)
}
