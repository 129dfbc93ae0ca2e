package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"scaletrend/pkg/contracts/domain"
)

// macroKcalThreshold separates macro columns logged in kcal from ones logged
// in grams: per-macro daily means above this are already energy values.
const macroKcalThreshold = 200.0

// Positional date fallback: when no header names a date column, a column
// still qualifies if enough of its sampled cells parse as dates.
const (
	dateProbeRows    = 20
	dateProbeMinHits = 3
)

// defaultDateLayouts lists the formats tried per cell, most common first.
var defaultDateLayouts = []string{
	"2006-01-02",           // ISO format
	time.RFC3339,           // ISO with time and zone
	"2006-01-02 15:04:05",  // With time
	"01/02/2006",           // US format
	"02/01/2006",           // European format
	"2006/01/02",           // Alternative ISO
	"01-02-2006",           // US with dashes
	"02-01-2006",           // European with dashes
}

// Normalizer turns a Table into a Dataset. It is stateless across calls;
// one instance can serve concurrent requests.
type Normalizer struct {
	logger       *slog.Logger
	dateColumn   Matcher
	weightColumn Matcher
	energyColumn Matcher
	dateLayouts  []string
	energyFloor  float64
	dropEmpty    bool
}

// NormalizerConfig holds configuration options for the Normalizer.
type NormalizerConfig struct {
	// DateColumn, WeightColumn, and EnergyColumn locate the relevant columns
	// in the header row. Nil fields get the default keyword matchers.
	DateColumn   Matcher
	WeightColumn Matcher
	EnergyColumn Matcher

	// DateLayouts are tried in order against each date cell.
	DateLayouts []string

	// EnergyFloor drops rows whose logged energy is below the given kcal
	// value as incomplete logging days. Zero disables the filter.
	EnergyFloor float64

	// DropEmptyRows removes valid-date rows carrying neither measurement.
	// Off by default: such rows still count toward weekly sample counts.
	DropEmptyRows bool
}

// DefaultNormalizerConfig returns the configuration used for typical uploads.
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		DateColumn:   DateMatcher(),
		WeightColumn: WeightMatcher(),
		EnergyColumn: EnergyMatcher(),
		DateLayouts:  defaultDateLayouts,
	}
}

// NewNormalizer creates a normalizer with the given configuration.
func NewNormalizer(logger *slog.Logger, config NormalizerConfig) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if config.DateColumn == nil {
		config.DateColumn = DateMatcher()
	}
	if config.WeightColumn == nil {
		config.WeightColumn = WeightMatcher()
	}
	if config.EnergyColumn == nil {
		config.EnergyColumn = EnergyMatcher()
	}
	if len(config.DateLayouts) == 0 {
		config.DateLayouts = defaultDateLayouts
	}

	return &Normalizer{
		logger:       logger,
		dateColumn:   config.DateColumn,
		weightColumn: config.WeightColumn,
		energyColumn: config.EnergyColumn,
		dateLayouts:  config.DateLayouts,
		energyFloor:  config.EnergyFloor,
		dropEmpty:    config.DropEmptyRows,
	}
}

// Normalize converts raw tabular input into date-valid records. Rows whose
// date cannot be parsed are dropped and counted, never raised. Unparseable
// measurement cells become missing values for that row only.
func (n *Normalizer) Normalize(ctx context.Context, table *Table) (*Dataset, error) {
	if table == nil || len(table.Headers) == 0 {
		return nil, fmt.Errorf("%w: missing header row", ErrMalformedInput)
	}

	dateIdx, ok := n.dateColumn.Match(table.Headers)
	if !ok {
		dateIdx, ok = n.probeDateColumn(table)
		if !ok {
			return nil, ErrMissingDateColumn
		}
		n.logger.InfoContext(ctx, "no date header found, using positional date column",
			slog.Int("column", dateIdx),
			slog.String("header", header(table.Headers, dateIdx)))
	}

	weightIdx, hasWeight := n.weightColumn.Match(table.Headers)
	energyIdx, hasEnergyCol := n.energyColumn.Match(table.Headers)

	source := domain.EnergySourceNone
	var macros *macroEnergy
	if hasEnergyCol {
		source = domain.EnergySourceColumn
	} else if macros = classifyMacroEnergy(table); macros != nil {
		source = macros.source
		n.logger.InfoContext(ctx, "no energy column found, deriving energy from macros",
			slog.String("energy_source", string(source)),
			slog.Int("macro_classes", len(macros.classes)))
	}

	if !hasWeight && source == domain.EnergySourceNone {
		return nil, ErrNoMeasurementColumns
	}

	meta := Meta{EnergySource: source}
	records := make([]Record, 0, len(table.Rows))

	for i, row := range table.Rows {
		if isBlankRow(row) {
			continue
		}
		meta.RowsTotal++

		dateStr := cell(row, dateIdx)
		date, err := parseDate(dateStr, n.dateLayouts)
		if err != nil {
			meta.RowsDropped++
			n.logger.WarnContext(ctx, "dropping row with unparseable date",
				slog.Int("row", i+1),
				slog.String("value", dateStr))
			continue
		}
		meta.RowsValid++

		rec := Record{Date: date}
		if hasWeight {
			rec.Weight = parseMeasurement(cell(row, weightIdx))
		}
		switch {
		case hasEnergyCol:
			rec.Energy = parseMeasurement(cell(row, energyIdx))
		case macros != nil:
			rec.Energy = macros.value(row)
		}
		records = append(records, rec)
	}

	records = n.filterIncompleteDays(records, &meta)

	n.logger.InfoContext(ctx, "normalized tabular input",
		slog.Int("rows_total", meta.RowsTotal),
		slog.Int("rows_valid", meta.RowsValid),
		slog.Int("rows_dropped", meta.RowsDropped),
		slog.Int("rows_filtered", meta.RowsFiltered),
		slog.String("energy_source", string(meta.EnergySource)))

	return &Dataset{Records: records, Meta: meta}, nil
}

// filterIncompleteDays applies the optional post-normalization filters:
// an energy floor for incomplete logging days and removal of rows carrying
// no measurement at all.
func (n *Normalizer) filterIncompleteDays(records []Record, meta *Meta) []Record {
	if n.energyFloor <= 0 && !n.dropEmpty {
		return records
	}

	kept := records[:0]
	for _, rec := range records {
		if n.energyFloor > 0 && rec.HasEnergy() && *rec.Energy < n.energyFloor {
			meta.RowsFiltered++
			continue
		}
		if n.dropEmpty && rec.Empty() {
			meta.RowsFiltered++
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

// probeDateColumn samples each column's cells and returns the first column
// where most non-empty samples parse as dates.
func (n *Normalizer) probeDateColumn(table *Table) (int, bool) {
	for col := range table.Headers {
		sampled, hits := 0, 0
		for _, row := range table.Rows {
			if sampled >= dateProbeRows {
				break
			}
			value := cell(row, col)
			if value == "" {
				continue
			}
			sampled++
			if _, err := parseDate(value, n.dateLayouts); err == nil {
				hits++
			}
		}
		if hits >= dateProbeMinHits && hits*5 >= sampled*4 {
			return col, true
		}
	}
	return 0, false
}

// macroEnergy derives a per-row energy value from macronutrient columns when
// no dedicated energy column exists.
type macroEnergy struct {
	source  domain.EnergySource
	classes map[MacroClass][]int
	asKcal  bool
}

// classifyMacroEnergy inspects the table for macro columns and decides
// whether their values are kcal or grams. Returns nil when the table has no
// usable macro data.
func classifyMacroEnergy(table *Table) *macroEnergy {
	classes := ClassifyMacros(table.Headers)
	if len(classes) == 0 {
		return nil
	}

	var sum float64
	var count int
	for _, cols := range classes {
		classSum, classCount := 0.0, 0
		for _, row := range table.Rows {
			if v, ok := sumCells(row, cols); ok {
				classSum += math.Abs(v)
				classCount++
			}
		}
		if classCount > 0 {
			sum += classSum / float64(classCount)
			count++
		}
	}
	if count == 0 {
		return nil
	}

	if sum/float64(count) > macroKcalThreshold {
		return &macroEnergy{source: domain.EnergySourceMacrosKcal, classes: classes, asKcal: true}
	}
	return &macroEnergy{source: domain.EnergySourceMacrosGrams, classes: classes}
}

// value computes the row's energy: the macro sums taken as kcal directly, or
// grams converted with per-macro factors. Nil when no macro cell parsed.
func (m *macroEnergy) value(row []string) *float64 {
	total := 0.0
	seen := false
	for class, cols := range m.classes {
		v, ok := sumCells(row, cols)
		if !ok {
			continue
		}
		seen = true
		if m.asKcal {
			total += v
		} else {
			total += v * class.KcalPerGram()
		}
	}
	if !seen {
		return nil
	}
	return &total
}

// sumCells sums the parseable cells among the given column indexes. The
// second return is false when none parsed.
func sumCells(row []string, cols []int) (float64, bool) {
	total := 0.0
	seen := false
	for _, col := range cols {
		if v := parseMeasurement(cell(row, col)); v != nil {
			total += *v
			seen = true
		}
	}
	return total, seen
}

// parseDate attempts to parse date strings in multiple formats.
func parseDate(value string, layouts []string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range layouts {
		if date, err := time.Parse(layout, value); err == nil {
			return date, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", value)
}

// parseMeasurement coerces a cell to a float. Thousands separators are
// stripped; anything unparseable or non-finite becomes missing.
func parseMeasurement(s string) *float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// cell returns the trimmed value at col, or "" when the row is too short.
func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// header is cell for header rows, used only for logging.
func header(headers []string, col int) string {
	return cell(headers, col)
}

// isBlankRow reports whether every cell is empty or whitespace.
func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
