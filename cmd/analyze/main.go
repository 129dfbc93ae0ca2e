package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"scaletrend/internal/exporter"
	"scaletrend/internal/files"
	"scaletrend/internal/ingest"
	"scaletrend/internal/trend"
	"scaletrend/internal/validation"
	"scaletrend/pkg/contracts"
	"scaletrend/pkg/contracts/domain"
)

const dateLayout = "2006-01-02"

// batchOptions carries the analysis knobs shared by every input file.
type batchOptions struct {
	unit          domain.WeightUnit
	window        trend.Window
	energyFloor   float64
	dropEmptyRows bool
}

func main() {
	in := flag.String("in", "", "input CSV/XLSX file or directory (required)")
	unit := flag.String("unit", "auto", "weight unit: auto | kg | lb")
	start := flag.String("start", "", "window start date (YYYY-MM-DD, inclusive)")
	end := flag.String("end", "", "window end date (YYYY-MM-DD, inclusive)")
	format := flag.String("format", "json", "output format: json | csv")
	out := flag.String("out", "", "output file path (defaults to stdout)")
	energyFloor := flag.Float64("energy-floor", 0, "drop rows whose logged energy is below this many kcal")
	dropEmpty := flag.Bool("drop-empty-rows", false, "drop rows carrying neither weight nor energy")
	verbose := flag.Bool("v", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(contracts.GetFullVersionString())
		return
	}

	// Results go to stdout, so the logger writes to stderr.
	logger := newLogger(*verbose)

	if *in == "" {
		fmt.Fprintln(os.Stderr, "missing required -in flag")
		flag.Usage()
		os.Exit(2)
	}

	if *format != "json" && *format != "csv" {
		logger.Error("Unknown output format", slog.String("format", *format))
		os.Exit(2)
	}

	opts, err := buildOptions(*unit, *start, *end, *energyFloor, *dropEmpty)
	if err != nil {
		logger.Error("Invalid flags", slog.String("error", err.Error()))
		os.Exit(2)
	}

	validator := validation.NewFileValidator(logger)
	if err := validator.ValidateInput(*in); err != nil {
		logger.Error("Invalid input path", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := validator.EnsureOutput(*out); err != nil {
		logger.Error("Invalid output path", slog.String("error", err.Error()))
		os.Exit(1)
	}

	inputs, err := collectInputs(*in)
	if err != nil {
		logger.Error("Failed to collect inputs",
			slog.String("in", *in),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	if len(inputs) == 0 {
		logger.Error("No CSV or XLSX files found", slog.String("in", *in))
		os.Exit(1)
	}

	logger.Info("Starting batch analysis",
		slog.Int("files", len(inputs)),
		slog.String("unit", string(opts.unit)),
		slog.String("format", *format))

	ctx := context.Background()
	results := make([]*exporter.FileSummary, len(inputs))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range inputs {
		i, path := i, path
		g.Go(func() error {
			summary, err := analyzeFile(ctx, logger, path, opts)
			if err != nil {
				logger.Error("Analysis failed",
					slog.String("file", filepath.Base(path)),
					slog.String("error", err.Error()))
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			results[i] = &exporter.FileSummary{Source: filepath.Base(path), Summary: summary}
			return nil
		})
	}
	runErr := g.Wait()

	// Write whatever succeeded even when some files failed.
	emitted := make([]exporter.FileSummary, 0, len(results))
	for _, r := range results {
		if r != nil {
			emitted = append(emitted, *r)
		}
	}

	if err := writeResults(*out, *format, emitted); err != nil {
		logger.Error("Failed to write results", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Batch analysis complete",
		slog.Int("analyzed", len(emitted)),
		slog.Int("failed", len(inputs)-len(emitted)))

	if runErr != nil {
		os.Exit(1)
	}
}

// newLogger builds a stderr text logger so stdout stays clean for results.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildOptions validates the flag values and assembles the shared analysis options.
func buildOptions(unit, start, end string, energyFloor float64, dropEmpty bool) (batchOptions, error) {
	parsedUnit, err := domain.ParseWeightUnit(unit)
	if err != nil {
		return batchOptions{}, err
	}

	var window trend.Window
	if start != "" {
		t, err := time.Parse(dateLayout, start)
		if err != nil {
			return batchOptions{}, fmt.Errorf("invalid -start %q (want YYYY-MM-DD)", start)
		}
		window.Start = &t
	}
	if end != "" {
		t, err := time.Parse(dateLayout, end)
		if err != nil {
			return batchOptions{}, fmt.Errorf("invalid -end %q (want YYYY-MM-DD)", end)
		}
		window.End = &t
	}
	if window.Start != nil && window.End != nil && window.End.Before(*window.Start) {
		return batchOptions{}, fmt.Errorf("-end %s is before -start %s", end, start)
	}

	if energyFloor < 0 {
		return batchOptions{}, fmt.Errorf("-energy-floor must not be negative")
	}

	return batchOptions{
		unit:          parsedUnit,
		window:        window,
		energyFloor:   energyFloor,
		dropEmptyRows: dropEmpty,
	}, nil
}

// collectInputs expands -in into the list of files to analyze. A directory
// contributes every CSV/XLSX file directly inside it, sorted by name.
// An explicit file path is taken as-is regardless of extension.
func collectInputs(in string) ([]string, error) {
	info, err := os.Stat(in)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return []string{in}, nil
	}

	found, err := files.FindAnalyzable(in)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(found))
	for _, f := range found {
		paths = append(paths, f.Path)
	}
	return paths, nil
}

// analyzeFile runs the ingest and trend pipeline over a single input file.
func analyzeFile(ctx context.Context, logger *slog.Logger, path string, opts batchOptions) (*domain.Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	table, err := ingest.Decode(f, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	normalizerConfig := ingest.DefaultNormalizerConfig()
	normalizerConfig.EnergyFloor = opts.energyFloor
	normalizerConfig.DropEmptyRows = opts.dropEmptyRows

	dataset, err := ingest.NewNormalizer(logger, normalizerConfig).Normalize(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	analyzer := trend.NewAnalyzer(logger)
	state := analyzer.Analyze(ctx, dataset, trend.Options{Unit: opts.unit, Window: opts.window})
	return analyzer.Summarize(ctx, state, opts.window), nil
}

// writeResults renders the collected summaries to the output path or stdout.
func writeResults(outPath, format string, results []exporter.FileSummary) error {
	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", outPath, err)
		}
		defer f.Close()
		w = f
	}

	if format == "csv" {
		return exporter.WriteCSV(w, results)
	}
	return exporter.WriteJSON(w, results)
}
