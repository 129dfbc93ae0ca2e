// Package validation vets filesystem paths before the batch CLI commits to
// an analysis run, so path mistakes surface as one clear error instead of a
// mid-run failure.
package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FileValidator checks input and output paths for the offline pipeline.
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator.
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{logger: logger}
}

// ValidateInput checks that the input path exists and, for a plain file,
// that it is readable. Directories pass as long as they exist; their
// contents are enumerated later by discovery.
func (v *FileValidator) ValidateInput(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("Input path does not exist",
			slog.String("path", path))
		return fmt.Errorf("input path %s does not exist", path)
	}
	if err != nil {
		v.logger.Error("Failed to stat input path",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if info.IsDir() {
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("Input file is not readable",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("input file %s is not readable: %w", path, err)
	}
	file.Close()

	v.logger.Debug("Input path validated",
		slog.String("path", path),
		slog.Int64("size", info.Size()))
	return nil
}

// EnsureOutput prepares the output destination. An empty path means stdout
// and needs nothing. Otherwise the parent directory is created if missing
// and probed for writability so the run cannot fail after the analysis work
// is already done.
func (v *FileValidator) EnsureOutput(path string) error {
	if path == "" {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		v.logger.Error("Output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	file.Close()
	os.Remove(testFile)

	return nil
}
