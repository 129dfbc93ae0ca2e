package http

import (
	"context"
	"io"

	"scaletrend/internal/services"
	"scaletrend/internal/trend"
	"scaletrend/pkg/contracts/domain"
)

// AnalysisServiceInterface defines the interface for analysis operations
type AnalysisServiceInterface interface {
	Analyze(ctx context.Context, r io.Reader, filename string, opts services.AnalyzeOptions) (*services.AnalysisResult, error)
	Get(ctx context.Context, id string) (*domain.Summary, error)
	Window(ctx context.Context, id string, window trend.Window) (*domain.Summary, error)
	Info(id string) (*services.SessionInfo, error)
}
