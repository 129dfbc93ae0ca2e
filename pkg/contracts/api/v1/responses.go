package api

import "scaletrend/pkg/contracts/domain"

// AnalyzeResponse is the envelope returned when an uploaded dataset has been
// analyzed and retained. The id addresses the session for later window queries.
type AnalyzeResponse struct {
	AnalysisID string          `json:"analysis_id"`
	Summary    *domain.Summary `json:"summary"`
}
