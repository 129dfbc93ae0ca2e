// Package api contains API contract definitions for the ScaleTrend service.
// Version v1 represents the current stable API version.
package api

// DateRangeRequest represents an inclusive calendar-date window in requests.
type DateRangeRequest struct {
	Start string `json:"start" query:"start" validate:"omitempty,datetime=2006-01-02"`
	End   string `json:"end" query:"end" validate:"omitempty,datetime=2006-01-02"`
}

// Analysis API Requests

// AnalyzeRequest represents the parameters accompanying an uploaded dataset.
// The tabular payload itself travels as the multipart "file" part.
type AnalyzeRequest struct {
	// Unit is the weight-unit directive; auto defers to the detector.
	Unit string `json:"unit" query:"unit" validate:"omitempty,oneof=auto kg lb"`
	// Start and End optionally pre-filter the analysis window.
	DateRangeRequest
	// EnergyFloor drops days whose logged energy is below the given kcal
	// value as incomplete. Zero disables the filter.
	EnergyFloor float64 `json:"energy_floor" query:"energy_floor" validate:"omitempty,min=0"`
	// DropEmptyRows removes valid-date rows carrying neither measurement.
	DropEmptyRows bool `json:"drop_empty_rows" query:"drop_empty_rows"`
}

// WindowRequest represents a re-filter of a previously analyzed dataset.
type WindowRequest struct {
	AnalysisID string `json:"analysis_id" param:"id" validate:"required,uuid"`
	DateRangeRequest
}

// WebSocket API Requests

// WindowSubscribeRequest is the client-to-server message on the window
// socket: each message selects new bounds for an existing analysis.
type WindowSubscribeRequest struct {
	AnalysisID string `json:"analysis_id" validate:"required,uuid"`
	Start      string `json:"start" validate:"omitempty,datetime=2006-01-02"`
	End        string `json:"end" validate:"omitempty,datetime=2006-01-02"`
}

// Health API Requests

// HealthCheckRequest represents a health check request.
type HealthCheckRequest struct {
	Verbose bool `json:"verbose" query:"verbose"`
}
