package errors

import (
	"errors"
	"net/http"
	"time"

	"scaletrend/internal/ingest"
)

// Analysis session errors (using errors package for sentinel errors)
var (
	ErrAnalysisNotFound = errors.New("analysis not found")
	ErrAnalysisExpired  = errors.New("analysis expired")
	ErrSessionLimit     = errors.New("session limit reached")
)

// SessionDetails provides additional context for analysis session errors
type SessionDetails struct {
	CreatedAt *time.Time `json:"created_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Weeks     int        `json:"weeks,omitempty"`
}

// NewAnalysisExpiredProblem creates an enhanced error for an expired analysis session
func NewAnalysisExpiredProblem(details *SessionDetails, instance string) *ProblemDetails {
	problem := NewProblemDetails(
		http.StatusGone,
		TypeAnalysisExpired,
		"Analysis Expired",
		"This analysis session has expired. Upload the dataset again to start a new one.",
		instance,
	)

	if details != nil {
		if details.CreatedAt != nil {
			problem.WithExtension("created_at", details.CreatedAt.Format(time.RFC3339))
		}
		if details.ExpiresAt != nil {
			problem.WithExtension("expired_at", details.ExpiresAt.Format(time.RFC3339))
		}
		if details.Weeks > 0 {
			problem.WithExtension("weeks", details.Weeks)
		}
	}

	return problem
}

// NewSessionLimitProblem creates an error for when the retained session capacity is reached
func NewSessionLimitProblem(maxSessions int, instance string) *ProblemDetails {
	problem := NewProblemDetails(
		http.StatusServiceUnavailable,
		TypeSessionLimit,
		"Too Many Retained Analyses",
		"The server is holding its maximum number of analysis sessions. Retry once older sessions expire.",
		instance,
	)

	problem.WithExtension("retry_after", 60)
	if maxSessions > 0 {
		problem.WithExtension("max_sessions", maxSessions)
	}

	return problem
}

// MapAnalysisError maps domain errors to HTTP problem details.
// Returns nil when the error is not a known analysis or ingest error.
func MapAnalysisError(err error, instance string) *ProblemDetails {
	switch {
	case errors.Is(err, ErrAnalysisNotFound):
		return NewProblemDetails(
			http.StatusNotFound,
			TypeAnalysisNotFound,
			"Analysis Not Found",
			"No analysis exists with the given id. It may have expired and been evicted.",
			instance,
		)

	case errors.Is(err, ErrAnalysisExpired):
		return NewAnalysisExpiredProblem(nil, instance)

	case errors.Is(err, ErrSessionLimit):
		return NewSessionLimitProblem(0, instance)

	case errors.Is(err, ingest.ErrMalformedInput):
		return NewProblemDetails(
			http.StatusBadRequest,
			TypeDatasetMalformed,
			"Malformed Dataset",
			"The uploaded file could not be decoded as tabular data.",
			instance,
		)

	case errors.Is(err, ingest.ErrMissingDateColumn):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeDatasetNoDateColumn,
			"No Date Column",
			"The dataset has no recognizable date column, so rows cannot be bucketed into weeks.",
			instance,
		)

	case errors.Is(err, ingest.ErrNoMeasurementColumns):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeDatasetNoMeasurements,
			"No Measurement Columns",
			"The dataset has neither a weight column nor any calorie signal to analyze.",
			instance,
		)

	default:
		return nil
	}
}
