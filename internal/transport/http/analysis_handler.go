package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "scaletrend/internal/errors"
	"scaletrend/internal/infrastructure"
	customMiddleware "scaletrend/internal/middleware"
	"scaletrend/internal/services"
	"scaletrend/internal/trend"
	v1 "scaletrend/pkg/contracts/api/v1"
	"scaletrend/pkg/contracts/domain"
)

// dateLayout is the calendar-date format accepted in form and query params.
const dateLayout = "2006-01-02"

// AnalysisHandler handles analysis-related HTTP requests with RFC 7807 compliance
type AnalysisHandler struct {
	service        AnalysisServiceInterface
	logger         *slog.Logger
	errorHandler   *apierrors.ErrorHandler
	validation     *customMiddleware.ValidationMiddleware
	maxUploadBytes int64
}

// NewAnalysisHandler creates a new analysis handler with RFC 7807 error handling
func NewAnalysisHandler(service AnalysisServiceInterface, maxUploadBytes int64, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *AnalysisHandler {
	return &AnalysisHandler{
		service:        service,
		logger:         logger.With(slog.String("component", "analysis_handler")),
		errorHandler:   errorHandler,
		validation:     customMiddleware.NewValidationMiddleware(logger, errorHandler),
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes returns the analysis routes with proper Chi patterns
func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()

	// Use render for consistent JSON responses
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.With(customMiddleware.ContentTypeValidator("multipart/form-data")).
		Post("/", customMiddleware.AnalysisTraceHandler("create", h.Analyze))

	r.Route("/{id}", func(r chi.Router) {
		r.Use(h.AnalysisCtx) // Validate the session id
		r.Get("/", customMiddleware.AnalysisTraceHandler("get", h.Get))
		r.Get("/window", customMiddleware.AnalysisTraceHandler("window", h.Window))
	})

	return r
}

// AnalysisCtx middleware validates the analysis id parameter
func (h *AnalysisHandler) AnalysisCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := uuid.Parse(id); err != nil {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("id", "Analysis id must be a UUID"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Analyze handles POST /api/analyze with a multipart dataset upload
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	if r.ContentLength > h.maxUploadBytes {
		h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
			http.StatusRequestEntityTooLarge,
			"PAYLOAD_TOO_LARGE",
			"The uploaded dataset exceeds the maximum allowed size",
			map[string]interface{}{"max_bytes": h.maxUploadBytes},
		))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		h.handleUploadError(w, r, err)
		return
	}
	defer file.Close()

	req := v1.AnalyzeRequest{
		Unit: r.FormValue("unit"),
		DateRangeRequest: v1.DateRangeRequest{
			Start: r.FormValue("start"),
			End:   r.FormValue("end"),
		},
	}
	req.EnergyFloor, req.DropEmptyRows, err = parseFilterParams(r.FormValue("energy_floor"), r.FormValue("drop_empty_rows"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	if err := h.validation.ValidateStruct(req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	opts, err := analyzeOptions(req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "analyzing uploaded dataset",
		slog.String("request_id", reqID),
		slog.String("filename", header.Filename),
		slog.Int64("size", header.Size),
		slog.String("unit", string(opts.Unit)))

	start := time.Now()
	result, err := h.service.Analyze(ctx, file, header.Filename, opts)
	if err != nil {
		customMiddleware.RecordAnalysisStage(ctx, "", "create", time.Since(start), false)

		h.logger.ErrorContext(ctx, "analysis failed",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID),
			slog.String("filename", header.Filename))

		h.errorHandler.HandleError(w, r, err)
		return
	}
	customMiddleware.RecordAnalysisStage(ctx, result.ID, "create", time.Since(start), true)

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("analysis.id", result.ID),
		attribute.Int("analysis.weeks", result.Summary.Meta.Weeks),
		attribute.String("analysis.unit", string(result.Summary.DetectedUnit)),
	)

	w.Header().Set("Location", r.URL.Path+"/"+result.ID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, v1.AnalyzeResponse{
		AnalysisID: result.ID,
		Summary:    result.Summary,
	})
}

// Get handles GET /api/analyze/{id}, the session's default view
func (h *AnalysisHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	summary, err := h.service.Get(ctx, id)
	if err != nil {
		h.handleSessionError(w, r, id, err)
		return
	}

	render.JSON(w, r, summary)
}

// Window handles GET /api/analyze/{id}/window with start/end query bounds
func (h *AnalysisHandler) Window(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	req := v1.WindowRequest{
		AnalysisID: id,
		DateRangeRequest: v1.DateRangeRequest{
			Start: r.URL.Query().Get("start"),
			End:   r.URL.Query().Get("end"),
		},
	}
	if err := h.validation.ValidateStruct(req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	window, err := parseWindow(req.Start, req.End)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	start := time.Now()
	summary, err := h.service.Window(ctx, id, window)
	customMiddleware.RecordAnalysisStage(ctx, id, "refilter", time.Since(start), err == nil)
	if err != nil {
		h.handleSessionError(w, r, id, err)
		return
	}

	infrastructure.RecordWindowQuery(ctx, customMiddleware.GetBusinessMetricsFromContext(ctx), "http")

	render.JSON(w, r, summary)
}

// handleUploadError maps multipart failures onto problem responses.
func (h *AnalysisHandler) handleUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &maxBytesErr):
		h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
			http.StatusRequestEntityTooLarge,
			"PAYLOAD_TOO_LARGE",
			"The uploaded dataset exceeds the maximum allowed size",
			map[string]interface{}{"max_bytes": h.maxUploadBytes},
		))

	case errors.Is(err, http.ErrMissingFile):
		h.errorHandler.HandleError(w, r, apierrors.New(
			http.StatusBadRequest,
			"MISSING_FILE",
			"The multipart form must carry the dataset in a 'file' part",
		))

	default:
		h.logger.WarnContext(r.Context(), "unreadable multipart upload",
			slog.String("error", err.Error()))

		h.errorHandler.HandleError(w, r, apierrors.New(
			http.StatusBadRequest,
			"INVALID_MULTIPART",
			"The request body could not be read as a multipart form",
		))
	}
}

// handleSessionError enriches expired-session responses with retention
// metadata before falling back to the shared error mapping.
func (h *AnalysisHandler) handleSessionError(w http.ResponseWriter, r *http.Request, id string, err error) {
	reqID := middleware.GetReqID(r.Context())

	h.logger.WarnContext(r.Context(), "analysis lookup failed",
		slog.String("analysis_id", id),
		slog.String("error", err.Error()),
		slog.String("request_id", reqID))

	if errors.Is(err, apierrors.ErrAnalysisExpired) {
		var details *apierrors.SessionDetails
		if info, infoErr := h.service.Info(id); infoErr == nil {
			details = &apierrors.SessionDetails{
				CreatedAt: &info.CreatedAt,
				ExpiresAt: &info.ExpiresAt,
				Weeks:     info.Weeks,
			}
		}

		problem := apierrors.NewAnalysisExpiredProblem(details, r.URL.Path)
		problem.WithExtension("trace_id", reqID)
		render.Render(w, r, problem)
		return
	}

	h.errorHandler.HandleError(w, r, err)
}

// analyzeOptions converts a validated request into engine options.
func analyzeOptions(req v1.AnalyzeRequest) (services.AnalyzeOptions, error) {
	unit, err := domain.ParseWeightUnit(req.Unit)
	if err != nil {
		return services.AnalyzeOptions{}, apierrors.ErrValidation("unit", "Unit must be auto, kg, or lb")
	}

	window, err := parseWindow(req.Start, req.End)
	if err != nil {
		return services.AnalyzeOptions{}, err
	}

	return services.AnalyzeOptions{
		Unit:          unit,
		Start:         window.Start,
		End:           window.End,
		EnergyFloor:   req.EnergyFloor,
		DropEmptyRows: req.DropEmptyRows,
	}, nil
}

// parseFilterParams parses the optional incomplete-day filter form values.
func parseFilterParams(floorValue, dropValue string) (float64, bool, error) {
	var floor float64
	var drop bool

	if floorValue != "" {
		parsed, err := strconv.ParseFloat(floorValue, 64)
		if err != nil {
			return 0, false, apierrors.ErrValidation("energy_floor", "Energy floor must be a number")
		}
		floor = parsed
	}

	if dropValue != "" {
		parsed, err := strconv.ParseBool(dropValue)
		if err != nil {
			return 0, false, apierrors.ErrValidation("drop_empty_rows", "Drop-empty-rows must be a boolean")
		}
		drop = parsed
	}

	return floor, drop, nil
}

// parseWindow builds a bucket filter from optional ISO date strings.
func parseWindow(startValue, endValue string) (trend.Window, error) {
	var window trend.Window

	if startValue != "" {
		start, err := time.Parse(dateLayout, startValue)
		if err != nil {
			return trend.Window{}, apierrors.ErrValidation("start", "Start must be an ISO date (YYYY-MM-DD)")
		}
		window.Start = &start
	}

	if endValue != "" {
		end, err := time.Parse(dateLayout, endValue)
		if err != nil {
			return trend.Window{}, apierrors.ErrValidation("end", "End must be an ISO date (YYYY-MM-DD)")
		}
		window.End = &end
	}

	return window, nil
}
