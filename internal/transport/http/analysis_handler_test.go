package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "scaletrend/internal/errors"
	"scaletrend/internal/ingest"
	"scaletrend/internal/services"
	"scaletrend/internal/trend"
	"scaletrend/pkg/contracts/domain"
)

// MockAnalysisService implements AnalysisServiceInterface for handler tests
type MockAnalysisService struct {
	mock.Mock
}

func (m *MockAnalysisService) Analyze(ctx context.Context, r io.Reader, filename string, opts services.AnalyzeOptions) (*services.AnalysisResult, error) {
	args := m.Called(ctx, r, filename, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AnalysisResult), args.Error(1)
}

func (m *MockAnalysisService) Get(ctx context.Context, id string) (*domain.Summary, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Summary), args.Error(1)
}

func (m *MockAnalysisService) Window(ctx context.Context, id string, window trend.Window) (*domain.Summary, error) {
	args := m.Called(ctx, id, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Summary), args.Error(1)
}

func (m *MockAnalysisService) Info(id string) (*services.SessionInfo, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SessionInfo), args.Error(1)
}

const testMaxUploadBytes = 1 << 20

func newTestRouter(service AnalysisServiceInterface, maxUploadBytes int64) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewAnalysisHandler(service, maxUploadBytes, logger, apierrors.NewErrorHandler(logger, false))

	r := chi.NewRouter()
	r.Mount("/api/analyze", handler.Routes())
	return r
}

// multipartUpload builds a multipart body with a single file part plus form fields.
func multipartUpload(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	return &buf, w.FormDataContentType()
}

func floatPtr(v float64) *float64 { return &v }

func sampleSummary() *domain.Summary {
	return &domain.Summary{
		Buckets: []domain.WeekBucket{
			{Week: "2024-W01", AvgWeight: floatPtr(80.0), AvgWeightKG: floatPtr(80.0), AvgEnergy: floatPtr(2000), SampleCount: 2},
			{Week: "2024-W02", AvgWeight: floatPtr(79.5), AvgWeightKG: floatPtr(79.5), AvgEnergy: floatPtr(1950), SampleCount: 1},
		},
		Regression: domain.RegressionResult{
			SlopeKGPerWeek: floatPtr(-0.5),
			InterceptKG:    floatPtr(80.0),
		},
		EstDailyChange:          floatPtr(-550.0),
		OverallAvgEnergy:        floatPtr(1975.0),
		EstimatedMaintenance:    floatPtr(2525.0),
		PredictedWeightIn4Weeks: []*float64{floatPtr(77.5), floatPtr(77.0)},
		DetectedUnit:            domain.UnitKilograms,
		Meta: domain.SummaryMeta{
			RowsTotal:    3,
			RowsValid:    3,
			Weeks:        2,
			EnergySource: domain.EnergySourceColumn,
			GeneratedAt:  time.Now().UTC(),
		},
	}
}

func decodeJSON(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &response))
	return response
}

func TestAnalysisHandler_Analyze(t *testing.T) {
	analysisID := uuid.NewString()
	mockService := &MockAnalysisService{}
	mockService.On("Analyze", mock.Anything, mock.Anything, "weights.csv", mock.MatchedBy(func(opts services.AnalyzeOptions) bool {
		return opts.Unit == domain.UnitPounds &&
			opts.Start != nil && opts.Start.Equal(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)) &&
			opts.End == nil &&
			opts.EnergyFloor == 800 &&
			opts.DropEmptyRows
	})).Return(&services.AnalysisResult{ID: analysisID, Summary: sampleSummary()}, nil)

	router := newTestRouter(mockService, testMaxUploadBytes)

	body, contentType := multipartUpload(t, "weights.csv", "Date,Weight\n2024-01-08,176.0\n", map[string]string{
		"unit":            "lb",
		"start":           "2024-01-08",
		"energy_floor":    "800",
		"drop_empty_rows": "true",
	})
	req := httptest.NewRequest("POST", "/api/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/api/analyze/"+analysisID, rec.Header().Get("Location"))

	response := decodeJSON(t, rec.Body.Bytes())
	assert.Equal(t, analysisID, response["analysis_id"])

	summary, ok := response["summary"].(map[string]interface{})
	require.True(t, ok, "summary should be an object")
	assert.Equal(t, "kg", summary["detected_unit"])

	buckets, ok := summary["buckets"].([]interface{})
	require.True(t, ok, "buckets should be an array")
	assert.Len(t, buckets, 2)

	mockService.AssertExpectations(t)
}

func TestAnalysisHandler_Analyze_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		fields      map[string]string
		wantField   string
		wantMessage string
	}{
		{
			name:        "unknown unit",
			fields:      map[string]string{"unit": "stone"},
			wantField:   "unit",
			wantMessage: "unit must be one of: auto, kg, lb",
		},
		{
			name:        "malformed start date",
			fields:      map[string]string{"start": "01/08/2024"},
			wantField:   "start",
			wantMessage: "start must be a calendar date like 2006-01-02",
		},
		{
			name:        "malformed end date",
			fields:      map[string]string{"end": "Jan 31"},
			wantField:   "end",
			wantMessage: "end must be a calendar date like 2006-01-02",
		},
		{
			name:        "negative energy floor",
			fields:      map[string]string{"energy_floor": "-100"},
			wantField:   "energy_floor",
			wantMessage: "energy_floor must be at least 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockAnalysisService{}
			router := newTestRouter(mockService, testMaxUploadBytes)

			body, contentType := multipartUpload(t, "weights.csv", "Date,Weight\n2024-01-08,80\n", tt.fields)
			req := httptest.NewRequest("POST", "/api/analyze", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)

			response := decodeJSON(t, rec.Body.Bytes())
			assert.Equal(t, "VALIDATION_FAILED", response["error_code"])

			errs := validationErrorList(t, response)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.wantField, errs[0]["field"])
			assert.Equal(t, tt.wantMessage, errs[0]["message"])

			mockService.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}

	t.Run("multiple failures reported together", func(t *testing.T) {
		mockService := &MockAnalysisService{}
		router := newTestRouter(mockService, testMaxUploadBytes)

		body, contentType := multipartUpload(t, "weights.csv", "Date,Weight\n2024-01-08,80\n", map[string]string{
			"unit":  "stone",
			"start": "01/08/2024",
		})
		req := httptest.NewRequest("POST", "/api/analyze", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		errs := validationErrorList(t, decodeJSON(t, rec.Body.Bytes()))
		require.Len(t, errs, 2)
		assert.Equal(t, "unit", errs[0]["field"])
		assert.Equal(t, "start", errs[1]["field"])
	})
}

// validationErrorList digs the per-field failures out of a problem response.
func validationErrorList(t *testing.T, response map[string]interface{}) []map[string]interface{} {
	t.Helper()

	details, ok := response["details"].(map[string]interface{})
	require.True(t, ok, "details should carry the failing fields")
	raw, ok := details["errors"].([]interface{})
	require.True(t, ok, "details should hold an errors array")

	errs := make([]map[string]interface{}, len(raw))
	for i, e := range raw {
		entry, ok := e.(map[string]interface{})
		require.True(t, ok, "each entry should be an object")
		errs[i] = entry
	}
	return errs
}

func TestAnalysisHandler_Analyze_UnparseableFilterParams(t *testing.T) {
	tests := []struct {
		name      string
		fields    map[string]string
		wantField string
	}{
		{
			name:      "non-numeric energy floor",
			fields:    map[string]string{"energy_floor": "lots"},
			wantField: "energy_floor",
		},
		{
			name:      "non-boolean drop flag",
			fields:    map[string]string{"drop_empty_rows": "maybe"},
			wantField: "drop_empty_rows",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockAnalysisService{}
			router := newTestRouter(mockService, testMaxUploadBytes)

			body, contentType := multipartUpload(t, "weights.csv", "Date,Weight\n2024-01-08,80\n", tt.fields)
			req := httptest.NewRequest("POST", "/api/analyze", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)

			response := decodeJSON(t, rec.Body.Bytes())
			assert.Equal(t, "VALIDATION_FAILED", response["error_code"])

			details, ok := response["details"].(map[string]interface{})
			require.True(t, ok, "details should carry the failing field")
			assert.Equal(t, tt.wantField, details["field"])

			mockService.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestAnalysisHandler_Analyze_ContentType(t *testing.T) {
	t.Run("missing content type", func(t *testing.T) {
		mockService := &MockAnalysisService{}
		router := newTestRouter(mockService, testMaxUploadBytes)

		req := httptest.NewRequest("POST", "/api/analyze", nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		response := decodeJSON(t, rec.Body.Bytes())
		assert.Equal(t, "MISSING_CONTENT_TYPE", response["error_code"])
	})

	t.Run("non-multipart content type", func(t *testing.T) {
		mockService := &MockAnalysisService{}
		router := newTestRouter(mockService, testMaxUploadBytes)

		req := httptest.NewRequest("POST", "/api/analyze", strings.NewReader("Date,Weight\n2024-01-08,80\n"))
		req.Header.Set("Content-Type", "text/csv")
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

		response := decodeJSON(t, rec.Body.Bytes())
		assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", response["error_code"])

		mockService.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAnalysisHandler_Analyze_MissingFile(t *testing.T) {
	mockService := &MockAnalysisService{}
	router := newTestRouter(mockService, testMaxUploadBytes)

	body, contentType := multipartUpload(t, "", "", map[string]string{"unit": "kg"})
	req := httptest.NewRequest("POST", "/api/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	response := decodeJSON(t, rec.Body.Bytes())
	assert.Equal(t, "MISSING_FILE", response["error_code"])

	mockService.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalysisHandler_Analyze_InvalidMultipart(t *testing.T) {
	mockService := &MockAnalysisService{}
	router := newTestRouter(mockService, testMaxUploadBytes)

	req := httptest.NewRequest("POST", "/api/analyze", strings.NewReader("this is not a multipart body"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=missing")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	response := decodeJSON(t, rec.Body.Bytes())
	assert.Equal(t, "INVALID_MULTIPART", response["error_code"])
}

func TestAnalysisHandler_Analyze_PayloadTooLarge(t *testing.T) {
	mockService := &MockAnalysisService{}
	router := newTestRouter(mockService, 64)

	body, contentType := multipartUpload(t, "weights.csv", strings.Repeat("2024-01-08,80.0\n", 50), nil)
	req := httptest.NewRequest("POST", "/api/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	response := decodeJSON(t, rec.Body.Bytes())
	assert.Equal(t, "PAYLOAD_TOO_LARGE", response["error_code"])

	details, ok := response["details"].(map[string]interface{})
	require.True(t, ok, "details should carry the size limit")
	assert.Equal(t, float64(64), details["max_bytes"])

	mockService.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalysisHandler_Analyze_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{
			name:       "malformed dataset",
			serviceErr: fmt.Errorf("decode weights.csv: %w", ingest.ErrMalformedInput),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no date column",
			serviceErr: fmt.Errorf("normalize weights.csv: %w", ingest.ErrMissingDateColumn),
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "no measurement columns",
			serviceErr: fmt.Errorf("normalize weights.csv: %w", ingest.ErrNoMeasurementColumns),
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "session capacity reached",
			serviceErr: fmt.Errorf("8 retained analyses: %w", apierrors.ErrSessionLimit),
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "unexpected engine failure",
			serviceErr: errors.New("regression blew up"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockAnalysisService{}
			mockService.On("Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(nil, tt.serviceErr)
			router := newTestRouter(mockService, testMaxUploadBytes)

			body, contentType := multipartUpload(t, "weights.csv", "Date,Weight\n2024-01-08,80\n", nil)
			req := httptest.NewRequest("POST", "/api/analyze", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			response := decodeJSON(t, rec.Body.Bytes())
			assert.Equal(t, float64(tt.wantStatus), response["status"])
			assert.Contains(t, response, "type")
			assert.Contains(t, response, "title")
		})
	}
}

func TestAnalysisHandler_Get(t *testing.T) {
	analysisID := uuid.NewString()
	mockService := &MockAnalysisService{}
	mockService.On("Get", mock.Anything, analysisID).Return(sampleSummary(), nil)
	router := newTestRouter(mockService, testMaxUploadBytes)

	req := httptest.NewRequest("GET", "/api/analyze/"+analysisID, nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	response := decodeJSON(t, rec.Body.Bytes())
	assert.Equal(t, "kg", response["detected_unit"])

	meta, ok := response["meta"].(map[string]interface{})
	require.True(t, ok, "meta should be an object")
	assert.Equal(t, float64(2), meta["weeks"])

	mockService.AssertExpectations(t)
}

func TestAnalysisHandler_Get_NotFound(t *testing.T) {
	analysisID := uuid.NewString()
	mockService := &MockAnalysisService{}
	mockService.On("Get", mock.Anything, analysisID).
		Return(nil, fmt.Errorf("analysis %s: %w", analysisID, apierrors.ErrAnalysisNotFound))
	router := newTestRouter(mockService, testMaxUploadBytes)

	req := httptest.NewRequest("GET", "/api/analyze/"+analysisID, nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	response := decodeJSON(t, rec.Body.Bytes())
	assert.Equal(t, float64(http.StatusNotFound), response["status"])
	assert.Equal(t, "Analysis Not Found", response["title"])
}

func TestAnalysisHandler_Get_InvalidID(t *testing.T) {
	mockService := &MockAnalysisService{}
	router := newTestRouter(mockService, testMaxUploadBytes)

	req := httptest.NewRequest("GET", "/api/analyze/not-a-uuid", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	response := decodeJSON(t, rec.Body.Bytes())
	assert.Equal(t, "VALIDATION_FAILED", response["error_code"])

	mockService.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestAnalysisHandler_Get_Expired(t *testing.T) {
	analysisID := uuid.NewString()
	createdAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	expiresAt := createdAt.Add(30 * time.Minute)

	t.Run("with retention metadata", func(t *testing.T) {
		mockService := &MockAnalysisService{}
		mockService.On("Get", mock.Anything, analysisID).
			Return(nil, fmt.Errorf("analysis %s: %w", analysisID, apierrors.ErrAnalysisExpired))
		mockService.On("Info", analysisID).
			Return(&services.SessionInfo{ID: analysisID, CreatedAt: createdAt, ExpiresAt: expiresAt, Weeks: 4}, nil)
		router := newTestRouter(mockService, testMaxUploadBytes)

		req := httptest.NewRequest("GET", "/api/analyze/"+analysisID, nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusGone, rec.Code)

		response := decodeJSON(t, rec.Body.Bytes())
		assert.Equal(t, "Analysis Expired", response["title"])
		assert.Equal(t, createdAt.Format(time.RFC3339), response["created_at"])
		assert.Equal(t, expiresAt.Format(time.RFC3339), response["expired_at"])
		assert.Equal(t, float64(4), response["weeks"])

		mockService.AssertExpectations(t)
	})

	t.Run("metadata already evicted", func(t *testing.T) {
		mockService := &MockAnalysisService{}
		mockService.On("Get", mock.Anything, analysisID).
			Return(nil, fmt.Errorf("analysis %s: %w", analysisID, apierrors.ErrAnalysisExpired))
		mockService.On("Info", analysisID).
			Return(nil, fmt.Errorf("analysis %s: %w", analysisID, apierrors.ErrAnalysisNotFound))
		router := newTestRouter(mockService, testMaxUploadBytes)

		req := httptest.NewRequest("GET", "/api/analyze/"+analysisID, nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusGone, rec.Code)

		response := decodeJSON(t, rec.Body.Bytes())
		assert.Equal(t, "Analysis Expired", response["title"])
		assert.NotContains(t, response, "created_at")
	})
}

func TestAnalysisHandler_Window(t *testing.T) {
	analysisID := uuid.NewString()

	t.Run("bounded window", func(t *testing.T) {
		mockService := &MockAnalysisService{}
		mockService.On("Window", mock.Anything, analysisID, mock.MatchedBy(func(w trend.Window) bool {
			return w.Start != nil && w.Start.Equal(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)) &&
				w.End != nil && w.End.Equal(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
		})).Return(sampleSummary(), nil)
		router := newTestRouter(mockService, testMaxUploadBytes)

		req := httptest.NewRequest("GET", "/api/analyze/"+analysisID+"/window?start=2024-01-08&end=2024-01-31", nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		response := decodeJSON(t, rec.Body.Bytes())
		buckets, ok := response["buckets"].([]interface{})
		require.True(t, ok, "buckets should be an array")
		assert.Len(t, buckets, 2)

		mockService.AssertExpectations(t)
	})

	t.Run("open window", func(t *testing.T) {
		mockService := &MockAnalysisService{}
		mockService.On("Window", mock.Anything, analysisID, mock.MatchedBy(func(w trend.Window) bool {
			return w.Start == nil && w.End == nil
		})).Return(sampleSummary(), nil)
		router := newTestRouter(mockService, testMaxUploadBytes)

		req := httptest.NewRequest("GET", "/api/analyze/"+analysisID+"/window", nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("malformed start bound", func(t *testing.T) {
		mockService := &MockAnalysisService{}
		router := newTestRouter(mockService, testMaxUploadBytes)

		req := httptest.NewRequest("GET", "/api/analyze/"+analysisID+"/window?start=last-tuesday", nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		response := decodeJSON(t, rec.Body.Bytes())
		assert.Equal(t, "VALIDATION_FAILED", response["error_code"])

		mockService.AssertNotCalled(t, "Window", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown analysis", func(t *testing.T) {
		mockService := &MockAnalysisService{}
		mockService.On("Window", mock.Anything, analysisID, mock.Anything).
			Return(nil, fmt.Errorf("analysis %s: %w", analysisID, apierrors.ErrAnalysisNotFound))
		router := newTestRouter(mockService, testMaxUploadBytes)

		req := httptest.NewRequest("GET", "/api/analyze/"+analysisID+"/window", nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
