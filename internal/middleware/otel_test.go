package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"scaletrend/internal/infrastructure"
	"scaletrend/internal/shared/testutil"
)

func newTestOTelMiddleware(t *testing.T) (*OTelMiddleware, *tracetest.SpanRecorder, *testutil.BufferedSlogHandler) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		tp.Shutdown(ctx)
	})

	logger, logHandler := testutil.NewTestLogger(t)

	providers := &infrastructure.OTelProviders{
		Tracer: tp.Tracer("test"),
		Meter:  otel.Meter("test"),
		Logger: logger,
	}

	m, err := NewOTelMiddleware(providers)
	require.NoError(t, err)

	return m, recorder, logHandler
}

func TestNewOTelMiddleware(t *testing.T) {
	m, _, _ := newTestOTelMiddleware(t)
	assert.NotNil(t, m)
	assert.NotNil(t, m.businessMetrics)
}

func TestOTelMiddleware_Handler(t *testing.T) {
	m, recorder, logHandler := newTestOTelMiddleware(t)

	var handlerTraceID string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerTraceID = infrastructure.GetTraceID(r.Context())
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"abc"}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/analyze/abc", nil)
	req.Header.Set("User-Agent", "trend-client/1.0")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, handlerTraceID, 32, "handler context carries the span trace ID")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "GET /api/analyze/abc", span.Name())

	var sawStatus, sawBodySize bool
	for _, attr := range span.Attributes() {
		switch attr.Key {
		case semconv.HTTPResponseStatusCodeKey:
			sawStatus = true
			assert.EqualValues(t, http.StatusOK, attr.Value.AsInt64())
		case semconv.HTTPResponseBodySizeKey:
			sawBodySize = true
			assert.EqualValues(t, len(`{"id":"abc"}`), attr.Value.AsInt64())
		}
	}
	assert.True(t, sawStatus)
	assert.True(t, sawBodySize)

	require.True(t, logHandler.ContainsMessage("HTTP request completed"))
	assert.True(t, logHandler.ContainsAttr("trace_id", handlerTraceID))
}

func TestOTelMiddleware_Handler_ErrorStatus(t *testing.T) {
	m, recorder, logHandler := newTestOTelMiddleware(t)

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/analyze/missing", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	var completed map[string]any
	for _, record := range logHandler.GetRecords() {
		if record.Message == "HTTP request completed" {
			completed = record.Attrs
		}
	}
	require.NotNil(t, completed)
	assert.EqualValues(t, http.StatusInternalServerError, completed["status_code"])
}

func TestResponseWriter_CapturesStatusAndBytes(t *testing.T) {
	w := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: w, statusCode: 200}

	rw.WriteHeader(http.StatusAccepted)
	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusAccepted, rw.statusCode)
	assert.EqualValues(t, 5, rw.bytesWritten)
}

func TestGetRoutePattern(t *testing.T) {
	t.Run("with chi route context", func(t *testing.T) {
		var pattern string

		r := chi.NewRouter()
		r.Get("/api/analyze/{id}", func(w http.ResponseWriter, req *http.Request) {
			pattern = getRoutePattern(req)
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/api/analyze/abc-123", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "/api/analyze/{id}", pattern)
	})

	t.Run("without route context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/raw/path", nil)
		assert.Equal(t, "/raw/path", getRoutePattern(req))
	})
}

func TestTraceMiddleware(t *testing.T) {
	var called bool
	handler := TraceMiddleware("analysis.fetch")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/analyze/abc", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebSocketTraceMiddleware(t *testing.T) {
	logger, logHandler := testutil.NewTestLogger(t)

	var called bool
	handler := WebSocketTraceMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusSwitchingProtocols)
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://localhost:8080")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.True(t, called)
	require.True(t, logHandler.ContainsMessage("WebSocket upgrade attempt"))
	assert.True(t, logHandler.ContainsAttr("origin", "http://localhost:8080"))
}

func TestBusinessMetricsMiddleware(t *testing.T) {
	metrics, err := infrastructure.CreateBusinessMetrics(otel.Meter("test"))
	require.NoError(t, err)

	var fromContext *infrastructure.BusinessMetrics
	handler := BusinessMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromContext = GetBusinessMetricsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/analyze", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Same(t, metrics, fromContext)
}

func TestGetBusinessMetricsFromContext_Missing(t *testing.T) {
	assert.Nil(t, GetBusinessMetricsFromContext(context.Background()))
}

func TestAnalysisTraceHandler(t *testing.T) {
	var called bool
	handler := AnalysisTraceHandler("upload", func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRecordAnalysisStage(t *testing.T) {
	// Without a span or metrics in context this must be a no-op
	assert.NotPanics(t, func() {
		RecordAnalysisStage(context.Background(), "abc-123", "regression", 5*time.Millisecond, true)
	})

	metrics, err := infrastructure.CreateBusinessMetrics(otel.Meter("test"))
	require.NoError(t, err)
	ctx := context.WithValue(context.Background(), "business_metrics", metrics)

	assert.NotPanics(t, func() {
		RecordAnalysisStage(ctx, "abc-123", "decode", 2*time.Millisecond, false)
	})
}

func TestRecordSystemError(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordSystemError(context.Background(), "storage", "session_store")
	})

	metrics, err := infrastructure.CreateBusinessMetrics(otel.Meter("test"))
	require.NoError(t, err)
	ctx := context.WithValue(context.Background(), "business_metrics", metrics)

	assert.NotPanics(t, func() {
		RecordSystemError(ctx, "storage", "session_store")
	})
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name          string
		forwardedFor  string
		realIP        string
		remoteAddr    string
		expected      string
	}{
		{
			name:         "X-Forwarded-For wins",
			forwardedFor: "203.0.113.1",
			realIP:       "203.0.113.2",
			remoteAddr:   "10.0.0.1:1234",
			expected:     "203.0.113.1",
		},
		{
			name:       "X-Real-IP next",
			realIP:     "203.0.113.2",
			remoteAddr: "10.0.0.1:1234",
			expected:   "203.0.113.2",
		},
		{
			name:       "RemoteAddr fallback",
			remoteAddr: "10.0.0.1:1234",
			expected:   "10.0.0.1:1234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.forwardedFor)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}

			assert.Equal(t, tt.expected, GetRealIP(req))
		})
	}
}
