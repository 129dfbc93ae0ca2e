package websocket

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "scaletrend.websocket"
)

// OTelMetrics provides OpenTelemetry metrics for the window socket
type OTelMetrics struct {
	// Connection metrics
	connectionsTotal   metric.Int64Counter
	connectionsActive  metric.Int64UpDownCounter
	connectionDuration metric.Float64Histogram
	connectionErrors   metric.Int64Counter

	// Frame metrics
	framesTotal metric.Int64Counter
	frameBytes  metric.Int64Counter
	frameErrors metric.Int64Counter

	// Window refilter metrics
	windowRefilters       metric.Int64Counter
	windowRefilterLatency metric.Float64Histogram

	// Hub metrics
	droppedFrames metric.Int64Counter
	clientCount   metric.Int64Gauge
}

// NewOTelMetrics creates a new OpenTelemetry metrics instance
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter(meterName)

	connectionsTotal, err := meter.Int64Counter(
		"websocket_connections_total",
		metric.WithDescription("Total number of WebSocket connections"),
	)
	if err != nil {
		return nil, err
	}

	connectionsActive, err := meter.Int64UpDownCounter(
		"websocket_connections_active",
		metric.WithDescription("Number of active WebSocket connections"),
	)
	if err != nil {
		return nil, err
	}

	connectionDuration, err := meter.Float64Histogram(
		"websocket_connection_duration_seconds",
		metric.WithDescription("Duration of WebSocket connections"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	connectionErrors, err := meter.Int64Counter(
		"websocket_connection_errors_total",
		metric.WithDescription("Total number of WebSocket connection errors"),
	)
	if err != nil {
		return nil, err
	}

	framesTotal, err := meter.Int64Counter(
		"websocket_frames_total",
		metric.WithDescription("Total number of protocol frames"),
	)
	if err != nil {
		return nil, err
	}

	frameBytes, err := meter.Int64Counter(
		"websocket_frame_bytes_total",
		metric.WithDescription("Total bytes of protocol frames"),
	)
	if err != nil {
		return nil, err
	}

	frameErrors, err := meter.Int64Counter(
		"websocket_frame_errors_total",
		metric.WithDescription("Total number of malformed or failed frames"),
	)
	if err != nil {
		return nil, err
	}

	windowRefilters, err := meter.Int64Counter(
		"websocket_window_refilters_total",
		metric.WithDescription("Total number of window refilters served over the socket"),
	)
	if err != nil {
		return nil, err
	}

	windowRefilterLatency, err := meter.Float64Histogram(
		"websocket_window_refilter_duration_seconds",
		metric.WithDescription("Latency of window refilters served over the socket"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	droppedFrames, err := meter.Int64Counter(
		"websocket_dropped_frames_total",
		metric.WithDescription("Total number of frames dropped due to full client buffers"),
	)
	if err != nil {
		return nil, err
	}

	clientCount, err := meter.Int64Gauge(
		"websocket_client_count",
		metric.WithDescription("Current number of connected WebSocket clients"),
	)
	if err != nil {
		return nil, err
	}

	return &OTelMetrics{
		connectionsTotal:      connectionsTotal,
		connectionsActive:     connectionsActive,
		connectionDuration:    connectionDuration,
		connectionErrors:      connectionErrors,
		framesTotal:           framesTotal,
		frameBytes:            frameBytes,
		frameErrors:           frameErrors,
		windowRefilters:       windowRefilters,
		windowRefilterLatency: windowRefilterLatency,
		droppedFrames:         droppedFrames,
		clientCount:           clientCount,
	}, nil
}

// Connection Metrics

// RecordConnection records a new WebSocket connection
func (m *OTelMetrics) RecordConnection(ctx context.Context, clientID, remoteAddr string) {
	attrs := []attribute.KeyValue{
		attribute.String("client_id", clientID),
		attribute.String("remote_addr", remoteAddr),
	}

	m.connectionsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.connectionsActive.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDisconnection records a WebSocket disconnection
func (m *OTelMetrics) RecordDisconnection(ctx context.Context, clientID string, duration time.Duration, reason string) {
	attrs := []attribute.KeyValue{
		attribute.String("client_id", clientID),
		attribute.String("disconnect_reason", reason),
	}

	m.connectionsActive.Add(ctx, -1, metric.WithAttributes(attrs...))
	m.connectionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordConnectionError records a WebSocket connection error
func (m *OTelMetrics) RecordConnectionError(ctx context.Context, clientID, errorType string, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("client_id", clientID),
		attribute.String("error_type", errorType),
		attribute.String("error", err.Error()),
	}

	m.connectionErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Frame Metrics

// RecordFrameSent records a sent protocol frame
func (m *OTelMetrics) RecordFrameSent(ctx context.Context, frameType, clientID string, size int64) {
	attrs := []attribute.KeyValue{
		attribute.String("direction", "outbound"),
		attribute.String("frame_type", frameType),
		attribute.String("client_id", clientID),
	}

	m.framesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.frameBytes.Add(ctx, size, metric.WithAttributes(attrs...))
}

// RecordFrameReceived records a received protocol frame
func (m *OTelMetrics) RecordFrameReceived(ctx context.Context, frameType, clientID string, size int64) {
	attrs := []attribute.KeyValue{
		attribute.String("direction", "inbound"),
		attribute.String("frame_type", frameType),
		attribute.String("client_id", clientID),
	}

	m.framesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.frameBytes.Add(ctx, size, metric.WithAttributes(attrs...))
}

// RecordFrameError records a malformed or undeliverable frame
func (m *OTelMetrics) RecordFrameError(ctx context.Context, frameType, clientID, errorType string) {
	attrs := []attribute.KeyValue{
		attribute.String("frame_type", frameType),
		attribute.String("client_id", clientID),
		attribute.String("error_type", errorType),
	}

	m.frameErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Window Metrics

// RecordWindowRefilter records one refilter served over the socket
func (m *OTelMetrics) RecordWindowRefilter(ctx context.Context, analysisID string, duration time.Duration, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("analysis_id", analysisID),
		attribute.Bool("success", success),
	}

	m.windowRefilters.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.windowRefilterLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.Bool("success", success),
	))
}

// Hub Metrics

// RecordDroppedFrame records a frame dropped because a client buffer was full
func (m *OTelMetrics) RecordDroppedFrame(ctx context.Context, frameType, reason string) {
	attrs := []attribute.KeyValue{
		attribute.String("frame_type", frameType),
		attribute.String("drop_reason", reason),
	}

	m.droppedFrames.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordClientCount records the current number of connected clients
func (m *OTelMetrics) RecordClientCount(ctx context.Context, count int64) {
	m.clientCount.Record(ctx, count)
}

// Global OTel metrics instance
var globalOTelMetrics *OTelMetrics

// InitOTelMetrics initializes the global OpenTelemetry metrics
func InitOTelMetrics() error {
	metrics, err := NewOTelMetrics()
	if err != nil {
		return err
	}
	globalOTelMetrics = metrics
	return nil
}

// GetOTelMetrics returns the global OpenTelemetry metrics instance
func GetOTelMetrics() *OTelMetrics {
	return globalOTelMetrics
}
