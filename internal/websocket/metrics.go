package websocket

import (
	"sync"
	"time"
)

// Metrics tracks window-socket performance counters. The hub logs a snapshot
// periodically; the OTel instruments in otel_metrics.go are the exported
// view, this is the cheap in-process one.
type Metrics struct {
	mu sync.RWMutex

	// Connection metrics
	TotalConnections  int64
	ActiveConnections int64
	MaxConcurrent     int64
	AvgConnectionTime time.Duration

	// Window refilter metrics
	WindowsServed   int64
	WindowErrors    int64
	AvgRefilterTime time.Duration

	// Frame metrics
	FramesSent     int64
	FramesReceived int64
	BytesSent      int64
	BytesReceived  int64
	DroppedFrames  int64

	// Time-based metrics
	LastReset       time.Time
	connectionTimes []time.Duration
	refilterTimes   []time.Duration
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		LastReset:       time.Now(),
		connectionTimes: make([]time.Duration, 0, 100),
		refilterTimes:   make([]time.Duration, 0, 100),
	}
}

// RecordConnection records a new connection
func (m *Metrics) RecordConnection() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalConnections++
	m.ActiveConnections++

	if m.ActiveConnections > m.MaxConcurrent {
		m.MaxConcurrent = m.ActiveConnections
	}
}

// RecordDisconnection records a disconnection
func (m *Metrics) RecordDisconnection(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ActiveConnections--

	m.connectionTimes = append(m.connectionTimes, duration)
	if len(m.connectionTimes) > 100 {
		m.connectionTimes = m.connectionTimes[1:] // Keep last 100
	}
	m.AvgConnectionTime = average(m.connectionTimes)
}

// RecordWindow records one refilter round trip
func (m *Metrics) RecordWindow(duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if success {
		m.WindowsServed++
	} else {
		m.WindowErrors++
	}

	m.refilterTimes = append(m.refilterTimes, duration)
	if len(m.refilterTimes) > 100 {
		m.refilterTimes = m.refilterTimes[1:]
	}
	m.AvgRefilterTime = average(m.refilterTimes)
}

// RecordFrame records frame traffic in the given direction
func (m *Metrics) RecordFrame(direction string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch direction {
	case "sent":
		m.FramesSent++
		m.BytesSent += size
	case "received":
		m.FramesReceived++
		m.BytesReceived += size
	}
}

// RecordDroppedFrame records a frame dropped because a client buffer was full
func (m *Metrics) RecordDroppedFrame() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DroppedFrames++
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"connections": map[string]interface{}{
			"total":           m.TotalConnections,
			"active":          m.ActiveConnections,
			"max_concurrent":  m.MaxConcurrent,
			"avg_duration_ms": m.AvgConnectionTime.Milliseconds(),
		},
		"windows": map[string]interface{}{
			"served":          m.WindowsServed,
			"errors":          m.WindowErrors,
			"avg_refilter_ms": m.AvgRefilterTime.Milliseconds(),
		},
		"frames": map[string]interface{}{
			"sent":           m.FramesSent,
			"received":       m.FramesReceived,
			"bytes_sent":     m.BytesSent,
			"bytes_received": m.BytesReceived,
			"dropped":        m.DroppedFrames,
		},
		"uptime_seconds": time.Since(m.LastReset).Seconds(),
	}
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalConnections = 0
	m.ActiveConnections = 0
	m.MaxConcurrent = 0
	m.AvgConnectionTime = 0
	m.WindowsServed = 0
	m.WindowErrors = 0
	m.AvgRefilterTime = 0
	m.FramesSent = 0
	m.FramesReceived = 0
	m.BytesSent = 0
	m.BytesReceived = 0
	m.DroppedFrames = 0
	m.LastReset = time.Now()
	m.connectionTimes = make([]time.Duration, 0, 100)
	m.refilterTimes = make([]time.Duration, 0, 100)
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}

// Global metrics instance
var globalMetrics = NewMetrics()

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}
