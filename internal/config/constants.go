package config

import "time"

// Application constants
const (
	// WebSocket keepalive
	WebSocketPingPeriod = 30 * time.Second
	WebSocketPongWait   = 60 * time.Second

	// Log settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// API endpoints
const (
	APIBasePath       = "/api"
	AnalyzeEndpoint   = "/api/analyze"
	HealthEndpoint    = "/api/health"
	MetricsEndpoint   = "/metrics"
	WebSocketEndpoint = "/ws/window"
)
