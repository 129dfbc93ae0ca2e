// Package config provides centralized configuration management for the
// ScaleTrend service. It handles loading configuration from multiple sources,
// validation, and provides a type-safe API for accessing configuration values
// throughout the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. Configuration file (YAML)
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern SCALETREND_* for namespacing:
//
//	SCALETREND_SERVER_PORT=8080
//	SCALETREND_UPLOAD_MAX_BYTES=16777216
//	SCALETREND_ANALYSIS_SESSION_TTL=1h
//	SCALETREND_LOGGING_LEVEL=info
//
// SCALETREND_CONFIG points at an explicit YAML file; otherwise config.yaml
// and configs/config.yaml are probed.
//
// # Validation
//
// All configuration is validated at load time to ensure:
//
//	- Values are within acceptable ranges
//	- Timeouts and TTLs are positive
//	- The websocket keepalive intervals are coherent
//
// # Usage
//
// Load configuration at application startup:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
