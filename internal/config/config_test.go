package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 1<<20, cfg.Server.MaxHeaderBytes)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, int64(16<<20), cfg.Upload.MaxBytes)

	assert.Equal(t, time.Hour, cfg.Analysis.SessionTTL)
	assert.Equal(t, 128, cfg.Analysis.MaxSessions)
	assert.Equal(t, 5*time.Minute, cfg.Analysis.CleanupInterval)

	assert.Equal(t, []string{"http://localhost:8080"}, cfg.Security.AllowedOrigins)
	assert.True(t, cfg.Security.EnableCORS)
	assert.True(t, cfg.Security.RateLimit.Enabled)
	assert.Equal(t, 100.0, cfg.Security.RateLimit.RPS)
	assert.Equal(t, 50, cfg.Security.RateLimit.Burst)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "console", cfg.Logging.Output)

	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingPeriod)
	assert.Equal(t, 60*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, int64(4096), cfg.WebSocket.MaxMessageSize)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SCALETREND_SERVER_PORT", "9090")
	t.Setenv("SCALETREND_SERVER_READ_TIMEOUT", "45s")
	t.Setenv("SCALETREND_UPLOAD_MAX_BYTES", "1048576")
	t.Setenv("SCALETREND_ANALYSIS_SESSION_TTL", "30m")
	t.Setenv("SCALETREND_SECURITY_ALLOWED_ORIGINS", "http://a.example,https://b.example")
	t.Setenv("SCALETREND_LOGGING_LEVEL", "debug")
	t.Setenv("SCALETREND_LOGGING_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, int64(1<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, 30*time.Minute, cfg.Analysis.SessionTTL)
	assert.Equal(t, []string{"http://a.example", "https://b.example"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout, "untouched fields keep defaults")
}

func TestLoadFromFile(t *testing.T) {
	configYAML := `
server:
  port: 9191
  idle_timeout: 90s
analysis:
  max_sessions: 16
logging:
  level: warn
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o644))
	t.Setenv("SCALETREND_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 16, cfg.Analysis.MaxSessions)
	assert.Equal(t, "warn", cfg.Logging.Level)

	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout, "keys absent from the file keep defaults")
	assert.Equal(t, time.Hour, cfg.Analysis.SessionTTL)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	configYAML := "server:\n  port: 9999\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o644))
	t.Setenv("SCALETREND_CONFIG", path)
	t.Setenv("SCALETREND_SERVER_PORT", "7777")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
}

func TestLoadFileUnreadable(t *testing.T) {
	t.Setenv("SCALETREND_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config from file")
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{
			name:    "port out of range",
			key:     "SCALETREND_SERVER_PORT",
			value:   "70000",
			wantErr: "invalid server port",
		},
		{
			name:    "negative read timeout",
			key:     "SCALETREND_SERVER_READ_TIMEOUT",
			value:   "-15s",
			wantErr: "read timeout must be positive",
		},
		{
			name:    "non-positive upload limit",
			key:     "SCALETREND_UPLOAD_MAX_BYTES",
			value:   "-5",
			wantErr: "upload max bytes must be positive",
		},
		{
			name:    "non-positive session TTL",
			key:     "SCALETREND_ANALYSIS_SESSION_TTL",
			value:   "-1h",
			wantErr: "session TTL must be positive",
		},
		{
			name:    "pong wait below ping period",
			key:     "SCALETREND_WEBSOCKET_PONG_WAIT",
			value:   "10s",
			wantErr: "pong wait must exceed ping period",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadNormalizesLogging(t *testing.T) {
	t.Setenv("SCALETREND_LOGGING_FORMAT", "xml")
	t.Setenv("SCALETREND_LOGGING_OUTPUT", "syslog")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "console", cfg.Logging.Output)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)
	require.NoError(t, cfg.validate())
	assert.Greater(t, cfg.WebSocket.PongWait, cfg.WebSocket.PingPeriod)
}
