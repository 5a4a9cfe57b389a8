package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	u, err := cfg.RealtimeURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://fal.run/110602490-lcm-sd15-i2i/realtime", u)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drawfast.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoint: ws://localhost:8080
app_id: local
timeout: 2s
throttle: 250ms
target_size: 256
retry_policy: never
membership: descendants
gemini:
  model: custom-model
`), 0o644))
	t.Setenv("DRAWFAST_TARGET_SIZE", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080", cfg.Endpoint)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Throttle)
	assert.Equal(t, 256, cfg.TargetSize)
	assert.Equal(t, "never", cfg.RetryPolicy)
	assert.Equal(t, "descendants", cfg.Membership)
	assert.Equal(t, "custom-model", cfg.Gemini.Model)
	assert.Equal(t, TransportWebSocket, cfg.Transport, "unset keys keep their defaults")

	u, err := cfg.RealtimeURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/local/realtime", u)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drawfast.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout: 2s\n"), 0o644))
	t.Setenv("DRAWFAST_TIMEOUT", "750")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.Timeout)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(mapLookup(map[string]string{
		"DRAWFAST_TRANSPORT":           "gemini",
		"DRAWFAST_THROTTLE":            "100ms",
		"DRAWFAST_SEND_INTERVAL":       "16",
		"DRAWFAST_DARK_MODE":           "true",
		"DRAWFAST_METRICS":             "1",
		"DRAWFAST_MAX_TIMEOUT_RETRIES": "5",
		"GEMINI_API_KEY":               "secret",
		"DRAWFAST_API_KEY":             "fal-key",
		"DRAWFAST_ENDPOINT":            "",
	}))
	require.NoError(t, err)

	assert.Equal(t, TransportGemini, cfg.Transport)
	assert.Equal(t, 100*time.Millisecond, cfg.Throttle)
	assert.Equal(t, 16*time.Millisecond, cfg.SendInterval)
	assert.True(t, cfg.DarkMode)
	assert.True(t, cfg.Metrics)
	assert.Equal(t, 5, cfg.MaxTimeoutRetries)
	assert.Equal(t, "secret", cfg.Gemini.APIKey)
	assert.Equal(t, "fal-key", cfg.APIKey)
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint, "empty values are ignored")
	require.NoError(t, cfg.Validate())
}

func TestApplyEnvReportsEveryBadValue(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(mapLookup(map[string]string{
		"DRAWFAST_TIMEOUT":     "soon",
		"DRAWFAST_TARGET_SIZE": "big",
		"DRAWFAST_DARK_MODE":   "maybe",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DRAWFAST_TIMEOUT")
	assert.Contains(t, err.Error(), "DRAWFAST_TARGET_SIZE")
	assert.Contains(t, err.Error(), "DRAWFAST_DARK_MODE")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "unknown transport", mutate: func(c *Config) { c.Transport = "carrier-pigeon" }, want: "unknown transport"},
		{name: "http endpoint", mutate: func(c *Config) { c.Endpoint = "https://fal.run" }, want: "must use ws or wss"},
		{name: "gemini without key", mutate: func(c *Config) { c.Transport = TransportGemini }, want: "GEMINI_API_KEY"},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }, want: "timeout must be positive"},
		{name: "negative throttle", mutate: func(c *Config) { c.Throttle = -time.Second }, want: "must not be negative"},
		{name: "tiny target", mutate: func(c *Config) { c.TargetSize = 8 }, want: "target size"},
		{name: "retry policy", mutate: func(c *Config) { c.RetryPolicy = "sometimes" }, want: "retry policy"},
		{name: "membership", mutate: func(c *Config) { c.Membership = "nearby" }, want: "membership policy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
