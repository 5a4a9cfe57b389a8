// Package config loads drawfast settings from an optional YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fpang/drawfast/internal/membership"
	"github.com/fpang/drawfast/internal/scheduler"
)

// Transports.
const (
	TransportWebSocket = "websocket"
	TransportGemini    = "gemini"
)

// Defaults.
const (
	DefaultEndpoint     = "wss://fal.run"
	DefaultAppID        = "110602490-lcm-sd15-i2i"
	DefaultTimeout      = 5 * time.Second
	DefaultTargetSize   = 512
	DefaultGeminiModel  = "gemini-2.5-flash-image"
	DefaultMaxRetries   = 3
	defaultRetryPolicy  = "if-current"
	defaultMembership   = "touching"
	defaultTransport    = TransportWebSocket
	defaultSendInterval = 0
)

// Config holds every runtime setting.
type Config struct {
	Endpoint  string `yaml:"endpoint"`
	AppID     string `yaml:"app_id"`
	Transport string `yaml:"transport"`

	// APIKey authenticates websocket connections. Environment only.
	APIKey string `yaml:"-"`

	// Timeout bounds each inference request.
	Timeout time.Duration `yaml:"timeout"`
	// Throttle is the minimum delay between two cycles of one region.
	Throttle time.Duration `yaml:"throttle"`
	// SendInterval is the minimum delay between two channel sends.
	SendInterval time.Duration `yaml:"send_interval"`

	TargetSize        int    `yaml:"target_size"`
	DarkMode          bool   `yaml:"dark_mode"`
	RetryPolicy       string `yaml:"retry_policy"`
	MaxTimeoutRetries int    `yaml:"max_timeout_retries"`
	Membership        string `yaml:"membership"`
	Metrics           bool   `yaml:"metrics"`

	Gemini GeminiConfig `yaml:"gemini"`
}

// GeminiConfig configures the Gemini transport. The API key is read from
// the environment only.
type GeminiConfig struct {
	APIKey string `yaml:"-"`
	Model  string `yaml:"model"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Endpoint:          DefaultEndpoint,
		AppID:             DefaultAppID,
		Transport:         defaultTransport,
		Timeout:           DefaultTimeout,
		SendInterval:      defaultSendInterval,
		TargetSize:        DefaultTargetSize,
		RetryPolicy:       defaultRetryPolicy,
		MaxTimeoutRetries: DefaultMaxRetries,
		Membership:        defaultMembership,
		Gemini:            GeminiConfig{Model: DefaultGeminiModel},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if path is
// not empty) and then with environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("DRAWFAST_ENDPOINT", &c.Endpoint)
	str("DRAWFAST_APP_ID", &c.AppID)
	str("DRAWFAST_API_KEY", &c.APIKey)
	str("DRAWFAST_TRANSPORT", &c.Transport)
	dur("DRAWFAST_TIMEOUT", &c.Timeout)
	dur("DRAWFAST_THROTTLE", &c.Throttle)
	dur("DRAWFAST_SEND_INTERVAL", &c.SendInterval)
	num("DRAWFAST_TARGET_SIZE", &c.TargetSize)
	num("DRAWFAST_MAX_TIMEOUT_RETRIES", &c.MaxTimeoutRetries)
	flag("DRAWFAST_DARK_MODE", &c.DarkMode)
	flag("DRAWFAST_METRICS", &c.Metrics)
	str("DRAWFAST_RETRY_POLICY", &c.RetryPolicy)
	str("DRAWFAST_MEMBERSHIP", &c.Membership)
	str("GEMINI_API_KEY", &c.Gemini.APIKey)
	str("GEMINI_MODEL", &c.Gemini.Model)
	return errors.Join(errs...)
}

// parseDuration accepts Go durations ("250ms") and bare milliseconds ("250").
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	switch c.Transport {
	case TransportWebSocket:
		if _, err := c.RealtimeURL(); err != nil {
			errs = append(errs, err)
		}
	case TransportGemini:
		if c.Gemini.APIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q (want %s or %s)", c.Transport, TransportWebSocket, TransportGemini))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.Throttle < 0 || c.SendInterval < 0 {
		errs = append(errs, errors.New("throttle and send interval must not be negative"))
	}
	if c.TargetSize < 16 || c.TargetSize > 4096 {
		errs = append(errs, fmt.Errorf("target size must be within [16, 4096], got %d", c.TargetSize))
	}
	if c.MaxTimeoutRetries < 0 {
		errs = append(errs, fmt.Errorf("max timeout retries must not be negative, got %d", c.MaxTimeoutRetries))
	}
	if _, err := scheduler.ParseRetryPolicy(c.RetryPolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := membership.ParsePolicy(c.Membership); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RealtimeURL returns the websocket URL of the configured app.
func (c Config) RealtimeURL() (string, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", c.Endpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("endpoint %q must use ws or wss", c.Endpoint)
	}
	if c.AppID != "" {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + c.AppID + "/realtime"
	}
	return u.String(), nil
}
