// Package config provides configuration for the bridge and CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/capitalize-ai/traychat/internal/llm"
	"github.com/capitalize-ai/traychat/internal/settings"
)

// PathEnv names the environment variable consulted when no config path is given.
const PathEnv = "TRAYCHAT_CONFIG"

// Config holds all configuration for the application.
type Config struct {
	// Bridge settings
	BridgeAddr     string        `toml:"bridge_addr"`
	BridgeSecret   string        `toml:"bridge_secret"`
	BridgeTokenTTL time.Duration `toml:"bridge_token_ttl"`
	AllowedOrigins []string      `toml:"allowed_origins"`

	// Settings file
	SettingsPath       string `toml:"settings_path"`
	DefaultModel       string `toml:"default_model"`
	DefaultPreventExit bool   `toml:"default_prevent_exit"`

	// Completion endpoint
	CompletionURL        string        `toml:"completion_url"`
	APIKeyEnv            string        `toml:"api_key_env"`
	CompletionTimeout    time.Duration `toml:"completion_timeout"`
	MissingContentPolicy string        `toml:"missing_content_policy"`
	SerializeCalls       bool          `toml:"serialize_calls"`

	// Rate limiting
	RateLimitRequests int           `toml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `toml:"rate_limit_window"`

	// Logging
	LogLevel string `toml:"log_level"`

	// NATS transcript mirror, disabled when NATSURL is empty
	NATSURL      string `toml:"nats_url"`
	NATSCAFile   string `toml:"nats_ca_file"`
	NATSCertFile string `toml:"nats_cert_file"`
	NATSKeyFile  string `toml:"nats_key_file"`
	NATSToken    string `toml:"nats_token"`

	// Tracing
	TracingEndpoint string `toml:"tracing_endpoint"`
	TracingEnabled  bool   `toml:"tracing_enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BridgeAddr:     "127.0.0.1:1430",
		BridgeTokenTTL: 24 * time.Hour,
		AllowedOrigins: []string{"tauri://localhost", "http://localhost:*"},

		SettingsPath:       settings.DefaultPath(),
		DefaultModel:       "sonar",
		DefaultPreventExit: true,

		CompletionURL:        llm.DefaultCompletionURL,
		APIKeyEnv:            "PERPLEXITY_API_KEY",
		MissingContentPolicy: string(llm.ContentLenient),

		RateLimitRequests: 30,
		RateLimitWindow:   time.Minute,

		LogLevel: "info",

		TracingEndpoint: "localhost:4318",
	}
}

// Load builds the configuration from defaults, then the TOML file at path
// (or $TRAYCHAT_CONFIG), then environment variables. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	// Bridge
	c.BridgeAddr = getEnv("BRIDGE_ADDR", c.BridgeAddr)
	c.BridgeSecret = getEnv("BRIDGE_SECRET", c.BridgeSecret)
	c.BridgeTokenTTL = getDurationEnv("BRIDGE_TOKEN_TTL", c.BridgeTokenTTL)
	c.AllowedOrigins = getListEnv("ALLOWED_ORIGINS", c.AllowedOrigins)

	// Settings
	c.SettingsPath = getEnv("SETTINGS_PATH", c.SettingsPath)
	c.DefaultModel = getEnv("DEFAULT_MODEL", c.DefaultModel)
	c.DefaultPreventExit = getBoolEnv("DEFAULT_PREVENT_EXIT", c.DefaultPreventExit)

	// Completion
	c.CompletionURL = getEnv("COMPLETION_URL", c.CompletionURL)
	c.APIKeyEnv = getEnv("API_KEY_ENV", c.APIKeyEnv)
	c.CompletionTimeout = getDurationEnv("COMPLETION_TIMEOUT", c.CompletionTimeout)
	c.MissingContentPolicy = getEnv("MISSING_CONTENT_POLICY", c.MissingContentPolicy)
	c.SerializeCalls = getBoolEnv("SERIALIZE_CALLS", c.SerializeCalls)

	// Rate limiting
	c.RateLimitRequests = getIntEnv("RATE_LIMIT_REQUESTS", c.RateLimitRequests)
	c.RateLimitWindow = getDurationEnv("RATE_LIMIT_WINDOW", c.RateLimitWindow)

	// Logging
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	// NATS
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.NATSCAFile = getEnv("NATS_CA_FILE", c.NATSCAFile)
	c.NATSCertFile = getEnv("NATS_CERT_FILE", c.NATSCertFile)
	c.NATSKeyFile = getEnv("NATS_KEY_FILE", c.NATSKeyFile)
	c.NATSToken = getEnv("NATS_TOKEN", c.NATSToken)

	// Tracing
	c.TracingEndpoint = getEnv("TRACING_ENDPOINT", c.TracingEndpoint)
	c.TracingEnabled = getBoolEnv("TRACING_ENABLED", c.TracingEnabled)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	if c.BridgeAddr == "" {
		errs = append(errs, errors.New("bridge_addr is required"))
	}
	if c.SettingsPath == "" {
		errs = append(errs, errors.New("settings_path is required"))
	}
	if c.APIKeyEnv == "" {
		errs = append(errs, errors.New("api_key_env is required"))
	}
	if _, err := c.ContentPolicy(); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimitRequests <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit_requests must be positive, got %d", c.RateLimitRequests))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit_window must be positive, got %s", c.RateLimitWindow))
	}
	if c.CompletionTimeout < 0 {
		errs = append(errs, fmt.Errorf("completion_timeout must not be negative, got %s", c.CompletionTimeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ContentPolicy parses MissingContentPolicy.
func (c *Config) ContentPolicy() (llm.ContentPolicy, error) {
	return llm.ParseContentPolicy(c.MissingContentPolicy)
}

// NATSEnabled reports whether the transcript mirror is configured.
func (c *Config) NATSEnabled() bool {
	return c.NATSURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
