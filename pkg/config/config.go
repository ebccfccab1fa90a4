// Package config loads server configuration from the environment. Defaults
// are carried in struct tags, so a zero-configuration start works out of the
// box and every knob is overridable per deployment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the full server configuration.
type Config struct {
	// ListenAddr is the bind address of the protocol endpoint.
	ListenAddr string `env:"AGENTWIRE_LISTEN_ADDR,default=:8080"`

	// EndpointPath is the URL path of the single protocol endpoint.
	EndpointPath string `env:"AGENTWIRE_ENDPOINT_PATH,default=/rpc"`

	// AllowedOrigins is a comma-separated Origin allowlist. Empty means
	// loopback origins only; "*" allows any origin.
	AllowedOrigins string `env:"AGENTWIRE_ALLOWED_ORIGINS,default="`

	// SessionTTL is how long an idle session survives.
	SessionTTL time.Duration `env:"AGENTWIRE_SESSION_TTL,default=30m"`

	// KeepAliveInterval paces SSE keep-alive comments.
	KeepAliveInterval time.Duration `env:"AGENTWIRE_KEEPALIVE_INTERVAL,default=30s"`

	// MaxBodyBytes bounds a POST body.
	MaxBodyBytes int64 `env:"AGENTWIRE_MAX_BODY_BYTES,default=4194304"`

	// MaxConcurrent bounds concurrent handler executions.
	MaxConcurrent int64 `env:"AGENTWIRE_MAX_CONCURRENT,default=64"`

	// LogLevel is the process log level (debug, info, warn, error).
	LogLevel string `env:"AGENTWIRE_LOG_LEVEL,default=info"`

	// LogFormat selects the process log format (text or json).
	LogFormat string `env:"AGENTWIRE_LOG_FORMAT,default=text"`

	// MetricsEnabled turns the Prometheus scrape endpoint on.
	MetricsEnabled bool `env:"AGENTWIRE_METRICS_ENABLED,default=false"`

	// MetricsPort is the scrape server port.
	MetricsPort int `env:"AGENTWIRE_METRICS_PORT,default=9090"`

	// TracingExporter selects the trace exporter (noop, otlp-grpc, otlp-http).
	TracingExporter string `env:"AGENTWIRE_TRACING_EXPORTER,default=noop"`

	// TracingEndpoint is the OTLP collector endpoint.
	TracingEndpoint string `env:"AGENTWIRE_TRACING_ENDPOINT,default=localhost:4317"`

	// ShutdownGrace bounds graceful shutdown.
	ShutdownGrace time.Duration `env:"AGENTWIRE_SHUTDOWN_GRACE,default=10s"`
}

// Load populates Config from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.EndpointPath, "/") {
		return fmt.Errorf("endpoint path must start with '/': %q", c.EndpointPath)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive: %s", c.SessionTTL)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent must be positive: %d", c.MaxConcurrent)
	}
	return nil
}

// Origins returns the parsed Origin allowlist.
func (c *Config) Origins() []string {
	if c.AllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
