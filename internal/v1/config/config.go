package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration
type Config struct {
	// Listen port (default 8080)
	Port string

	// Comma-separated origin allow-list. Empty means any origin is accepted,
	// which is intended for development only.
	AllowedOrigins string

	// Optional variables with defaults
	DevelopmentMode bool
	LogLevel        string
	ServiceVersion  string

	// WebSocket admission limit (sliding window per source address)
	RateLimitWsConn   int
	RateLimitWsWindow time.Duration

	// Plain HTTP surface limit, in ulule/limiter formatted-rate notation
	RateLimitHTTP string

	// Optional OTLP collector address; tracing is disabled when empty
	OtelCollectorAddr string
}

// ValidateEnv validates all environment variables and returns a Config object.
// Returns an error if any variable is present but invalid.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// PORT (optional, default 8080, must be a valid port number when set)
	cfg.Port = getEnvOrDefault("PORT", "8080")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	// ALLOWED_ORIGINS (optional; empty enables allow-all development behavior)
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.ServiceVersion = getEnvOrDefault("SERVICE_VERSION", "1.0.0")

	// RATE_LIMIT_WS_CONN (optional, default 5 admissions per window)
	wsConn := getEnvOrDefault("RATE_LIMIT_WS_CONN", "5")
	n, err := strconv.Atoi(wsConn)
	if err != nil || n < 1 {
		errors = append(errors, fmt.Sprintf("RATE_LIMIT_WS_CONN must be a positive integer (got '%s')", wsConn))
	}
	cfg.RateLimitWsConn = n

	// RATE_LIMIT_WS_WINDOW (optional, default 60s, Go duration syntax)
	wsWindow := getEnvOrDefault("RATE_LIMIT_WS_WINDOW", "60s")
	d, err := time.ParseDuration(wsWindow)
	if err != nil || d <= 0 {
		errors = append(errors, fmt.Sprintf("RATE_LIMIT_WS_WINDOW must be a positive duration (got '%s')", wsWindow))
	}
	cfg.RateLimitWsWindow = d

	// RATE_LIMIT_HTTP (optional, ulule formatted rate, default 100 per minute)
	cfg.RateLimitHTTP = getEnvOrDefault("RATE_LIMIT_HTTP", "100-M")

	// OTEL_COLLECTOR_ADDR (optional, format host:port)
	cfg.OtelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")
	if cfg.OtelCollectorAddr != "" && !isValidHostPort(cfg.OtelCollectorAddr) {
		errors = append(errors, fmt.Sprintf("OTEL_COLLECTOR_ADDR must be in format 'host:port' (got '%s')", cfg.OtelCollectorAddr))
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	return parts[0] != ""
}

// logValidatedConfig logs the validated configuration
func logValidatedConfig(cfg *Config) {
	slog.Info("Environment configuration validated",
		"port", cfg.Port,
		"allowed_origins", cfg.AllowedOrigins,
		"development_mode", cfg.DevelopmentMode,
		"log_level", cfg.LogLevel,
		"service_version", cfg.ServiceVersion,
		"rate_limit_ws_conn", cfg.RateLimitWsConn,
		"rate_limit_ws_window", cfg.RateLimitWsWindow.String(),
		"rate_limit_http", cfg.RateLimitHTTP,
		"otel_collector_addr", cfg.OtelCollectorAddr,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
