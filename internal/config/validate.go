package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for inconsistencies that would only
// surface later at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of valid range (1-65535)", c.Server.Port)
	}
	if c.Server.RateLimitEnabled {
		if c.Server.RateLimitRPS <= 0 {
			return fmt.Errorf("server.rate_limit_rps must be positive when rate limiting is enabled")
		}
		if c.Server.RateLimitBurst < 1 {
			return fmt.Errorf("server.rate_limit_burst must be at least 1 when rate limiting is enabled")
		}
	}
	if c.Server.Admin.ReloadEnabled && c.Server.Admin.AuthToken == "" {
		return fmt.Errorf("server.admin.auth_token is required when the reload endpoint is enabled")
	}
	if c.Schema.DefaultLimit < 1 {
		return fmt.Errorf("schema.default_limit must be at least 1")
	}
	if c.Schema.MaxLimit < c.Schema.DefaultLimit {
		return fmt.Errorf("schema.max_limit must be >= schema.default_limit")
	}
	if c.Subscriptions.BufferSize < 1 {
		return fmt.Errorf("subscriptions.buffer_size must be at least 1")
	}
	if r := c.Observability.TraceSampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("observability.trace_sample_ratio must be between 0.0 and 1.0")
	}
	switch strings.ToLower(c.Observability.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("observability.logging.format must be json or text")
	}
	switch strings.ToLower(c.Observability.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("observability.logging.level must be debug, info, warn, or error")
	}
	switch c.Observability.OTLP.Protocol {
	case "grpc", "http/protobuf":
	default:
		return fmt.Errorf("observability.otlp.protocol must be grpc or http/protobuf")
	}
	return nil
}
