package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	MercadoPago    MercadoPagoConfig    `yaml:"mercadopago"`
	Checkout       CheckoutConfig       `yaml:"checkout"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error
	Format      string `yaml:"format"`      // json, console
	Environment string `yaml:"environment"` // development, production
}

// MercadoPagoConfig holds processor credentials and API settings.
type MercadoPagoConfig struct {
	AccessToken string   `yaml:"access_token"`
	PublicKey   string   `yaml:"public_key"` // served to the client-side SDK
	BaseURL     string   `yaml:"base_url"`   // override for tests/sandboxes
	Timeout     Duration `yaml:"timeout"`    // per-request timeout for API calls
}

// Configured reports whether the processor credential is present. Absence is
// a startup warning, not a fatal error: requests fail downstream instead.
func (m MercadoPagoConfig) Configured() bool {
	return m.AccessToken != ""
}

// CheckoutConfig describes the product being sold and the URLs woven into
// preferences and callbacks.
type CheckoutConfig struct {
	ItemTitle           string   `yaml:"item_title"`
	UnitPrice           float64  `yaml:"unit_price"`
	CurrencyID          string   `yaml:"currency_id"`
	StatementDescriptor string   `yaml:"statement_descriptor"`
	ReferencePrefix     string   `yaml:"reference_prefix"` // correlation token prefix
	FrontendURL         string   `yaml:"frontend_url"`     // return URL fallback
	FallbackURL         string   `yaml:"fallback_url"`     // last-resort return URL
	BackendURL          string   `yaml:"backend_url"`      // base for the webhook notification URL
	MaxInstallments     int      `yaml:"max_installments"`
}

// NotificationURL builds the callback URL handed to the processor.
func (c CheckoutConfig) NotificationURL() string {
	return strings.TrimRight(c.BackendURL, "/") + "/webhook"
}

// RateLimitConfig holds request throttling configuration.
type RateLimitConfig struct {
	GlobalEnabled bool     `yaml:"global_enabled"`
	GlobalLimit   int      `yaml:"global_limit"`
	GlobalWindow  Duration `yaml:"global_window"`
	PerIPEnabled  bool     `yaml:"per_ip_enabled"`
	PerIPLimit    int      `yaml:"per_ip_limit"`
	PerIPWindow   Duration `yaml:"per_ip_window"`
}

// CircuitBreakerConfig guards outbound processor calls.
type CircuitBreakerConfig struct {
	Enabled     bool                 `yaml:"enabled"`
	MercadoPago BreakerServiceConfig `yaml:"mercadopago"`
}

// BreakerServiceConfig configures a single circuit breaker.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`
	Interval            Duration `yaml:"interval"`
	Timeout             Duration `yaml:"timeout"`
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"`
	FailureRatio        float64  `yaml:"failure_ratio"`
	MinRequests         uint32   `yaml:"min_requests"`
}
