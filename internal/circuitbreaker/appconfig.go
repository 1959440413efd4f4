package circuitbreaker

import "github.com/meuev/server/internal/config"

// FromAppConfig maps the application configuration onto breaker settings,
// filling unset thresholds from the defaults.
func FromAppConfig(cfg config.CircuitBreakerConfig) Config {
	out := DefaultConfig()
	out.Enabled = cfg.Enabled
	if cfg.MercadoPago.MaxRequests > 0 {
		out.MercadoPago.MaxRequests = cfg.MercadoPago.MaxRequests
	}
	if cfg.MercadoPago.Interval.Duration > 0 {
		out.MercadoPago.Interval = cfg.MercadoPago.Interval.Duration
	}
	if cfg.MercadoPago.Timeout.Duration > 0 {
		out.MercadoPago.Timeout = cfg.MercadoPago.Timeout.Duration
	}
	if cfg.MercadoPago.ConsecutiveFailures > 0 {
		out.MercadoPago.ConsecutiveFailures = cfg.MercadoPago.ConsecutiveFailures
	}
	if cfg.MercadoPago.FailureRatio > 0 {
		out.MercadoPago.FailureRatio = cfg.MercadoPago.FailureRatio
	}
	if cfg.MercadoPago.MinRequests > 0 {
		out.MercadoPago.MinRequests = cfg.MercadoPago.MinRequests
	}
	return out
}
