package config

import (
	"os"
	"strconv"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration. New names
// use the MEUEV_ prefix; the bare legacy names the original deployment used
// (MERCADOPAGO_ACCESS_TOKEN, FRONTEND_URL, BACKEND_URL, PORT) are honored
// first so existing hosting dashboards keep working.
func (c *Config) applyEnvOverrides() {
	// Legacy deployment variables.
	setIfEnv(&c.MercadoPago.AccessToken, "MERCADOPAGO_ACCESS_TOKEN")
	setIfEnv(&c.MercadoPago.PublicKey, "MERCADOPAGO_PUBLIC_KEY")
	setIfEnv(&c.Checkout.FrontendURL, "FRONTEND_URL")
	setIfEnv(&c.Checkout.BackendURL, "BACKEND_URL")
	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err == nil {
			c.Server.Address = ":" + port
		}
	}

	// Server config
	setIfEnv(&c.Server.Address, "MEUEV_SERVER_ADDRESS")

	// Logging config
	setIfEnv(&c.Logging.Level, "MEUEV_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "MEUEV_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "MEUEV_ENVIRONMENT")

	// Processor config
	setIfEnv(&c.MercadoPago.AccessToken, "MEUEV_MERCADOPAGO_ACCESS_TOKEN")
	setIfEnv(&c.MercadoPago.PublicKey, "MEUEV_MERCADOPAGO_PUBLIC_KEY")
	setIfEnv(&c.MercadoPago.BaseURL, "MEUEV_MERCADOPAGO_BASE_URL")
	setDurationIfEnv(&c.MercadoPago.Timeout, "MEUEV_MERCADOPAGO_TIMEOUT")

	// Checkout config
	setIfEnv(&c.Checkout.ItemTitle, "MEUEV_CHECKOUT_ITEM_TITLE")
	setIfEnv(&c.Checkout.CurrencyID, "MEUEV_CHECKOUT_CURRENCY")
	setIfEnv(&c.Checkout.StatementDescriptor, "MEUEV_CHECKOUT_STATEMENT_DESCRIPTOR")
	setIfEnv(&c.Checkout.ReferencePrefix, "MEUEV_CHECKOUT_REFERENCE_PREFIX")
	setIfEnv(&c.Checkout.FrontendURL, "MEUEV_CHECKOUT_FRONTEND_URL")
	setIfEnv(&c.Checkout.BackendURL, "MEUEV_CHECKOUT_BACKEND_URL")
	if v := os.Getenv("MEUEV_CHECKOUT_UNIT_PRICE"); v != "" {
		if price, err := strconv.ParseFloat(v, 64); err == nil && price > 0 {
			c.Checkout.UnitPrice = price
		}
	}

	// Rate limit config
	setBoolIfEnv(&c.RateLimit.GlobalEnabled, "MEUEV_RATE_LIMIT_GLOBAL_ENABLED")
	setBoolIfEnv(&c.RateLimit.PerIPEnabled, "MEUEV_RATE_LIMIT_PER_IP_ENABLED")

	// Circuit breaker config
	setBoolIfEnv(&c.CircuitBreaker.Enabled, "MEUEV_CIRCUIT_BREAKER_ENABLED")
}

func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || v == "true" || v == "TRUE" || v == "True"
	}
}

func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}
