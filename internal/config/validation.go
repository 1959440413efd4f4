package config

import (
	"fmt"
	"net/url"
	"strings"
)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":4000"
	}
	if c.Checkout.ReferencePrefix == "" {
		c.Checkout.ReferencePrefix = "MEUEV"
	}
	if c.Checkout.CurrencyID == "" {
		c.Checkout.CurrencyID = "BRL"
	}

	if c.Checkout.UnitPrice <= 0 {
		return fmt.Errorf("checkout.unit_price must be positive, got %v", c.Checkout.UnitPrice)
	}
	if strings.ContainsAny(c.Checkout.ReferencePrefix, " \t") {
		return fmt.Errorf("checkout.reference_prefix must not contain whitespace")
	}
	if err := validateBaseURL("checkout.backend_url", c.Checkout.BackendURL); err != nil {
		return err
	}
	if c.MercadoPago.BaseURL != "" {
		if err := validateBaseURL("mercadopago.base_url", c.MercadoPago.BaseURL); err != nil {
			return err
		}
	}

	return nil
}

func validateBaseURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", field, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s is missing a host", field)
	}
	return nil
}
