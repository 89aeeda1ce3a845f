// Package web runs the public HTTP API for the coaching site backend:
// checkout session creation, the Stripe webhook, and the intake and
// contact form endpoints.
package web

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/myersendurance/coachd/internal/catalog"
)

// Config holds all configuration for the coaching backend.
type Config struct {
	DataDir             string
	BindAddress         string
	Port                int
	BaseURL             string
	StripeAPIKey        string
	StripeWebhookSecret string
	ResendAPIKey        string // optional; if empty, emails are logged
	EmailFrom           string // sender address for owner notifications
	OwnerEmail          string // where purchase notifications go; empty disables them
	CatalogMode         catalog.Mode
}

// LoadConfig loads configuration from environment variables.
// A .env file is loaded if present but not required.
func LoadConfig() (*Config, error) {
	// Best-effort .env loading (not required)
	_ = godotenv.Load()

	port, err := envOrDefaultInt("COACH_PORT", 8090)
	if err != nil {
		return nil, err
	}
	mode, err := catalog.ParseMode(os.Getenv("COACH_CATALOG_MODE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:             envOrDefault("COACH_DATA_DIR", "/data"),
		BindAddress:         envOrDefault("COACH_BIND_ADDRESS", "0.0.0.0"),
		Port:                port,
		BaseURL:             strings.TrimSpace(os.Getenv("COACH_BASE_URL")),
		StripeAPIKey:        strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
		StripeWebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		ResendAPIKey:        strings.TrimSpace(os.Getenv("RESEND_API_KEY")),
		EmailFrom:           envOrDefault("COACH_EMAIL_FROM", "noreply@myersendurance.com"),
		OwnerEmail:          strings.TrimSpace(os.Getenv("OWNER_EMAIL")),
		CatalogMode:         mode,
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.BaseURL == "" {
		missing = append(missing, "COACH_BASE_URL")
	}
	if c.StripeAPIKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("COACH_PORT must be between 1 and 65535, got %d", c.Port)
	}

	parsedBaseURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("COACH_BASE_URL must be a valid URL: %w", err)
	}
	if parsedBaseURL.Scheme != "http" && parsedBaseURL.Scheme != "https" {
		return fmt.Errorf("COACH_BASE_URL must use http or https scheme")
	}
	if parsedBaseURL.Host == "" {
		return fmt.Errorf("COACH_BASE_URL must include a host")
	}
	return nil
}

// ResolvedCatalogMode returns the concrete catalog mode, resolving auto from
// the Stripe secret key prefix.
func (c *Config) ResolvedCatalogMode() catalog.Mode {
	return catalog.ResolveMode(c.CatalogMode, c.StripeAPIKey)
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}
