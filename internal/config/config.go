package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Replicate (line-art model)
	ReplicateAPIToken string
	ReplicateBaseURL  string
	ReplicateModel    string

	// OpenAI (semantic tips)
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Supabase
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Blob backend: "supabase" or "memory"
	BlobBackend string

	// Signed upload targets
	UploadSigningSecret string
	UploadTokenTTL      time.Duration
	MaxUploadBytes      int64

	// Stripe
	StripeSecretKey    string
	StripePriceID      string
	StripeCreditsPack  int
	CheckoutSuccessURL string
	CheckoutCancelURL  string

	// Email delivery
	ResendAPIKey string
	MailFrom     string

	// Database
	DatabaseURL string

	// Rate limiting
	RateLimitLimit  int64
	RateLimitPeriod time.Duration

	// Server
	Port        string
	Environment string
	BaseURL     string
	PortalURL   string
	LogLevel    string
}

func Load() (*Config, error) {
	// .env is optional; real deployments inject the environment directly
	_ = godotenv.Load(".env")

	cfg := &Config{
		ReplicateAPIToken: getEnv("REPLICATE_API_TOKEN", ""),
		ReplicateBaseURL:  getEnv("REPLICATE_API_BASE_URL", "https://api.replicate.com/v1/"),
		ReplicateModel:    getEnv("REPLICATE_MODEL", "black-forest-labs/flux-kontext-pro"),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_API_BASE_URL", "https://api.openai.com/v1/"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "photolineart"),

		BlobBackend: getEnv("BLOB_BACKEND", "supabase"),

		UploadSigningSecret: getEnv("UPLOAD_SIGNING_SECRET", ""),
		UploadTokenTTL:      getDuration("UPLOAD_TOKEN_TTL", 10*time.Minute),
		MaxUploadBytes:      getInt64("MAX_UPLOAD_BYTES", 10*1024*1024),

		StripeSecretKey:    getEnv("STRIPE_SECRET_KEY", ""),
		StripePriceID:      getEnv("STRIPE_PRICE_ID", ""),
		StripeCreditsPack:  int(getInt64("STRIPE_CREDITS_PER_PACK", 10)),
		CheckoutSuccessURL: getEnv("CHECKOUT_SUCCESS_URL", ""),
		CheckoutCancelURL:  getEnv("CHECKOUT_CANCEL_URL", ""),

		ResendAPIKey: getEnv("RESEND_API_KEY", ""),
		MailFrom:     getEnv("MAIL_FROM", "PhotoLineArt <books@photolineart.app>"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RateLimitLimit:  getInt64("RATE_LIMIT_LIMIT", 30),
		RateLimitPeriod: getDuration("RATE_LIMIT_PERIOD", time.Minute),

		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		BaseURL:     strings.TrimSuffix(getEnv("BASE_URL", "http://localhost:8080"), "/"),
		PortalURL:   strings.TrimSuffix(getEnv("PORTAL_BASE_URL", "http://localhost:3000/p"), "/"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks only what the server cannot boot without. Provider tokens are
// checked per request so a missing one surfaces as MISCONFIGURED on the
// endpoint that needs it.
func (c *Config) Validate() error {
	switch c.BlobBackend {
	case "supabase":
		if c.SupabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL is required")
		}
		if c.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY is required")
		}
	case "memory":
	default:
		return fmt.Errorf("BLOB_BACKEND must be supabase or memory, got %q", c.BlobBackend)
	}
	if c.UploadSigningSecret == "" {
		if c.Environment == "production" {
			return fmt.Errorf("UPLOAD_SIGNING_SECRET is required")
		}
		c.UploadSigningSecret = "development-only-upload-signing-secret"
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return d
}
