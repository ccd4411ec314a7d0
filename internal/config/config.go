package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the store migration service
type Config struct {
	// Server
	Port        string
	Environment string

	// Database
	DatabaseURL string

	// GCP
	GCPProjectID string

	// Checkout Service
	CheckoutBaseURL string

	// Migration Settings
	MigrationBatchSize int
	MigrationTimeout   time.Duration
	MaxActiveBatches   int

	// Source Rate Limiting (requests per second against source stores)
	SourceRateLimit float64
	ScrapeRateLimit float64

	// CORS
	CORSAllowedOrigins []string
}

// Load reads configuration from the environment
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8099")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "store_migration")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("MIGRATION_BATCH_SIZE", 250)
	v.SetDefault("MIGRATION_TIMEOUT", "30m")
	v.SetDefault("MAX_ACTIVE_BATCHES", 3)
	v.SetDefault("SOURCE_RATE_LIMIT", 4.0)
	v.SetDefault("SCRAPE_RATE_LIMIT", 1.0)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	databaseURL := v.GetString("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			v.GetString("DB_USER"),
			v.GetString("DB_PASSWORD"),
			v.GetString("DB_HOST"),
			v.GetString("DB_PORT"),
			v.GetString("DB_NAME"),
			v.GetString("DB_SSLMODE"),
		)
	}

	checkoutBaseURL := v.GetString("CHECKOUT_BASE_URL")
	if checkoutBaseURL == "" {
		return nil, fmt.Errorf("CHECKOUT_BASE_URL is required")
	}

	config := &Config{
		Port:               v.GetString("PORT"),
		Environment:        v.GetString("ENVIRONMENT"),
		DatabaseURL:        databaseURL,
		GCPProjectID:       v.GetString("GCP_PROJECT_ID"),
		CheckoutBaseURL:    checkoutBaseURL,
		MigrationBatchSize: v.GetInt("MIGRATION_BATCH_SIZE"),
		MigrationTimeout:   v.GetDuration("MIGRATION_TIMEOUT"),
		MaxActiveBatches:   v.GetInt("MAX_ACTIVE_BATCHES"),
		SourceRateLimit:    v.GetFloat64("SOURCE_RATE_LIMIT"),
		ScrapeRateLimit:    v.GetFloat64("SCRAPE_RATE_LIMIT"),
		CORSAllowedOrigins: splitOrigins(v.GetString("CORS_ALLOWED_ORIGINS")),
	}

	return config, nil
}

// IsProduction reports whether the service runs with production settings
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
