package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"qbeAdmin/internal/logging"
)

type Config struct {
	GoogleClientID     string
	GoogleClientSecret string
	SessionSecret      []byte
	RedirectURL        string
	DatabasePath       string
	Port               string
	SessionMaxAge      int
	SessionStore       string
	SessionDir         string
	LogLevel           string
	Environment        string
	QBEFormURL         string
	QBEResultsURL      string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// LoadConfig reads the environment, after .env when one exists. Values that
// only the server needs are checked by Validate.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logging.Info().Msg("No .env file found, using system environment variables")
	}

	config := &Config{
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		SessionSecret:      []byte(os.Getenv("SESSION_SECRET")),
	}

	config.RedirectURL = getEnvWithDefault("REDIRECT_URL", "http://localhost:8080/auth/callback")
	config.DatabasePath = getEnvWithDefault("DATABASE_PATH", "./qbe_admin.db")
	config.Port = getEnvWithDefault("PORT", "8080")
	config.SessionStore = getEnvWithDefault("SESSION_STORE", "cookie")
	config.SessionDir = getEnvWithDefault("SESSION_DIR", "")
	config.LogLevel = getEnvWithDefault("LOG_LEVEL", "INFO")
	config.Environment = getEnvWithDefault("ENVIRONMENT", "development")
	config.QBEFormURL = getEnvWithDefault("QBE_FORM_URL", "/qbe/")
	config.QBEResultsURL = getEnvWithDefault("QBE_RESULTS_URL", "/qbe/results/")

	maxAge, err := strconv.Atoi(getEnvWithDefault("SESSION_MAX_AGE", "86400"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_MAX_AGE: %v", err)
	}
	config.SessionMaxAge = maxAge

	rps, err := strconv.ParseFloat(getEnvWithDefault("RATE_LIMIT_RPS", "5"), 64)
	if err != nil || rps <= 0 {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %q", os.Getenv("RATE_LIMIT_RPS"))
	}
	config.RateLimitRPS = rps

	burst, err := strconv.Atoi(getEnvWithDefault("RATE_LIMIT_BURST", "20"))
	if err != nil || burst <= 0 {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %q", os.Getenv("RATE_LIMIT_BURST"))
	}
	config.RateLimitBurst = burst

	switch config.SessionStore {
	case "cookie", "filesystem":
	default:
		return nil, fmt.Errorf("SESSION_STORE must be cookie or filesystem, got %q", config.SessionStore)
	}

	return config, nil
}

// Validate checks what serve needs on top of LoadConfig.
func (c *Config) Validate() error {
	if len(c.SessionSecret) == 0 {
		return fmt.Errorf("SESSION_SECRET environment variable is required")
	}
	if len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 characters long")
	}
	if c.GoogleClientID == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID environment variable is required")
	}
	if c.GoogleClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_SECRET environment variable is required")
	}
	return nil
}

// IsProduction reports whether cookies must be marked Secure.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
