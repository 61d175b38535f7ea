// Package config handles environment variable parsing and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// AuthMode represents the SSH authentication mode.
type AuthMode string

const (
	AuthModeAllowlist AuthMode = "allowlist"
	AuthModePublic    AuthMode = "public"
)

// StorageBackend selects where persistent session state is kept.
type StorageBackend string

const (
	StorageFile   StorageBackend = "file"
	StorageRedis  StorageBackend = "redis"
	StorageMemory StorageBackend = "memory"
)

// Config holds all application configuration.
type Config struct {
	// SSH server settings
	SSHAddr        string
	SSHHostKeyPath string
	SSHAuthMode    AuthMode
	AllowlistPath  string

	// Storefront API settings
	StoreBaseURL   string
	StoreAPIPrefix string
	CSRFToken      string
	HTTPTimeout    time.Duration
	CountriesURL   string

	// Catalog cache settings
	CacheTTL time.Duration

	// Currency settings
	BaseCurrency    string
	DisplayCurrency string
	FXURL           string
	FXTTL           time.Duration
	FXDefaultRate   decimal.Decimal

	// Payment settings
	PaymentCurrency string
	BrandName       string

	// Persistent storage settings
	StorageBackend StorageBackend
	StorageDir     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		SSHAddr:         getEnv("SSH_ADDR", ":23234"),
		SSHHostKeyPath:  getEnv("SSH_HOSTKEY_PATH", "./.ssh_host_ed25519_key"),
		SSHAuthMode:     AuthMode(getEnv("SSH_AUTH_MODE", "allowlist")),
		AllowlistPath:   getEnv("SSH_ALLOWLIST_PATH", "./allowlist_authorized_keys"),
		StoreBaseURL:    getEnv("STORE_BASE_URL", "http://127.0.0.1:18080"),
		StoreAPIPrefix:  getEnv("STORE_API_PREFIX", "/api"),
		CSRFToken:       os.Getenv("STORE_CSRF_TOKEN"),
		CountriesURL:    getEnv("COUNTRIES_URL", "https://restcountries.com/v3.1/all"),
		BaseCurrency:    getEnv("BASE_CURRENCY", "GBP"),
		DisplayCurrency: getEnv("DISPLAY_CURRENCY", "USD"),
		FXURL:           getEnv("FX_URL", "https://api.exchangerate.host/latest"),
		PaymentCurrency: getEnv("PAYMENT_CURRENCY", "USD"),
		BrandName:       getEnv("BRAND_NAME", "Store"),
		StorageBackend:  StorageBackend(getEnv("STORAGE_BACKEND", "file")),
		StorageDir:      getEnv("STORAGE_DIR", "./data"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "console"),
	}

	var err error
	if cfg.CacheTTL, err = getEnvSeconds("CACHE_TTL_SECONDS", 60); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getEnvSeconds("HTTP_TIMEOUT_SECONDS", 15); err != nil {
		return nil, err
	}
	if cfg.FXTTL, err = getEnvSeconds("FX_TTL_SECONDS", 3600); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	cfg.FXDefaultRate, err = decimal.NewFromString(getEnv("FX_DEFAULT_RATE", "1.25"))
	if err != nil || !cfg.FXDefaultRate.IsPositive() {
		return nil, errors.New("FX_DEFAULT_RATE must be a positive number")
	}

	// Validate auth mode
	if cfg.SSHAuthMode != AuthModeAllowlist && cfg.SSHAuthMode != AuthModePublic {
		return nil, errors.New("SSH_AUTH_MODE must be 'allowlist' or 'public'")
	}

	switch cfg.StorageBackend {
	case StorageFile, StorageRedis, StorageMemory:
	default:
		return nil, errors.New("STORAGE_BACKEND must be 'file', 'redis' or 'memory'")
	}

	return cfg, nil
}

// APIBaseURL is the origin plus the API prefix.
func (c *Config) APIBaseURL() string {
	return c.StoreBaseURL + c.StoreAPIPrefix
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer", key)
	}
	return n, nil
}

func getEnvSeconds(key string, defaultSeconds int) (time.Duration, error) {
	n, err := getEnvInt(key, defaultSeconds)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return time.Duration(n) * time.Second, nil
}
