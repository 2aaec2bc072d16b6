package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName       = "CargoLink Settlement"
	defaultAppEnv        = "development"
	defaultPort          = "8080"
	defaultLogLevel      = "info"
	defaultShutdownDelay = 10 * time.Second
	defaultIdemTTL       = 24 * time.Hour
	defaultSweepInterval = 5 * time.Minute
	defaultEscrowReserve = "2.5"
	defaultNetTimeout    = 30 * time.Second
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// Card gateway.
	GatewayAPIKey        string
	GatewayWebhookSecret string
	GatewayBaseURL       string
	GatewayTimeout       time.Duration

	// Settlement network.
	HorizonURL        string
	NetworkPassphrase string
	HorizonTimeout    time.Duration
	PlatformAccount   string

	// Escrow.
	EscrowReserve    string
	EscrowSweepEvery time.Duration

	// Key sealing settlement-account secrets at rest.
	AccountSealKey    [32]byte
	accountSealKeySet bool
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:              getEnv("APP_NAME", defaultAppName),
		AppEnv:               getEnv("APP_ENV", defaultAppEnv),
		Port:                 getEnv("PORT", defaultPort),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		ShutdownPeriod:       defaultShutdownDelay,
		IdempotencyTTL:       defaultIdemTTL,
		GatewayAPIKey:        os.Getenv("GATEWAY_API_KEY"),
		GatewayWebhookSecret: os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		GatewayBaseURL:       getEnv("GATEWAY_BASE_URL", "https://api.stripe.com"),
		GatewayTimeout:       defaultNetTimeout,
		HorizonURL:           getEnv("HORIZON_URL", "https://horizon-testnet.stellar.org"),
		NetworkPassphrase:    getEnv("NETWORK_PASSPHRASE", "Test SDF Network ; September 2015"),
		HorizonTimeout:       defaultNetTimeout,
		PlatformAccount:      os.Getenv("PLATFORM_ACCOUNT"),
		EscrowReserve:        getEnv("ESCROW_RESERVE", defaultEscrowReserve),
		EscrowSweepEvery:     defaultSweepInterval,
	}

	if v := os.Getenv("SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownPeriod = d
	}

	for _, dur := range []struct {
		env string
		dst *time.Duration
	}{
		{"IDEMPOTENCY_TTL", &cfg.IdempotencyTTL},
		{"ESCROW_SWEEP_INTERVAL", &cfg.EscrowSweepEvery},
		{"HORIZON_TIMEOUT", &cfg.HorizonTimeout},
		{"GATEWAY_TIMEOUT", &cfg.GatewayTimeout},
	} {
		if v := os.Getenv(dur.env); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", dur.env, err)
			}
			*dur.dst = d
		}
	}

	if v := os.Getenv("ACCOUNT_SEAL_KEY"); v != "" {
		raw, err := hex.DecodeString(v)
		if err != nil || len(raw) != 32 {
			return Config{}, fmt.Errorf("ACCOUNT_SEAL_KEY must be 32 hex-encoded bytes")
		}
		copy(cfg.AccountSealKey[:], raw)
		cfg.accountSealKeySet = true
	}

	// A dev process may run without Postgres and Redis; stores fall back
	// to in-memory and idempotency keys are not enforced.
	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
	}
	if !cfg.accountSealKeySet {
		return Config{}, fmt.Errorf("ACCOUNT_SEAL_KEY must be set")
	}

	return cfg, nil
}

// IsDev reports whether the process runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
