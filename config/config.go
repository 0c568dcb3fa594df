package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Stripe        StripeConfig
	ElectionStore ElectionStoreConfig
	Pricing       PricingConfig
	Reconcile     ReconcileConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings for the attempt journal.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings (ledger, queue, flags).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// StripeConfig for the payment gateway.
type StripeConfig struct {
	SecretKey  string
	MaxRetries int // retries for transient gateway failures
}

// ElectionStoreConfig points at the external election persistence service.
type ElectionStoreConfig struct {
	BaseURL    string
	TimeoutSec int
	MaxRetries int // retries before falling back to the local ledger
}

// PricingConfig fixes the per-deployment seat price.
type PricingConfig struct {
	PricePerSeatCents int64
	Currency          string
}

// ReconcileConfig tunes the fallback reconciliation loop.
type ReconcileConfig struct {
	SweepIntervalSec int
	InflightTTLSec   int
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "safeballot"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Stripe: StripeConfig{
			SecretKey:  getEnv("STRIPE_SECRET_KEY", ""),
			MaxRetries: getEnvInt("STRIPE_MAX_RETRIES", 3),
		},
		ElectionStore: ElectionStoreConfig{
			BaseURL:    getEnv("ELECTION_STORE_URL", "http://localhost:9090"),
			TimeoutSec: getEnvInt("ELECTION_STORE_TIMEOUT_SEC", 10),
			MaxRetries: getEnvInt("ELECTION_STORE_MAX_RETRIES", 3),
		},
		Pricing: PricingConfig{
			PricePerSeatCents: int64(getEnvInt("PRICE_PER_SEAT_CENTS", 10)),
			Currency:          getEnv("PRICE_CURRENCY", "usd"),
		},
		Reconcile: ReconcileConfig{
			SweepIntervalSec: getEnvInt("RECONCILE_SWEEP_INTERVAL_SEC", 60),
			InflightTTLSec:   getEnvInt("RECONCILE_INFLIGHT_TTL_SEC", 60),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
