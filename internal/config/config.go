package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Port              int
	LogLevel          string
	LogFormat         string
	StoreDriver       string
	DatabaseURL       string
	SQLitePath        string
	AllowedOrigins    []string
	WriteTimeout      time.Duration
	SendQueueSize     int
	InactivityTimeout time.Duration
	RateLimit         int
	RateWindow        time.Duration
	BcryptCost        int
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		Port:              8080,
		LogLevel:          "info",
		LogFormat:         "json",
		StoreDriver:       DriverMemory,
		SQLitePath:        "./data/chess.db",
		AllowedOrigins:    []string{"*"},
		WriteTimeout:      5 * time.Second,
		SendQueueSize:     32,
		InactivityTimeout: 10 * time.Minute,
		RateLimit:         20,
		RateWindow:        time.Second,
		BcryptCost:        bcrypt.DefaultCost,
	}
}

// Load reads the process environment on top of Default.
func Load() (Config, error) {
	cfg := Default()
	var err error

	if cfg.Port, err = intVar("PORT", cfg.Port); err != nil {
		return cfg, err
	}
	cfg.LogLevel = stringVar("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = stringVar("LOG_FORMAT", cfg.LogFormat)
	cfg.StoreDriver = strings.ToLower(stringVar("STORE_DRIVER", cfg.StoreDriver))
	cfg.DatabaseURL = stringVar("DATABASE_URL", cfg.DatabaseURL)
	cfg.SQLitePath = stringVar("SQLITE_PATH", cfg.SQLitePath)
	if v, ok := os.LookupEnv("ALLOWED_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	if cfg.WriteTimeout, err = durationVar("WRITE_TIMEOUT", cfg.WriteTimeout); err != nil {
		return cfg, err
	}
	if cfg.SendQueueSize, err = intVar("SEND_QUEUE_SIZE", cfg.SendQueueSize); err != nil {
		return cfg, err
	}
	if cfg.InactivityTimeout, err = durationVar("INACTIVITY_TIMEOUT", cfg.InactivityTimeout); err != nil {
		return cfg, err
	}
	if cfg.RateLimit, err = intVar("RATE_LIMIT", cfg.RateLimit); err != nil {
		return cfg, err
	}
	if cfg.RateWindow, err = durationVar("RATE_WINDOW", cfg.RateWindow); err != nil {
		return cfg, err
	}
	if cfg.BcryptCost, err = intVar("BCRYPT_COST", cfg.BcryptCost); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the %s driver", DriverPostgres)
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("config: SEND_QUEUE_SIZE must be positive")
	}
	if c.RateLimit <= 0 || c.RateWindow <= 0 {
		return fmt.Errorf("config: RATE_LIMIT and RATE_WINDOW must be positive")
	}
	if c.WriteTimeout <= 0 || c.InactivityTimeout <= 0 {
		return fmt.Errorf("config: timeouts must be positive")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("config: BCRYPT_COST %d out of range", c.BcryptCost)
	}
	return nil
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func stringVar(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intVar(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func durationVar(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
