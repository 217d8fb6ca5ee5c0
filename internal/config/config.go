// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env             string // application environment (e.g. "dev", "prod")
	Port            string // HTTP port to listen on
	LogLevel        string // debug, info, warn or error
	LogFormat       string // text or json
	DBDriver        string // "mysql" or "sqlite3"
	DBPath          string // sqlite file path (sqlite3 only)
	DBUser          string
	DBPass          string // may be empty
	DBHost          string
	DBPort          string
	DBName          string
	AutoMigrate     bool   // apply the embedded schema on startup
	JWTSecret       string // secret used to sign JWTs
	AccessTTLMin    int    // access token time-to-live in minutes
	RefreshTTLDays  int    // refresh token time-to-live in days
	BcryptCost      int
	AdminSignupCode string // required to register an ADMIN account; empty disables admin signup
	AMQPURL         string // RabbitMQ url; empty disables notifications
	NotifyConsumer  bool   // run the notification consumer inside the server
	NotifyDir       string // directory notification records are written to
}

// Load reads configuration values from the environment. A .env file in the
// working directory, when present, is loaded first without overriding
// variables that are already set.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var errs []error
	cfg := Config{
		Env:             envStr("APP_ENV", "dev"),
		Port:            envStr("APP_PORT", "8080"),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		LogFormat:       envStr("LOG_FORMAT", "text"),
		DBDriver:        strings.ToLower(envStr("DB_DRIVER", "mysql")),
		DBPath:          envStr("DB_PATH", "portal.db"),
		DBPass:          os.Getenv("DB_PASS"),
		AutoMigrate:     envBool("DB_AUTO_MIGRATE", false),
		JWTSecret:       must("JWT_SECRET", &errs),
		AccessTTLMin:    mustInt("ACCESS_TOKEN_TTL_MIN", &errs),
		RefreshTTLDays:  mustInt("REFRESH_TOKEN_TTL_DAYS", &errs),
		BcryptCost:      envInt("BCRYPT_COST", 12),
		AdminSignupCode: os.Getenv("ADMIN_SIGNUP_CODE"),
		AMQPURL:         os.Getenv("AMQP_URL"),
		NotifyConsumer:  envBool("NOTIFY_CONSUMER_ENABLED", true),
		NotifyDir:       envStr("NOTIFY_DIR", "logs"),
	}

	switch cfg.DBDriver {
	case "mysql":
		cfg.DBUser = must("DB_USER", &errs)
		cfg.DBHost = must("DB_HOST", &errs)
		cfg.DBPort = must("DB_PORT", &errs)
		cfg.DBName = must("DB_NAME", &errs)
	case "sqlite3", "sqlite":
		cfg.DBDriver = "sqlite3"
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER: %q", cfg.DBDriver))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// must retrieves a required environment variable, recording an error when it
// is unset or empty.
func must(key string, errs *[]error) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		*errs = append(*errs, fmt.Errorf("missing required env var: %s", key))
	}
	return v
}

// mustInt is like must but converts the value to an integer.
func mustInt(key string, errs *[]error) int {
	s := must(key, errs)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid int for %s: %q", key, s))
	}
	return n
}
