// Package config reads the service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/govalues/money"
)

type Config struct {
	HTTPAddr       string
	DatabaseURL    string
	MigrateOnStart bool
	DevSeed        bool

	LogLevel  slog.Level
	LogFormat string // json or text

	Currency  string
	TxTimeout time.Duration

	SweepInterval time.Duration
	SweepBatch    int
	SweepWorkers  int

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

// Load reads the process environment.
func Load() (Config, error) { return LoadFrom(os.LookupEnv) }

// LoadFrom reads configuration through lookup. Unset variables take their
// defaults; malformed ones are an error naming the variable.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}
	cfg := Config{
		HTTPAddr:       r.str("HTTP_ADDR", ":8080"),
		DatabaseURL:    r.str("DATABASE_URL", ""),
		MigrateOnStart: r.boolean("MIGRATE_ON_START", true),
		DevSeed:        r.boolean("DEV_SEED", false),
		LogLevel:       r.level("LOG_LEVEL", slog.LevelInfo),
		LogFormat:      strings.ToLower(r.str("LOG_FORMAT", "json")),
		Currency:       strings.ToUpper(r.str("LEDGER_CURRENCY", "USD")),
		TxTimeout:      r.duration("STORE_TX_TIMEOUT", 5*time.Second),
		SweepInterval:  r.duration("RECURRING_SWEEP_INTERVAL", time.Hour),
		SweepBatch:     r.integer("RECURRING_SWEEP_BATCH", 100),
		SweepWorkers:   r.integer("RECURRING_SWEEP_WORKERS", 4),
		JWTSecret:      r.str("JWT_HS256_SECRET", ""),
		JWTIssuer:      r.str("JWT_ISSUER", ""),
		JWTAudience:    r.str("JWT_AUDIENCE", ""),
	}
	if r.err != nil {
		return Config{}, r.err
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return Config{}, fmt.Errorf("LOG_FORMAT: want json or text, got %q", cfg.LogFormat)
	}
	if _, err := money.ParseCurr(cfg.Currency); err != nil {
		return Config{}, fmt.Errorf("LEDGER_CURRENCY: %w", err)
	}
	if cfg.TxTimeout <= 0 {
		return Config{}, fmt.Errorf("STORE_TX_TIMEOUT: must be positive")
	}
	if cfg.SweepInterval < 0 {
		return Config{}, fmt.Errorf("RECURRING_SWEEP_INTERVAL: must not be negative")
	}
	if cfg.SweepBatch <= 0 || cfg.SweepWorkers <= 0 {
		return Config{}, fmt.Errorf("RECURRING_SWEEP_BATCH and RECURRING_SWEEP_WORKERS must be positive")
	}
	return cfg, nil
}

// Logger builds the slog logger described by the config.
func (c Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// reader keeps the first parse error so Load can report it once.
type reader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%s: %w", key, err)
	}
}

func (r *reader) boolean(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	r.fail(key, fmt.Errorf("not a boolean: %q", v))
	return def
}

func (r *reader) integer(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	if v == "0" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return d
}

func (r *reader) level(key string, def slog.Level) slog.Level {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	}
	r.fail(key, fmt.Errorf("unknown level %q", v))
	return def
}
