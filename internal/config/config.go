// Package config reads runtime settings from the environment, optionally
// seeded from a local .env file.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultMaxPerUser is the per-user per-event confirmed quantity cap.
const DefaultMaxPerUser = 5

// Config holds every setting the service needs at startup.
type Config struct {
	Port string

	DB DBConfig

	// MaxPerUser caps the confirmed quantity one user may hold for one event.
	MaxPerUser int

	JWTSecret string

	Redis     RedisConfig
	RateLimit RateLimitConfig

	// AMQPURL enables the RabbitMQ audit sink when set.
	AMQPURL    string
	AuditQueue string

	MigrateOnStart bool
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32

	// LockTimeout bounds how long a transaction waits for a row lock.
	LockTimeout time.Duration
	// StatementTimeout bounds any single statement.
	StatementTimeout time.Duration
}

// DSN builds a libpq-compatible connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig locates the Redis server used for rate limiting.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig controls the token bucket on booking writes.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillInterval time.Duration
	Prefix         string
}

// Load reads a .env file if present and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] ignoring .env: %v", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables, falling back to
// local-development defaults.
func FromEnv() Config {
	cfg := Config{
		Port: getEnv("PORT", "8080"),
		DB: DBConfig{
			Host:             getEnv("DB_HOST", "localhost"),
			Port:             getEnv("DB_PORT", "5432"),
			User:             getEnv("DB_USER", "postgres"),
			Password:         getEnv("DB_PASSWORD", "postgres"),
			Name:             getEnv("DB_NAME", "eventbooking"),
			SSLMode:          getEnv("DB_SSLMODE", "disable"),
			MaxConns:         int32(envInt("DB_MAX_CONNS", 20)),
			LockTimeout:      envDur("DB_LOCK_TIMEOUT", 5*time.Second),
			StatementTimeout: envDur("DB_STATEMENT_TIMEOUT", 10*time.Second),
		},
		MaxPerUser: envInt("BOOKING_MAX_PER_USER", DefaultMaxPerUser),
		JWTSecret:  getEnv("JWT_SECRET", ""),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:        envBool("RATE_LIMIT_ENABLED", true),
			Capacity:       envInt("RATE_LIMIT_CAPACITY", 20),
			RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
			Prefix:         getEnv("RATE_LIMIT_PREFIX", "rl"),
		},
		AMQPURL:        getEnv("AMQP_URL", ""),
		AuditQueue:     getEnv("AUDIT_QUEUE", "audit.activity"),
		MigrateOnStart: envBool("MIGRATE_ON_START", true),
	}

	if cfg.MaxPerUser < 1 {
		cfg.MaxPerUser = DefaultMaxPerUser
	}
	if cfg.DB.MaxConns < 1 {
		cfg.DB.MaxConns = 20
	}
	if cfg.RateLimit.Capacity < 1 {
		cfg.RateLimit.Capacity = 1
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
