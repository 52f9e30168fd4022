// Package config loads gateway configuration from environment variables,
// 12-factor style.
package config

import (
	"os"
	"strconv"

	"github.com/TimMatthis/auzguard/pkg/store"
)

// Config holds server configuration.
type Config struct {
	Port     string
	LogLevel string

	DatabaseDriver store.Driver
	DatabaseURL    string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	HashSalt          string
	DefaultModelPool  string
	StubModelGarden   bool
	OTLPEndpoint      string
	TelemetryEnabled  bool
	S3AuditBucket     string
}

// Load loads configuration from environment variables, applying safe
// development defaults where a variable is unset.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	driver := store.Driver(os.Getenv("DATABASE_DRIVER"))
	if driver == "" {
		driver = store.DriverSQLite
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "file:auzguard.db?cache=shared"
	}

	hashSalt := os.Getenv("HASH_SALT")
	if hashSalt == "" {
		hashSalt = "dev-only-hash-salt-change-in-production"
	}

	defaultPool := os.Getenv("DEFAULT_MODEL_POOL")
	if defaultPool == "" {
		defaultPool = "default"
	}

	return &Config{
		Port:             port,
		LogLevel:         logLevel,
		DatabaseDriver:   driver,
		DatabaseURL:      dbURL,
		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTIssuer:        os.Getenv("JWT_ISSUER"),
		JWTAudience:      os.Getenv("JWT_AUDIENCE"),
		HashSalt:         hashSalt,
		DefaultModelPool: defaultPool,
		StubModelGarden:  envBool("MODEL_GARDEN_STUB_RESPONSES", true),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryEnabled: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "",
		S3AuditBucket:    os.Getenv("AUDIT_EXPORT_S3_BUCKET"),
	}
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
