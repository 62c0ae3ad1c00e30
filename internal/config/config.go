package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"spendly/internal/googleauth"
)

// Data and blob backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"

	BlobLocal = "local"
	BlobDrive = "drive"
)

const minSecretLength = 16

type Config struct {
	// HTTP Server
	Port        string
	CORSOrigins []string

	// Document store
	DataBackend    string
	SQLiteDBPath   string
	RequireIndexes bool

	// Blob store
	BlobBackend         string
	BlobDir             string
	BlobBaseURL         string
	GoogleDriveFolderID string

	// Spreadsheet mirror
	GoogleSpreadsheetID string
	GoogleSheetName     string
	Google              googleauth.Credentials

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Identity
	JWTSecret  string
	JWTIssuer  string
	SessionTTL time.Duration

	// Per-user state
	RatesURL             string
	RatesRefreshInterval time.Duration
	PrefsPath            string
	WorkspaceCacheSize   int
	WorkspaceTTL         time.Duration
	UploadURLTimeout     time.Duration
	// Realtime subscribes every workspace to live store updates.
	Realtime bool

	// Worker
	ResyncOnStart bool

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port:        getEnv("PORT", "8081"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),

		DataBackend:    getEnv("DATA_BACKEND", BackendMemory),
		SQLiteDBPath:   getEnv("SQLITE_DB_PATH", "./data/spendly.db"),
		RequireIndexes: getEnvBool("REQUIRE_INDEXES", false),

		BlobBackend:         getEnv("BLOB_BACKEND", BlobLocal),
		BlobDir:             getEnv("BLOB_DIR", "./data/files"),
		BlobBaseURL:         getEnv("BLOB_BASE_URL", "/files"),
		GoogleDriveFolderID: getEnv("GOOGLE_DRIVE_FOLDER_ID", ""),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Movimientos"),
		Google:              googleauth.FromEnv(),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "spendly"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "transaction_mirror"),

		JWTSecret:  getEnv("JWT_SECRET", ""),
		JWTIssuer:  getEnv("JWT_ISSUER", "spendly"),
		SessionTTL: getEnvDuration("SESSION_TTL", 7*24*time.Hour),

		RatesURL:             getEnv("RATES_URL", ""),
		RatesRefreshInterval: getEnvDuration("RATES_REFRESH_INTERVAL", time.Hour),
		PrefsPath:            getEnv("PREFS_PATH", "./data/prefs.json"),
		WorkspaceCacheSize:   getEnvInt("WORKSPACE_CACHE_SIZE", 256),
		WorkspaceTTL:         getEnvDuration("WORKSPACE_TTL", 30*time.Minute),
		UploadURLTimeout:     getEnvDuration("UPLOAD_URL_TIMEOUT", 15*time.Second),
		Realtime:             getEnvBool("REALTIME", false),

		ResyncOnStart: getEnvBool("RESYNC_ON_START", true),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Validate checks the configuration of the API server and returns an error
// listing every problem found.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	errors = c.validateStore(errors)

	switch c.BlobBackend {
	case BlobLocal:
		if c.BlobDir == "" {
			errors = append(errors, "blob directory cannot be empty when using local blob backend")
		}
	case BlobDrive:
		if c.GoogleDriveFolderID == "" {
			errors = append(errors, "GOOGLE_DRIVE_FOLDER_ID is required when using drive blob backend")
		}
		if !c.Google.Configured() {
			errors = append(errors, "Google credentials are required when using drive blob backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid blob backend '%s': must be one of [%s %s]", c.BlobBackend, BlobLocal, BlobDrive))
	}

	if c.AMQPURL != "" {
		errors = c.validateAMQP(errors)
	}

	if c.JWTSecret == "" {
		errors = append(errors, "JWT_SECRET is required")
	} else if len(c.JWTSecret) < minSecretLength {
		errors = append(errors, fmt.Sprintf("JWT_SECRET must be at least %d bytes", minSecretLength))
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	if c.RatesRefreshInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid rates refresh interval %v: must be at least 1 minute", c.RatesRefreshInterval))
	}
	if c.RatesURL != "" {
		if u, err := url.Parse(c.RatesURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid rates URL '%s': must be http or https", c.RatesURL))
		}
	}
	if c.PrefsPath == "" {
		errors = append(errors, "preferences path cannot be empty")
	}
	if c.WorkspaceCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid workspace cache size %d: must be at least 1", c.WorkspaceCacheSize))
	}
	if c.WorkspaceTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid workspace TTL %v: must be at least 1 second", c.WorkspaceTTL))
	}
	if c.UploadURLTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid upload URL timeout %v: must be positive", c.UploadURLTimeout))
	}

	errors = c.validateLogging(errors)
	return combine(errors)
}

// ValidateWorker checks the configuration of the mirror worker, which needs
// the store and the broker but no HTTP or identity settings.
func (c *Config) ValidateWorker() error {
	var errors []string

	errors = c.validateStore(errors)
	if c.DataBackend == BackendMemory {
		// A memory store is private to its process, so the worker would never
		// see the server's documents.
		errors = append(errors, "the worker needs a shared data backend, not memory")
	}
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the worker")
	} else {
		errors = c.validateAMQP(errors)
	}
	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet is configured")
		}
		if !c.Google.Configured() {
			errors = append(errors, "Google credentials are required when a spreadsheet is configured")
		}
	}

	errors = c.validateLogging(errors)
	return combine(errors)
}

func (c *Config) validateStore(errors []string) []string {
	switch c.DataBackend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of [%s %s]", c.DataBackend, BackendMemory, BackendSQLite))
	}
	return errors
}

func (c *Config) validateAMQP(errors []string) []string {
	if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
	} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
	}
	if c.AMQPExchange == "" {
		errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
	}
	return errors
}

func (c *Config) validateLogging(errors []string) []string {
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}
	return errors
}

func combine(errors []string) error {
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
