package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

var validBackends = []string{"memory", "sqlite", "postgres"}

type Config struct {
	// HTTP Server
	Port string

	// Backend selection
	DataBackend string
	DataFixture string

	// Database
	SQLiteDBPath string
	PostgresDSN  string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Redis lock
	RedisAddr     string
	RedisPassword string
	LockTTL       time.Duration

	// Generation
	GenerationConcurrency int
	DebounceWindow        time.Duration
	ScheduleEnabled       bool
	ScheduleTime          string
	PredictionWindow      int
	PredictionMinPoints   int
	WarningThresholdPct   int
	ProfileCacheTTL       time.Duration

	// Google Sheets publisher
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend: getEnv("DATA_BACKEND", "memory"),
		DataFixture: getEnv("DATA_FIXTURE", ""),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/rundown.db"),
		PostgresDSN:  getEnv("POSTGRES_DSN", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "rundown"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "project_changes"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		LockTTL:       getEnvDuration("LOCK_TTL", 2*time.Minute),

		GenerationConcurrency: getEnvInt("GENERATION_CONCURRENCY", 4),
		DebounceWindow:        getEnvDuration("DEBOUNCE_WINDOW", 2*time.Second),
		ScheduleEnabled:       getEnvBool("SCHEDULE_ENABLED", true),
		ScheduleTime:          getEnv("SCHEDULE_TIME", "02:00"),
		PredictionWindow:      getEnvInt("PREDICTION_WINDOW", 6),
		PredictionMinPoints:   getEnvInt("PREDICTION_MIN_POINTS", 3),
		WarningThresholdPct:   getEnvInt("WARNING_THRESHOLD_PCT", 10),
		ProfileCacheTTL:       getEnvDuration("PROFILE_CACHE_TTL", 5*time.Minute),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Rundown"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "postgres":
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
		} else if u, err := url.Parse(c.PostgresDSN); err == nil && u.Scheme != "" && u.Scheme != "postgres" && u.Scheme != "postgresql" {
			errors = append(errors, fmt.Sprintf("invalid postgres DSN scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme))
		}
	}

	if c.DataFixture != "" {
		if _, err := os.Stat(c.DataFixture); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("data fixture file does not exist: %s", c.DataFixture))
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
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
	}

	if c.RedisAddr != "" && c.LockTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid lock TTL %v: must be at least 1 second", c.LockTTL))
	}

	// Validate generation settings
	if c.GenerationConcurrency < 1 || c.GenerationConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid generation concurrency %d: must be between 1 and 64", c.GenerationConcurrency))
	}
	if c.DebounceWindow < 0 || c.DebounceWindow > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid debounce window %v: must be between 0 and 1 hour", c.DebounceWindow))
	}
	if c.ScheduleEnabled {
		if _, _, err := ParseClock(c.ScheduleTime); err != nil {
			errors = append(errors, fmt.Sprintf("invalid schedule time '%s': %v", c.ScheduleTime, err))
		}
	}
	if c.PredictionWindow < 2 {
		errors = append(errors, fmt.Sprintf("invalid prediction window %d: must be at least 2", c.PredictionWindow))
	}
	if c.PredictionMinPoints < 2 {
		errors = append(errors, fmt.Sprintf("invalid prediction min points %d: must be at least 2", c.PredictionMinPoints))
	} else if c.PredictionMinPoints > c.PredictionWindow {
		errors = append(errors, fmt.Sprintf("invalid prediction min points %d: must not exceed the window of %d", c.PredictionMinPoints, c.PredictionWindow))
	}
	if c.WarningThresholdPct < 0 {
		errors = append(errors, fmt.Sprintf("invalid warning threshold %d%%: must not be negative", c.WarningThresholdPct))
	}
	if c.ProfileCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid profile cache TTL %v: must not be negative", c.ProfileCacheTTL))
	}

	// Validate Google Sheets configuration if publishing is enabled
	if c.SheetsPublishing() {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when GOOGLE_SPREADSHEET_ID is set")
		}

		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets publishing")
		} else if c.GoogleServiceAccountJSON == "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// SheetsPublishing reports whether baseline profiles are pushed to Google Sheets.
func (c *Config) SheetsPublishing() bool {
	return c.GoogleSpreadsheetID != ""
}

// ParseClock parses an HH:MM wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM")
	}
	return t.Hour(), t.Minute(), nil
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
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
