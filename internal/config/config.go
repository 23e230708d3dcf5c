package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreFirestore = "firestore"
	StoreMemory    = "memory"
)

// Config is the process-wide configuration, read once at startup.
type Config struct {
	Env      string
	LogLevel string
	Port     string

	ProjectID           string
	FirestoreDatabase   string
	StoreBackend        string
	CredentialsFile     string
	PushEnabled         bool
	NotificationIcon    string
	ArchiveBucket       string
	ExportDataset       string
	IdentityTimeout     time.Duration
	TokenStaleAfter     time.Duration
	QueueBuffer         int
	QueueWorkers        int
	JobMaxRetries       int
	ShutdownGracePeriod time.Duration
}

// Production reports whether ENV=production.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// Load reads an optional .env file and then the environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary variable source.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := &Config{
		Env:               get("ENV", "development"),
		LogLevel:          get("LOG_LEVEL", ""),
		Port:              get("PORT", "8080"),
		ProjectID:         get("GCP_PROJECT", ""),
		FirestoreDatabase: get("FIRESTORE_DATABASE", ""),
		StoreBackend:      get("STORE_BACKEND", StoreFirestore),
		CredentialsFile:   get("FIREBASE_CREDENTIALS", ""),
		NotificationIcon:  get("NOTIFICATION_ICON", "images/icon.png"),
		ArchiveBucket:     get("ARCHIVE_BUCKET", ""),
		ExportDataset:     get("EXPORT_DATASET", ""),
	}

	var err error
	if cfg.PushEnabled, err = strconv.ParseBool(get("PUSH_ENABLED", "false")); err != nil {
		return nil, fmt.Errorf("config: PUSH_ENABLED: %w", err)
	}
	if cfg.IdentityTimeout, err = time.ParseDuration(get("IDENTITY_TIMEOUT", "10s")); err != nil {
		return nil, fmt.Errorf("config: IDENTITY_TIMEOUT: %w", err)
	}
	if cfg.TokenStaleAfter, err = time.ParseDuration(get("TOKEN_STALE_AFTER", "720h")); err != nil {
		return nil, fmt.Errorf("config: TOKEN_STALE_AFTER: %w", err)
	}
	if cfg.ShutdownGracePeriod, err = time.ParseDuration(get("SHUTDOWN_GRACE_PERIOD", "30s")); err != nil {
		return nil, fmt.Errorf("config: SHUTDOWN_GRACE_PERIOD: %w", err)
	}
	if cfg.QueueBuffer, err = strconv.Atoi(get("QUEUE_BUFFER", "100")); err != nil {
		return nil, fmt.Errorf("config: QUEUE_BUFFER: %w", err)
	}
	if cfg.QueueWorkers, err = strconv.Atoi(get("QUEUE_WORKERS", "5")); err != nil {
		return nil, fmt.Errorf("config: QUEUE_WORKERS: %w", err)
	}
	if cfg.JobMaxRetries, err = strconv.Atoi(get("JOB_MAX_RETRIES", "3")); err != nil {
		return nil, fmt.Errorf("config: JOB_MAX_RETRIES: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreFirestore, StoreMemory:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	needsProject := c.StoreBackend == StoreFirestore || c.PushEnabled || c.ExportDataset != ""
	if needsProject && c.ProjectID == "" {
		return fmt.Errorf("config: GCP_PROJECT is required for the configured backends")
	}
	if c.TokenStaleAfter <= 0 {
		return fmt.Errorf("config: TOKEN_STALE_AFTER must be positive")
	}
	if c.QueueWorkers < 1 {
		return fmt.Errorf("config: QUEUE_WORKERS must be at least 1")
	}
	if c.QueueBuffer < 0 || c.JobMaxRetries < 0 {
		return fmt.Errorf("config: QUEUE_BUFFER and JOB_MAX_RETRIES must not be negative")
	}
	return nil
}
