package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all runtime configuration, loaded from the environment.
type Config struct {
	ProjectID          string
	VertexAIRegion     string
	ArchiveBucket      string
	CollectionName     string
	DeadlineCollection string

	// CredentialsFile overrides application default credentials when set.
	CredentialsFile string

	DataDir       string
	VerifyBaseURL string
	ListenAddr    string

	ProbeURL      string
	ProbeTimeout  time.Duration
	DrainInterval time.Duration

	PDFTargetBytes    int64
	ImageTargetBytes  int64
	ImageMaxDimension int

	// AllowWeekdayComplianceFallback enables the day-of-week compliance
	// guess when no deadline record resolves. It is a weak default kept
	// for parity with observed behavior, not a policy.
	AllowWeekdayComplianceFallback bool
}

// GetEnv reads an environment variable or returns a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// Load builds a Config from the environment and validates it.
func Load() (*Config, error) {
	projectID := GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	bucket := GetEnv("ARCHIVE_BUCKET", "")
	if bucket == "" {
		return nil, fmt.Errorf("ARCHIVE_BUCKET environment variable must be set")
	}

	dataDir := GetEnv("DATA_DIR", "")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory for DATA_DIR: %w", err)
		}
		dataDir = filepath.Join(home, ".turoarchive")
	}

	return &Config{
		ProjectID:          projectID,
		VertexAIRegion:     GetEnv("VERTEX_AI_REGION", "us-central1"),
		ArchiveBucket:      bucket,
		CollectionName:     GetEnv("FIRESTORE_COLLECTION", "documents"),
		DeadlineCollection: GetEnv("DEADLINE_COLLECTION", "deadlines"),
		CredentialsFile:    GetEnv("GCP_CREDENTIALS_FILE", ""),

		DataDir:       dataDir,
		VerifyBaseURL: GetEnv("VERIFY_BASE_URL", "https://turoarchive.app"),
		ListenAddr:    GetEnv("LISTEN_ADDR", ":8080"),

		ProbeURL:      GetEnv("PROBE_URL", "http://clients3.google.com/generate_204"),
		ProbeTimeout:  getEnvDuration("PROBE_TIMEOUT", 5*time.Second),
		DrainInterval: getEnvDuration("DRAIN_INTERVAL", 2*time.Minute),

		PDFTargetBytes:    2 << 20,
		ImageTargetBytes:  1 << 20,
		ImageMaxDimension: 2000,

		AllowWeekdayComplianceFallback: getEnvBool("ALLOW_WEEKDAY_COMPLIANCE_FALLBACK", true),
	}, nil
}

// EnsureDirectories creates the local data directory if missing.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir %s: %w", c.DataDir, err)
	}
	return nil
}
