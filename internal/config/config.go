package config

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	StorageDriverLocal = "local"
	StorageDriverMinIO = "minio"
)

// Config is the process-level configuration shared by the API server and
// the CLI worker. Preview tunables live in the settings table instead.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR,default=:8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	StorageDriver  string `env:"STORAGE_DRIVER,default=local"`
	StorageRoot    string `env:"STORAGE_ROOT,default=./data/uploads"`
	MinIOEndpoint  string `env:"MINIO_ENDPOINT"`
	MinIOAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `env:"MINIO_SECRET_KEY"`
	MinIOBucket    string `env:"MINIO_BUCKET,default=uploads"`
	MinIOUseSSL    bool   `env:"MINIO_USE_SSL,default=false"`
	MinIORegion    string `env:"MINIO_REGION,default=us-east-1"`

	PIDFile         string        `env:"PID_FILE,default=./data/preview-worker.pid"`
	TempDir         string        `env:"TEMP_DIR"`
	LeaseDuration   time.Duration `env:"LEASE_DURATION,default=5m"`
	ClaimMaxRetries int           `env:"CLAIM_MAX_RETRIES,default=5"`
	ClaimRetryDelay time.Duration `env:"CLAIM_RETRY_DELAY,default=100ms"`
	IdleInterval    time.Duration `env:"IDLE_INTERVAL,default=5s"`

	FFmpegPath   string `env:"FFMPEG_PATH,default=ffmpeg"`
	PDFToPPMPath string `env:"PDFTOPPM_PATH,default=pdftoppm"`
	CwebpPath    string `env:"CWEBP_PATH,default=cwebp"`
}

// to help with testing
var envProcess = envconfig.Process

func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	var errors []string

	if !slices.Contains([]string{StorageDriverLocal, StorageDriverMinIO}, cfg.StorageDriver) {
		errors = append(errors, "STORAGE_DRIVER must be one of local, minio")
	}

	if cfg.StorageDriver == StorageDriverLocal && strings.TrimSpace(cfg.StorageRoot) == "" {
		errors = append(errors, "STORAGE_ROOT is required for local storage")
	}

	if cfg.StorageDriver == StorageDriverMinIO {
		if strings.TrimSpace(cfg.MinIOEndpoint) == "" {
			errors = append(errors, "MINIO_ENDPOINT is required for minio storage")
		}
		if strings.TrimSpace(cfg.MinIOAccessKey) == "" || strings.TrimSpace(cfg.MinIOSecretKey) == "" {
			errors = append(errors, "MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for minio storage")
		}
		if strings.TrimSpace(cfg.MinIOBucket) == "" {
			errors = append(errors, "MINIO_BUCKET is required for minio storage")
		}
	}

	if strings.TrimSpace(cfg.PIDFile) == "" {
		errors = append(errors, "PID_FILE is required")
	}

	if cfg.LeaseDuration <= 0 {
		errors = append(errors, "LEASE_DURATION must be positive")
	}

	if cfg.ClaimMaxRetries < 0 {
		errors = append(errors, "CLAIM_MAX_RETRIES must be non-negative")
	}

	if cfg.ClaimRetryDelay <= 0 {
		errors = append(errors, "CLAIM_RETRY_DELAY must be positive")
	}

	if cfg.IdleInterval <= 0 {
		errors = append(errors, "IDLE_INTERVAL must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}
