package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultOutputDir    = "."
	defaultTable        = "trk_waitingtime"
	defaultQueryTimeout = 60 * time.Second
	defaultLogLevel     = "info"
)

// ErrConfig marks configuration problems.
var ErrConfig = errors.New("config error")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Config holds runtime configuration for the exporter.
type Config struct {
	DatabaseURL  string        `yaml:"database_url"`
	OutputDir    string        `yaml:"output_dir"`
	Table        string        `yaml:"table"`
	Timezone     string        `yaml:"timezone"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	LogLevel     string        `yaml:"log_level"`
	DryRun       bool          `yaml:"dry_run"`

	Location *time.Location `yaml:"-"`
}

// Load reads configuration from an optional YAML file, then environment
// variables (optionally .env), which take precedence.
func Load(path string) (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		OutputDir:    defaultOutputDir,
		Table:        defaultTable,
		QueryTimeout: defaultQueryTimeout,
		LogLevel:     defaultLogLevel,
	}

	if path == "" {
		path = strings.TrimSpace(os.Getenv("EXPORTER_CONFIG"))
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("%w: DATABASE_URL is required", ErrConfig)
	}

	if v := strings.TrimSpace(os.Getenv("EXPORT_OUTPUT_DIR")); v != "" {
		cfg.OutputDir = v
	}

	if v := strings.TrimSpace(os.Getenv("EXPORT_TABLE")); v != "" {
		cfg.Table = v
	}
	if !identifierPattern.MatchString(cfg.Table) {
		return cfg, fmt.Errorf("%w: invalid EXPORT_TABLE: %q", ErrConfig, cfg.Table)
	}

	if v := strings.TrimSpace(os.Getenv("EXPORT_TIMEZONE")); v != "" {
		cfg.Timezone = v
	}
	cfg.Location = time.Local
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return cfg, fmt.Errorf("%w: invalid EXPORT_TIMEZONE: %v", ErrConfig, err)
		}
		cfg.Location = loc
	}

	if v := strings.TrimSpace(os.Getenv("EXPORT_QUERY_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: invalid EXPORT_QUERY_TIMEOUT: %v", ErrConfig, err)
		}
		cfg.QueryTimeout = d
	}
	if cfg.QueryTimeout <= 0 {
		return cfg, fmt.Errorf("%w: EXPORT_QUERY_TIMEOUT must be positive", ErrConfig)
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}

	if dryRun := strings.TrimSpace(os.Getenv("DRY_RUN")); dryRun != "" {
		cfg.DryRun = dryRun == "1" || strings.EqualFold(dryRun, "true")
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
	}
	return nil
}
