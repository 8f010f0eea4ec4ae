package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

type Config struct {
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseFilePath          string        `koanf:"database_file_path"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries"`
	Hostname                  string        `koanf:"-"`
	JWTSecret                 string        `koanf:"jwt_secret"`
	MetadataDir               string        `koanf:"metadata_dir"`
	ServerHost                string        `koanf:"server_host"`
	ServerPort                int           `koanf:"server_port"`
	SessionStaleAge           time.Duration `koanf:"session_stale_age"`
	SessionSweepInterval      time.Duration `koanf:"session_sweep_interval"`
	WorkerProcesses           int           `koanf:"worker_processes"`
}

// StreamsDir is where transcode sessions write their HLS segments. Orphaned
// directories under it are cleaned up on startup.
func (cfg *Config) StreamsDir() string {
	return cfg.MetadataDir + "/streams"
}

const (
	environmentENV = "ENVIRONMENT"
	configFileENV  = "CONFIG_FILE"
)

func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := &Config{
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		DatabaseMaxRetries:        3,
		Hostname:                  hostname,
		MetadataDir:               "./metadata",
		ServerPort:                7331,
		SessionStaleAge:           36 * time.Hour,
		SessionSweepInterval:      time.Hour,
		WorkerProcesses:           2,
	}

	switch os.Getenv(environmentENV) {
	case "development", "":
		loadDevelopmentConfig(cfg)
	case "test":
		loadTestConfig(cfg)
	case "production":
		loadProductionConfig(cfg)
	}

	k := koanf.New(".")

	// Optional YAML config file, then KIKU_-prefixed env vars on top.
	if path := configFilePath(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", path)
		}
	}
	err = k.Load(env.Provider("KIKU_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "KIKU_"))
	}), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	return cfg, nil
}

// NewForTest returns a Config with test defaults, ignoring the environment
// and any config file.
func NewForTest() *Config {
	cfg := &Config{
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 1,
		DatabaseConnectRetryDelay: time.Millisecond,
		DatabaseMaxRetries:        3,
		Hostname:                  "test",
		SessionStaleAge:           36 * time.Hour,
		SessionSweepInterval:      time.Hour,
		WorkerProcesses:           2,
	}
	loadTestConfig(cfg)
	return cfg
}

func configFilePath() string {
	if path := os.Getenv(configFileENV); path != "" {
		return path
	}
	if _, err := os.Stat("./config.yaml"); err == nil {
		return "./config.yaml"
	}
	return ""
}
