package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	pkgRetry "github.com/futig/interview-client/internal/pkg/retry"
	"github.com/joho/godotenv"
)

// Config holds the client configuration
type Config struct {
	// Conversation engine connection
	EngineCfg EngineConnectorConfig `envPrefix:"ENGINE_"`

	// Local persistence (session id, answer drafts)
	StateDir string `env:"STATE_DIR"`

	// Retry policy for idempotent reads (restore, status, requirements)
	RetryCfg pkgRetry.RetryConfig `envPrefix:"RETRY_"`

	// Logging configuration
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Engine stub configuration (cmd/engine-stub only)
	StubCfg StubConfig `envPrefix:"STUB_"`

	// Environment (set from flag, not from env var)
	Environment string
}

type EngineConnectorConfig struct {
	HTTPClientConfig
}

type HTTPClientConfig struct {
	RequestTimeout        time.Duration `env:"TIMEOUT" envDefault:"30s"`
	ConnTimeout           time.Duration `env:"CONN_TIMEOUT" envDefault:"10s"`
	KeepAlive             time.Duration `env:"KEEP_ALIVE" envDefault:"90s"`
	IdleConnTimeout       time.Duration `env:"IDLE_CONN_TIMEOUT" envDefault:"90s"`
	ResponseHeaderTimeout time.Duration `env:"RESPONSE_HEADER_TIMEOUT" envDefault:"30s"`
	Token                 string        `env:"TOKEN"`
	Url                   string        `env:"SERVICE_URL" envDefault:"http://localhost:8080"`
}

// StubConfig configures the local fake conversation engine.
type StubConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	SessionQuota    int           `env:"SESSION_QUOTA" envDefault:"10"`
	QuotaWindow     time.Duration `env:"QUOTA_WINDOW" envDefault:"1h"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

func LoadConfig() (*Config, error) {
	envFlag := flag.String("env", "local", "Environment to run (local, prod, or custom)")
	flag.Parse()

	envFile := getEnvFile(*envFlag)
	// Try to load env file, but don't fail if it's missing.
	// Variables may be set externally.
	if err := godotenv.Load(envFile); err != nil {
		fmt.Printf("Warning: could not load %s file (this is ok if env vars are set externally): %v\n", envFile, err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.Environment = *envFlag

	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory for state dir: %w", err)
		}
		cfg.StateDir = filepath.Join(home, ".interview-cli")
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.EngineCfg.Url == "" {
		return fmt.Errorf("ENGINE_SERVICE_URL must not be empty")
	}

	if cfg.RetryCfg.Attempts < 1 || cfg.RetryCfg.Attempts > 10 {
		return fmt.Errorf("RETRY_ATTEMPTS must be between 1 and 10, got %d", cfg.RetryCfg.Attempts)
	}

	if cfg.StubCfg.SessionQuota < 1 || cfg.StubCfg.SessionQuota > 1000 {
		return fmt.Errorf("STUB_SESSION_QUOTA must be between 1 and 1000, got %d", cfg.StubCfg.SessionQuota)
	}

	return nil
}

func getEnvFile(environment string) string {
	switch environment {
	case "prod", "production":
		return ".env.prod"
	case "local", "dev", "development":
		return ".env.local"
	default:
		return fmt.Sprintf(".env.%s", environment)
	}
}
