package builder

import (
	"fmt"

	"github.com/futig/interview-client/internal/cli"
	"github.com/futig/interview-client/internal/config"
	"github.com/futig/interview-client/internal/enginestub"
	"github.com/futig/interview-client/internal/gateway"
	"github.com/futig/interview-client/internal/machine"
	"github.com/futig/interview-client/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build assembles the interactive interview client.
func Build() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := setupLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	logger.Info("Building interview client",
		zap.String("environment", cfg.Environment),
		zap.String("engine_url", cfg.EngineCfg.Url),
		zap.String("state_dir", cfg.StateDir),
	)

	storage, err := store.NewFileStorage(cfg.StateDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open state dir: %w", err)
	}

	drafts := store.NewDraftStore(storage)
	identity := store.NewSessionIdentityStore(storage)

	gw := gateway.NewSessionGateway(cfg.EngineCfg, logger)

	m := machine.New(gw, drafts, identity, &cfg.RetryCfg, logger)
	runner := cli.NewRunner(m, logger)

	logger.Info("Interview client built successfully")

	return &App{
		runner: runner,
		logger: logger,
	}, nil
}

// BuildStub assembles the local fake conversation engine.
func BuildStub() (*StubApp, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := setupLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	logger.Info("Building engine stub",
		zap.String("environment", cfg.Environment),
		zap.String("addr", cfg.StubCfg.Addr),
		zap.Int("session_quota", cfg.StubCfg.SessionQuota),
	)

	server := enginestub.NewServer(cfg.StubCfg, logger)

	return &StubApp{
		cfg:    cfg.StubCfg,
		server: server,
		logger: logger,
	}, nil
}

func setupLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	zapCfg.OutputPaths = []string{"stderr"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	return zapCfg.Build()
}
