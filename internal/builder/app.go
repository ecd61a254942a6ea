package builder

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/futig/interview-client/internal/cli"
	"github.com/futig/interview-client/internal/config"
	"github.com/futig/interview-client/internal/enginestub"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// App is the interactive client application.
type App struct {
	runner *cli.Runner
	logger *zap.Logger
}

// Run drives the interview loop until completion or interrupt. An interrupt
// cancels the per-session scope; any in-flight call is discarded, drafts are
// already on disk.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Seed the context logger so gateway calls log with the app fields.
	ctx = ctxzap.ToContext(ctx, a.logger)

	err := a.runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		a.logger.Info("interview interrupted, drafts preserved")
		return nil
	}

	return err
}

// StubApp is the fake conversation engine application.
type StubApp struct {
	cfg    config.StubConfig
	server *enginestub.Server
	logger *zap.Logger
}

// Run starts the stub HTTP server and shuts it down gracefully on signal.
func (a *StubApp) Run() error {
	httpServer := &http.Server{
		Addr:    a.cfg.Addr,
		Handler: a.server.Router(),
	}

	errChan := make(chan error, 1)
	go func() {
		a.logger.Info("Starting engine stub", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		a.logger.Error("Server error", zap.Error(err))
		return err
	case sig := <-sigChan:
		a.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("Server shutdown error", zap.Error(err))
		return err
	}

	a.logger.Info("Engine stub stopped gracefully")
	return nil
}
