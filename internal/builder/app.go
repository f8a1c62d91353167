package builder

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/secassist/ai-backend/internal/usecase/pipeline"
	"go.uber.org/zap"
)

// App represents the application with all its components
type App struct {
	server        *http.Server
	db            *pgxpool.Pool
	logger        *zap.Logger
	orchestrator  *pipeline.Pipeline
	flushInterval time.Duration
}

// Run starts the application and all its daemons
func (a *App) Run() error {
	// Start HTTP server in goroutine
	errChan := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Periodically write dirty transcripts through to the database
	flushCtx, stopFlusher := context.WithCancel(ctxzap.ToContext(context.Background(), a.logger))
	defer stopFlusher()
	go a.flushLoop(flushCtx)

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		a.logger.Error("Server error", zap.Error(err))
		return err
	case sig := <-sigChan:
		a.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	stopFlusher()

	// Graceful shutdown
	return a.shutdown()
}

// flushLoop drives the write-behind history cache until the context ends.
func (a *App) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.orchestrator.FlushHistories(ctx); err != nil {
				a.logger.Error("Periodic history flush failed", zap.Error(err))
			}
		}
	}
}

// shutdown gracefully shuts down the application
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.logger.Info("Shutting down server gracefully")

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("Server shutdown error", zap.Error(err))
		return err
	}

	// Unsaved transcripts must reach the database before the pool closes
	a.logger.Info("Flushing session histories")
	if err := a.orchestrator.FlushHistories(ctxzap.ToContext(ctx, a.logger)); err != nil {
		a.logger.Error("Final history flush failed", zap.Error(err))
	}

	a.logger.Info("Closing database connections")
	if a.db != nil {
		a.db.Close()
	}

	a.logger.Info("Application stopped gracefully")
	return nil
}
