package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/inboxguard/inboxguard/internal/ato"
	"github.com/inboxguard/inboxguard/internal/config"
	"github.com/inboxguard/inboxguard/internal/core"
	"github.com/inboxguard/inboxguard/internal/di"
	"github.com/inboxguard/inboxguard/internal/server"
	"github.com/inboxguard/inboxguard/internal/service"
	"github.com/inboxguard/inboxguard/internal/threatintel"
	"github.com/inboxguard/inboxguard/internal/webhook"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	svc *service.DetectionService,
	clicks *threatintel.ClickChecker,
	travel *ato.Detector,
	feedback core.FeedbackStore,
	signer *webhook.Signer,
	ttlCache core.TTLCache,
	registry *prometheus.Registry,
) error {
	defer logger.Sync()

	srv := server.New(
		cfg.GetString("server.listen_address"),
		svc, clicks, travel, feedback, signer, registry, logger,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
			return err
		}
	case <-sigCh:
		logger.Info("Shutting down...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Error("Failed to stop HTTP server", zap.Error(err))
	}

	// Stop the cache if needed
	if stopper, ok := ttlCache.(interface{ Stop() }); ok {
		stopper.Stop()
	}
	if closer, ok := ttlCache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close cache", zap.Error(err))
		}
	}
	if closer, ok := feedback.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close feedback store", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
	return nil
}
