package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ydagan/synaptic/pkg/sources"
	"github.com/ydagan/synaptic/pkg/storage"
	"github.com/ydagan/synaptic/pkg/streaming"
	"github.com/ydagan/synaptic/pkg/synergy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the synergy discovery service",
	Long: `Consumes device state changes from NATS JetStream, stores them,
and mines synergies on the configured schedule.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		return err
	}

	store, err := storage.NewStore(logger, cfg.Storage.Path)
	if err != nil {
		logger.Error("failed to open store", zap.Error(err))
		return err
	}
	defer store.Close()

	metrics, err := synergy.NewMetrics(logger)
	if err != nil {
		logger.Error("failed to create metrics", zap.Error(err))
		return err
	}

	tracker := streaming.NewTracker(logger, cfg.Streaming)
	engine, err := synergy.NewEngine(logger, cfg, tracker, store, store, nil, nil, nil, metrics)
	if err != nil {
		logger.Error("failed to create engine", zap.Error(err))
		return err
	}

	subscriber, err := sources.NewSubscriber(logger, &cfg.NATS, engine)
	if err != nil {
		logger.Error("failed to create NATS subscriber", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go func() {
		if err := engine.RunScheduled(ctx); err != nil && ctx.Err() == nil {
			logger.Error("mining scheduler exited", zap.Error(err))
		}
	}()
	go func() {
		if err := subscriber.Start(ctx); err != nil {
			logger.Error("NATS subscriber error", zap.Error(err))
		}
	}()

	logger.Info("synergy service started",
		zap.String("nats_url", cfg.NATS.URL),
		zap.String("stream", cfg.NATS.StreamName),
		zap.String("db_path", cfg.Storage.Path),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	logger.Info("shutting down synergy service")
	cancel()
	return nil
}
