package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/AstrixelHQ/gigways/internal/bootstrap"
	"github.com/AstrixelHQ/gigways/internal/config"
	"github.com/AstrixelHQ/gigways/internal/consumer"
	"github.com/AstrixelHQ/gigways/internal/observability"
	httptransport "github.com/AstrixelHQ/gigways/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.NewLogger("insights-consumer", "info").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger("insights-consumer", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to assemble insights service", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsSrv := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.MetricsAddress), observability.MetricsHandler())

	go func() {
		logger.Info("consumer metrics listening", "address", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           cfg.ConsumerTopic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	defer reader.Close()

	proc := consumer.NewProcessor(reader, consumer.NewSessionHandler(app.Service),
		consumer.WithLogger(logger.With("topic", cfg.ConsumerTopic)))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("consumer started", "topic", cfg.ConsumerTopic, "group", cfg.ConsumerGroupID)
		if err := proc.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("consumer shutdown requested")
	case <-groupCtx.Done():
	}
	cancel()

	if err := group.Wait(); err != nil {
		logger.Error("consumer stopped with error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", "error", err)
	}
}
