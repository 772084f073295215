package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/AstrixelHQ/gigways/internal/api"
	"github.com/AstrixelHQ/gigways/internal/auth"
	"github.com/AstrixelHQ/gigways/internal/bootstrap"
	"github.com/AstrixelHQ/gigways/internal/config"
	"github.com/AstrixelHQ/gigways/internal/observability"
	httptransport "github.com/AstrixelHQ/gigways/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.NewLogger("insights-api", "info").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger("insights-api", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to assemble insights service", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	handler := api.NewHandler(app.Service, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", observability.MetricsHandler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(
		httptransport.DefaultServerConfig(cfg.HTTPAddress),
		httptransport.Chain(mux, httptransport.RequestLogger(logger), authMiddleware.Wrap),
	)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("insights api listening", "address", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
}
