// Command insightsctl inspects and repairs insight summaries from a shell.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AstrixelHQ/gigways/internal/bootstrap"
	"github.com/AstrixelHQ/gigways/internal/config"
	"github.com/AstrixelHQ/gigways/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:           "insightsctl",
	Short:         "Operate the insights summary engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var userID string

func init() {
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "user whose records are inspected")
	_ = rootCmd.MarkPersistentFlagRequired("user")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("insightsctl failed", "error", err)
		os.Exit(1)
	}
}

func loadApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger("insightsctl", cfg.LogLevel)
	return bootstrap.Build(ctx, cfg, logger)
}
