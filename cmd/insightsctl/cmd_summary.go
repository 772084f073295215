package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/AstrixelHQ/gigways/internal/api"
	"github.com/AstrixelHQ/gigways/internal/domain"
)

type summaryReader interface {
	Summary(ctx context.Context, userID string) (domain.UserSummary, error)
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print a user's stored insight summary as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		return runSummary(cmd.Context(), cmd.OutOrStdout(), app.Service, userID)
	},
}

func runSummary(ctx context.Context, out io.Writer, svc summaryReader, user string) error {
	summary, err := svc.Summary(ctx, user)
	if err != nil {
		return errors.Wrapf(err, "load summary for %s", user)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(api.NewSummaryView(summary))
}
