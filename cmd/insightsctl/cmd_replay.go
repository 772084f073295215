package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/AstrixelHQ/gigways/internal/ledger"
)

type replayer interface {
	Replay(ctx context.Context, caller string) (ledger.ReplayResult, error)
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-apply a user's pending summary updates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		return runReplay(cmd.Context(), cmd.OutOrStdout(), app.Service, userID)
	},
}

func runReplay(ctx context.Context, out io.Writer, svc replayer, user string) error {
	result, err := svc.Replay(ctx, user)
	if err != nil {
		return errors.Wrapf(err, "replay pending updates for %s", user)
	}

	if len(result.Outcomes) > 0 {
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSESSION\tSTATUS\tRETRIES")
		for _, o := range result.Outcomes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", o.UpdateID, o.SessionID, o.Status, o.RetryCount)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(out, result.Message())
	return err
}
