package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/AstrixelHQ/gigways/internal/api"
	"github.com/AstrixelHQ/gigways/internal/bootstrap"
	"github.com/AstrixelHQ/gigways/internal/config"
	"github.com/AstrixelHQ/gigways/internal/domain"
)

func memoryApp(t *testing.T) *bootstrap.App {
	t.Helper()
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2025, time.October, 15, 12, 0, 0, 0, time.UTC))

	app, err := bootstrap.Build(context.Background(), config.Config{
		SummaryBackend:         config.BackendMemory,
		TimeZone:               "UTC",
		CoordinatorMaxAttempts: 3,
		CoordinatorBaseBackoff: time.Millisecond,
		ReplayPageSize:         10,
		ReplayMaxRetries:       5,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), bootstrap.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app
}

func TestRunSummaryPrintsView(t *testing.T) {
	app := memoryApp(t)
	ctx := context.Background()
	start := time.Date(2025, time.October, 15, 9, 0, 0, 0, time.UTC)
	require.NoError(t, app.Service.HandleChange(ctx, "user-1", "s1", nil,
		&domain.SessionSnapshot{Miles: decimal.RequireFromString("7.25"), StartTime: start}))

	var out bytes.Buffer
	require.NoError(t, runSummary(ctx, &out, app.Service, "user-1"))

	var view api.SummaryView
	require.NoError(t, json.Unmarshal(out.Bytes(), &view))
	require.Equal(t, "user-1", view.UserID)
	require.Equal(t, int64(1), view.Version)
	require.True(t, view.ThisMonth.TotalMiles.Equal(decimal.RequireFromString("7.25")))
}

func TestRunSummaryMissingUser(t *testing.T) {
	app := memoryApp(t)
	err := runSummary(context.Background(), io.Discard, app.Service, "nobody")
	require.ErrorIs(t, err, domain.ErrSummaryNotFound)
}

func TestRunReplayEmptyQueue(t *testing.T) {
	app := memoryApp(t)

	var out bytes.Buffer
	require.NoError(t, runReplay(context.Background(), &out, app.Service, "user-1"))
	require.Equal(t, "Processed 0 pending updates\n", out.String())
}
