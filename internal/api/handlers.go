// Package api exposes HTTP handlers for the insights service.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/AstrixelHQ/gigways/internal/auth"
	"github.com/AstrixelHQ/gigways/internal/domain"
	"github.com/AstrixelHQ/gigways/internal/ledger"
)

// Service is the insights behaviour the handlers depend on.
type Service interface {
	Replay(ctx context.Context, caller string) (ledger.ReplayResult, error)
	Summary(ctx context.Context, userID string) (domain.UserSummary, error)
}

// Handler coordinates HTTP requests with the insights service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger.With("component", "api")}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/insights/replay", h.replay)
	mux.HandleFunc("/v1/insights/summary", h.summary)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// replay re-applies the caller's pending updates. The caller can only ever
// touch its own records because the identity comes from the token.
func (h *Handler) replay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeInsightsReplay) {
		writeError(w, http.StatusForbidden, "forbidden", "scope insights:replay required")
		return
	}

	result, err := h.service.Replay(r.Context(), claims.Subject)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "replay failed", "user_id", claims.Subject, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to retry updates")
		return
	}

	writeJSON(w, http.StatusOK, ReplayResponse{
		Success:      true,
		RetriedCount: result.RetriedCount,
		Message:      result.Message(),
	})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeInsightsRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope insights:read required")
		return
	}

	summary, err := h.service.Summary(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrSummaryNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "summary not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "summary read failed", "user_id", claims.Subject, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "failed to load summary")
		return
	}

	writeJSON(w, http.StatusOK, NewSummaryView(summary))
}

// ReplayResponse is the body returned by POST /v1/insights/replay.
type ReplayResponse struct {
	Success      bool   `json:"success"`
	RetriedCount int    `json:"retried_count"`
	Message      string `json:"message"`
}

// PeriodView exposes one rolling window. Measures are decimal strings.
type PeriodView struct {
	TotalMiles           decimal.Decimal `json:"total_miles"`
	TotalDurationSeconds decimal.Decimal `json:"total_duration_seconds"`
	TotalEarnings        decimal.Decimal `json:"total_earnings"`
	TotalExpenses        decimal.Decimal `json:"total_expenses"`
	SessionCount         int64           `json:"session_count"`
	PeriodStart          time.Time       `json:"period_start"`
	PeriodEnd            time.Time       `json:"period_end"`
}

// SummaryView is the body returned by GET /v1/insights/summary.
type SummaryView struct {
	UserID          string     `json:"user_id"`
	Today           PeriodView `json:"today"`
	ThisWeek        PeriodView `json:"this_week"`
	ThisMonth       PeriodView `json:"this_month"`
	ThisYear        PeriodView `json:"this_year"`
	Version         int64      `json:"version"`
	LastUpdated     time.Time  `json:"last_updated"`
	NeedsValidation bool       `json:"needs_validation"`
}

func toPeriodView(agg domain.PeriodAggregate) PeriodView {
	return PeriodView{
		TotalMiles:           agg.TotalMiles,
		TotalDurationSeconds: agg.TotalDurationSeconds,
		TotalEarnings:        agg.TotalEarnings,
		TotalExpenses:        agg.TotalExpenses,
		SessionCount:         agg.SessionCount,
		PeriodStart:          agg.PeriodStart,
		PeriodEnd:            agg.PeriodEnd,
	}
}

// NewSummaryView renders a summary for API and CLI output.
func NewSummaryView(s domain.UserSummary) SummaryView {
	return SummaryView{
		UserID:          s.UserID,
		Today:           toPeriodView(s.Today),
		ThisWeek:        toPeriodView(s.ThisWeek),
		ThisMonth:       toPeriodView(s.ThisMonth),
		ThisYear:        toPeriodView(s.ThisYear),
		Version:         s.Version,
		LastUpdated:     s.LastUpdated,
		NeedsValidation: s.Validation.NeedsValidation,
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
