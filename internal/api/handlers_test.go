package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AstrixelHQ/gigways/internal/auth"
	"github.com/AstrixelHQ/gigways/internal/domain"
	"github.com/AstrixelHQ/gigways/internal/ledger"
)

func withClaims(req *http.Request, scopes ...string) *http.Request {
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	return req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{
		Subject:   "user-1",
		Scopes:    set,
		ExpiresAt: time.Now().Add(time.Hour),
	}))
}

func TestReplaySuccess(t *testing.T) {
	svc := &mockService{result: ledger.ReplayResult{RetriedCount: 3}}
	handler := NewHandler(svc, nil)

	req := withClaims(httptest.NewRequest(http.MethodPost, "/v1/insights/replay", nil), auth.ScopeInsightsReplay)
	rr := httptest.NewRecorder()
	handler.replay(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.replayCaller != "user-1" {
		t.Fatalf("expected replay for caller user-1 got %q", svc.replayCaller)
	}

	var resp ReplayResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success || resp.RetriedCount != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Message != "Processed 3 pending updates" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestReplayFailureIsGeneric(t *testing.T) {
	svc := &mockService{replayErr: errors.New("connection refused to 10.0.0.4")}
	handler := NewHandler(svc, nil)

	req := withClaims(httptest.NewRequest(http.MethodPost, "/v1/insights/replay", nil), auth.ScopeInsightsReplay)
	rr := httptest.NewRecorder()
	handler.replay(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["type"] != "internal" || body["detail"] != "failed to retry updates" {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestReplayRequiresScopeAndMethod(t *testing.T) {
	handler := NewHandler(&mockService{}, nil)

	rr := httptest.NewRecorder()
	handler.replay(rr, withClaims(httptest.NewRequest(http.MethodPost, "/v1/insights/replay", nil), auth.ScopeInsightsRead))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.replay(rr, httptest.NewRequest(http.MethodPost, "/v1/insights/replay", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.replay(rr, withClaims(httptest.NewRequest(http.MethodGet, "/v1/insights/replay", nil), auth.ScopeInsightsReplay))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rr.Code)
	}
}

func TestSummarySuccess(t *testing.T) {
	now := time.Date(2025, time.October, 15, 12, 0, 0, 0, time.UTC)
	summary := domain.NewUserSummary("user-1", now, domain.NewCalculator(time.UTC))
	summary.Version = 2
	summary.Today.TotalMiles = decimal.RequireFromString("12.5")
	summary.Today.SessionCount = 1
	handler := NewHandler(&mockService{summary: &summary}, nil)

	req := withClaims(httptest.NewRequest(http.MethodGet, "/v1/insights/summary", nil), auth.ScopeInsightsRead)
	rr := httptest.NewRecorder()
	handler.summary(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp SummaryView
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Version != 2 || resp.Today.SessionCount != 1 {
		t.Fatalf("unexpected summary %+v", resp)
	}
	if !resp.Today.TotalMiles.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected miles %s", resp.Today.TotalMiles)
	}
	if !resp.ThisWeek.PeriodStart.Equal(time.Date(2025, time.October, 13, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected week start %s", resp.ThisWeek.PeriodStart)
	}
}

func TestSummaryNotFound(t *testing.T) {
	handler := NewHandler(&mockService{}, nil)

	req := withClaims(httptest.NewRequest(http.MethodGet, "/v1/insights/summary", nil), auth.ScopeInsightsRead)
	rr := httptest.NewRecorder()
	handler.summary(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestRoutes(t *testing.T) {
	mux := http.NewServeMux()
	NewHandler(&mockService{}, nil).RegisterRoutes(mux)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("unexpected healthz response %d %q", rr.Code, rr.Body.String())
	}
}

type mockService struct {
	result       ledger.ReplayResult
	replayErr    error
	replayCaller string
	summary      *domain.UserSummary
}

func (m *mockService) Replay(_ context.Context, caller string) (ledger.ReplayResult, error) {
	m.replayCaller = caller
	return m.result, m.replayErr
}

func (m *mockService) Summary(context.Context, string) (domain.UserSummary, error) {
	if m.summary == nil {
		return domain.UserSummary{}, domain.ErrSummaryNotFound
	}
	return *m.summary, nil
}
