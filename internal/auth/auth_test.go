package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "gigways.identity"}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":    "user-1",
		"iss":    testConfig.Issuer,
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": []string{ScopeInsightsRead, ScopeInsightsReplay},
	}
}

func TestParseClaims(t *testing.T) {
	claims, err := ParseClaims(signToken(t, validClaims()), testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.True(t, claims.HasScope(ScopeInsightsRead))
	require.True(t, claims.HasScope(ScopeInsightsReplay))
	require.False(t, claims.HasScope("admin"))
}

func TestParseClaimsSpaceSeparatedScope(t *testing.T) {
	raw := validClaims()
	delete(raw, "scopes")
	raw["scope"] = "insights:read  other"

	claims, err := ParseClaims(signToken(t, raw), testConfig)
	require.NoError(t, err)
	require.True(t, claims.HasScope(ScopeInsightsRead))
	require.True(t, claims.HasScope("other"))
	require.False(t, claims.HasScope(ScopeInsightsReplay))
}

func TestParseClaimsRejects(t *testing.T) {
	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "someone-else"

	noSubject := validClaims()
	delete(noSubject, "sub")

	noExpiry := validClaims()
	delete(noExpiry, "exp")

	cases := map[string]string{
		"expired":      signToken(t, expired),
		"wrong issuer": signToken(t, wrongIssuer),
		"no subject":   signToken(t, noSubject),
		"no expiry":    signToken(t, noExpiry),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseClaims(token, testConfig)
			require.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
		})
	}

	_, err := ParseClaims("  ", testConfig)
	require.True(t, errors.Is(err, ErrMissingToken))

	var nilClaims *Claims
	require.False(t, nilClaims.HasScope(ScopeInsightsRead))
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewMiddleware(testConfig).Wrap(next)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Nil(t, seen)

	req = httptest.NewRequest(http.MethodGet, "/v1/insights/summary", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.JSONEq(t, `{"type":"unauthorized","detail":"missing bearer token"}`, rr.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/v1/insights/summary", nil)
	req.Header.Set("Authorization", "Basic abc")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/insights/summary", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, validClaims()))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.NotNil(t, seen)
	require.Equal(t, "user-1", seen.Subject)
}
