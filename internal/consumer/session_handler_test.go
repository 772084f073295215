package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/AstrixelHQ/gigways/internal/domain"
)

type change struct {
	userID, sessionID string
	before, after     *domain.SessionSnapshot
}

type stubChangeService struct {
	calls []change
	err   error
}

func (s *stubChangeService) HandleChange(_ context.Context, userID, sessionID string, before, after *domain.SessionSnapshot) error {
	s.calls = append(s.calls, change{userID, sessionID, before, after})
	return s.err
}

func TestSessionHandlerDecodesChange(t *testing.T) {
	service := &stubChangeService{}
	handler := NewSessionHandler(service)

	err := handler.Handle(context.Background(), Message{Payload: []byte(`{
		"user_id": "user-1",
		"session_id": "s1",
		"before": {"miles": 4, "start_time": "2025-10-15T08:00:00Z"},
		"after": {"miles": "5.5", "earnings": 12, "start_time": "2025-10-15T08:00:00Z"}
	}`)})
	require.NoError(t, err)
	require.Len(t, service.calls, 1)

	got := service.calls[0]
	require.Equal(t, "user-1", got.userID)
	require.Equal(t, "s1", got.sessionID)
	require.NotNil(t, got.before)
	require.Equal(t, "4", got.before.Miles.String())
	require.True(t, got.before.Earnings.IsZero())
	require.Equal(t, "5.5", got.after.Miles.String())
	require.Equal(t, "12", got.after.Earnings.String())
	require.True(t, got.after.StartTime.Equal(time.Date(2025, time.October, 15, 8, 0, 0, 0, time.UTC)))
}

func TestSessionHandlerDeleteAndKeyFallback(t *testing.T) {
	service := &stubChangeService{}
	handler := NewSessionHandler(service)

	err := handler.Handle(context.Background(), Message{
		Key:     "s9",
		Payload: []byte(`{"user_id":"user-1","before":{"miles":1,"start_time":"2025-10-15T08:00:00Z"},"after":null}`),
	})
	require.NoError(t, err)
	require.Equal(t, "s9", service.calls[0].sessionID)
	require.NotNil(t, service.calls[0].before)
	require.Nil(t, service.calls[0].after)
}

func TestSessionHandlerRejectsMalformedPayloads(t *testing.T) {
	service := &stubChangeService{}
	handler := NewSessionHandler(service)

	for _, payload := range []string{
		`not json`,
		`{"session_id":"s1"}`,
		`{"user_id":"u","after":{"miles":"abc"}}`,
	} {
		err := handler.Handle(context.Background(), Message{Payload: []byte(payload)})
		require.True(t, errors.Is(err, ErrMalformedEvent), "payload %s", payload)
	}
	require.Empty(t, service.calls)
}

func TestSessionHandlerPropagatesServiceError(t *testing.T) {
	service := &stubChangeService{err: context.Canceled}
	handler := NewSessionHandler(service)

	err := handler.Handle(context.Background(), Message{Payload: []byte(`{"user_id":"u","session_id":"s"}`)})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, errors.Is(err, ErrMalformedEvent))
}

func TestSessionHandlerRejectsInvalidSessionState(t *testing.T) {
	cases := map[string]string{
		"negative create":      `{"user_id":"u","session_id":"s1","after":{"miles":-5,"earnings":"-3","start_time":"2025-10-15T10:00:00Z"}}`,
		"negative before":      `{"user_id":"u","session_id":"s1","before":{"expenses":-1,"start_time":"2025-10-15T10:00:00Z"},"after":{"miles":1,"start_time":"2025-10-15T10:00:00Z"}}`,
		"negative delete":      `{"user_id":"u","session_id":"s1","before":{"duration_seconds":-60,"start_time":"2025-10-15T10:00:00Z"}}`,
		"missing start time":   `{"user_id":"u","session_id":"s1","after":{"miles":4}}`,
		"missing before start": `{"user_id":"u","session_id":"s1","before":{"miles":4},"after":{"miles":4,"start_time":"2025-10-15T10:00:00Z"}}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			service := &stubChangeService{}
			err := NewSessionHandler(service).Handle(context.Background(), Message{Payload: []byte(payload)})
			require.True(t, errors.Is(err, ErrMalformedEvent), "got %v", err)
			require.Empty(t, service.calls)
		})
	}
}

func TestInvalidSessionStateIsCommittedAsDecodeError(t *testing.T) {
	reader := &stubReader{
		messages: []kafka.Message{{
			Topic: "tracking_session_changes",
			Value: []byte(`{"user_id":"u","session_id":"s1","after":{"miles":-5,"start_time":"2025-10-15T10:00:00Z"}}`),
		}},
		after: contextCanceled,
	}
	service := &stubChangeService{}

	before := testutil.ToFloat64(decodeErrorCounter.WithLabelValues("tracking_session_changes"))
	err := NewProcessor(reader, NewSessionHandler(service), WithLogger(testLogger(t))).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Empty(t, service.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, 1.0, testutil.ToFloat64(decodeErrorCounter.WithLabelValues("tracking_session_changes"))-before)
}
