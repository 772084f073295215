package domain

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// ChangeKind classifies a tracking session write.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "CREATE"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"
)

// Valid reports whether k is one of the known change kinds.
func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeCreate, ChangeUpdate, ChangeDelete:
		return true
	default:
		return false
	}
}

// SessionSnapshot is the state of one tracking session on one side of a write.
// Build it with SessionDocument.Snapshot so absent measures become zero.
type SessionSnapshot struct {
	Miles           decimal.Decimal
	DurationSeconds decimal.Decimal
	Earnings        decimal.Decimal
	Expenses        decimal.Decimal
	StartTime       time.Time
}

// SessionDocument is the wire form of a tracking session. Measures are
// optional on the wire.
type SessionDocument struct {
	Miles           *decimal.Decimal `json:"miles,omitempty"`
	DurationSeconds *decimal.Decimal `json:"duration_seconds,omitempty"`
	Earnings        *decimal.Decimal `json:"earnings,omitempty"`
	Expenses        *decimal.Decimal `json:"expenses,omitempty"`
	StartTime       time.Time        `json:"start_time"`
}

// Snapshot converts the document into a SessionSnapshot, defaulting every
// absent measure to zero.
func (d SessionDocument) Snapshot() SessionSnapshot {
	return SessionSnapshot{
		Miles:           zeroIfNil(d.Miles),
		DurationSeconds: zeroIfNil(d.DurationSeconds),
		Earnings:        zeroIfNil(d.Earnings),
		Expenses:        zeroIfNil(d.Expenses),
		StartTime:       d.StartTime,
	}
}

// Validate rejects documents that would corrupt an aggregate: a negative
// measure or a missing start time.
func (d SessionDocument) Validate() error {
	measures := []struct {
		name  string
		value *decimal.Decimal
	}{
		{"miles", d.Miles},
		{"duration_seconds", d.DurationSeconds},
		{"earnings", d.Earnings},
		{"expenses", d.Expenses},
	}
	for _, m := range measures {
		if m.value != nil && m.value.IsNegative() {
			return errors.Newf("%s must be >= 0, got %s", m.name, m.value.String())
		}
	}
	if d.StartTime.IsZero() {
		return errors.New("start_time is required")
	}
	return nil
}

// Document returns the wire form of s with every measure present.
func (s SessionSnapshot) Document() SessionDocument {
	miles, duration, earnings, expenses := s.Miles, s.DurationSeconds, s.Earnings, s.Expenses
	return SessionDocument{
		Miles:           &miles,
		DurationSeconds: &duration,
		Earnings:        &earnings,
		Expenses:        &expenses,
		StartTime:       s.StartTime,
	}
}

func zeroIfNil(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return *v
}

// SnapshotFromDocument applies the default-zero constructor to an optional
// document.
func SnapshotFromDocument(d *SessionDocument) *SessionSnapshot {
	if d == nil {
		return nil
	}
	s := d.Snapshot()
	return &s
}

// EncodePayload serialises an optional snapshot for the pending-update ledger.
// A nil snapshot encodes as an empty object.
func EncodePayload(s *SessionSnapshot) (json.RawMessage, error) {
	if s == nil {
		return json.RawMessage(`{}`), nil
	}
	body, err := json.Marshal(s.Document())
	if err != nil {
		return nil, errors.Wrap(err, "encode session payload")
	}
	return body, nil
}

// DecodePayload is the inverse of EncodePayload. An empty object, null or an
// empty payload yields a nil snapshot.
func DecodePayload(raw json.RawMessage) (*SessionSnapshot, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return nil, nil
	}
	var doc SessionDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, errors.Wrap(err, "decode session payload")
	}
	return SnapshotFromDocument(&doc), nil
}

// ChangeEvent is a classified session write for one user.
type ChangeEvent struct {
	UserID    string
	SessionID string
	Kind      ChangeKind
	Before    *SessionSnapshot
	After     *SessionSnapshot
}

// Classify maps a before/after pair onto a change kind. ok is false when both
// sides are absent, in which case nothing should be applied.
func Classify(before, after *SessionSnapshot) (kind ChangeKind, ok bool) {
	switch {
	case before == nil && after != nil:
		return ChangeCreate, true
	case before != nil && after != nil:
		return ChangeUpdate, true
	case before != nil && after == nil:
		return ChangeDelete, true
	default:
		return "", false
	}
}

// NewChangeEvent classifies the pair and builds the event.
func NewChangeEvent(userID, sessionID string, before, after *SessionSnapshot) (ChangeEvent, bool) {
	kind, ok := Classify(before, after)
	if !ok {
		return ChangeEvent{}, false
	}
	return ChangeEvent{
		UserID:    userID,
		SessionID: sessionID,
		Kind:      kind,
		Before:    before,
		After:     after,
	}, true
}
