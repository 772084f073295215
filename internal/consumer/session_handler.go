package consumer

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/AstrixelHQ/gigways/internal/domain"
)

// ChangeService applies a classified session write.
type ChangeService interface {
	HandleChange(ctx context.Context, userID, sessionID string, before, after *domain.SessionSnapshot) error
}

// sessionChange is the JSON body of a tracking session change notification.
type sessionChange struct {
	UserID    string                  `json:"user_id"`
	SessionID string                  `json:"session_id"`
	Before    *domain.SessionDocument `json:"before"`
	After     *domain.SessionDocument `json:"after"`
}

// SessionHandler decodes change notifications and forwards them to the
// insights service.
type SessionHandler struct {
	service ChangeService
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(service ChangeService) *SessionHandler {
	return &SessionHandler{service: service}
}

// Handle implements Handler.
func (h *SessionHandler) Handle(ctx context.Context, msg Message) error {
	var change sessionChange
	if err := json.Unmarshal(msg.Payload, &change); err != nil {
		return errors.Mark(errors.Wrap(err, "decode session change"), ErrMalformedEvent)
	}
	if change.UserID == "" {
		return errors.Mark(errors.New("session change without user_id"), ErrMalformedEvent)
	}
	if change.SessionID == "" {
		change.SessionID = msg.Key
	}
	if err := validateSide("before", change.Before); err != nil {
		return err
	}
	if err := validateSide("after", change.After); err != nil {
		return err
	}

	return h.service.HandleChange(ctx,
		change.UserID,
		change.SessionID,
		domain.SnapshotFromDocument(change.Before),
		domain.SnapshotFromDocument(change.After),
	)
}

func validateSide(side string, doc *domain.SessionDocument) error {
	if doc == nil {
		return nil
	}
	if err := doc.Validate(); err != nil {
		return errors.Mark(errors.Wrapf(err, "invalid %s state", side), ErrMalformedEvent)
	}
	return nil
}
