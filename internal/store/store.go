package store

import (
	"context"
	"errors"

	"github.com/vovakirdan/roomcast/internal/core"
)

// ErrInvalidMessage is returned when a write lacks a room or content.
var ErrInvalidMessage = errors.New("invalid message")

// MessageStore is the durable source of truth for room messages.
type MessageStore interface {
	// CreateMessage persists content as a new message authored by author
	// and returns the canonical record with its assigned id and timestamp.
	CreateMessage(ctx context.Context, room, content string, author core.Actor) (core.Message, error)

	// ListMessages returns a room's messages ordered by (created_at, id).
	// A positive limit keeps only the most recent limit messages.
	ListMessages(ctx context.Context, room string, limit int) ([]core.Message, error)

	// Close closes the underlying database connection.
	Close() error
}
