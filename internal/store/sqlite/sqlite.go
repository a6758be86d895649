package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/roomcast/internal/core"
	"github.com/vovakirdan/roomcast/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	room_key    TEXT NOT NULL,
	author_id   TEXT NOT NULL,
	author_name TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_key, created_at, id);
`

// SQLiteStore implements store.MessageStore for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.MessageStore = (*SQLiteStore)(nil)

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateMessage persists a message and returns the canonical record.
func (s *SQLiteStore) CreateMessage(ctx context.Context, room, content string, author core.Actor) (core.Message, error) {
	if strings.TrimSpace(room) == "" {
		return core.Message{}, fmt.Errorf("%w: room is required", store.ErrInvalidMessage)
	}
	if strings.TrimSpace(content) == "" {
		return core.Message{}, fmt.Errorf("%w: content is required", store.ErrInvalidMessage)
	}

	msg := core.Message{
		ID:         uuid.NewString(),
		Room:       room,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Text:       content,
		CreatedAt:  s.now().UTC(),
	}

	query := `
		INSERT INTO messages (id, room_key, author_id, author_name, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.Room, msg.AuthorID, msg.AuthorName, msg.Text, msg.CreatedAt.UnixNano(),
	); err != nil {
		return core.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// ListMessages retrieves a room's messages in display order.
func (s *SQLiteStore) ListMessages(ctx context.Context, room string, limit int) ([]core.Message, error) {
	var query string
	var args []interface{}

	if limit > 0 {
		query = `
			SELECT id, room_key, author_id, author_name, body, created_at
			FROM messages
			WHERE room_key = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`
		args = []interface{}{room, limit}
	} else {
		query = `
			SELECT id, room_key, author_id, author_name, body, created_at
			FROM messages
			WHERE room_key = ?
			ORDER BY created_at ASC, id ASC
		`
		args = []interface{}{room}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]core.Message, 0)
	for rows.Next() {
		var msg core.Message
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.Room, &msg.AuthorID, &msg.AuthorName, &msg.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = time.Unix(0, createdAt).UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if limit > 0 {
		// Reverse to get chronological order
		slices.Reverse(messages)
	}
	return messages, nil
}
