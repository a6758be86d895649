package core

import "time"

// Message is the domain model for a chat message.
// ID is assigned by the message store; a Message is never mutated after creation.
type Message struct {
	ID         string
	Room       string
	AuthorID   string
	AuthorName string
	Text       string
	CreatedAt  time.Time
}

// Before reports whether m sorts before other in display order: by creation time, then by id.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// Actor is the verified identity behind a connection or a write.
type Actor struct {
	ID   string
	Name string
}
