package proto

import "github.com/vovakirdan/roomcast/internal/core"

// FromCore converts a domain message to its wire form.
func FromCore(m core.Message) Message {
	return Message{
		ID:         m.ID,
		RoomKey:    m.Room,
		AuthorID:   m.AuthorID,
		AuthorName: m.AuthorName,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
	}
}

// ToCore converts a wire message to the domain model.
func (m Message) ToCore() core.Message {
	return core.Message{
		ID:         m.ID,
		Room:       m.RoomKey,
		AuthorID:   m.AuthorID,
		AuthorName: m.AuthorName,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
	}
}
