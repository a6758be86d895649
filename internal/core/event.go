package core

// EventKind is a notification the core emits to connections.
type EventKind int

const (
	// EventNewMessage delivers a room message to a member.
	EventNewMessage EventKind = iota
	// EventRoomJoined acknowledges a join to the joining connection.
	EventRoomJoined
	// EventRoomLeft acknowledges a leave to the leaving connection.
	EventRoomLeft
	// EventError reports a contained error to the originating connection.
	EventError
)

// Event is sent to connections to describe what happened in the system.
type Event struct {
	Kind    EventKind
	Room    string
	Message Message
	Error   *CoreError
}
