package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom subscribes the connection to a room.
	CommandJoinRoom CommandKind = iota
	// CommandLeaveRoom unsubscribes the connection from a room.
	CommandLeaveRoom
	// CommandSendMessage relays an already persisted message to room members.
	CommandSendMessage
)

func (k CommandKind) String() string {
	switch k {
	case CommandJoinRoom:
		return "join_room"
	case CommandLeaveRoom:
		return "leave_room"
	case CommandSendMessage:
		return "send_message"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a connection.
type Command struct {
	Kind    CommandKind
	Room    string
	Message *Message
}
