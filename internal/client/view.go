package client

import (
	"context"
	"sync"

	"github.com/vovakirdan/roomcast/internal/core"
	"github.com/vovakirdan/roomcast/internal/proto"
)

// RoomView is a session's live, deduplicated view of one room.
type RoomView struct {
	s       *Session
	room    string
	changed chan struct{}

	mu     sync.Mutex
	joined bool
	closed bool
}

func newRoomView(s *Session, room string) *RoomView {
	return &RoomView{s: s, room: room, changed: make(chan struct{}, 1)}
}

// Room returns the room key.
func (v *RoomView) Room() string {
	return v.room
}

// Messages returns the room's messages ordered by creation time, then id.
func (v *RoomView) Messages() []core.Message {
	return v.s.cache.Messages(v.room)
}

// Changed receives a value whenever new messages were merged. Signals coalesce.
func (v *RoomView) Changed() <-chan struct{} {
	return v.changed
}

// Joined reports whether the server acknowledged the join on the current connection.
func (v *RoomView) Joined() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.joined
}

func (v *RoomView) setJoined(joined bool) {
	v.mu.Lock()
	v.joined = joined
	v.mu.Unlock()
}

func (v *RoomView) markClosed() {
	v.mu.Lock()
	v.closed = true
	v.joined = false
	v.mu.Unlock()
}

func (v *RoomView) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func (v *RoomView) signal() {
	select {
	case v.changed <- struct{}{}:
	default:
	}
}

// Submit persists content and relays the stored message to the room.
//
// A store failure returns an error wrapping ErrPersistence and leaves the view untouched.
// If the message was stored but could not be relayed, Submit returns it together with an
// error wrapping ErrNotConnected; members pick it up on their next backfill.
func (v *RoomView) Submit(ctx context.Context, content string) (core.Message, error) {
	if v.isClosed() {
		return core.Message{}, ErrClosed
	}

	msg, err := v.s.api.createMessage(ctx, v.room, content)
	if err != nil {
		return core.Message{}, err
	}
	if v.s.merge(v, msg) > 0 {
		v.signal()
	}

	wire := proto.FromCore(msg)
	if err := v.s.send(proto.InboundTypeSendMessage, proto.SendData{RoomKey: v.room, Message: &wire}); err != nil {
		return msg, err
	}
	return msg, nil
}

// Close leaves the room and drops its cached messages.
func (v *RoomView) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.joined = false
	v.mu.Unlock()

	v.s.forget(v)
	if err := v.s.send(proto.InboundTypeLeaveRoom, proto.RoomData{RoomKey: v.room}); err != nil {
		v.s.log.Debug().Err(err).Str("room", v.room).Msg("leave not sent")
	}
	return nil
}
