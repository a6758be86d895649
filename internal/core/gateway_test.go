package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	gw := NewGateway(GatewayOptions{QueueSize: 16})
	t.Cleanup(gw.Shutdown)
	return gw
}

func mustOpen(t *testing.T, gw *Gateway, name string) *Connection {
	t.Helper()
	conn, err := gw.Open(Actor{ID: name, Name: name})
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	return conn
}

func TestGatewayScenarioRoomsP1P2(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)

	a := mustOpen(t, gw, "alice")
	b := mustOpen(t, gw, "bob")
	c := mustOpen(t, gw, "carol")

	for conn, room := range map[*Connection]string{a: "P1", b: "P1", c: "P2"} {
		if err := gw.Handle(ctx, conn, Command{Kind: CommandJoinRoom, Room: room}); err != nil {
			t.Fatalf("join: %v", err)
		}
		mustEvent(t, conn.Events(), EventRoomJoined)
	}

	msg := testMessage("101", "P1", time.Now())
	if err := gw.Handle(ctx, a, Command{Kind: CommandSendMessage, Room: "P1", Message: msg}); err != nil {
		t.Fatalf("send: %v", err)
	}

	if ev := mustEvent(t, b.Events(), EventNewMessage); ev.Message.ID != "101" {
		t.Fatalf("bob got %+v", ev)
	}
	if ev := mustEvent(t, a.Events(), EventNewMessage); ev.Message.ID != "101" {
		t.Fatalf("alice should receive the echo, got %+v", ev)
	}
	mustNoEvent(t, c.Events(), EventNewMessage)
}

func TestGatewayJoinTwiceAcksTwice(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)
	a := mustOpen(t, gw, "alice")

	for range 2 {
		if err := gw.Handle(ctx, a, Command{Kind: CommandJoinRoom, Room: "P1"}); err != nil {
			t.Fatalf("join: %v", err)
		}
		mustEvent(t, a.Events(), EventRoomJoined)
	}
	if n := len(gw.Registry().Members("P1")); n != 1 {
		t.Fatalf("expected single membership, got %d", n)
	}
}

func TestGatewayRejectsInvalidSend(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)
	a := mustOpen(t, gw, "alice")
	b := mustOpen(t, gw, "bob")
	_ = gw.Handle(ctx, b, Command{Kind: CommandJoinRoom, Room: "P1"})
	mustEvent(t, b.Events(), EventRoomJoined)

	noID := testMessage("", "P1", time.Now())
	otherRoom := testMessage("9", "P2", time.Now())

	tests := []struct {
		name string
		cmd  Command
		want error
	}{
		{"missing room", Command{Kind: CommandSendMessage, Message: testMessage("1", "", time.Now())}, ErrMissingRoom},
		{"missing message", Command{Kind: CommandSendMessage, Room: "P1"}, ErrMissingMessage},
		{"missing id", Command{Kind: CommandSendMessage, Room: "P1", Message: noID}, ErrMissingID},
		{"room mismatch", Command{Kind: CommandSendMessage, Room: "P1", Message: otherRoom}, ErrRoomMismatch},
		{"join without room", Command{Kind: CommandJoinRoom}, ErrMissingRoom},
		{"unknown", Command{Kind: CommandKind(42)}, ErrUnknownCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gw.Handle(ctx, a, tt.cmd)
			if !errors.Is(err, tt.want) || !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	mustNoEvent(t, b.Events(), EventNewMessage)
}

func TestGatewayFillsMessageRoom(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)
	a := mustOpen(t, gw, "alice")
	_ = gw.Handle(ctx, a, Command{Kind: CommandJoinRoom, Room: "P1"})

	msg := testMessage("7", "", time.Now())
	if err := gw.Handle(ctx, a, Command{Kind: CommandSendMessage, Room: "P1", Message: msg}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if ev := mustEvent(t, a.Events(), EventNewMessage); ev.Message.Room != "P1" {
		t.Fatalf("expected room to be filled in, got %+v", ev.Message)
	}
	if msg.Room != "" {
		t.Fatal("caller's message must not be mutated")
	}
}

func TestGatewayCloseIsSafe(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)

	never := mustOpen(t, gw, "never")
	gw.Close(never, "bye")
	gw.Close(never, "again")

	a := mustOpen(t, gw, "alice")
	_ = gw.Handle(ctx, a, Command{Kind: CommandJoinRoom, Room: "P1"})
	_ = gw.Handle(ctx, a, Command{Kind: CommandJoinRoom, Room: "P2"})
	gw.Close(a, "bye")

	if gw.Registry().RoomCount() != 0 {
		t.Fatalf("rooms should be pruned after close, got %d", gw.Registry().RoomCount())
	}
	if gw.ConnectionCount() != 0 {
		t.Fatalf("expected no open connections, got %d", gw.ConnectionCount())
	}
	if a.Reason() != "bye" {
		t.Fatalf("unexpected close reason %q", a.Reason())
	}
}

func TestGatewayLeave(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)
	a := mustOpen(t, gw, "alice")

	_ = gw.Handle(ctx, a, Command{Kind: CommandJoinRoom, Room: "P1"})
	if err := gw.Handle(ctx, a, Command{Kind: CommandLeaveRoom, Room: "P1"}); err != nil {
		t.Fatalf("leave: %v", err)
	}
	mustEvent(t, a.Events(), EventRoomLeft)
	if err := gw.Handle(ctx, a, Command{Kind: CommandLeaveRoom, Room: "ghost"}); err != nil {
		t.Fatalf("leaving unknown room should not fail: %v", err)
	}

	_ = gw.Handle(ctx, a, Command{Kind: CommandSendMessage, Room: "P1", Message: testMessage("1", "P1", time.Now())})
	mustNoEvent(t, a.Events(), EventNewMessage)
}

func TestGatewayShutdown(t *testing.T) {
	gw := NewGateway(GatewayOptions{})
	a := mustOpen(t, gw, "alice")
	_ = gw.Handle(context.Background(), a, Command{Kind: CommandJoinRoom, Room: "P1"})

	gw.Shutdown()

	select {
	case <-a.Done():
	default:
		t.Fatal("shutdown should kick open connections")
	}
	if a.Reason() != ReasonShutdown {
		t.Fatalf("unexpected reason %q", a.Reason())
	}
	if _, err := gw.Open(Actor{ID: "late"}); !errors.Is(err, ErrGatewayClosed) {
		t.Fatalf("expected ErrGatewayClosed, got %v", err)
	}
}

func TestErrorEventCodes(t *testing.T) {
	if ev := ErrorEvent(ErrMissingRoom); ev.Error.Code != ErrCodeBadRequest {
		t.Fatalf("invalid payload should map to bad_request, got %s", ev.Error.Code)
	}
	if ev := ErrorEvent(coreError(ErrCodeRateLimited, "slow down")); ev.Error.Code != ErrCodeRateLimited {
		t.Fatalf("core error code should be kept, got %s", ev.Error.Code)
	}
	if ev := ErrorEvent(errors.New("boom")); ev.Error.Code != ErrCodeInternal {
		t.Fatalf("unknown error should map to internal, got %s", ev.Error.Code)
	}
}
