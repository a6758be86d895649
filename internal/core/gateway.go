package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast/internal/metrics"
)

// Close reasons recorded on kicked connections.
const (
	ReasonSlowConsumer = "slow consumer"
	ReasonShutdown     = "server shutting down"
)

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	QueueSize int
	Relay     Relay
	Metrics   *metrics.Metrics
	Logger    *zerolog.Logger
}

// Gateway owns the room registry and routes connection commands to it.
// It is created at startup and torn down with Shutdown.
type Gateway struct {
	registry   *Registry
	dispatcher *Dispatcher
	queueSize  int
	metrics    *metrics.Metrics
	log        *zerolog.Logger

	mu     sync.Mutex
	conns  map[string]*Connection
	closed bool
}

// NewGateway creates a gateway with its own registry and dispatcher.
func NewGateway(opts GatewayOptions) *Gateway {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	registry := NewRegistry()
	return &Gateway{
		registry:   registry,
		dispatcher: NewDispatcher(registry, opts.Relay, opts.Metrics, logger),
		queueSize:  opts.QueueSize,
		metrics:    opts.Metrics,
		log:        logger,
		conns:      make(map[string]*Connection),
	}
}

// Registry exposes the membership registry.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Dispatcher exposes the broadcast dispatcher, e.g. for relay delivery.
func (g *Gateway) Dispatcher() *Dispatcher {
	return g.dispatcher
}

// Open allocates a connection identity for actor. The connection joins no rooms.
func (g *Gateway) Open(actor Actor) (*Connection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrGatewayClosed
	}

	conn := NewConnection(uuid.NewString(), actor, g.queueSize)
	g.conns[conn.ID] = conn
	g.metrics.ConnectionOpened()
	g.log.Debug().Str("conn_id", conn.ID).Str("actor", conn.Actor.ID).Msg("connection opened")
	return conn, nil
}

// Handle applies a command from conn. Invalid commands return an error wrapping
// ErrInvalidPayload; they never affect rooms or other connections.
func (g *Gateway) Handle(ctx context.Context, conn *Connection, cmd Command) error {
	switch cmd.Kind {
	case CommandJoinRoom:
		if cmd.Room == "" {
			return g.invalid(conn, cmd, ErrMissingRoom)
		}
		if g.registry.Join(conn, cmd.Room) {
			g.metrics.SetRooms(g.registry.RoomCount())
			g.log.Info().Str("conn_id", conn.ID).Str("room", cmd.Room).Msg("joined room")
		}
		g.reply(conn, &Event{Kind: EventRoomJoined, Room: cmd.Room})
		return nil

	case CommandLeaveRoom:
		if cmd.Room == "" {
			return g.invalid(conn, cmd, ErrMissingRoom)
		}
		if g.registry.Leave(conn.ID, cmd.Room) {
			g.metrics.SetRooms(g.registry.RoomCount())
			g.log.Info().Str("conn_id", conn.ID).Str("room", cmd.Room).Msg("left room")
		}
		g.reply(conn, &Event{Kind: EventRoomLeft, Room: cmd.Room})
		return nil

	case CommandSendMessage:
		msg, err := validateSend(cmd)
		if err != nil {
			return g.invalid(conn, cmd, err)
		}
		n := g.dispatcher.Broadcast(ctx, cmd.Room, msg)
		g.log.Debug().
			Str("conn_id", conn.ID).
			Str("room", cmd.Room).
			Str("message_id", msg.ID).
			Int("delivered", n).
			Msg("message relayed")
		return nil

	default:
		return g.invalid(conn, cmd, ErrUnknownCommand)
	}
}

func validateSend(cmd Command) (Message, error) {
	if cmd.Room == "" {
		return Message{}, ErrMissingRoom
	}
	if cmd.Message == nil {
		return Message{}, ErrMissingMessage
	}
	msg := *cmd.Message
	if msg.ID == "" {
		return Message{}, ErrMissingID
	}
	switch msg.Room {
	case "":
		msg.Room = cmd.Room
	case cmd.Room:
	default:
		return Message{}, ErrRoomMismatch
	}
	return msg, nil
}

func (g *Gateway) invalid(conn *Connection, cmd Command, err error) error {
	g.metrics.InvalidPayload()
	g.log.Warn().Err(err).Str("conn_id", conn.ID).Str("command", cmd.Kind.String()).Msg("dropped invalid command")
	return fmt.Errorf("%s: %w", cmd.Kind, err)
}

// reply queues an event for conn alone. A full queue means conn is already too slow to keep.
func (g *Gateway) reply(conn *Connection, ev *Event) {
	if err := conn.enqueue(ev); err == errQueueFull {
		g.dispatcher.evict(conn)
	}
}

// Reply queues an out-of-band event, such as a transport-level error, for conn alone.
func (g *Gateway) Reply(conn *Connection, ev *Event) {
	g.reply(conn, ev)
}

// Close removes conn from every room. It is safe to call for never-joined or already closed connections.
func (g *Gateway) Close(conn *Connection, reason string) {
	rooms := g.registry.LeaveAll(conn.ID)
	conn.Kick(reason)

	g.mu.Lock()
	_, tracked := g.conns[conn.ID]
	delete(g.conns, conn.ID)
	g.mu.Unlock()

	if !tracked {
		return
	}
	g.metrics.ConnectionClosed()
	g.metrics.SetRooms(g.registry.RoomCount())
	g.log.Debug().Str("conn_id", conn.ID).Str("reason", reason).Strs("rooms", rooms).Msg("connection closed")
}

// Shutdown kicks every open connection and refuses new ones.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	g.closed = true
	conns := make([]*Connection, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		g.Close(c, ReasonShutdown)
	}
	g.log.Info().Int("connections", len(conns)).Msg("gateway shut down")
}

// ConnectionCount returns the number of open connections.
func (g *Gateway) ConnectionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}
