// Package client is a participant-side session: it keeps one websocket open to the server,
// mirrors joined rooms into a reconciliation cache and recovers missed messages after reconnects.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast/internal/core"
	"github.com/vovakirdan/roomcast/internal/proto"
	"github.com/vovakirdan/roomcast/internal/reconcile"
)

var (
	// ErrClosed is returned after Session.Close or RoomView.Close.
	ErrClosed = errors.New("client: closed")
	// ErrNotConnected is returned when a frame cannot be relayed because the socket is down.
	ErrNotConnected = errors.New("client: not connected")
	// ErrPersistence wraps every failed write to the message store.
	ErrPersistence = errors.New("client: persistence failed")
	// ErrRoomOpen is returned when a room already has an open view in the session.
	ErrRoomOpen = errors.New("client: room already open")
)

const frameTimeout = 5 * time.Second

// State is the session's transport state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Session owns one logical connection to the server and reconnects it when the transport drops.
type Session struct {
	cfg   Config
	api   *api
	wsURL string
	cache *reconcile.Cache
	log   *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	// received counts NEW_MESSAGE frames, echoes included.
	received atomic.Int64

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	views  map[string]*RoomView
	closed bool
}

// Dial connects to the server. The returned session must be closed by the caller.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	apiBase, wsURL, err := endpoints(cfg.ServerURL)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:    cfg,
		api:    &api{base: apiBase, token: cfg.Token, http: cfg.HTTPClient},
		wsURL:  wsURL,
		cache:  reconcile.NewCache(),
		log:    cfg.Logger,
		ctx:    sctx,
		cancel: cancel,
		done:   make(chan struct{}),
		views:  make(map[string]*RoomView),
	}

	conn, err := s.connect(ctx)
	if err != nil {
		cancel()
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		return nil, err
	}
	go s.run(conn)
	return s, nil
}

// State reports the current transport state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) connect(ctx context.Context) (*websocket.Conn, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, backoff.Permanent(ErrClosed)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	opts := &websocket.DialOptions{HTTPClient: s.cfg.HTTPClient}
	if s.cfg.Token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + s.cfg.Token}}
	}
	conn, resp, err := websocket.Dial(ctx, s.wsURL, opts)
	if err != nil {
		s.setState(StateDisconnected)
		err = fmt.Errorf("dial %s: %w", s.wsURL, err)
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.CloseNow()
		return nil, backoff.Permanent(ErrClosed)
	}
	s.conn = conn
	s.state = StateConnected
	rooms := make([]string, 0, len(s.views))
	for room := range s.views {
		rooms = append(rooms, room)
	}
	s.mu.Unlock()

	s.log.Info().Str("url", s.wsURL).Int("rooms", len(rooms)).Msg("connected")
	for _, room := range rooms {
		if err := s.write(conn, proto.InboundTypeJoinRoom, proto.RoomData{RoomKey: room}); err != nil {
			s.log.Warn().Err(err).Str("room", room).Msg("rejoin failed")
		}
	}
	return conn, nil
}

func (s *Session) run(conn *websocket.Conn) {
	defer close(s.done)
	for {
		err := s.readLoop(conn)
		s.dropped(conn, err)
		if s.ctx.Err() != nil {
			return
		}

		next, err := s.reconnect()
		if err != nil {
			if !errors.Is(err, ErrClosed) && !errors.Is(err, context.Canceled) {
				s.log.Error().Err(err).Msg("giving up reconnecting")
			}
			return
		}
		conn = next
	}
}

func (s *Session) reconnect() (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.MinBackoff
	b.MaxInterval = s.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	var conn *websocket.Conn
	operation := func() error {
		c, err := s.connect(s.ctx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.log.Debug().Err(err).Dur("retry_in", wait).Msg("reconnect failed")
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, s.ctx), notify); err != nil {
		return nil, err
	}
	return conn, nil
}

// dropped resets every room to not joined; the next connect rejoins them.
func (s *Session) dropped(conn *websocket.Conn, err error) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.state = StateDisconnected
	for _, v := range s.views {
		v.setJoined(false)
	}
	s.mu.Unlock()
	_ = conn.CloseNow()

	if s.ctx.Err() == nil {
		s.log.Warn().Err(err).Msg("transport dropped")
	}
}

func (s *Session) readLoop(conn *websocket.Conn) error {
	for {
		var out proto.Outbound
		if err := wsjson.Read(s.ctx, conn, &out); err != nil {
			return err
		}
		s.handle(out)
	}
}

func (s *Session) handle(out proto.Outbound) {
	switch out.Type {
	case proto.OutboundTypeNewMessage:
		var wire proto.Message
		if err := json.Unmarshal(out.Data, &wire); err != nil {
			s.log.Warn().Err(err).Msg("decode new message")
			return
		}
		s.received.Add(1)
		msg := wire.ToCore()
		if v := s.view(msg.Room); v != nil && s.merge(v, msg) > 0 {
			v.signal()
		}

	case proto.OutboundTypeRoomJoined:
		var data proto.RoomData
		if err := json.Unmarshal(out.Data, &data); err != nil {
			s.log.Warn().Err(err).Msg("decode join ack")
			return
		}
		v := s.view(data.RoomKey)
		if v == nil {
			return
		}
		v.setJoined(true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.backfill(s.ctx, v); err != nil && s.ctx.Err() == nil {
				s.log.Warn().Err(err).Str("room", v.room).Msg("backfill failed")
			}
		}()

	case proto.OutboundTypeRoomLeft:
		s.log.Debug().RawJSON("data", out.Data).Msg("left room")

	case proto.OutboundTypeError:
		if out.Error != nil {
			s.log.Warn().Str("code", out.Error.Code).Str("msg", out.Error.Msg).Msg("server error")
		}

	default:
		s.log.Debug().Str("type", out.Type).Msg("ignored frame")
	}
}

// backfill merges the store's view of the room into the cache.
func (s *Session) backfill(ctx context.Context, v *RoomView) error {
	msgs, err := s.api.listMessages(ctx, v.room, s.cfg.BackfillLimit)
	if err != nil {
		return err
	}
	if n := s.merge(v, msgs...); n > 0 {
		s.log.Debug().Str("room", v.room).Int("recovered", n).Msg("backfill merged")
		v.signal()
	}
	return nil
}

// merge adds msgs to the cache only while v is still the session's view of its room.
// Holding s.mu across the check and the write keeps forget from interleaving.
func (s *Session) merge(v *RoomView, msgs ...core.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.views[v.room] != v {
		return 0
	}
	return s.cache.Merge(v.room, msgs...)
}

func (s *Session) view(room string) *RoomView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views[room]
}

func (s *Session) currentConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Session) write(conn *websocket.Conn, typ string, data any) error {
	in, err := proto.NewInbound(typ, data)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(s.ctx, frameTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, in)
}

// send writes a frame on the current connection.
func (s *Session) send(typ string, data any) error {
	conn := s.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	if err := s.write(conn, typ, data); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// Join opens a view of room. It loads the room's history before returning and keeps
// the view joined across reconnects until RoomView.Close.
func (s *Session) Join(ctx context.Context, room string) (*RoomView, error) {
	if room == "" {
		return nil, errors.New("client: room key is required")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := s.views[room]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRoomOpen, room)
	}
	v := newRoomView(s, room)
	s.views[room] = v
	s.mu.Unlock()

	if err := s.backfill(ctx, v); err != nil {
		s.forget(v)
		return nil, fmt.Errorf("load %s: %w", room, err)
	}

	if err := s.send(proto.InboundTypeJoinRoom, proto.RoomData{RoomKey: room}); err != nil {
		// Joined on the next connect.
		s.log.Debug().Err(err).Str("room", room).Msg("join deferred")
	}
	return v, nil
}

// forget drops v from the session and clears its cached messages.
func (s *Session) forget(v *RoomView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.views[v.room] != v {
		return
	}
	delete(s.views, v.room)
	s.cache.Reset(v.room)
}

// Close ends the session and every view opened on it. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	views := make([]*RoomView, 0, len(s.views))
	for _, v := range s.views {
		views = append(views, v)
	}
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}
	s.cancel()
	<-s.done
	s.wg.Wait()

	for _, v := range views {
		v.markClosed()
		s.forget(v)
	}
	s.setState(StateDisconnected)
	return nil
}
