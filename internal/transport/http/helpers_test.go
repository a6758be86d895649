package http

import (
	"context"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/roomcast/internal/auth"
	"github.com/vovakirdan/roomcast/internal/config"
	"github.com/vovakirdan/roomcast/internal/core"
	roomlog "github.com/vovakirdan/roomcast/internal/log"
	"github.com/vovakirdan/roomcast/internal/metrics"
	"github.com/vovakirdan/roomcast/internal/proto"
	"github.com/vovakirdan/roomcast/internal/store/sqlite"
)

type testEnv struct {
	cfg     config.Config
	gateway *core.Gateway
	store   *sqlite.SQLiteStore
	metrics *metrics.Metrics
	router  stdhttp.Handler
	server  *httptest.Server
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.DatabasePath = ":memory:"
	cfg.JWTSecret = "test-secret"
	cfg.RateLimit = 0
	cfg.WriteTimeout = time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	m := metrics.New()
	gw := core.NewGateway(core.GatewayOptions{QueueSize: cfg.SendQueueSize, Metrics: m})
	router := NewServer(Deps{Gateway: gw, Store: st, Metrics: m}, cfg, roomlog.Nop()).Handler
	ts := httptest.NewServer(router)

	t.Cleanup(func() {
		gw.Shutdown()
		ts.Close()
		_ = st.Close()
	})

	return &testEnv{cfg: cfg, gateway: gw, store: st, metrics: m, router: router, server: ts}
}

func (e *testEnv) token(t *testing.T, subject, name string) string {
	t.Helper()
	token, err := auth.GenerateToken(JWTConfigFrom(e.cfg), subject, name)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func (e *testEnv) wsURL(token string) string {
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func (e *testEnv) dial(ctx context.Context, t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, e.wsURL(""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func (e *testEnv) storeMessage(t *testing.T, room, text string) core.Message {
	t.Helper()
	msg, err := e.store.CreateMessage(context.Background(), room, text, core.Actor{ID: "u1", Name: "Alice"})
	if err != nil {
		t.Fatalf("store message: %v", err)
	}
	return msg
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	in, err := proto.NewInbound(typ, data)
	if err != nil {
		t.Fatalf("build inbound: %v", err)
	}
	if err := wsjson.Write(ctx, conn, in); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func expectOutbound(ctx context.Context, t *testing.T, conn *websocket.Conn, typ string) proto.Outbound {
	t.Helper()
	var out proto.Outbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatalf("read outbound (want %s): %v", typ, err)
	}
	if out.Type != typ {
		t.Fatalf("unexpected outbound type: got %s (%+v), want %s", out.Type, out.Error, typ)
	}
	return out
}

// expectSilence fails if conn receives a frame within d. The read timeout closes conn.
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	var out proto.Outbound
	if err := wsjson.Read(ctx, conn, &out); err == nil {
		t.Fatalf("unexpected frame: %+v", out)
	}
}

func join(ctx context.Context, t *testing.T, conn *websocket.Conn, room string) {
	t.Helper()
	send(ctx, t, conn, proto.InboundTypeJoinRoom, proto.RoomData{RoomKey: room})
	expectOutbound(ctx, t, conn, proto.OutboundTypeRoomJoined)
}
