package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vovakirdan/roomcast/internal/config"
	"github.com/vovakirdan/roomcast/internal/proto"
)

func (e *testEnv) do(t *testing.T, method, target, body, token string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateMessageRequiresIdentity(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, stdhttp.MethodPost, "/api/rooms/P1/messages", `{"content":"hi"}`, "", nil)
	if rec.Code != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = env.do(t, stdhttp.MethodPost, "/api/rooms/P1/messages", `{"content":"hi"}`, "not-a-jwt", nil)
	if rec.Code != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401 with a bad token, got %d", rec.Code)
	}
}

func TestCreateMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t, "u1", "Alice")

	rec := env.do(t, stdhttp.MethodPost, "/api/rooms/P1/messages", `{"content":"hello"}`, token, nil)
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	var msg proto.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if msg.ID == "" || msg.RoomKey != "P1" || msg.Text != "hello" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.AuthorID != "u1" || msg.AuthorName != "Alice" {
		t.Fatalf("author not taken from token: %+v", msg)
	}
	if msg.CreatedAt.IsZero() {
		t.Fatal("expected store timestamp")
	}

	stored, err := env.store.ListMessages(context.Background(), "P1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != msg.ID {
		t.Fatalf("expected the message to be persisted, got %+v", stored)
	}
}

func TestCreateMessageRejectsEmptyContent(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t, "u1", "Alice")

	for _, body := range []string{`{"content":""}`, `{}`, `not json`} {
		rec := env.do(t, stdhttp.MethodPost, "/api/rooms/P1/messages", body, token, nil)
		if rec.Code != stdhttp.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestListMessagesOrderAndLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	first := env.storeMessage(t, "P1", "one")
	second := env.storeMessage(t, "P1", "two")
	third := env.storeMessage(t, "P1", "three")
	env.storeMessage(t, "P2", "other room")

	decode := func(rec *httptest.ResponseRecorder) []proto.Message {
		t.Helper()
		if rec.Code != stdhttp.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
		}
		var msgs []proto.Message
		if err := json.Unmarshal(rec.Body.Bytes(), &msgs); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		return msgs
	}

	all := decode(env.do(t, stdhttp.MethodGet, "/api/rooms/P1/messages", "", "", nil))
	if len(all) != 3 || all[0].ID != first.ID || all[1].ID != second.ID || all[2].ID != third.ID {
		t.Fatalf("unexpected order: %+v", all)
	}

	recent := decode(env.do(t, stdhttp.MethodGet, "/api/rooms/P1/messages?limit=2", "", "", nil))
	if len(recent) != 2 || recent[0].ID != second.ID || recent[1].ID != third.ID {
		t.Fatalf("limit should keep the newest two ascending: %+v", recent)
	}

	empty := decode(env.do(t, stdhttp.MethodGet, "/api/rooms/nobody/messages", "", "", nil))
	if len(empty) != 0 {
		t.Fatalf("expected empty list, got %+v", empty)
	}

	rec := env.do(t, stdhttp.MethodGet, "/api/rooms/P1/messages?limit=abc", "", "", nil)
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("expected 400 for invalid limit, got %d", rec.Code)
	}
}

func TestEscapedRoomKey(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t, "u1", "Alice")

	rec := env.do(t, stdhttp.MethodPost, "/api/rooms/team%2Fgeneral/messages", `{"content":"hi"}`, token, nil)
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	msgs, err := env.store.ListMessages(context.Background(), "team/general", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected message under the unescaped key, got %+v", msgs)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.AllowedOrigins = []string{"https://app.example.com"}
		c.AllowCredentials = true
	})

	rec := env.do(t, stdhttp.MethodOptions, "/api/rooms/P1/messages", "", "", map[string]string{
		"Origin":                        "https://app.example.com",
		"Access-Control-Request-Method": "POST",
	})
	if rec.Code != stdhttp.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected credentials header")
	}

	rec = env.do(t, stdhttp.MethodGet, "/api/rooms/P1/messages", "", "", map[string]string{"Origin": "https://evil.example.com"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin must not be allowed, got %q", got)
	}
}

func TestCORSWildcard(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, stdhttp.MethodGet, "/api/rooms/P1/messages", "", "", map[string]string{"Origin": "https://anything.example"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard allow-origin, got %q", got)
	}
}
