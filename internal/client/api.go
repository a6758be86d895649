package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vovakirdan/roomcast/internal/core"
	"github.com/vovakirdan/roomcast/internal/proto"
)

// api talks to the persistence endpoints.
type api struct {
	base  string
	token string
	http  *http.Client
}

func (a *api) messagesURL(room string) string {
	return a.base + "/api/rooms/" + url.PathEscape(room) + "/messages"
}

// createMessage writes content through the store. Every failure wraps ErrPersistence.
func (a *api) createMessage(ctx context.Context, room, content string) (core.Message, error) {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return core.Message{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.messagesURL(room), bytes.NewReader(body))
	if err != nil {
		return core.Message{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return core.Message{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return core.Message{}, fmt.Errorf("%w: status %d: %s", ErrPersistence, resp.StatusCode, errorBody(resp.Body))
	}

	var msg proto.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return core.Message{}, fmt.Errorf("%w: decode response: %v", ErrPersistence, err)
	}
	if msg.ID == "" {
		return core.Message{}, fmt.Errorf("%w: response carries no id", ErrPersistence)
	}
	return msg.ToCore(), nil
}

func (a *api) listMessages(ctx context.Context, room string, limit int) ([]core.Message, error) {
	target := a.messagesURL(room)
	if limit > 0 {
		target += "?limit=" + strconv.Itoa(limit)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list messages: status %d: %s", resp.StatusCode, errorBody(resp.Body))
	}

	var wire []proto.Message
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("list messages: decode: %w", err)
	}
	out := make([]core.Message, 0, len(wire))
	for _, m := range wire {
		out = append(out, m.ToCore())
	}
	return out, nil
}

func errorBody(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4<<10))
	if err != nil {
		return err.Error()
	}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	if len(raw) == 0 {
		return "empty body"
	}
	return string(raw)
}
