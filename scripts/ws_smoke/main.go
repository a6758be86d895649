package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"slices"
	"time"

	"github.com/vovakirdan/roomcast/internal/auth"
	"github.com/vovakirdan/roomcast/internal/client"
	"github.com/vovakirdan/roomcast/internal/config"
	"github.com/vovakirdan/roomcast/internal/core"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "http://localhost:3001", "server base URL")
	secret := flag.String("secret", config.DefaultJWTSecret, "JWT secret shared with the server")
	issuer := flag.String("issuer", "roomcast", "JWT issuer expected by the server")
	room := flag.String("room", "general", "room key")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	jwtCfg := &auth.JWTConfig{Secret: []byte(*secret), Issuer: *issuer, TTL: time.Hour}
	open := func(user string) (*client.Session, *client.RoomView, error) {
		token, err := auth.GenerateToken(jwtCfg, user, user)
		if err != nil {
			return nil, nil, err
		}
		sess, err := client.Dial(ctx, client.Config{ServerURL: *server, Token: token})
		if err != nil {
			return nil, nil, fmt.Errorf("dial %s: %w", user, err)
		}
		view, err := sess.Join(ctx, *room)
		if err != nil {
			_ = sess.Close()
			return nil, nil, fmt.Errorf("join %s: %w", user, err)
		}
		return sess, view, nil
	}

	sender, senderView, err := open("smoke-sender")
	if err != nil {
		return err
	}
	defer sender.Close()
	peer, peerView, err := open("smoke-peer")
	if err != nil {
		return err
	}
	defer peer.Close()

	if err := waitUntil(ctx, peerView.Changed(), peerView.Joined); err != nil {
		return fmt.Errorf("peer join: %w", err)
	}

	msg, err := senderView.Submit(ctx, *text)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	log.Printf("stored message %s at %s", msg.ID, msg.CreatedAt.Format(time.RFC3339Nano))

	delivered := func() bool { return contains(peerView.Messages(), msg.ID) }
	if err := waitUntil(ctx, peerView.Changed(), delivered); err != nil {
		return fmt.Errorf("peer never received %s: %w", msg.ID, err)
	}

	if !slices.EqualFunc(senderView.Messages(), peerView.Messages(), func(a, b core.Message) bool { return a.ID == b.ID }) {
		return errors.New("sender and peer views differ")
	}
	fmt.Printf("ok: %d message(s) converged in room %s\n", len(peerView.Messages()), *room)
	return nil
}

func contains(msgs []core.Message, id string) bool {
	return slices.ContainsFunc(msgs, func(m core.Message) bool { return m.ID == id })
}

// waitUntil re-checks cond on every change signal and on a short tick, since some
// state (such as join acks) does not signal.
func waitUntil(ctx context.Context, changed <-chan struct{}, cond func() bool) error {
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for !cond() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		case <-tick.C:
		}
	}
	return nil
}
