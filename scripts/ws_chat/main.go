package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vovakirdan/roomcast/internal/auth"
	"github.com/vovakirdan/roomcast/internal/client"
	"github.com/vovakirdan/roomcast/internal/config"
	roomlog "github.com/vovakirdan/roomcast/internal/log"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "http://localhost:3001", "server base URL")
	token := flag.String("token", "", "bearer JWT; minted from -secret when empty")
	secret := flag.String("secret", config.DefaultJWTSecret, "JWT secret shared with the server")
	issuer := flag.String("issuer", "roomcast", "JWT issuer expected by the server")
	user := flag.String("user", "cli-user", "participant id")
	room := flag.String("room", "general", "room to join")
	logLevel := flag.String("log-level", "warn", "client log level")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *token == "" {
		minted, err := auth.GenerateToken(&auth.JWTConfig{Secret: []byte(*secret), Issuer: *issuer, TTL: 24 * time.Hour}, *user, *user)
		if err != nil {
			return fmt.Errorf("mint token: %w", err)
		}
		*token = minted
	}

	sess, err := client.Dial(ctx, client.Config{
		ServerURL: *server,
		Token:     *token,
		Logger:    roomlog.NewWriter(*logLevel, roomlog.FormatConsole, os.Stderr),
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	view, err := sess.Join(ctx, *room)
	if err != nil {
		return err
	}
	defer view.Close()

	fmt.Printf("Connected to %s as %s in room %s\n", *server, *user, *room)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go printLoop(ctx, view)
	return inputLoop(ctx, view)
}

// printLoop prints messages as they are merged into the view, oldest first.
func printLoop(ctx context.Context, view *client.RoomView) {
	seen := make(map[string]bool)
	show := func() {
		for _, m := range view.Messages() {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			fmt.Printf("[%s] %s %s: %s\n", m.Room, m.CreatedAt.Local().Format("15:04:05"), m.AuthorName, m.Text)
		}
	}
	show()
	for {
		select {
		case <-ctx.Done():
			return
		case <-view.Changed():
			show()
		}
	}
}

func inputLoop(ctx context.Context, view *client.RoomView) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if _, err := view.Submit(ctx, text); err != nil {
				if errors.Is(err, client.ErrNotConnected) {
					log.Printf("stored, will sync after reconnect: %v", err)
					continue
				}
				log.Printf("send error: %v", err)
			}
		}
	}
}
