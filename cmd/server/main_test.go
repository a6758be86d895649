package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vovakirdan/roomcast/internal/auth"
	"github.com/vovakirdan/roomcast/internal/config"
	transporthttp "github.com/vovakirdan/roomcast/internal/transport/http"
)

func TestTokenCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", path, "token", "user-1", "--name", "Alice"})
	if err := root.Execute(); err != nil {
		t.Fatalf("token command: %v", err)
	}

	cfg, _, err := config.Load(nil, path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	claims, err := auth.ValidateToken(transporthttp.JWTConfigFrom(cfg), strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("minted token does not validate: %v", err)
	}
	if actor := claims.Actor(); actor.ID != "user-1" || actor.Name != "Alice" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestTokenCommandRequiresSubject(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "config.yaml"), "token"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected an error without a subject")
	}
}
