package client

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultMinBackoff = 250 * time.Millisecond
	defaultMaxBackoff = 10 * time.Second
)

// Config describes how a Session reaches the server.
type Config struct {
	// ServerURL is the server base address, e.g. http://localhost:3001.
	ServerURL string
	// Token is a bearer JWT sent on the websocket handshake and on writes.
	Token string
	// HTTPClient must not set Timeout; requests are bounded by their contexts.
	HTTPClient *http.Client
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// BackfillLimit caps how many recent messages a backfill fetches; 0 fetches all.
	BackfillLimit int
	Logger        *zerolog.Logger
}

func (c Config) withDefaults() (Config, error) {
	if c.ServerURL == "" {
		return c, errors.New("client: server url is required")
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = defaultMinBackoff
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = defaultMaxBackoff
		if c.MaxBackoff < c.MinBackoff {
			c.MaxBackoff = c.MinBackoff
		}
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	return c, nil
}

// endpoints derives the REST base and websocket URLs from a server address.
func endpoints(server string) (apiBase, wsURL string, err error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", "", fmt.Errorf("client: parse server url: %w", err)
	}

	httpURL, socketURL := *u, *u
	switch u.Scheme {
	case "http", "ws":
		httpURL.Scheme, socketURL.Scheme = "http", "ws"
	case "https", "wss":
		httpURL.Scheme, socketURL.Scheme = "https", "wss"
	default:
		return "", "", fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}

	base := strings.TrimSuffix(u.Path, "/")
	base = strings.TrimSuffix(base, "/ws")
	httpURL.Path = base
	socketURL.Path = base + "/ws"
	httpURL.RawQuery, socketURL.RawQuery = "", ""
	return httpURL.String(), socketURL.String(), nil
}
