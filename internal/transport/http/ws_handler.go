package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vovakirdan/roomcast/internal/auth"
	"github.com/vovakirdan/roomcast/internal/config"
	"github.com/vovakirdan/roomcast/internal/core"
	"github.com/vovakirdan/roomcast/internal/metrics"
	"github.com/vovakirdan/roomcast/internal/proto"
)

const reasonDisconnected = "client disconnected"

var errBinaryFrame = fmt.Errorf("%w: binary frames are not supported", core.ErrInvalidPayload)

// WSHandler upgrades HTTP connections and bridges them to the gateway.
type WSHandler struct {
	gateway *core.Gateway
	jwt     *auth.JWTConfig
	metrics *metrics.Metrics
	log     *zerolog.Logger

	origins         originPolicy
	requireToken    bool
	maxMessageBytes int64
	writeTimeout    time.Duration
	rateLimit       rate.Limit
	rateBurst       int
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(gateway *core.Gateway, cfg config.Config, jwtCfg *auth.JWTConfig, m *metrics.Metrics, logger *zerolog.Logger) *WSHandler {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WSHandler{
		gateway:         gateway,
		jwt:             jwtCfg,
		metrics:         m,
		log:             logger,
		origins:         newOriginPolicy(cfg),
		requireToken:    cfg.JWTRequired,
		maxMessageBytes: cfg.MaxMessageBytes,
		writeTimeout:    writeTimeout,
		rateLimit:       limit,
		rateBurst:       burst,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	actor, err := h.authenticate(r)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws auth rejected")
		stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.origins.wsPatterns(),
		InsecureSkipVerify: h.origins.wildcard,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("ws accept error")
		return
	}
	if h.maxMessageBytes > 0 {
		conn.SetReadLimit(h.maxMessageBytes)
	}

	client, err := h.gateway.Open(actor)
	if err != nil {
		conn.Close(websocket.StatusGoingAway, core.ReasonShutdown)
		return
	}
	defer h.gateway.Close(client, reasonDisconnected)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status, reason := closeStatus(err)
	if status == websocket.StatusInternalError {
		h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
	}
	conn.Close(status, reason)
}

func (h *WSHandler) authenticate(r *stdhttp.Request) (core.Actor, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		bearer, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil && !errors.Is(err, auth.ErrMissingToken) {
			return core.Actor{}, err
		}
		token = bearer
	}
	if token == "" {
		if h.requireToken {
			return core.Actor{}, auth.ErrMissingToken
		}
		// Anonymous: the gateway names the actor after the connection.
		return core.Actor{}, nil
	}

	claims, err := auth.ValidateToken(h.jwt, token)
	if err != nil {
		return core.Actor{}, err
	}
	return claims.Actor(), nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Connection) error {
	limiter := rate.NewLimiter(h.rateLimit, h.rateBurst)
	for {
		// Frames are decoded here rather than with wsjson so bad JSON does not close the socket.
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.Allow() {
			h.metrics.RateLimited()
			h.log.Debug().Str("conn_id", client.ID).Msg("inbound rate limited")
			h.gateway.Reply(client, &core.Event{
				Kind:  core.EventError,
				Error: &core.CoreError{Code: core.ErrCodeRateLimited, Message: "too many events"},
			})
			continue
		}

		if typ != websocket.MessageText {
			h.reject(client, errBinaryFrame)
			continue
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.reject(client, fmt.Errorf("%w: %v", core.ErrInvalidPayload, err))
			continue
		}

		cmd, err := inboundToCommand(inbound)
		if err != nil {
			h.reject(client, err)
			continue
		}
		if err := h.gateway.Handle(ctx, client, cmd); err != nil {
			h.gateway.Reply(client, core.ErrorEvent(err))
		}
	}
}

// reject reports a frame that never reached the gateway.
func (h *WSHandler) reject(client *core.Connection, err error) {
	h.metrics.InvalidPayload()
	h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("dropped malformed frame")
	h.gateway.Reply(client, core.ErrorEvent(err))
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Connection) error {
	for {
		select {
		case event := <-client.Events():
			out, err := outboundFromEvent(event)
			if err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("encode ws event")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err = wsjson.Write(writeCtx, conn, out)
			cancel()
			if err != nil {
				h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			reason := client.Reason()
			h.log.Debug().Str("conn_id", client.ID).Str("reason", reason).Msg("closing kicked connection")
			return conn.Close(kickStatus(reason), reason)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func kickStatus(reason string) websocket.StatusCode {
	switch reason {
	case core.ReasonSlowConsumer:
		return websocket.StatusPolicyViolation
	case core.ReasonShutdown:
		return websocket.StatusGoingAway
	default:
		return websocket.StatusNormalClosure
	}
}

// closeStatus maps a loop error to the status sent to the peer.
// Clean closes, cancellations and EOF are quiet.
func closeStatus(err error) (websocket.StatusCode, string) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return websocket.StatusNormalClosure, "closing"
	}
	switch s := websocket.CloseStatus(err); s {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return s, "closing"
	case -1:
		return websocket.StatusInternalError, truncateReason(err.Error())
	default:
		return s, "closing"
	}
}

// Close frames carry at most 123 bytes of reason.
func truncateReason(reason string) string {
	const maxReason = 123
	if len(reason) <= maxReason {
		return reason
	}
	return reason[:maxReason]
}
