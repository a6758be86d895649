package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast/internal/config"
	"github.com/vovakirdan/roomcast/internal/core"
	"github.com/vovakirdan/roomcast/internal/metrics"
	"github.com/vovakirdan/roomcast/internal/relay"
	"github.com/vovakirdan/roomcast/internal/store"
	"github.com/vovakirdan/roomcast/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/roomcast/internal/transport/http"
)

const relayConnectTimeout = 5 * time.Second

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	gateway         *core.Gateway
	store           store.MessageStore
	relay           *relay.Redis
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	for _, w := range cfg.Warnings() {
		logger.Warn().Msg(w)
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	opts := core.GatewayOptions{
		QueueSize: cfg.SendQueueSize,
		Metrics:   m,
		Logger:    logger,
	}

	var rl *relay.Redis
	if cfg.RedisAddr != "" {
		connectCtx, cancel := context.WithTimeout(ctx, relayConnectTimeout)
		rl, err = relay.Connect(connectCtx, cfg.RedisAddr, cfg.RedisChannelPrefix, logger)
		cancel()
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("init relay: %w", err)
		}
		opts.Relay = rl
		logger.Info().Str("redis_addr", cfg.RedisAddr).Str("origin", rl.Origin()).Msg("relay enabled")
	}

	gateway := core.NewGateway(opts)
	server := transporthttp.NewServer(transporthttp.Deps{
		Gateway: gateway,
		Store:   st,
		Metrics: m,
	}, *cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		gateway:         gateway,
		store:           st,
		relay:           rl,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	if a.relay != nil {
		go func() {
			if err := a.relay.Run(relayCtx, a.gateway.Dispatcher().DeliverLocal); err != nil {
				a.log.Error().Err(err).Msg("relay stopped")
			}
		}()
	}

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.gateway.Shutdown()
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		// Sockets are hijacked, so the server does not wait for them; kick them first.
		a.gateway.Shutdown()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close relay")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
