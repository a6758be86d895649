package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast/internal/auth"
	"github.com/vovakirdan/roomcast/internal/config"
	"github.com/vovakirdan/roomcast/internal/core"
	"github.com/vovakirdan/roomcast/internal/metrics"
	"github.com/vovakirdan/roomcast/internal/store"
)

// tokenTTL bounds tokens minted by the token subcommand.
const tokenTTL = 24 * time.Hour

// Deps are the collaborators the HTTP layer routes to.
type Deps struct {
	Gateway *core.Gateway
	Store   store.MessageStore
	Metrics *metrics.Metrics
}

// JWTConfigFrom builds the token verification settings from cfg.
func JWTConfigFrom(cfg config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      tokenTTL,
	}
}

// NewServer builds an HTTP server with the websocket, REST, health and metrics routes.
func NewServer(deps Deps, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(deps, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter builds the handler behind NewServer. The websocket endpoint is mounted on
// the mux directly because the upgrade needs the raw ResponseWriter; gin serves the rest.
func NewRouter(deps Deps, cfg config.Config, logger *zerolog.Logger) stdhttp.Handler {
	jwtCfg := JWTConfigFrom(cfg)

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(deps.Gateway, cfg, jwtCfg, deps.Metrics, logger))
	mux.Handle("/", newEngine(deps, cfg, jwtCfg, logger))
	return mux
}

func newEngine(deps Deps, cfg config.Config, jwtCfg *auth.JWTConfig, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	// Room keys are opaque and may contain escaped slashes.
	router.UseRawPath = true
	router.UnescapePathValues = true
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	origins := newOriginPolicy(cfg)

	router.GET("/health", healthHandler)
	if cfg.MetricsEnabled && deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	messages := NewMessageHandlers(deps.Store, logger)
	api := router.Group("/api", CORSMiddleware(origins))
	api.OPTIONS("/rooms/:room/messages", preflightHandler)
	api.GET("/rooms/:room/messages", messages.ListMessages)
	api.POST("/rooms/:room/messages", AuthMiddleware(jwtCfg, logger), messages.CreateMessage)

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

func preflightHandler(c *gin.Context) {
	c.Status(stdhttp.StatusNoContent)
}
