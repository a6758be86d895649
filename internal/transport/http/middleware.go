package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast/internal/auth"
	"github.com/vovakirdan/roomcast/internal/core"
)

// ContextKeyActor is the gin context key holding the verified core.Actor.
const ContextKeyActor = "actor"

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AuthMiddleware creates a middleware that validates bearer JWT tokens.
func AuthMiddleware(cfg *auth.JWTConfig, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			logger.Debug().Err(err).Msg("rejected authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
			return
		}

		claims, err := auth.ValidateToken(cfg, token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		c.Set(ContextKeyActor, claims.Actor())
		c.Next()
	}
}

func actorFromContext(c *gin.Context) (core.Actor, bool) {
	v, ok := c.Get(ContextKeyActor)
	if !ok {
		return core.Actor{}, false
	}
	actor, ok := v.(core.Actor)
	return actor, ok
}

// CORSMiddleware answers cross-origin requests from allowed origins.
func CORSMiddleware(p originPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if p.allows(origin) {
			h := c.Writer.Header()
			h.Add("Vary", "Origin")
			if p.wildcard && !p.credentials {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			if p.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		ev := logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = logger.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
