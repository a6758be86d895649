package http

import (
	"net/url"
	"slices"
	"strings"

	"github.com/vovakirdan/roomcast/internal/config"
)

// originPolicy decides which browser origins may open sockets and call the API.
type originPolicy struct {
	wildcard    bool
	credentials bool
	allowed     []string
}

func newOriginPolicy(cfg config.Config) originPolicy {
	p := originPolicy{
		wildcard:    cfg.WildcardOrigins(),
		credentials: cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowedOrigins {
		if o == config.WildcardOrigin {
			continue
		}
		p.allowed = append(p.allowed, normalizeOrigin(o))
	}
	return p
}

func normalizeOrigin(origin string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(origin)), "/")
}

func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	return p.wildcard || slices.Contains(p.allowed, normalizeOrigin(origin))
}

// wsPatterns converts configured origins into the host patterns the websocket handshake matches against.
func (p originPolicy) wsPatterns() []string {
	patterns := make([]string, 0, len(p.allowed))
	for _, o := range p.allowed {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}
