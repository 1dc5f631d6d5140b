// Package hostguard rejeita requests cujo Host não está na lista permitida.
//
// Padrões aceitos: "*" (qualquer host), "*.exemplo.com" (qualquer subdomínio)
// e nomes exatos. A porta do Host é ignorada.
package hostguard

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"orchestrator-gateway/internal/logger"
)

// Guard é o estágio de validação de host. É o primeiro do pipeline: requests
// rejeitados aqui não chegam a log de acesso, métricas nem rate limit.
type Guard struct {
	allowAny bool
	exact    map[string]struct{}
	suffixes []string
	log      *slog.Logger
}

func New(allowed []string, log *slog.Logger) *Guard {
	if log == nil {
		log = logger.Discard()
	}
	g := &Guard{exact: make(map[string]struct{}), log: log}
	for _, h := range allowed {
		h = strings.ToLower(strings.TrimSpace(h))
		switch {
		case h == "":
		case h == "*":
			g.allowAny = true
		case strings.HasPrefix(h, "*."):
			g.suffixes = append(g.suffixes, h[1:])
		default:
			g.exact[h] = struct{}{}
		}
	}
	return g
}

func (g *Guard) Name() string { return "hostguard" }

// Allowed informa se host (com ou sem porta) é aceito.
func (g *Guard) Allowed(host string) bool {
	if g.allowAny {
		return true
	}
	host = hostname(host)
	if host == "" {
		return false
	}
	if _, ok := g.exact[host]; ok {
		return true
	}
	for _, suffix := range g.suffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

func (g *Guard) Intercept(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if g.Allowed(r.Host) {
		next.ServeHTTP(w, r)
		return
	}

	g.log.WarnContext(r.Context(), "rejected request with untrusted host",
		logger.KeyHost, r.Host,
		logger.KeyMethod, r.Method,
		logger.KeyPath, r.URL.Path,
		logger.KeyRemoteAddr, r.RemoteAddr,
	)
	http.Error(w, "Invalid host header", http.StatusBadRequest)
}

func hostname(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}
