// Package routers monta os grupos de rotas de domínio (auth, agents,
// workflows, services). A lógica de cada grupo vive em um serviço upstream;
// aqui cada grupo é um reverse proxy para a URL configurada, ou um handler 501
// quando nenhuma URL foi informada.
package routers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"

	"orchestrator-gateway/internal/logger"
	"orchestrator-gateway/middleware/pipeline"
)

const APIPrefix = "/api/v1"

// Groups na ordem em que são montados.
var Groups = []string{"auth", "agents", "workflows", "services"}

// Prefix devolve o path de montagem do grupo (ex.: /api/v1/agents).
func Prefix(group string) string { return APIPrefix + "/" + group }

// Prefixes devolve os paths de todos os grupos, usados como labels de rota.
func Prefixes() []string {
	out := make([]string, len(Groups))
	for i, g := range Groups {
		out[i] = Prefix(g)
	}
	return out
}

// Mount registra cada grupo em r. upstreams mapeia grupo -> URL; URL vazia
// monta o handler NotConfigured.
func Mount(r chi.Router, upstreams map[string]string, log *slog.Logger) error {
	for _, group := range Groups {
		h := NotConfigured(group)
		if raw := upstreams[group]; raw != "" {
			proxy, err := NewProxy(group, raw, log)
			if err != nil {
				return err
			}
			h = proxy
		}
		r.Mount(Prefix(group), h)
	}
	return nil
}

// NewProxy cria o reverse proxy de um grupo. O path é repassado sem
// alteração; X-Request-ID e X-Forwarded-* são propagados ao upstream.
func NewProxy(group, rawURL string, log *slog.Logger) (http.Handler, error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream url for %s: %q", group, rawURL)
	}
	if log == nil {
		log = logger.Discard()
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			if id := pipeline.RequestID(pr.In.Context()); id != "" {
				pr.Out.Header.Set(pipeline.RequestIDHeader, id)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			status, detail := http.StatusBadGateway, "Bad gateway"
			if errors.Is(err, context.DeadlineExceeded) {
				status, detail = http.StatusGatewayTimeout, "Upstream timeout"
			}
			log.WarnContext(r.Context(), "proxy error",
				logger.KeyUpstream, group,
				logger.KeyPath, r.URL.Path,
				logger.KeyError, err,
			)
			writeDetail(w, status, detail)
		},
	}
	return proxy, nil
}

// NotConfigured responde 501 para grupos sem upstream.
func NotConfigured(group string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotImplemented, group+" service not configured")
	})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
