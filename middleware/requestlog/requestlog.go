// Package requestlog é o estágio de log de acesso do pipeline.
package requestlog

import (
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"orchestrator-gateway/internal/logger"
	"orchestrator-gateway/middleware/pipeline"
)

// Stage registra uma entrada por request ao final do processamento. 5xx sai
// em ERROR, 4xx em WARN e o resto em INFO.
type Stage struct {
	log  *slog.Logger
	skip map[string]struct{}
}

// New cria o estágio. Paths em skip (ex.: /metrics) só são logados em DEBUG.
func New(log *slog.Logger, skip ...string) *Stage {
	if log == nil {
		log = logger.Discard()
	}
	s := &Stage{log: log, skip: make(map[string]struct{}, len(skip))}
	for _, p := range skip {
		s.skip[p] = struct{}{}
	}
	return s
}

func (s *Stage) Name() string { return "requestlog" }

func (s *Stage) Intercept(w http.ResponseWriter, r *http.Request, next http.Handler) {
	start := time.Now()
	rc := pipeline.FromContext(r.Context())
	if rc != nil && !rc.Start.IsZero() {
		start = rc.Start
	}

	s.log.DebugContext(r.Context(), "request started",
		logger.KeyMethod, r.Method,
		logger.KeyPath, r.URL.Path,
		logger.KeyRemoteAddr, r.RemoteAddr,
	)

	next.ServeHTTP(w, r)

	status := pipeline.Status(w)
	attrs := []slog.Attr{
		slog.String(logger.KeyMethod, r.Method),
		slog.String(logger.KeyPath, r.URL.Path),
		slog.Int(logger.KeyStatus, status),
		slog.Int64(logger.KeyDurationMs, time.Since(start).Milliseconds()),
	}
	if ww, ok := w.(middleware.WrapResponseWriter); ok {
		attrs = append(attrs, slog.Int(logger.KeyBytes, ww.BytesWritten()))
	}
	if rc != nil {
		attrs = append(attrs, slog.String(logger.KeyIdentity, rc.Identity))
		ann := rc.Annotations()
		keys := make([]string, 0, len(ann))
		for k := range ann {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			attrs = append(attrs, slog.String(k, ann[k]))
		}
	}

	s.log.LogAttrs(r.Context(), s.level(r.URL.Path, status), "request completed", attrs...)
}

func (s *Stage) level(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	}
	if _, ok := s.skip[path]; ok {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
