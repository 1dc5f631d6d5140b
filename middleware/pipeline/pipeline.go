package pipeline

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"orchestrator-gateway/internal/logger"
)

// RequestIDHeader é lido na entrada (quando confiável) e sempre ecoado na resposta.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen limita ids recebidos do cliente.
const maxRequestIDLen = 128

// Interceptor é um estágio do pipeline.
//
// Intercept chama next.ServeHTTP para seguir adiante ou escreve a resposta e
// retorna para interromper a cadeia. O w recebido é sempre um
// middleware.WrapResponseWriter.
type Interceptor interface {
	Name() string
	Intercept(w http.ResponseWriter, r *http.Request, next http.Handler)
}

// IdentityFunc resolve a identidade do cliente (chave de rate limit, logs).
type IdentityFunc func(r *http.Request) string

type funcInterceptor struct {
	name string
	fn   func(w http.ResponseWriter, r *http.Request, next http.Handler)
}

func (f funcInterceptor) Name() string { return f.name }

func (f funcInterceptor) Intercept(w http.ResponseWriter, r *http.Request, next http.Handler) {
	f.fn(w, r, next)
}

// Func cria um Interceptor a partir de uma função.
func Func(name string, fn func(w http.ResponseWriter, r *http.Request, next http.Handler)) Interceptor {
	return funcInterceptor{name: name, fn: fn}
}

// FromMiddleware adapta um middleware no formato func(http.Handler) http.Handler.
// O middleware é reconstruído por request; use apenas com construtores baratos.
func FromMiddleware(name string, mw func(http.Handler) http.Handler) Interceptor {
	return Func(name, func(w http.ResponseWriter, r *http.Request, next http.Handler) {
		mw(next).ServeHTTP(w, r)
	})
}

type Options struct {
	// Identity resolve a identidade do cliente. Se nil, usa o host de RemoteAddr.
	Identity IdentityFunc

	// TrustRequestID aceita X-Request-ID vindo do cliente.
	TrustRequestID bool

	Now func() time.Time
}

// Pipeline é uma lista ordenada e imutável de interceptadores.
type Pipeline struct {
	opts   Options
	stages []Interceptor
}

// New compõe os estágios na ordem dada: o primeiro é o mais externo.
func New(opts Options, stages ...Interceptor) *Pipeline {
	if opts.Identity == nil {
		opts.Identity = remoteHost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	kept := make([]Interceptor, 0, len(stages))
	for _, s := range stages {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Pipeline{opts: opts, stages: kept}
}

// Names devolve os nomes dos estágios na ordem de execução.
func (p *Pipeline) Names() []string {
	out := make([]string, len(p.stages))
	for i, s := range p.stages {
		out[i] = s.Name()
	}
	return out
}

// Then devolve o handler final: entrada do pipeline → estágios → h.
func (p *Pipeline) Then(h http.Handler) http.Handler {
	chain := h
	for i := len(p.stages) - 1; i >= 0; i-- {
		stage := p.stages[i]
		next := chain
		chain = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			stage.Intercept(w, r, next)
		})
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := &RequestContext{
			RequestID: p.requestID(r),
			Start:     p.opts.Now(),
		}
		rc.Identity = p.opts.Identity(r)
		if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
			rc.TraceID = sc.TraceID().String()
		}

		attrs := []slog.Attr{slog.String(logger.KeyRequestID, rc.RequestID)}
		if rc.TraceID != "" {
			attrs = append(attrs, slog.String(logger.KeyTraceID, rc.TraceID))
		}
		ctx := logger.WithAttrs(NewContext(r.Context(), rc), attrs...)

		w.Header().Set(RequestIDHeader, rc.RequestID)
		chain.ServeHTTP(Wrap(w, r), r.WithContext(ctx))
	})
}

func (p *Pipeline) requestID(r *http.Request) string {
	if p.opts.TrustRequestID {
		if v := strings.TrimSpace(r.Header.Get(RequestIDHeader)); v != "" && len(v) <= maxRequestIDLen {
			return v
		}
	}
	return uuid.NewString()
}

// Wrap devolve w como middleware.WrapResponseWriter, sem embrulhar duas vezes.
func Wrap(w http.ResponseWriter, r *http.Request) middleware.WrapResponseWriter {
	if ww, ok := w.(middleware.WrapResponseWriter); ok {
		return ww
	}
	return middleware.NewWrapResponseWriter(w, r.ProtoMajor)
}

// Status devolve o status efetivamente escrito (200 se nada foi escrito).
func Status(w http.ResponseWriter) int {
	if ww, ok := w.(middleware.WrapResponseWriter); ok && ww.Status() != 0 {
		return ww.Status()
	}
	return http.StatusOK
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr)); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
