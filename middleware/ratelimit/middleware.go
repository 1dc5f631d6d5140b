package ratelimit

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"orchestrator-gateway/internal/logger"
	"orchestrator-gateway/middleware/pipeline"
	"orchestrator-gateway/middleware/ratelimit/application"
	"orchestrator-gateway/middleware/ratelimit/domain"
)

// ErrRateLimitExceeded é a falha por request de uma rejeição (429).
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// AnnotationKey é a anotação do RequestContext com o resultado da admissão.
const AnnotationKey = "ratelimit"

// StatusClientClosedRequest é registrado quando o cliente desiste antes da
// decisão (convenção do nginx).
const StatusClientClosedRequest = 499

type KeyFunc func(r *http.Request) string

// DecisionObserver recebe cada decisão (ex.: o Recorder de métricas).
type DecisionObserver interface {
	ObserveRateLimit(allowed bool, err error)
}

type Options struct {
	Store   domain.LimiterStore
	Enabled bool
	Stats   domain.StatsStore

	// KeyFn é usado quando o request não passou pelo pipeline.
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool

	AddRateLimitHeaders bool

	Observer   DecisionObserver
	RouteLabel func(path string) string
	Logger     *slog.Logger
	Now        func() time.Time
}

// DefaultKeyFunc resolve a identidade do cliente: header configurado, depois
// primeiro IP do X-Forwarded-For (se confiável), depois o host de RemoteAddr.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Stage é o estágio de rate limit do pipeline.
type Stage struct {
	svc  application.Service
	opts Options
}

func New(opts Options) *Stage {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.RouteLabel == nil {
		opts.RouteLabel = func(path string) string { return path }
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Stage{
		svc:  application.Service{Store: opts.Store, Enabled: opts.Enabled},
		opts: opts,
	}
}

// Middleware expõe o estágio no formato func(http.Handler) http.Handler.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	s := New(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.Intercept(w, r, next)
		})
	}
}

func (s *Stage) Name() string { return "ratelimit" }

func (s *Stage) Intercept(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if !s.opts.Enabled {
		next.ServeHTTP(w, r)
		return
	}

	ctx := r.Context()
	// cliente já foi embora: não consome cota
	if ctx.Err() != nil {
		pipeline.FromContext(ctx).Annotate(AnnotationKey, "cancelled")
		w.WriteHeader(StatusClientClosedRequest)
		return
	}

	rc := pipeline.FromContext(ctx)
	key := ""
	if rc != nil {
		key = rc.Identity
	}
	if key == "" {
		key = s.opts.KeyFn(r)
	}

	now := s.opts.Now()
	dec, err := s.svc.Decide(ctx, domain.Key(key), now)
	if err != nil {
		s.opts.Logger.WarnContext(ctx, "rate limit store unavailable; admitting request",
			logger.KeyIdentity, key,
			logger.KeyError, err,
		)
	}
	if s.opts.Observer != nil {
		s.opts.Observer.ObserveRateLimit(dec.Allowed, err)
	}
	outcome := domain.OutcomeOf(dec, err)
	s.record(r, key, outcome, now)

	rc.Annotate(AnnotationKey, string(outcome))
	if outcome == domain.OutcomeDenied {
		rc.Annotate(logger.KeyError, ErrRateLimitExceeded.Error())
	}

	if s.opts.AddRateLimitHeaders && err == nil {
		h := w.Header()
		h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
		h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
		if !dec.ResetAt.IsZero() {
			h.Set("X-RateLimit-Reset", formatUnix(dec.ResetAt))
		}
	}

	if !dec.Allowed {
		s.opts.Logger.DebugContext(ctx, "request rejected by rate limiter",
			logger.KeyIdentity, key,
			logger.KeyPath, r.URL.Path,
		)
		WriteExceeded(w, dec.RetryAfter)
		return
	}

	next.ServeHTTP(w, r)
}

func (s *Stage) record(r *http.Request, key string, outcome domain.Outcome, at time.Time) {
	if s.opts.Stats == nil {
		return
	}
	err := s.opts.Stats.Record(r.Context(), domain.StatsEvent{
		Key:     domain.Key(key),
		Outcome: outcome,
		Method:  r.Method,
		Route:   s.opts.RouteLabel(r.URL.Path),
		At:      at,
	})
	if err != nil {
		s.opts.Logger.DebugContext(r.Context(), "failed to record rate limit stats", logger.KeyError, err)
	}
}

// WriteExceeded escreve a resposta padrão de rejeição (429).
func WriteExceeded(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", formatSeconds(retryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Too many requests"})
}
