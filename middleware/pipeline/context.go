package pipeline

import (
	"context"
	"sync"
	"time"
)

// RequestContext é o registro por request criado na entrada do pipeline.
// Vive apenas enquanto o request está em andamento.
type RequestContext struct {
	RequestID string
	Identity  string
	TraceID   string
	Start     time.Time

	mu          sync.Mutex
	annotations map[string]string
}

// Annotate anexa um par chave/valor ao request (ex.: decisão do rate limit).
// Valores vazios são ignorados.
func (rc *RequestContext) Annotate(key, value string) {
	if rc == nil || value == "" {
		return
	}
	rc.mu.Lock()
	if rc.annotations == nil {
		rc.annotations = make(map[string]string)
	}
	rc.annotations[key] = value
	rc.mu.Unlock()
}

func (rc *RequestContext) Annotation(key string) (string, bool) {
	if rc == nil {
		return "", false
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	v, ok := rc.annotations[key]
	return v, ok
}

// Annotations devolve uma cópia das anotações.
func (rc *RequestContext) Annotations() map[string]string {
	if rc == nil {
		return nil
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make(map[string]string, len(rc.annotations))
	for k, v := range rc.annotations {
		out[k] = v
	}
	return out
}

// Elapsed é o tempo desde a entrada no pipeline.
func (rc *RequestContext) Elapsed() time.Duration {
	if rc == nil || rc.Start.IsZero() {
		return 0
	}
	return time.Since(rc.Start)
}

type requestContextKey struct{}

// NewContext devolve ctx carregando rc.
func NewContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext devolve o RequestContext do request, ou nil fora do pipeline.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc
}

// RequestID é um atalho para FromContext(ctx).RequestID.
func RequestID(ctx context.Context) string {
	if rc := FromContext(ctx); rc != nil {
		return rc.RequestID
	}
	return ""
}
