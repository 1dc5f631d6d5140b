package application

import (
	"context"
	"time"

	"orchestrator-gateway/middleware/ratelimit/domain"
)

// MinRetryAfter é o menor Retry-After anunciado numa rejeição.
const MinRetryAfter = time.Second

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Store   domain.LimiterStore
	Enabled bool
}

// Decide admite ou rejeita key em now.
//
// Desabilitado (ou sem store) sempre admite, sem contabilizar nada. Se o
// store falhar o request é admitido (fail-open) e o erro é devolvido para
// quem chamou registrar.
func (s Service) Decide(ctx context.Context, key domain.Key, now time.Time) (domain.Decision, error) {
	if !s.Enabled || s.Store == nil {
		return domain.Decision{Allowed: true}, nil
	}

	dec, err := s.Store.Admit(ctx, key, now)
	if err != nil {
		return domain.Decision{Allowed: true}, err
	}
	if !dec.Allowed && dec.RetryAfter < MinRetryAfter {
		dec.RetryAfter = MinRetryAfter
	}
	return dec, nil
}
