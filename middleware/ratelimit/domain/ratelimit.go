package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

// Key identifica o cliente (IP, API key, usuário...).
type Key string

// Policy é o limite aplicado a cada chave: no máximo Limit admissões por
// janela de Window, contada a partir da primeira admissão da janela.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Decision é o resultado de uma tentativa de admissão.
type Decision struct {
	Allowed bool

	// Limit e Remaining alimentam os headers X-RateLimit-*.
	Limit     int
	Remaining int

	// ResetAt é quando a janela atual termina.
	ResetAt time.Time

	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// LimiterStore decide e contabiliza a admissão de key no instante now.
//
// Implementações devem ser exatas sob concorrência: nunca mais de Limit
// admissões por janela para a mesma chave. Uma rejeição não consome cota.
type LimiterStore interface {
	Admit(ctx context.Context, key Key, now time.Time) (Decision, error)
}
