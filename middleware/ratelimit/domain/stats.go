package domain

import (
	"context"
	"time"
)

// Outcome classifica uma decisão para fins de estatística.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
	// OutcomeFailOpen: o store falhou e o request foi admitido sem contagem.
	OutcomeFailOpen Outcome = "fail_open"
)

// OutcomeOf deriva o Outcome de uma decisão; err tem precedência.
func OutcomeOf(d Decision, err error) Outcome {
	switch {
	case err != nil:
		return OutcomeFailOpen
	case d.Allowed:
		return OutcomeAllowed
	default:
		return OutcomeDenied
	}
}

// StatsEvent é uma decisão pronta para agregação.
//
// Route é o grupo de rota (ex.: "/api/v1/agents"), nunca o path cru, para
// manter a cardinalidade das chaves limitada.
type StatsEvent struct {
	Key     Key
	Outcome Outcome
	Method  string
	Route   string
	At      time.Time
}

// StatsStore agrega eventos. Erros são best-effort para o chamador.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
