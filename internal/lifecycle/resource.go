package lifecycle

import (
	"context"
	"errors"
	"fmt"
)

// Resource é uma dependência com ciclo de vida explícito.
type Resource interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// HealthChecker é opcional; o readiness consulta recursos que o implementam.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// State é o estado de um recurso dentro do Manager.
type State int

const (
	StateUnstarted State = iota
	StateStarted
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrTimeout indica que Start/Stop excedeu o limite configurado.
	ErrTimeout = errors.New("lifecycle: operation timed out")

	// ErrAlreadyStarted é devolvido quando StartAll é chamado mais de uma vez.
	ErrAlreadyStarted = errors.New("lifecycle: resources already started")
)

// StartupError nomeia o recurso cuja subida falhou. É fatal.
type StartupError struct {
	Resource string
	Err      error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup failed: resource %q: %v", e.Resource, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// ShutdownError é registrado em log e nunca propagado.
type ShutdownError struct {
	Resource string
	Err      error
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("shutdown failed: resource %q: %v", e.Resource, e.Err)
}

func (e *ShutdownError) Unwrap() error { return e.Err }

// Func adapta funções simples em um Resource. Stop pode ser nil.
type Func struct {
	ResourceName string
	StartFn      func(ctx context.Context) error
	StopFn       func(ctx context.Context) error
}

func (f Func) Name() string { return f.ResourceName }

func (f Func) Start(ctx context.Context) error {
	if f.StartFn == nil {
		return nil
	}
	return f.StartFn(ctx)
}

func (f Func) Stop(ctx context.Context) error {
	if f.StopFn == nil {
		return nil
	}
	return f.StopFn(ctx)
}
