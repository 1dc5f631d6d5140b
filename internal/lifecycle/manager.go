package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"orchestrator-gateway/internal/logger"
)

// Timeouts padrão por recurso.
const (
	DefaultStartTimeout = 30 * time.Second
	DefaultStopTimeout  = 30 * time.Second
)

type Options struct {
	StartTimeout time.Duration
	StopTimeout  time.Duration
	Logger       *slog.Logger
}

// Manager é dono exclusivo dos recursos e de seus estados.
//
// StartAll e StopAll rodam nas fases single-threaded de subida e descida; o
// mutex protege apenas os snapshots lidos pelo readiness durante o serviço.
type Manager struct {
	log          *slog.Logger
	startTimeout time.Duration
	stopTimeout  time.Duration

	mu      sync.RWMutex
	entries []*entry
	begun   bool
}

type entry struct {
	res   Resource
	state State
	err   error
}

// NewManager recebe os recursos na ordem de dependência (folhas primeiro).
func NewManager(opts Options, resources ...Resource) *Manager {
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = DefaultStartTimeout
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}

	entries := make([]*entry, 0, len(resources))
	for _, r := range resources {
		entries = append(entries, &entry{res: r, state: StateUnstarted})
	}

	return &Manager{
		log:          opts.Logger,
		startTimeout: opts.StartTimeout,
		stopTimeout:  opts.StopTimeout,
		entries:      entries,
	}
}

// StartAll sobe os recursos estritamente na ordem declarada.
//
// Na primeira falha (erro, panic ou timeout) o recurso fica Failed, os já
// iniciados são parados em ordem reversa (falhas de stop só vão para o log) e
// um *StartupError com o nome do recurso é devolvido. Os recursos seguintes
// nunca são iniciados.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	if m.begun {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.begun = true
	m.mu.Unlock()

	for _, e := range m.entries {
		name := e.res.Name()

		if err := ctx.Err(); err != nil {
			m.fail(e, err)
			m.unwind(ctx)
			return &StartupError{Resource: name, Err: err}
		}

		m.log.InfoContext(ctx, "starting resource", logger.KeyResource, name)
		begin := time.Now()

		err := runBounded(ctx, m.startTimeout, e.res.Start, func(lateErr error) {
			if lateErr != nil {
				return
			}
			// subiu depois do timeout: já foi dado como falho, então desfaz.
			m.log.Warn("resource started after timeout; stopping it", logger.KeyResource, name)
			stopCtx, cancel := context.WithTimeout(context.Background(), m.stopTimeout)
			defer cancel()
			if stopErr := e.res.Stop(stopCtx); stopErr != nil {
				m.log.Error("failed to stop late resource", logger.KeyResource, name, logger.KeyError, stopErr)
			}
		})
		if err != nil {
			m.fail(e, err)
			m.log.ErrorContext(ctx, "resource failed to start",
				logger.KeyResource, name,
				logger.KeyError, err,
			)
			m.unwind(ctx)
			return &StartupError{Resource: name, Err: err}
		}

		m.setState(e, StateStarted, nil)
		m.log.InfoContext(ctx, "resource started",
			logger.KeyResource, name,
			logger.KeyDurationMs, time.Since(begin).Milliseconds(),
		)
	}
	return nil
}

// StopAll para os recursos iniciados em ordem reversa, exatamente uma vez
// cada, independentemente de falhas individuais. Chamadas repetidas não
// fazem nada.
func (m *Manager) StopAll(ctx context.Context) {
	started := m.startedPrefix()
	for i := len(started) - 1; i >= 0; i-- {
		m.stopOne(ctx, started[i])
	}
}

// unwind desfaz uma subida parcial. Usa um ctx sem cancelamento para que um
// ctx de startup já cancelado não impeça a limpeza.
func (m *Manager) unwind(ctx context.Context) {
	started := m.startedPrefix()
	if len(started) == 0 {
		return
	}
	m.log.WarnContext(ctx, "rolling back started resources", "count", len(started))
	cleanupCtx := context.WithoutCancel(ctx)
	for i := len(started) - 1; i >= 0; i-- {
		m.stopOne(cleanupCtx, started[i])
	}
}

func (m *Manager) stopOne(ctx context.Context, e *entry) {
	name := e.res.Name()
	m.log.InfoContext(ctx, "stopping resource", logger.KeyResource, name)

	if err := runBounded(ctx, m.stopTimeout, e.res.Stop, nil); err != nil {
		serr := &ShutdownError{Resource: name, Err: err}
		m.setState(e, StateFailed, serr)
		m.log.ErrorContext(ctx, "resource failed to stop",
			logger.KeyResource, name,
			logger.KeyError, serr,
		)
		return
	}
	m.setState(e, StateStopped, nil)
	m.log.InfoContext(ctx, "resource stopped", logger.KeyResource, name)
}

// startedPrefix devolve os recursos em Started, na ordem declarada, e os
// marca como em parada para que ninguém os pare duas vezes.
func (m *Manager) startedPrefix() []*entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*entry
	for _, e := range m.entries {
		if e.state != StateStarted {
			break
		}
		out = append(out, e)
	}
	for _, e := range out {
		e.state = stateStopping
	}
	return out
}

// stateStopping é interno: o recurso saiu de Started e ainda não terminou o Stop.
const stateStopping State = -1

func (m *Manager) fail(e *entry, err error) {
	m.setState(e, StateFailed, err)
}

func (m *Manager) setState(e *entry, s State, err error) {
	m.mu.Lock()
	e.state = s
	e.err = err
	m.mu.Unlock()
}

// ResourceStatus é um snapshot do estado de um recurso.
type ResourceStatus struct {
	Name  string
	State State
	Err   error
}

// States devolve o estado de todos os recursos na ordem declarada.
func (m *Manager) States() []ResourceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ResourceStatus, 0, len(m.entries))
	for _, e := range m.entries {
		st := e.state
		if st == stateStopping {
			st = StateStarted
		}
		out = append(out, ResourceStatus{Name: e.res.Name(), State: st, Err: e.err})
	}
	return out
}

// State devolve o estado do recurso pelo nome.
func (m *Manager) State(name string) (State, bool) {
	for _, s := range m.States() {
		if s.Name == name {
			return s.State, true
		}
	}
	return StateUnstarted, false
}

// Healthy consulta os recursos iniciados que implementam HealthChecker.
// Um recurso que não está Started conta como não saudável.
func (m *Manager) Healthy(ctx context.Context) []ResourceStatus {
	m.mu.RLock()
	entries := append([]*entry(nil), m.entries...)
	m.mu.RUnlock()

	out := m.States()
	for i, e := range entries {
		if out[i].State != StateStarted {
			if out[i].Err == nil {
				out[i].Err = fmt.Errorf("resource is %s", out[i].State)
			}
			continue
		}
		if hc, ok := e.res.(HealthChecker); ok {
			out[i].Err = hc.Health(ctx)
		}
	}
	return out
}

// runBounded executa fn com timeout. Panics viram erro. Se o timeout vencer
// antes de fn voltar, late (quando não nil) recebe o resultado tardio.
func runBounded(ctx context.Context, timeout time.Duration, fn func(context.Context) error, late func(error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		select {
		case err := <-done:
			return err
		default:
		}
		if late != nil {
			go func() { late(<-done) }()
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return ctx.Err()
	}
}
