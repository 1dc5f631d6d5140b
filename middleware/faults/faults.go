// Package faults é a fronteira global de falhas do pipeline: transforma
// panics e erros não tratados em uma resposta 500 consistente.
//
// Em ambientes production-like a resposta nunca expõe detalhes internos.
package faults

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"

	"orchestrator-gateway/internal/logger"
)

// genericBody é a única resposta permitida em produção, e o fallback se a
// renderização falhar.
var genericBody = []byte(`{"detail":"Internal server error"}` + "\n")

// PanicError representa um panic recuperado.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// UnhandledError é um erro devolvido por um handler que ninguém tratou.
type UnhandledError struct {
	Err error
}

func (e *UnhandledError) Error() string { return message(e.Err) }
func (e *UnhandledError) Unwrap() error { return e.Err }

type Boundary struct {
	log        *slog.Logger
	production bool
}

// New cria a fronteira. production=true (production/staging) suprime
// mensagem e tipo da falha na resposta.
func New(log *slog.Logger, production bool) *Boundary {
	if log == nil {
		log = logger.Discard()
	}
	return &Boundary{log: log, production: production}
}

func (b *Boundary) Name() string { return "faults" }

// Intercept permite usar a fronteira como estágio do pipeline.
func (b *Boundary) Intercept(w http.ResponseWriter, r *http.Request, next http.Handler) {
	defer b.recover(w, r)
	next.ServeHTTP(w, r)
}

// Wrap recupera panics de h.
func (b *Boundary) Wrap(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.Intercept(w, r, h)
	})
}

// HandlerFunc adapta handlers que devolvem erro.
func (b *Boundary) HandlerFunc(fn func(w http.ResponseWriter, r *http.Request) error) http.Handler {
	return b.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			b.Handle(w, r, &UnhandledError{Err: err})
		}
	}))
}

func (b *Boundary) recover(w http.ResponseWriter, r *http.Request) {
	rec := recover()
	if rec == nil {
		return
	}
	// usado pelo net/http para abortar a resposta; não é falha nossa
	if rec == http.ErrAbortHandler {
		panic(rec)
	}
	b.Handle(w, r, &PanicError{Value: rec, Stack: debug.Stack()})
}

// Handle registra failure e escreve a resposta 500. Nunca entra em panic:
// se a própria renderização falhar, cai no corpo genérico.
func (b *Boundary) Handle(w http.ResponseWriter, r *http.Request, failure error) {
	wrote := false
	defer func() {
		if rec := recover(); rec != nil {
			b.log.ErrorContext(r.Context(), "fault boundary failed to render response", logger.KeyError, fmt.Sprint(rec))
			if !wrote && !started(w) {
				writeGeneric(w)
			}
		}
	}()

	kind := TypeName(failure)
	detail := message(failure)
	attrs := []any{
		logger.KeyErrType, kind,
		logger.KeyError, detail,
		logger.KeyMethod, r.Method,
		logger.KeyPath, r.URL.Path,
	}
	var pe *PanicError
	if errors.As(failure, &pe) {
		attrs = append(attrs, logger.KeyStack, string(pe.Stack))
	}
	b.log.ErrorContext(r.Context(), "unhandled exception", attrs...)

	if started(w) {
		return
	}

	body := genericBody
	if !b.production {
		if encoded, err := json.Marshal(map[string]string{"detail": detail, "type": kind}); err == nil {
			body = append(encoded, '\n')
		}
	}

	w.Header().Set("Content-Type", "application/json")
	wrote = true
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write(body)
}

// writeGeneric é o último recurso; falhas aqui são descartadas.
func writeGeneric(w http.ResponseWriter) {
	defer func() { _ = recover() }()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write(genericBody)
}

// message chama Error() sem propagar panics (ex.: ponteiro nil tipado).
func message(err error) (msg string) {
	if err == nil {
		return "<nil>"
	}
	defer func() {
		if rec := recover(); rec != nil {
			msg = fmt.Sprintf("%s (Error() panicked: %v)", TypeName(err), rec)
		}
	}()
	return err.Error()
}

// TypeName devolve o nome do tipo concreto da causa da falha, sem pacote
// nem ponteiro (ex.: "PathError"). Panics com valor que não é error viram
// "panic".
func TypeName(failure error) string {
	var cause any = failure
	switch f := failure.(type) {
	case *UnhandledError:
		cause = f.Err
	case *PanicError:
		if err, ok := f.Value.(error); ok {
			cause = err
		} else {
			return "panic"
		}
	}
	if cause == nil {
		return "error"
	}
	t := reflect.TypeOf(cause)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

func started(w http.ResponseWriter) bool {
	ww, ok := w.(middleware.WrapResponseWriter)
	return ok && ww.Status() != 0
}
