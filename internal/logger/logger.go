// Package logger monta o *slog.Logger usado por todo o orquestrador.
//
// O logger é criado uma vez no bootstrap e injetado nos componentes; nada aqui
// é global. Campos de requisição (request_id, identity, trace_id) entram via
// context.Context e são anexados automaticamente pelos métodos *Context do slog.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config descreve nível, formato e destino dos logs.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr ou caminho de arquivo
}

// New cria o logger a partir da configuração.
// Output vazio equivale a stdout.
func New(cfg Config) (*slog.Logger, error) {
	var out io.Writer
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		out = f
	}
	return NewWithWriter(out, cfg.Level, cfg.Format), nil
}

// NewWithWriter cria o logger escrevendo em w. Útil em testes.
func NewWithWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(&contextHandler{Handler: h})
}

// Discard devolve um logger que não escreve nada.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel converte DEBUG/INFO/WARN/ERROR (case-insensitive) em slog.Level.
// Valores desconhecidos viram INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
