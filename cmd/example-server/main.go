// example-server é um upstream de desenvolvimento: responde com um eco JSON
// do request recebido. Serve como UPSTREAM_*_URL local para o orquestrador.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"orchestrator-gateway/internal/logger"
	"orchestrator-gateway/middleware/pipeline"
	"orchestrator-gateway/middleware/ratelimit"
	"orchestrator-gateway/middleware/ratelimit/infra"
	"orchestrator-gateway/middleware/requestlog"
)

type echo struct {
	Service   string              `json:"service"`
	Method    string              `json:"method"`
	Path      string              `json:"path"`
	Query     string              `json:"query,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
	Headers   map[string][]string `json:"headers"`
}

func main() {
	log := logger.NewWithWriter(os.Stdout, os.Getenv("LOG_LEVEL"), "text")

	service := "example"
	if v := os.Getenv("SERVICE_NAME"); v != "" {
		service = v
	}

	// o middleware pode ser usado direto em qualquer servidor, sem o pipeline
	store := infra.NewWindowStore(50, time.Second)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go infra.RunJanitor(ctx, store, nil)

	r := chi.NewRouter()
	r.Use(ratelimit.Middleware(ratelimit.Options{
		Store:               store,
		Enabled:             true,
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
		Logger:              log,
	}))
	r.HandleFunc("/*", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(echo{
			Service:   service,
			Method:    r.Method,
			Path:      r.URL.Path,
			Query:     r.URL.RawQuery,
			RequestID: r.Header.Get(pipeline.RequestIDHeader),
			Headers:   r.Header,
		})
	})

	h := pipeline.New(pipeline.Options{TrustRequestID: true}, requestlog.New(log)).Then(r)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("example upstream listening", logger.KeyAddr, addr, "service", service)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", logger.KeyError, err)
		os.Exit(1)
	}
}
