// Package cors é o estágio CORS do pipeline, sobre github.com/go-chi/cors.
package cors

import (
	"net/http"

	chicors "github.com/go-chi/cors"
)

// exposed são os headers de resposta que o browser pode ler.
var exposed = []string{
	"X-Request-ID",
	"Retry-After",
	"X-RateLimit-Limit",
	"X-RateLimit-Remaining",
	"X-RateLimit-Reset",
}

type Options struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	// MaxAge em segundos para cache do preflight. 0 = padrão do browser.
	MaxAge int
}

// Stage responde preflights diretamente e decora as demais respostas.
type Stage struct {
	c *chicors.Cors
}

func New(opts Options) *Stage {
	return &Stage{c: chicors.New(chicors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   opts.AllowedMethods,
		AllowedHeaders:   opts.AllowedHeaders,
		ExposedHeaders:   exposed,
		AllowCredentials: opts.AllowCredentials,
		MaxAge:           opts.MaxAge,
	})}
}

func (s *Stage) Name() string { return "cors" }

func (s *Stage) Intercept(w http.ResponseWriter, r *http.Request, next http.Handler) {
	s.c.Handler(next).ServeHTTP(w, r)
}
