// Package httpapi exposes the HTTP surface: the WebSocket endpoint,
// read-only match endpoints, health and metrics.
package httpapi

import (
	"log/slog"
	"net/http"

	"match-chat/contract"
	"match-chat/observability"
	"match-chat/services"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	AllowedOrigins []string
	HistoryLimit   int
}

// NewRouter wires the routes. matches and history are optional.
func NewRouter(log *slog.Logger, service services.IChatService, ws http.Handler, metrics *observability.Metrics,
	matches contract.MatchDirectory, history contract.MessageHistory, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(log))
	r.Use(chimw.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	h := &Handler{log: log, service: service, matches: matches, history: history, historyLimit: cfg.HistoryLimit}

	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", h.Health)
	r.Handle("/ws", ws)

	r.Route("/matches/{id}", func(r chi.Router) {
		r.Get("/presence", h.Presence)
		if history != nil {
			r.Get("/messages", h.Messages)
		}
	})

	return r
}
