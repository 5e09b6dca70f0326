/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RequestLogger: zerolog line per request, request logger in context
  3. Recovery:      Panic recovery (500 JSON instead of crash)
  4. CORS:          Cross-origin requests for dashboards

ROUTE GROUPS:
  /api/analyses/*                 Run and query analyses
  /api/runs/{id}                  Single run by ID
  /api/organizations/{org}/*      Thresholds and item uploads
  /api/scenarios/*                Demo datasets
  /api/health                     Liveness

SECURITY NOTE:
  No authentication middleware. All endpoints are public; deploy behind an
  authenticating proxy.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// DefaultAllowedOrigins are used when none are configured.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, log zerolog.Logger, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log))
	r.Use(Recovery(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", h.RunAnalysis)
			r.Post("/batch", h.RunBatch)
			r.Get("/{org}/{board}", h.ListRuns)
			r.Get("/{org}/{board}/{period}", h.LatestRun)
		})

		r.Get("/runs/{id}", h.GetRun)

		r.Route("/organizations/{org}", func(r chi.Router) {
			r.Get("/thresholds", h.GetThresholds)
			r.Put("/thresholds", h.PutThresholds)
			r.Put("/boards/{board}/periods/{period}/budgets", h.PutBudgets)
			r.Put("/periods/{period}/actuals", h.PutActuals)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
