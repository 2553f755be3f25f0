/*
server.go - HTTP router and middleware configuration

ROUTER: chi

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in logs
  2. RealIP
  3. Logger:     zap request log (middleware.go)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Configured origins

SECURITY NOTE:
  No authentication middleware. The service is expected to sit behind the
  HR application, which authenticates users and sets X-Operator.
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.log()))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", OperatorHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Put("/{ref}", h.PutEmployee)
			r.Get("/{ref}", h.GetEmployee)
			r.Get("/{ref}/balance", h.GetBalance)
			r.Get("/{ref}/transactions", h.GetTransactions)
			r.Post("/{ref}/accruals/catch-up", h.CatchUp)
			r.Post("/{ref}/promotions", h.Promote)
			r.Post("/{ref}/leaves", h.RecordLeave)
			r.Get("/{ref}/leaves", h.ListLeaves)
			r.Post("/{ref}/override", h.Override)
			r.Post("/{ref}/adjustments", h.CreateAdjustment)
		})

		r.Route("/leaves", func(r chi.Router) {
			r.Get("/{id}", h.GetLeave)
			r.Put("/{id}", h.EditLeave)
			r.Delete("/{id}", h.DeleteLeave)
		})
	})

	return r
}
