// Package http provides HTTP routing and middleware configuration
// for the NoPass service.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/atinyakov/NoPass/internal/middleware"
)

// NewRouter constructs the HTTP handler that serves the NoPass API.
//
// Routes:
//
//	GET    /healthz             → 200, unauthenticated
//	GET    /api/me              → recordHandler.Me
//	GET    /api/records         → recordHandler.List
//	GET    /api/cards           → recordHandler.Cards
//	POST   /api/cards           → recordHandler.AddCard
//	DELETE /api/cards/{id}      → recordHandler.DeleteCard
//	GET    /api/passwords       → recordHandler.Passwords
//	POST   /api/passwords       → recordHandler.AddPassword
//	DELETE /api/passwords/{id}  → recordHandler.DeletePassword
//
// Middleware chain (applied in order):
//  1. RequestID, Recoverer
//  2. WithRequestLogging(logger)
//  3. auth.Middleware, which attaches the caller identity
//  4. AllowContentType("application/json") on /api
func NewRouter(
	recordHandler *RecordHandler,
	auth *middleware.Authenticator,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Use(chiMiddleware.AllowContentType("application/json"))

		r.Get("/me", recordHandler.Me)
		r.Get("/records", recordHandler.List)

		r.Route("/cards", func(r chi.Router) {
			r.Get("/", recordHandler.Cards)
			r.Post("/", recordHandler.AddCard)
			r.Delete("/{id}", recordHandler.DeleteCard)
		})
		r.Route("/passwords", func(r chi.Router) {
			r.Get("/", recordHandler.Passwords)
			r.Post("/", recordHandler.AddPassword)
			r.Delete("/{id}", recordHandler.DeletePassword)
		})
	})

	return r
}
