package web

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/znz-systems/sortbox/internal/ratelimit"
	"github.com/znz-systems/sortbox/internal/web/handlers"
	"github.com/znz-systems/sortbox/internal/web/middleware"
)

// RouterDeps holds all dependencies needed to build the router. Handlers left
// nil have their routes omitted.
type RouterDeps struct {
	IngestHandler      *handlers.IngestHandler
	UnsubscribeHandler *handlers.UnsubscribeHandler
	MessageHandler     *handlers.MessageHandler
	CategoryHandler    *handlers.CategoryHandler
	AccountHandler     *handlers.AccountHandler
	HealthHandler      *handlers.HealthHandler
	Limiter            *ratelimit.Limiter
	APIToken           string
}

// NewRouter wires all routes into a Chi router.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RealIP)

	if deps.HealthHandler != nil {
		r.Get("/healthz", deps.HealthHandler.HandleHealth)
	}

	// OAuth callback is reached by the provider's redirect; the state
	// parameter is its only credential.
	if deps.AccountHandler != nil {
		r.With(middleware.RateLimit(deps.Limiter)).Get("/oauth/google/callback", deps.AccountHandler.HandleCallback)
	}

	// Token protected API
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(deps.Limiter))
		r.Use(middleware.BearerToken(deps.APIToken))

		if deps.AccountHandler != nil {
			r.Get("/oauth/google/start", deps.AccountHandler.HandleStartLink)
			r.Get("/api/v1/users/{userID}/accounts", deps.AccountHandler.HandleList)
			r.Delete("/api/v1/users/{userID}/accounts/{accountID}", deps.AccountHandler.HandleDisconnect)
		}
		if deps.CategoryHandler != nil {
			r.Get("/api/v1/users/{userID}/categories", deps.CategoryHandler.HandleList)
			r.Post("/api/v1/users/{userID}/categories", deps.CategoryHandler.HandleCreate)
			r.Delete("/api/v1/users/{userID}/categories/{categoryID}", deps.CategoryHandler.HandleDelete)
		}
		if deps.IngestHandler != nil {
			r.Post("/api/v1/accounts/{accountID}/ingest", deps.IngestHandler.HandleRunCycle)
		}
		if deps.UnsubscribeHandler != nil {
			r.Post("/api/v1/messages/{messageID}/unsubscribe", deps.UnsubscribeHandler.HandleUnsubscribe)
		}
		if deps.MessageHandler != nil {
			r.Post("/api/v1/messages/delete", deps.MessageHandler.HandleDelete)
			r.Get("/api/v1/users/{userID}/messages/{messageID}", deps.MessageHandler.HandleGet)
			r.Get("/api/v1/users/{userID}/categories/{categoryID}/messages", deps.MessageHandler.HandleListByCategory)
		}
	})

	return r
}
