package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/virtadmin/convomem/internal/bridge"
	"github.com/virtadmin/convomem/internal/conversation"
	"github.com/virtadmin/convomem/internal/store"
)

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(
	db *store.DB,
	b *bridge.Bridge,
	convs *conversation.Store,
	apiKey string,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on ALL routes including /health)
	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	healthH := NewHealthHandler(db)
	turnH := NewTurnHandler(b)
	sessionH := NewSessionHandler(b)
	convH := NewConversationHandler(convs)

	// Unauthenticated routes
	r.Get("/health", healthH.Health)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(apiKey))

		r.Post("/turns", turnH.Process)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/start", sessionH.Start)
			r.Post("/end", sessionH.End)
		})

		r.Route("/users/{userId}", func(r chi.Router) {
			r.Get("/topics", convH.TopicHistory)
			r.Get("/conversations", convH.Recent)
			r.Get("/context", turnH.Context)
		})

		r.Get("/conversations/{id}", convH.Get)
	})

	return r
}
