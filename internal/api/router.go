package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quire/internal/noteservice"
)

// NewRouter creates a chi router with all API routes. sseHandler, if
// non-nil, is mounted at GET /events behind the same auth middleware.
func NewRouter(svc *noteservice.Service, maxSnapshots int, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, maxSnapshots)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Route("/notes/{name}", func(r chi.Router) {
		r.Get("/", h.GetNote)
		r.Put("/", h.SaveNote)
		r.Delete("/", h.DeleteNote)
		r.Get("/html", h.RenderNote)

		r.Get("/history", h.History)
		r.Delete("/history", h.ClearHistory)
		r.Get("/history/{id}", h.GetSnapshot)
		r.Post("/history/{id}/restore", h.RestoreSnapshot)
	})

	r.Post("/render", h.Render)
	r.Get("/search", h.Search)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}
	return r
}
