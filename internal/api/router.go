package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(sessions Sessions, plants Plants, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(sessions, plants)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Capture sessions.
	r.Post("/sessions", h.StartSession)
	r.Get("/sessions/{id}", h.GetSession)
	r.Patch("/sessions/{id}", h.UpdateSession)
	r.Delete("/sessions/{id}", h.CancelSession)
	r.Post("/sessions/{id}/capture", h.Capture)
	r.Post("/sessions/{id}/save", h.SaveSession)

	// Gallery.
	r.Get("/plants", h.ListPlants)
	r.Get("/plants/{id}", h.GetPlant)
	r.Get("/plants/{id}/image", h.PlantImage)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
