package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/florae/internal/gateway"
	"github.com/starford/florae/internal/models"
	"github.com/starford/florae/internal/pipeline"
)

// Sessions is the session registry the handlers drive.
type Sessions interface {
	Start(ctx context.Context, coords *pipeline.Coordinates) (*pipeline.Session, error)
	Get(id string) (*pipeline.Session, error)
}

// Plants is the read side of the persistence gateway.
type Plants interface {
	Get(ctx context.Context, id string) (*models.StoredPlantRecord, error)
	List(ctx context.Context, f gateway.Filter) ([]models.StoredPlantRecord, error)
	Image(ctx context.Context, id string) (models.Image, error)
}

// Handler holds API route handlers.
type Handler struct {
	sessions Sessions
	plants   Plants
}

// NewHandler creates a new Handler.
func NewHandler(sessions Sessions, plants Plants) *Handler {
	return &Handler{sessions: sessions, plants: plants}
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*pipeline.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get session", err)
		return nil, false
	}
	return s, true
}

// StartSession handles POST /api/sessions.
//
//	@Summary		Open a capture session at the device location
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		StartSessionRequest	false	"Device coordinates"
//	@Success		201		{object}	SessionView
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions [post]
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	var coords *pipeline.Coordinates
	switch {
	case req.Latitude != nil && req.Longitude != nil:
		coords = &pipeline.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
	case req.Latitude != nil || req.Longitude != nil:
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("latitude and longitude must be given together"))
		return
	}

	s, err := h.sessions.Start(r.Context(), coords)
	if err != nil {
		writeError(w, "start session", err)
		return
	}
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

// GetSession handles GET /api/sessions/{id}.
//
//	@Summary		Get a session
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	SessionView
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// Capture handles POST /api/sessions/{id}/capture (multipart/form-data, field "image").
//
//	@Summary		Identify the uploaded photo
//	@Tags			sessions
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			id		path		string	true	"Session id"
//	@Param			image	formData	file	true	"Photo"
//	@Success		200		{object}	SessionView
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/capture [post]
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	img, err := readCapture(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := s.Capture(r.Context(), img); err != nil {
		writeError(w, "capture", err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// UpdateSession handles PATCH /api/sessions/{id}.
//
//	@Summary		Edit notes and reminder settings
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Session id"
//	@Param			body	body		UpdateSessionRequest	true	"Edits"
//	@Success		200		{object}	SessionView
//	@Failure		403		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [patch]
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req UpdateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	if req.Notes != nil {
		if err := s.SetNotes(*req.Notes); err != nil {
			writeError(w, "set notes", err)
			return
		}
	}
	if req.ReminderFrequencyInput != nil {
		if err := s.SetReminderFrequencyInput(*req.ReminderFrequencyInput); err != nil {
			writeError(w, "set reminder input", err)
			return
		}
	}
	if req.ReminderFrequencyDays != nil {
		if err := s.SetReminderFrequency(req.ReminderFrequencyDays); err != nil {
			writeError(w, "set reminder frequency", err)
			return
		}
	}
	if req.ReminderEnabled != nil {
		if err := s.ToggleReminder(r.Context(), *req.ReminderEnabled); err != nil {
			writeError(w, "toggle reminder", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// SaveSession handles POST /api/sessions/{id}/save.
//
//	@Summary		Persist the identified plant
//	@Tags			sessions
//	@Produce		json
//	@Param			id			path		string	true	"Session id"
//	@Param			X-User-ID	header		string	true	"Signed-in user"
//	@Success		201			{object}	SaveResponse
//	@Failure		409			{object}	errResponse
//	@Failure		422			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/save [post]
func (h *Handler) SaveSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	rec, warnings, err := s.Save(r.Context(), userID(r))
	if err != nil {
		writeError(w, "save plant", err)
		return
	}
	if warnings == nil {
		warnings = []gateway.Warning{}
	}
	writeJSON(w, http.StatusCreated, SaveResponse{Plant: plantView(*rec), Warnings: warnings})
}

// CancelSession handles DELETE /api/sessions/{id}.
//
//	@Summary		Discard the current capture
//	@Tags			sessions
//	@Param			id	path	string	true	"Session id"
//	@Success		204	"Draft discarded"
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [delete]
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Cancel(); err != nil {
		writeError(w, "cancel session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPlants handles GET /api/plants.
//
//	@Summary		List stored plants, newest first
//	@Tags			plants
//	@Produce		json
//	@Param			user_id			query		string	false	"Owner"
//	@Param			q				query		string	false	"Text search"
//	@Param			has_reminder	query		bool	false	"Reminder filter"
//	@Success		200				{object}	PlantListResponse
//	@Security		BearerAuth
//	@Router			/plants [get]
func (h *Handler) ListPlants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := gateway.Filter{UserID: q.Get("user_id"), Query: q.Get("q")}
	if raw := q.Get("has_reminder"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("has_reminder must be a boolean"))
			return
		}
		f.HasReminder = &v
	}

	recs, err := h.plants.List(r.Context(), f)
	if err != nil {
		writeError(w, "list plants", err)
		return
	}
	views := make([]PlantView, len(recs))
	for i, rec := range recs {
		views[i] = plantView(rec)
	}
	writeJSON(w, http.StatusOK, PlantListResponse{Plants: views, Total: len(views)})
}

// GetPlant handles GET /api/plants/{id}.
//
//	@Summary		Get a stored plant
//	@Tags			plants
//	@Produce		json
//	@Param			id	path		string	true	"Plant id"
//	@Success		200	{object}	PlantView
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/plants/{id} [get]
func (h *Handler) GetPlant(w http.ResponseWriter, r *http.Request) {
	rec, err := h.plants.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get plant", err)
		return
	}
	writeJSON(w, http.StatusOK, plantView(*rec))
}

// PlantImage handles GET /api/plants/{id}/image.
func (h *Handler) PlantImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	img, err := h.plants.Image(r.Context(), id)
	if err != nil {
		writeError(w, "get plant image", err)
		return
	}
	w.Header().Set("Content-Type", img.MIME())
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img.Data); err != nil {
		slog.Debug("write plant image failed", slog.String("id", id), slog.String("error", err.Error()))
	}
}
