package api

import (
	"github.com/starford/florae/internal/gateway"
	"github.com/starford/florae/internal/models"
	"github.com/starford/florae/internal/pipeline"
)

// StartSessionRequest is the request body for opening a session. Omitting
// both coordinates starts a session without a location.
type StartSessionRequest struct {
	Latitude  *float64 `json:"latitude" example:"-23.55"`
	Longitude *float64 `json:"longitude" example:"-46.63"`
}

// UpdateSessionRequest carries the user edits allowed in the ready state.
// Absent fields are left unchanged.
type UpdateSessionRequest struct {
	Notes                  *string `json:"notes,omitempty" example:"By the kitchen window"`
	ReminderEnabled        *bool   `json:"reminder_enabled,omitempty"`
	ReminderFrequencyDays  *int    `json:"reminder_frequency_days,omitempty" example:"7"`
	ReminderFrequencyInput *string `json:"reminder_frequency_input,omitempty" example:"7"`
}

// SessionView is the session representation (aliased from the pipeline).
type SessionView = pipeline.Snapshot

// PlantView is a stored plant without its inline image payload.
type PlantView struct {
	models.StoredPlantRecord
	ImageURL string `json:"image_url"`
}

// SaveResponse is returned after a successful save.
type SaveResponse struct {
	Plant    PlantView         `json:"plant" validate:"required"`
	Warnings []gateway.Warning `json:"warnings"`
}

// PlantListResponse wraps gallery listings.
type PlantListResponse struct {
	Plants []PlantView `json:"plants" validate:"required"`
	Total  int         `json:"total" example:"3" validate:"required"`
}

func plantView(rec models.StoredPlantRecord) PlantView {
	rec.ImageData = ""
	return PlantView{StoredPlantRecord: rec, ImageURL: "/api/plants/" + rec.ID + "/image"}
}
