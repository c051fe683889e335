// Package models defines the domain types for Florae.
package models

import (
	"encoding/base64"
	"time"
)

// DefaultImageMIME is assumed when a capture does not report its own type.
const DefaultImageMIME = "image/jpeg"

// Image is a captured photo. The bytes are owned by the draft until persisted.
type Image struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
	URI      string `json:"uri,omitempty"`
}

// Empty reports whether no image bytes were captured.
func (i Image) Empty() bool {
	return len(i.Data) == 0
}

// MIME returns the image type, defaulting to JPEG.
func (i Image) MIME() string {
	if i.MIMEType == "" {
		return DefaultImageMIME
	}
	return i.MIMEType
}

// DataURI encodes the image as data:<mime>;base64,<payload>.
func (i Image) DataURI() string {
	if i.Empty() {
		return ""
	}
	return "data:" + i.MIME() + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Address is the human-readable result of reverse geocoding.
type Address struct {
	Address string `json:"address"`
	City    string `json:"city"`
}

// Location is captured once per session and never changes afterwards.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
	City      string  `json:"city"`
}

// PlantFacts is the sanitized output of the enrichment step.
type PlantFacts struct {
	CommonName            string `json:"common_name"`
	Family                string `json:"family"`
	Genus                 string `json:"genus"`
	Description           string `json:"description"`
	CareInstructions      string `json:"care_instructions"`
	WateringFrequencyText string `json:"watering_frequency_text"`
	WateringFrequencyDays *int   `json:"watering_frequency_days"`
}

// PlantDraft is the in-memory, user-editable record of one capture session.
type PlantDraft struct {
	ScientificName        string   `json:"scientific_name"`
	CommonName            string   `json:"common_name"`
	Family                string   `json:"family"`
	Genus                 string   `json:"genus"`
	Description           string   `json:"description"`
	CareInstructions      string   `json:"care_instructions"`
	WateringFrequencyDays *int     `json:"watering_frequency_days"`
	WateringFrequencyText string   `json:"watering_frequency_text"`
	ReminderEnabled       bool     `json:"reminder_enabled"`
	ReminderFrequencyDays *int     `json:"reminder_frequency_days"`
	Image                 Image    `json:"image"`
	Location              Location `json:"location"`
	Notes                 string   `json:"notes"`
	HasFacts              bool     `json:"-"`
}

// ApplyFacts merges enrichment output into the draft.
func (d *PlantDraft) ApplyFacts(f PlantFacts) {
	d.CommonName = f.CommonName
	d.Family = f.Family
	d.Genus = f.Genus
	d.Description = f.Description
	d.CareInstructions = f.CareInstructions
	d.WateringFrequencyText = f.WateringFrequencyText
	d.WateringFrequencyDays = CopyInt(f.WateringFrequencyDays)
	d.HasFacts = true
}

// StoredPlantRecord is a persisted plant.
type StoredPlantRecord struct {
	ID                     string    `json:"id"`
	UserID                 string    `json:"user_id"`
	CreatedAt              time.Time `json:"created_at"`
	ScientificName         string    `json:"scientific_name"`
	CommonName             string    `json:"common_name"`
	Family                 string    `json:"family"`
	Genus                  string    `json:"genus"`
	Description            string    `json:"wiki_description"`
	CareInstructions       string    `json:"care_instructions"`
	WateringFrequencyDays  *int      `json:"watering_frequency_days"`
	WateringFrequencyText  string    `json:"watering_frequency_text"`
	ReminderEnabled        bool      `json:"reminder_enabled"`
	ReminderNotificationID *string   `json:"reminder_notification_id"`
	ImageData              string    `json:"image_data,omitempty"`
	Location               Location  `json:"location"`
	Notes                  string    `json:"notes"`
}

// HasReminder reports whether the plant has a reminder enabled or a handle stored.
func (r *StoredPlantRecord) HasReminder() bool {
	return r.ReminderEnabled || (r.ReminderNotificationID != nil && *r.ReminderNotificationID != "")
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// CopyInt returns an independent copy of p.
func CopyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
