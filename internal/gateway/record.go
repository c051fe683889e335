package gateway

import (
	"github.com/starford/florae/internal/models"
	"github.com/starford/florae/internal/recordstore"
)

// listColumns omits image_data; gallery listings fetch images separately.
var listColumns = []string{
	"id", "user_id", "created_at", "scientific_name", "common_name",
	"wiki_description", "care_instructions", "family", "genus",
	"latitude", "longitude", "city", "location_name",
	"watering_frequency_days", "watering_frequency_text",
	"reminder_enabled", "notes", "reminder_notification_id",
}

// buildRow maps a draft onto the plants table. The persisted watering
// frequency is the user's reminder frequency when the reminder is on,
// otherwise the suggested one.
func buildRow(d models.PlantDraft, userID string) recordstore.Record {
	days := d.WateringFrequencyDays
	if d.ReminderEnabled && d.ReminderFrequencyDays != nil {
		days = d.ReminderFrequencyDays
	}
	return recordstore.Record{
		"user_id":                  userID,
		"scientific_name":          d.ScientificName,
		"common_name":              d.CommonName,
		"wiki_description":         d.Description,
		"care_instructions":        d.CareInstructions,
		"family":                   d.Family,
		"genus":                    d.Genus,
		"latitude":                 d.Location.Latitude,
		"longitude":                d.Location.Longitude,
		"city":                     d.Location.City,
		"location_name":            d.Location.Address,
		"image_data":               d.Image.DataURI(),
		"watering_frequency_days":  models.CopyInt(days),
		"watering_frequency_text":  d.WateringFrequencyText,
		"reminder_enabled":         d.ReminderEnabled,
		"notes":                    d.Notes,
		"reminder_notification_id": (*string)(nil),
	}
}

func fromRecord(r recordstore.Record) models.StoredPlantRecord {
	return models.StoredPlantRecord{
		ID:                     r.String("id"),
		UserID:                 r.String("user_id"),
		CreatedAt:              r.Time("created_at"),
		ScientificName:         r.String("scientific_name"),
		CommonName:             r.String("common_name"),
		Family:                 r.String("family"),
		Genus:                  r.String("genus"),
		Description:            r.String("wiki_description"),
		CareInstructions:       r.String("care_instructions"),
		WateringFrequencyDays:  r.IntPtr("watering_frequency_days"),
		WateringFrequencyText:  r.String("watering_frequency_text"),
		ReminderEnabled:        r.Bool("reminder_enabled"),
		ReminderNotificationID: r.StringPtr("reminder_notification_id"),
		ImageData:              r.String("image_data"),
		Location: models.Location{
			Latitude:  r.Float("latitude"),
			Longitude: r.Float("longitude"),
			Address:   r.String("location_name"),
			City:      r.String("city"),
		},
		Notes: r.String("notes"),
	}
}
