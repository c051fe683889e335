package enrichment

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/starford/florae/internal/models"
)

// MaxWateringDays bounds the accepted watering interval to ten years.
const MaxWateringDays = 3650

// Fallbacks used when the model omits a field or returns something unusable.
const (
	CommonNameNotFound       = "Common name not found"
	FamilyNotFound           = "Family not found"
	GenusNotFound            = "Genus not found"
	DescriptionNotFound      = "Description not found"
	CareInstructionsNotFound = "Care instructions not found"
	FrequencyNotProvided     = "Watering frequency not provided"
)

// Fallbacks used when the service could not be reached at all.
const (
	CommonNameUnavailable       = "Data unavailable"
	DescriptionUnavailable      = "Could not retrieve detailed information about this plant right now."
	CareInstructionsUnavailable = "Consult a specialist for proper care tips."
	FamilyUnavailable           = "Not identified"
	GenusUnavailable            = "Not identified"
	FrequencyUnavailable        = "Information unavailable"
)

// NotConfigured fills every text field when no API key is set.
const NotConfigured = "Configure the AI service"

// SanitizeText keeps a trimmed non-empty string and otherwise returns fallback.
func SanitizeText(value any, fallback string) string {
	s, ok := value.(string)
	if !ok {
		return fallback
	}
	if s = strings.TrimSpace(s); s == "" {
		return fallback
	}
	return s
}

// SanitizeNumber coerces value to a positive whole number of days. Anything
// non-finite, non-positive, unparsable or above MaxWateringDays yields nil.
func SanitizeNumber(value any) *int {
	f, ok := toNumber(value)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return nil
	}
	rounded := math.Floor(f + 0.5)
	if rounded > MaxWateringDays {
		return nil
	}
	n := max(int(rounded), 1)
	return &n
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case nil:
		return 0, false
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Sanitize turns a decoded model reply into well-formed facts.
func Sanitize(raw map[string]any) models.PlantFacts {
	return models.PlantFacts{
		CommonName:            SanitizeText(raw["common_name"], CommonNameNotFound),
		Family:                SanitizeText(raw["family"], FamilyNotFound),
		Genus:                 SanitizeText(raw["genus"], GenusNotFound),
		Description:           SanitizeText(raw["description"], DescriptionNotFound),
		CareInstructions:      SanitizeText(raw["care_instructions"], CareInstructionsNotFound),
		WateringFrequencyText: SanitizeText(raw["watering_frequency_text"], FrequencyNotProvided),
		WateringFrequencyDays: SanitizeNumber(raw["watering_frequency_days"]),
	}
}

// SanitizeFacts re-applies the sanitizer to already typed facts. It is a
// no-op on anything Sanitize produced.
func SanitizeFacts(f models.PlantFacts) models.PlantFacts {
	var days any
	if f.WateringFrequencyDays != nil {
		days = float64(*f.WateringFrequencyDays)
	}
	return Sanitize(map[string]any{
		"common_name":             f.CommonName,
		"family":                  f.Family,
		"genus":                   f.Genus,
		"description":             f.Description,
		"care_instructions":       f.CareInstructions,
		"watering_frequency_text": f.WateringFrequencyText,
		"watering_frequency_days": days,
	})
}

// parseReply strictly decodes the model content. Anything that is not a JSON
// object becomes an empty object.
func parseReply(content string) map[string]any {
	var raw map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &raw); err != nil || raw == nil {
		return map[string]any{}
	}
	return raw
}

func unavailableFacts() models.PlantFacts {
	return models.PlantFacts{
		CommonName:            CommonNameUnavailable,
		Family:                FamilyUnavailable,
		Genus:                 GenusUnavailable,
		Description:           DescriptionUnavailable,
		CareInstructions:      CareInstructionsUnavailable,
		WateringFrequencyText: FrequencyUnavailable,
	}
}

func notConfiguredFacts() models.PlantFacts {
	return models.PlantFacts{
		CommonName:            NotConfigured,
		Family:                NotConfigured,
		Genus:                 NotConfigured,
		Description:           NotConfigured,
		CareInstructions:      NotConfigured,
		WateringFrequencyText: NotConfigured,
	}
}
