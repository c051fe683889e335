// Package pipeline runs a capture session: recognition, enrichment, user
// edits and the final save, as an explicit state machine.
package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/florae/internal/apperr"
)

// State is a session state.
type State string

const (
	StateIdle        State = "idle"
	StateCapturing   State = "capturing"
	StateRecognizing State = "recognizing"
	StateEnriching   State = "enriching"
	StateReady       State = "ready"
	StateSaving      State = "saving"
	StateSaved       State = "saved"
	StateFailed      State = "failed"
)

// Reason explains a failed state.
type Reason string

const (
	ReasonNone                    Reason = ""
	ReasonNoSuggestionsFound      Reason = "no_suggestions_found"
	ReasonRecognitionServiceError Reason = "recognition_service_error"
	ReasonEnrichmentError         Reason = "enrichment_error"
	ReasonPersistenceError        Reason = "persistence_error"
)

// DefaultReminderDays is used when a reminder is switched on without a
// frequency.
const DefaultReminderDays = 3

var (
	// ErrPermissionDenied is returned when the reminder toggle cannot be
	// switched on.
	ErrPermissionDenied = errors.New("pipeline: notification permission denied")
	// ErrDiscarded is returned when a session was cancelled while an
	// external call was in flight.
	ErrDiscarded = errors.New("pipeline: result discarded after cancel")
)

// Event reports a state transition.
type Event struct {
	SessionID string        `json:"session_id"`
	From      State         `json:"from"`
	State     State         `json:"state"`
	Reason    Reason        `json:"reason,omitempty"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	At        time.Time     `json:"at"`
}

// Observer receives every transition. It must not block.
type Observer func(Event)

// Observers fans one event out to several observers.
func Observers(obs ...Observer) Observer {
	return func(ev Event) {
		for _, o := range obs {
			if o != nil {
				o(ev)
			}
		}
	}
}

// FailureError is returned when a step moves the session to StateFailed.
type FailureError struct {
	Reason Reason
	Err    error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Reason, e.Err)
}

func (e *FailureError) Unwrap() error { return e.Err }

// ValidationError lists the fields that block a save.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "pipeline: validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == apperr.ErrValidation
}

func newValidationError(errs validation.Errors) error {
	if err := errs.Filter(); err == nil {
		return nil
	}
	fields := make(map[string]string)
	for k, v := range errs {
		if v != nil {
			fields[k] = v.Error()
		}
	}
	return &ValidationError{Fields: fields}
}
