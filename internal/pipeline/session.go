package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/florae/internal/apperr"
	"github.com/starford/florae/internal/enrichment"
	"github.com/starford/florae/internal/gateway"
	"github.com/starford/florae/internal/models"
	"github.com/starford/florae/internal/recognition"
)

// PermissionChecker asks the notification platform for permission.
type PermissionChecker interface {
	EnsurePermission(ctx context.Context) bool
}

// Saver persists a finished draft.
type Saver interface {
	Save(ctx context.Context, draft models.PlantDraft, userID string) (*models.StoredPlantRecord, []gateway.Warning, error)
}

// Deps are the collaborators a session calls out to.
type Deps struct {
	Recognizer  recognition.Identifier
	Enricher    enrichment.Enricher
	Permissions PermissionChecker
	Saver       Saver
	Observer    Observer
	Logger      *slog.Logger
}

// Snapshot is a consistent copy of a session.
type Snapshot struct {
	ID                     string                    `json:"id"`
	State                  State                     `json:"state"`
	Reason                 Reason                    `json:"reason,omitempty"`
	Error                  string                    `json:"error,omitempty"`
	Draft                  models.PlantDraft         `json:"draft"`
	HasImage               bool                      `json:"has_image"`
	HasLocation            bool                      `json:"has_location"`
	Suggestions            []recognition.Suggestion  `json:"suggestions,omitempty"`
	Warning                enrichment.Warning        `json:"warning,omitempty"`
	WarningMessage         string                    `json:"warning_message,omitempty"`
	ReminderFrequencyInput string                    `json:"reminder_frequency_input"`
	Record                 *models.StoredPlantRecord `json:"record,omitempty"`
	SaveWarnings           []gateway.Warning         `json:"save_warnings,omitempty"`
	UpdatedAt              time.Time                 `json:"updated_at"`
}

// Session owns one draft. External calls run without the lock; a cancel
// bumps the epoch so late results are dropped.
type Session struct {
	id   string
	deps Deps
	now  func() time.Time

	mu            sync.Mutex
	state         State
	reason        Reason
	errMsg        string
	epoch         uint64
	enteredAt     time.Time
	updatedAt     time.Time
	draft         models.PlantDraft
	location      models.Location
	hasLocation   bool
	suggestions   []recognition.Suggestion
	warning       enrichment.Warning
	reminderInput string
	record        *models.StoredPlantRecord
	saveWarnings  []gateway.Warning
	pending       []Event
}

func newSession(id string, deps Deps, loc *models.Location, now func() time.Time) *Session {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	t := now()
	s := &Session{
		id:        id,
		deps:      deps,
		now:       now,
		state:     StateIdle,
		enteredAt: t,
		updatedAt: t,
	}
	if loc != nil {
		s.location = *loc
		s.hasLocation = true
		s.draft.Location = *loc
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	d := s.draft
	d.WateringFrequencyDays = models.CopyInt(d.WateringFrequencyDays)
	d.ReminderFrequencyDays = models.CopyInt(d.ReminderFrequencyDays)
	snap := Snapshot{
		ID:                     s.id,
		State:                  s.state,
		Reason:                 s.reason,
		Error:                  s.errMsg,
		Draft:                  d,
		HasImage:               !d.Image.Empty(),
		HasLocation:            s.hasLocation,
		Suggestions:            append([]recognition.Suggestion(nil), s.suggestions...),
		Warning:                s.warning,
		WarningMessage:         s.warning.Message(),
		ReminderFrequencyInput: s.reminderInput,
		SaveWarnings:           append([]gateway.Warning(nil), s.saveWarnings...),
		UpdatedAt:              s.updatedAt,
	}
	if s.record != nil {
		rec := *s.record
		snap.Record = &rec
	}
	return snap
}

func (s *Session) idleSince() (State, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.updatedAt
}

// transition must be called with s.mu held.
func (s *Session) transition(to State, reason Reason) {
	t := s.now()
	s.pending = append(s.pending, Event{
		SessionID: s.id,
		From:      s.state,
		State:     to,
		Reason:    reason,
		Elapsed:   t.Sub(s.enteredAt),
		At:        t,
	})
	s.state = to
	s.reason = reason
	s.enteredAt = t
	s.updatedAt = t
}

func (s *Session) touch() {
	s.updatedAt = s.now()
}

// unlockAndEmit releases s.mu and then delivers queued events.
func (s *Session) unlockAndEmit() {
	events := s.pending
	s.pending = nil
	s.mu.Unlock()
	if s.deps.Observer == nil {
		return
	}
	for _, ev := range events {
		s.deps.Observer(ev)
	}
}

func (s *Session) fail(reason Reason, err error) error {
	s.errMsg = err.Error()
	s.transition(StateFailed, reason)
	s.deps.Logger.Warn("pipeline: session failed",
		slog.String("session_id", s.id),
		slog.String("reason", string(reason)),
		slog.String("error", err.Error()))
	return &FailureError{Reason: reason, Err: err}
}

func (s *Session) invalidState(op string) error {
	return fmt.Errorf("pipeline: cannot %s while %s: %w", op, s.state, apperr.ErrInvalidState)
}

// Capture attaches an image and runs recognition then enrichment. It is
// allowed from idle, ready and failed; a new capture replaces the draft.
func (s *Session) Capture(ctx context.Context, img models.Image) error {
	if img.Empty() {
		return fmt.Errorf("pipeline: empty image: %w", apperr.ErrValidation)
	}
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateReady, StateFailed:
	default:
		err := s.invalidState("capture")
		s.mu.Unlock()
		return err
	}
	s.epoch++
	epoch := s.epoch
	s.draft = models.PlantDraft{Image: img, Location: s.location}
	s.suggestions = nil
	s.warning = enrichment.WarningNone
	s.reminderInput = ""
	s.record = nil
	s.saveWarnings = nil
	s.errMsg = ""
	s.transition(StateCapturing, ReasonNone)
	s.transition(StateRecognizing, ReasonNone)
	s.unlockAndEmit()

	res, err := s.deps.Recognizer.Identify(ctx, img)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return ErrDiscarded
	}
	if err != nil {
		reason := ReasonRecognitionServiceError
		if errors.Is(err, recognition.ErrNoSuggestions) {
			reason = ReasonNoSuggestionsFound
		}
		err = s.fail(reason, err)
		s.unlockAndEmit()
		return err
	}
	name := strings.TrimSpace(res.ScientificName)
	if name == "" {
		err = s.fail(ReasonNoSuggestionsFound, recognition.ErrNoSuggestions)
		s.unlockAndEmit()
		return err
	}
	s.draft.ScientificName = name
	s.suggestions = res.Suggestions
	s.transition(StateEnriching, ReasonNone)
	s.unlockAndEmit()

	facts, warning := s.deps.Enricher.Enrich(ctx, name)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return ErrDiscarded
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = s.fail(ReasonEnrichmentError, ctxErr)
		s.unlockAndEmit()
		return err
	}
	s.draft.ApplyFacts(facts)
	s.warning = warning
	s.draft.ReminderEnabled = false
	s.draft.ReminderFrequencyDays = nil
	s.draft.Notes = ""
	if days := facts.WateringFrequencyDays; days != nil {
		seeded := max(1, *days)
		s.draft.ReminderFrequencyDays = &seeded
		s.reminderInput = strconv.Itoa(seeded)
	}
	s.transition(StateReady, ReasonNone)
	s.deps.Logger.Info("pipeline: plant identified",
		slog.String("session_id", s.id),
		slog.String("scientific_name", name),
		slog.String("warning", string(warning)))
	s.unlockAndEmit()
	return nil
}

// editableLocked reports whether user edits are accepted.
func (s *Session) editableLocked() bool {
	return s.state == StateReady || (s.state == StateFailed && s.reason == ReasonPersistenceError)
}

// SetNotes replaces the free-form notes.
func (s *Session) SetNotes(notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.editableLocked() {
		return s.invalidState("edit notes")
	}
	s.draft.Notes = notes
	s.touch()
	return nil
}

// SetReminderFrequency stores the frequency as given. Save rejects nil or
// non-positive values while the reminder is enabled.
func (s *Session) SetReminderFrequency(days *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.editableLocked() {
		return s.invalidState("edit reminder")
	}
	s.draft.ReminderFrequencyDays = models.CopyInt(days)
	if days != nil {
		s.reminderInput = strconv.Itoa(*days)
	} else {
		s.reminderInput = ""
	}
	s.touch()
	return nil
}

// SetReminderFrequencyInput takes raw text input. Non-digits are stripped;
// the frequency only changes when the result is positive.
func (s *Session) SetReminderFrequencyInput(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.editableLocked() {
		return s.invalidState("edit reminder")
	}
	s.reminderInput = text
	if n, ok := parseDigits(text); ok && n > 0 {
		s.draft.ReminderFrequencyDays = &n
	}
	s.touch()
	return nil
}

func parseDigits(text string) (int, bool) {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0, false
	}
	return n, true
}

// ToggleReminder switches the reminder. Switching on asks for notification
// permission first; a denial leaves the reminder off.
func (s *Session) ToggleReminder(ctx context.Context, on bool) error {
	s.mu.Lock()
	if !s.editableLocked() {
		err := s.invalidState("toggle reminder")
		s.mu.Unlock()
		return err
	}
	if !on {
		s.draft.ReminderEnabled = false
		s.touch()
		s.mu.Unlock()
		return nil
	}
	epoch := s.epoch
	s.mu.Unlock()

	granted := s.deps.Permissions != nil && s.deps.Permissions.EnsurePermission(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return ErrDiscarded
	}
	if !s.editableLocked() {
		return s.invalidState("toggle reminder")
	}
	if !granted {
		s.draft.ReminderEnabled = false
		s.touch()
		return ErrPermissionDenied
	}
	if d := s.draft.ReminderFrequencyDays; d == nil || *d <= 0 {
		days := DefaultReminderDays
		s.draft.ReminderFrequencyDays = &days
		s.reminderInput = strconv.Itoa(days)
	}
	s.draft.ReminderEnabled = true
	s.touch()
	return nil
}

func (s *Session) validateLocked(userID string) error {
	d := s.draft
	errs := validation.Errors{
		"image": validation.Validate(!d.Image.Empty(),
			validation.Required.Error("an image is required")),
		"location": validation.Validate(s.hasLocation,
			validation.Required.Error("location is not available yet")),
		"facts": validation.Validate(d.HasFacts && d.ScientificName != "",
			validation.Required.Error("plant identification is not complete")),
		"reminder_frequency_days": validation.Validate(d.ReminderFrequencyDays,
			validation.When(d.ReminderEnabled,
				validation.Required.Error("enter how many days between reminders"),
				validation.Min(1).Error("must be at least 1 day"),
				validation.Max(enrichment.MaxWateringDays).Error("must be at most 3650 days"))),
		"user_id": validation.Validate(strings.TrimSpace(userID),
			validation.Required.Error("a signed-in user is required")),
	}
	return newValidationError(errs)
}

// Save validates the draft and persists it. Validation failures leave the
// session untouched; persistence failures move it to failed and the save
// may be retried.
func (s *Session) Save(ctx context.Context, userID string) (*models.StoredPlantRecord, []gateway.Warning, error) {
	s.mu.Lock()
	if !s.editableLocked() {
		err := s.invalidState("save")
		s.mu.Unlock()
		return nil, nil, err
	}
	if err := s.validateLocked(userID); err != nil {
		s.mu.Unlock()
		return nil, nil, err
	}
	if s.deps.Saver == nil {
		s.mu.Unlock()
		return nil, nil, errors.New("pipeline: no saver configured")
	}
	draft := s.draft
	draft.WateringFrequencyDays = models.CopyInt(draft.WateringFrequencyDays)
	draft.ReminderFrequencyDays = models.CopyInt(draft.ReminderFrequencyDays)
	s.errMsg = ""
	s.transition(StateSaving, ReasonNone)
	s.unlockAndEmit()

	rec, warnings, err := s.deps.Saver.Save(ctx, draft, userID)

	s.mu.Lock()
	if err != nil {
		err = s.fail(ReasonPersistenceError, err)
		s.unlockAndEmit()
		return nil, nil, err
	}
	s.record = rec
	s.saveWarnings = warnings
	s.transition(StateSaved, ReasonNone)
	s.unlockAndEmit()
	return rec, warnings, nil
}

// Cancel discards the draft and returns to idle. It is valid in every state
// before saving; results of in-flight calls are dropped. The location stays.
func (s *Session) Cancel() error {
	s.mu.Lock()
	switch s.state {
	case StateSaving, StateSaved:
		err := s.invalidState("cancel")
		s.mu.Unlock()
		return err
	}
	s.epoch++
	s.draft = models.PlantDraft{Location: s.location}
	s.suggestions = nil
	s.warning = enrichment.WarningNone
	s.reminderInput = ""
	s.errMsg = ""
	s.record = nil
	s.saveWarnings = nil
	s.transition(StateIdle, ReasonNone)
	s.unlockAndEmit()
	return nil
}
