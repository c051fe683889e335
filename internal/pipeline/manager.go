package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/florae/internal/apperr"
	"github.com/starford/florae/internal/models"
)

const defaultSessionTTL = 30 * time.Minute

// Geocoder resolves the session's start location.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) models.Address
}

// Coordinates is a device position.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c Coordinates) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Latitude, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&c.Longitude, validation.Min(-180.0), validation.Max(180.0)),
	)
}

// Manager is the registry of live sessions.
type Manager struct {
	deps     Deps
	geocoder Geocoder
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// ManagerOption customizes the manager.
type ManagerOption func(*Manager)

// WithTTL sets how long an untouched session survives.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a session registry.
func NewManager(deps Deps, geocoder Geocoder, opts ...ManagerOption) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	m := &Manager{
		deps:     deps,
		geocoder: geocoder,
		ttl:      defaultSessionTTL,
		now:      time.Now,
		logger:   deps.Logger,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens a session. With coordinates the location is reverse geocoded
// once and fixed for the session's lifetime.
func (m *Manager) Start(ctx context.Context, coords *Coordinates) (*Session, error) {
	var loc *models.Location
	if coords != nil {
		if err := coords.Validate(); err != nil {
			return nil, fmt.Errorf("pipeline: coordinates: %v: %w", err, apperr.ErrValidation)
		}
		l := models.Location{Latitude: coords.Latitude, Longitude: coords.Longitude}
		if m.geocoder != nil {
			addr := m.geocoder.ReverseGeocode(ctx, coords.Latitude, coords.Longitude)
			l.Address, l.City = addr.Address, addr.City
		}
		loc = &l
	}

	s := newSession(uuid.NewString(), m.deps, loc, m.now)
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Info("pipeline: session started",
		slog.String("session_id", s.id),
		slog.Bool("has_location", loc != nil))
	if m.deps.Observer != nil {
		m.deps.Observer(Event{SessionID: s.id, State: StateIdle, At: m.now()})
	}
	return s, nil
}

// Get looks a session up by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("pipeline: session %s: %w", id, apperr.ErrNotFound)
	}
	return s, nil
}

// Remove drops a session from the registry.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Expire drops sessions untouched for longer than the TTL. Sessions that
// are saving are kept. It returns how many were dropped.
func (m *Manager) Expire() int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.RLock()
	var stale []string
	for id, s := range m.sessions {
		state, updated := s.idleSince()
		if state != StateSaving && updated.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	if len(stale) == 0 {
		return 0
	}
	m.mu.Lock()
	for _, id := range stale {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	m.logger.Debug("pipeline: sessions expired", slog.Int("count", len(stale)))
	return len(stale)
}

// RunJanitor expires stale sessions until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context) error {
	interval := m.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Expire()
		}
	}
}

// Job is a one-shot run of the whole pipeline.
type Job struct {
	Coordinates  *Coordinates
	Image        models.Image
	UserID       string // empty skips the save
	Notes        string
	ReminderDays *int // non-nil switches the reminder on
}

// Process runs a session from capture to save without user interaction and
// returns its final snapshot. The session is removed afterwards.
func (m *Manager) Process(ctx context.Context, job Job) (Snapshot, error) {
	s, err := m.Start(ctx, job.Coordinates)
	if err != nil {
		return Snapshot{}, err
	}
	defer m.Remove(s.id)

	if err := s.Capture(ctx, job.Image); err != nil {
		return s.Snapshot(), err
	}
	if job.UserID == "" {
		return s.Snapshot(), nil
	}
	if job.Notes != "" {
		if err := s.SetNotes(job.Notes); err != nil {
			return s.Snapshot(), err
		}
	}
	if job.ReminderDays != nil {
		if err := s.SetReminderFrequency(job.ReminderDays); err != nil {
			return s.Snapshot(), err
		}
		if err := s.ToggleReminder(ctx, true); err != nil {
			m.logger.Warn("pipeline: reminder not enabled",
				slog.String("session_id", s.id),
				slog.String("error", err.Error()))
		}
	}
	if _, _, err := s.Save(ctx, job.UserID); err != nil {
		return s.Snapshot(), err
	}
	return s.Snapshot(), nil
}
