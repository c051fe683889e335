// Package reminder registers repeating watering reminders with a
// notification platform.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// MinIntervalSeconds floors the repeat interval.
const MinIntervalSeconds = 60

// ChannelID groups watering reminders on platforms with notification channels.
const ChannelID = "watering-reminders"

// ErrScheduleFailed wraps every failed registration.
var ErrScheduleFailed = errors.New("reminder: schedule failed")

// Target identifies the plant a reminder belongs to.
type Target struct {
	PlantID    string
	CommonName string
}

// Scheduler checks permission and registers reminders through a Backend.
type Scheduler struct {
	backend Backend
	logger  *slog.Logger
}

// Option customizes the scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a scheduler on top of backend.
func New(backend Backend, opts ...Option) *Scheduler {
	if backend == nil {
		backend = Unavailable{}
	}
	s := &Scheduler{backend: backend, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IntervalSeconds converts days into a repeat interval of at least
// MinIntervalSeconds. Intervals too large for int64 saturate.
func IntervalSeconds(days int) int64 {
	if int64(days) > math.MaxInt64/86400 {
		return math.MaxInt64
	}
	return max(int64(days)*86400, MinIntervalSeconds)
}

// EnsurePermission reports whether reminders may be scheduled, asking the
// platform when no decision exists yet. Backend errors count as denial.
func (s *Scheduler) EnsurePermission(ctx context.Context) bool {
	current, err := s.backend.GetPermission(ctx)
	if err != nil {
		s.logger.Warn("reminder: permission query failed", slog.String("error", err.Error()))
		return false
	}
	if current.Allowed() {
		return true
	}

	requested, err := s.backend.RequestPermission(ctx)
	if err != nil {
		s.logger.Warn("reminder: permission request failed", slog.String("error", err.Error()))
		return false
	}
	return requested.Allowed()
}

// ScheduleReminder registers a repeating reminder and returns the platform
// handle. On failure the handle is empty and the error wraps ErrScheduleFailed.
func (s *Scheduler) ScheduleReminder(ctx context.Context, target Target, frequencyDays int) (handle string, err error) {
	defer func() {
		if r := recover(); r != nil {
			handle, err = "", fmt.Errorf("%w: panic: %v", ErrScheduleFailed, r)
		}
	}()

	n := Notification{
		Content: Content{
			Title: title(target.CommonName),
			Body:  body(frequencyDays),
			Data: map[string]any{
				"plantId":               target.PlantID,
				"wateringFrequencyDays": frequencyDays,
			},
		},
		Trigger: Trigger{
			Seconds:   IntervalSeconds(frequencyDays),
			Repeats:   true,
			ChannelID: ChannelID,
		},
	}

	id, err := s.backend.ScheduleRepeating(ctx, n)
	if err != nil {
		s.logger.Warn("reminder: schedule failed",
			slog.String("plant_id", target.PlantID),
			slog.String("error", err.Error()))
		return "", fmt.Errorf("%w: %w", ErrScheduleFailed, err)
	}
	s.logger.Info("reminder: scheduled",
		slog.String("plant_id", target.PlantID),
		slog.String("handle", id),
		slog.Int64("interval_seconds", n.Trigger.Seconds))
	return id, nil
}

func title(commonName string) string {
	if name := strings.TrimSpace(commonName); name != "" {
		return "Time to water " + name
	}
	return "Time to water your plant"
}

func body(days int) string {
	unit := "day"
	if days > 1 {
		unit = "days"
	}
	return fmt.Sprintf("Water this plant every %d %s.", days, unit)
}
