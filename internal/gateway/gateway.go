// Package gateway persists plant drafts through the record store and reads
// the gallery back.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/starford/florae/internal/apperr"
	"github.com/starford/florae/internal/imagestore"
	"github.com/starford/florae/internal/media"
	"github.com/starford/florae/internal/models"
	"github.com/starford/florae/internal/recordstore"
	"github.com/starford/florae/internal/reminder"
)

// Warning codes for best-effort steps that failed after the insert.
const (
	WarningImageArchive     = "image_archive_failed"
	WarningReminderSchedule = "reminder_schedule_failed"
	WarningReminderPatch    = "reminder_patch_failed"
)

// Warning is a non-fatal problem reported alongside a successful save.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ReminderScheduler registers reminders for saved plants.
type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, target reminder.Target, frequencyDays int) (string, error)
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	UserID      string
	Query       string
	HasReminder *bool
}

// Gateway is the persistence gateway.
type Gateway struct {
	store     recordstore.Store
	images    imagestore.Store
	reminders ReminderScheduler
	logger    *slog.Logger
	onWarning func(code string)
}

// Option customizes the gateway.
type Option func(*Gateway)

// WithImageStore archives raw image bytes after each insert.
func WithImageStore(s imagestore.Store) Option {
	return func(g *Gateway) {
		if s != nil {
			g.images = s
		}
	}
}

// WithLogger sets the gateway logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithWarningHook registers fn to be called with the code of every warning.
func WithWarningHook(fn func(code string)) Option {
	return func(g *Gateway) {
		g.onWarning = fn
	}
}

// New creates a gateway.
func New(store recordstore.Store, reminders ReminderScheduler, opts ...Option) *Gateway {
	g := &Gateway{
		store:     store,
		images:    imagestore.Noop{},
		reminders: reminders,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Save inserts the draft for userID, then runs the best-effort follow-ups:
// image archive, reminder registration and the handle patch. Only a failed
// insert is an error.
func (g *Gateway) Save(ctx context.Context, draft models.PlantDraft, userID string) (*models.StoredPlantRecord, []Warning, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil, fmt.Errorf("gateway: user id required: %w", apperr.ErrValidation)
	}

	row := buildRow(draft, userID)
	rows, err := g.store.Insert(ctx, recordstore.PlantsTable, row)
	if err != nil {
		return nil, nil, fmt.Errorf("gateway: insert plant: %w", err)
	}
	if len(rows) == 0 {
		rows = []recordstore.Record{row}
	}
	rec := fromRecord(rows[0])

	var warnings []Warning
	warn := func(code string, err error) {
		g.logger.Warn("gateway: "+code,
			slog.String("plant_id", rec.ID),
			slog.String("error", err.Error()))
		warnings = append(warnings, Warning{Code: code, Message: err.Error()})
		if g.onWarning != nil {
			g.onWarning(code)
		}
	}

	if !draft.Image.Empty() && rec.ID != "" {
		key := imagestore.PlantKey(rec.ID, draft.Image.MIME())
		if err := g.images.Put(ctx, key, draft.Image.Data, draft.Image.MIME()); err != nil {
			warn(WarningImageArchive, err)
		} else if g.images.Driver() != imagestore.DriverNone {
			g.logger.Debug("gateway: image archived",
				slog.String("key", key),
				slog.String("size", humanize.Bytes(uint64(len(draft.Image.Data)))))
		}
	}

	if draft.ReminderEnabled && rec.ID != "" && g.reminders != nil {
		g.attachReminder(ctx, &rec, draft, warn)
	}

	g.logger.Info("gateway: plant saved",
		slog.String("plant_id", rec.ID),
		slog.String("user_id", userID),
		slog.String("scientific_name", rec.ScientificName),
		slog.Int("warnings", len(warnings)))
	return &rec, warnings, nil
}

func (g *Gateway) attachReminder(ctx context.Context, rec *models.StoredPlantRecord, draft models.PlantDraft, warn func(string, error)) {
	if draft.ReminderFrequencyDays == nil || *draft.ReminderFrequencyDays <= 0 {
		warn(WarningReminderSchedule, errors.New("reminder frequency missing"))
		return
	}
	handle, err := g.reminders.ScheduleReminder(ctx, reminder.Target{
		PlantID:    rec.ID,
		CommonName: rec.CommonName,
	}, *draft.ReminderFrequencyDays)
	if err != nil {
		warn(WarningReminderSchedule, err)
		return
	}
	if handle == "" {
		return
	}

	patch := recordstore.Record{"reminder_notification_id": handle}
	if err := g.store.Update(ctx, recordstore.PlantsTable, patch, recordstore.Record{"id": rec.ID}); err != nil {
		warn(WarningReminderPatch, err)
		return
	}
	rec.ReminderNotificationID = &handle
}

// Get returns one stored plant.
func (g *Gateway) Get(ctx context.Context, id string) (*models.StoredPlantRecord, error) {
	rows, err := g.store.Select(ctx, recordstore.PlantsTable, nil, recordstore.Record{"id": id})
	if err != nil {
		return nil, fmt.Errorf("gateway: get plant: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("gateway: plant %s: %w", id, apperr.ErrNotFound)
	}
	rec := fromRecord(rows[0])
	return &rec, nil
}

// Image decodes the stored image of a plant.
func (g *Gateway) Image(ctx context.Context, id string) (models.Image, error) {
	rows, err := g.store.Select(ctx, recordstore.PlantsTable, []string{"id", "image_data"}, recordstore.Record{"id": id})
	if err != nil {
		return models.Image{}, fmt.Errorf("gateway: get image: %w", err)
	}
	if len(rows) == 0 {
		return models.Image{}, fmt.Errorf("gateway: plant %s: %w", id, apperr.ErrNotFound)
	}
	img, err := media.Resolve(rows[0].String("image_data"))
	if err != nil {
		return models.Image{}, fmt.Errorf("gateway: plant %s image: %w", id, apperr.ErrNotFound)
	}
	return img, nil
}

// List returns plants matching f, newest first. The store only filters by
// user; text and reminder filters run on the fetched rows.
func (g *Gateway) List(ctx context.Context, f Filter) ([]models.StoredPlantRecord, error) {
	filters := recordstore.Record{}
	if uid := strings.TrimSpace(f.UserID); uid != "" {
		filters["user_id"] = uid
	}
	rows, err := g.store.Select(ctx, recordstore.PlantsTable, listColumns, filters)
	if err != nil {
		return nil, fmt.Errorf("gateway: list plants: %w", err)
	}

	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]models.StoredPlantRecord, 0, len(rows))
	for _, row := range rows {
		rec := fromRecord(row)
		if q != "" && !matches(rec, q) {
			continue
		}
		if f.HasReminder != nil && rec.HasReminder() != *f.HasReminder {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func matches(rec models.StoredPlantRecord, q string) bool {
	for _, field := range []string{rec.CommonName, rec.ScientificName, rec.Description, rec.Notes} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
