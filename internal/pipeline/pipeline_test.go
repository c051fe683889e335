package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/florae/internal/apperr"
	"github.com/starford/florae/internal/enrichment"
	"github.com/starford/florae/internal/gateway"
	"github.com/starford/florae/internal/models"
	"github.com/starford/florae/internal/recognition"
	"github.com/starford/florae/internal/recordstore"
	"github.com/starford/florae/internal/reminder"
)

type stubRecognizer struct {
	result  recognition.Result
	err     error
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (r *stubRecognizer) Identify(ctx context.Context, _ models.Image) (recognition.Result, error) {
	r.calls.Add(1)
	if r.entered != nil {
		close(r.entered)
	}
	if r.release != nil {
		<-r.release
	}
	return r.result, r.err
}

func recognizes(name string) *stubRecognizer {
	return &stubRecognizer{result: recognition.Result{
		ScientificName: name,
		Suggestions:    []recognition.Suggestion{{ScientificName: name, Probability: 0.93}},
	}}
}

type stubEnricher struct {
	facts   models.PlantFacts
	warning enrichment.Warning
	calls   atomic.Int32
}

func (e *stubEnricher) Enrich(context.Context, string) (models.PlantFacts, enrichment.Warning) {
	e.calls.Add(1)
	return e.facts, e.warning
}

type stubPermissions struct {
	granted bool
	calls   int
}

func (p *stubPermissions) EnsurePermission(context.Context) bool {
	p.calls++
	return p.granted
}

type stubSaver struct {
	err   error
	calls int
	draft models.PlantDraft
}

func (s *stubSaver) Save(_ context.Context, d models.PlantDraft, userID string) (*models.StoredPlantRecord, []gateway.Warning, error) {
	s.calls++
	s.draft = d
	if s.err != nil {
		return nil, nil, s.err
	}
	return &models.StoredPlantRecord{ID: "p-1", UserID: userID, ScientificName: d.ScientificName}, nil, nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) observe(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.State
	}
	return out
}

func monsteraFacts() models.PlantFacts {
	return models.PlantFacts{
		CommonName:            "Swiss cheese plant",
		Family:                "Araceae",
		Genus:                 "Monstera",
		Description:           "A climbing evergreen from tropical forests.",
		CareInstructions:      "Bright indirect light.",
		WateringFrequencyText: "Once a week",
		WateringFrequencyDays: models.IntPtr(7),
	}
}

var (
	testImage    = models.Image{Data: []byte{0xff, 0xd8, 0xff, 0xe0}, MIMEType: "image/jpeg"}
	testLocation = &models.Location{Latitude: -23.55, Longitude: -46.63, Address: "Rua Augusta, Consolação", City: "São Paulo"}
)

func newTestSession(deps Deps) *Session {
	return newSession("s-1", deps, testLocation, time.Now)
}

func readySession(t *testing.T, deps Deps) *Session {
	t.Helper()
	if deps.Recognizer == nil {
		deps.Recognizer = recognizes("Monstera deliciosa")
	}
	if deps.Enricher == nil {
		deps.Enricher = &stubEnricher{facts: monsteraFacts()}
	}
	s := newTestSession(deps)
	require.NoError(t, s.Capture(context.Background(), testImage))
	require.Equal(t, StateReady, s.State())
	return s
}

func TestCapture_ReachesReady(t *testing.T) {
	rec := &recorder{}
	s := readySession(t, Deps{Observer: rec.observe})

	snap := s.Snapshot()
	assert.Equal(t, "Monstera deliciosa", snap.Draft.ScientificName)
	assert.Equal(t, "Swiss cheese plant", snap.Draft.CommonName)
	assert.False(t, snap.Draft.ReminderEnabled)
	require.NotNil(t, snap.Draft.ReminderFrequencyDays)
	assert.Equal(t, 7, *snap.Draft.ReminderFrequencyDays)
	assert.Equal(t, "7", snap.ReminderFrequencyInput)
	assert.True(t, snap.HasImage)
	assert.True(t, snap.HasLocation)
	assert.Len(t, snap.Suggestions, 1)

	assert.Equal(t, []State{StateCapturing, StateRecognizing, StateEnriching, StateReady}, rec.states())
}

func TestCapture_NoSuggestions(t *testing.T) {
	enricher := &stubEnricher{facts: monsteraFacts()}
	s := newTestSession(Deps{
		Recognizer: &stubRecognizer{err: recognition.ErrNoSuggestions},
		Enricher:   enricher,
	})

	err := s.Capture(context.Background(), testImage)
	var failure *FailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, ReasonNoSuggestionsFound, failure.Reason)

	snap := s.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, ReasonNoSuggestionsFound, snap.Reason)
	assert.True(t, snap.HasImage, "image is kept for review")
	assert.Zero(t, enricher.calls.Load(), "enrichment must not run")
}

func TestCapture_BlankNameIsNoSuggestion(t *testing.T) {
	s := newTestSession(Deps{Recognizer: recognizes("   "), Enricher: &stubEnricher{}})
	require.Error(t, s.Capture(context.Background(), testImage))
	assert.Equal(t, ReasonNoSuggestionsFound, s.Snapshot().Reason)
}

func TestCapture_ServiceError(t *testing.T) {
	s := newTestSession(Deps{
		Recognizer: &stubRecognizer{err: &recognition.ServiceError{StatusCode: 500}},
		Enricher:   &stubEnricher{},
	})
	err := s.Capture(context.Background(), testImage)
	require.ErrorIs(t, err, recognition.ErrServiceUnavailable)
	assert.Equal(t, ReasonRecognitionServiceError, s.Snapshot().Reason)

	// A failed session can be retried with a new capture.
	s.deps.Recognizer = recognizes("Monstera deliciosa")
	s.deps.Enricher = &stubEnricher{facts: monsteraFacts()}
	require.NoError(t, s.Capture(context.Background(), testImage))
	assert.Equal(t, StateReady, s.State())
	assert.Empty(t, s.Snapshot().Error)
}

func TestCapture_RejectsEmptyImage(t *testing.T) {
	s := newTestSession(Deps{Recognizer: recognizes("x"), Enricher: &stubEnricher{}})
	err := s.Capture(context.Background(), models.Image{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, StateIdle, s.State())
}

func TestCapture_FallbackFactsStillReady(t *testing.T) {
	facts := enrichment.Sanitize(nil)
	s := readySession(t, Deps{Enricher: &stubEnricher{facts: facts}})

	snap := s.Snapshot()
	assert.Equal(t, enrichment.CommonNameNotFound, snap.Draft.CommonName)
	assert.Equal(t, enrichment.FrequencyNotProvided, snap.Draft.WateringFrequencyText)
	assert.Nil(t, snap.Draft.ReminderFrequencyDays)
	assert.Empty(t, snap.ReminderFrequencyInput)
}

func TestCapture_CarriesEnrichmentWarning(t *testing.T) {
	s := readySession(t, Deps{Enricher: &stubEnricher{
		facts:   enrichment.SanitizeFacts(models.PlantFacts{}),
		warning: enrichment.WarningCredentials,
	}})
	snap := s.Snapshot()
	assert.Equal(t, enrichment.WarningCredentials, snap.Warning)
	assert.NotEmpty(t, snap.WarningMessage)
}

func TestCapture_InvalidWhileBusy(t *testing.T) {
	rec := &stubRecognizer{
		result:  recognition.Result{ScientificName: "Ficus lyrata"},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := newTestSession(Deps{Recognizer: rec, Enricher: &stubEnricher{facts: monsteraFacts()}})

	done := make(chan error, 1)
	go func() { done <- s.Capture(context.Background(), testImage) }()
	<-rec.entered

	assert.ErrorIs(t, s.Capture(context.Background(), testImage), apperr.ErrInvalidState)
	assert.ErrorIs(t, s.SetNotes("x"), apperr.ErrInvalidState)
	_, _, err := s.Save(context.Background(), "u")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	close(rec.release)
	require.NoError(t, <-done)
}

func TestCancel_DiscardsInFlightResult(t *testing.T) {
	rec := &stubRecognizer{
		result:  recognition.Result{ScientificName: "Ficus lyrata"},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	enricher := &stubEnricher{facts: monsteraFacts()}
	s := newTestSession(Deps{Recognizer: rec, Enricher: enricher})

	done := make(chan error, 1)
	go func() { done <- s.Capture(context.Background(), testImage) }()
	<-rec.entered

	require.NoError(t, s.Cancel())
	close(rec.release)
	assert.ErrorIs(t, <-done, ErrDiscarded)

	snap := s.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Draft.ScientificName)
	assert.False(t, snap.HasImage)
	assert.Zero(t, enricher.calls.Load())
	assert.Equal(t, *testLocation, snap.Draft.Location, "location survives a cancel")
	assert.True(t, snap.HasLocation)
}

func TestCancel_ClearsDraft(t *testing.T) {
	s := readySession(t, Deps{Permissions: &stubPermissions{granted: true}})
	require.NoError(t, s.SetNotes("water on sundays"))
	require.NoError(t, s.ToggleReminder(context.Background(), true))

	require.NoError(t, s.Cancel())
	snap := s.Snapshot()
	assert.Empty(t, snap.Draft.Notes)
	assert.False(t, snap.Draft.ReminderEnabled)
	assert.Nil(t, snap.Draft.ReminderFrequencyDays)
	assert.Empty(t, snap.ReminderFrequencyInput)
	assert.Equal(t, "São Paulo", snap.Draft.Location.City)
}

func TestToggleReminder(t *testing.T) {
	t.Run("denied stays off", func(t *testing.T) {
		perms := &stubPermissions{granted: false}
		s := readySession(t, Deps{Permissions: perms})
		err := s.ToggleReminder(context.Background(), true)
		assert.ErrorIs(t, err, ErrPermissionDenied)
		assert.False(t, s.Snapshot().Draft.ReminderEnabled)
		assert.Equal(t, 1, perms.calls)
	})

	t.Run("granted keeps seeded frequency", func(t *testing.T) {
		s := readySession(t, Deps{Permissions: &stubPermissions{granted: true}})
		require.NoError(t, s.ToggleReminder(context.Background(), true))
		snap := s.Snapshot()
		assert.True(t, snap.Draft.ReminderEnabled)
		assert.Equal(t, 7, *snap.Draft.ReminderFrequencyDays)
	})

	t.Run("granted without frequency defaults", func(t *testing.T) {
		s := readySession(t, Deps{
			Permissions: &stubPermissions{granted: true},
			Enricher:    &stubEnricher{facts: enrichment.Sanitize(nil)},
		})
		require.NoError(t, s.ToggleReminder(context.Background(), true))
		snap := s.Snapshot()
		require.NotNil(t, snap.Draft.ReminderFrequencyDays)
		assert.Equal(t, DefaultReminderDays, *snap.Draft.ReminderFrequencyDays)
		assert.Equal(t, "3", snap.ReminderFrequencyInput)
	})

	t.Run("off needs no permission", func(t *testing.T) {
		perms := &stubPermissions{}
		s := readySession(t, Deps{Permissions: perms})
		require.NoError(t, s.ToggleReminder(context.Background(), false))
		assert.Zero(t, perms.calls)
	})
}

func TestSetReminderFrequencyInput(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"10", 10},
		{"1a2", 12},
		{"abc", 7},
		{"0", 7},
		{"", 7},
		{" 5 days", 5},
	}
	for _, tt := range tests {
		s := readySession(t, Deps{})
		require.NoError(t, s.SetReminderFrequencyInput(tt.input))
		snap := s.Snapshot()
		assert.Equal(t, tt.want, *snap.Draft.ReminderFrequencyDays, "input %q", tt.input)
		assert.Equal(t, tt.input, snap.ReminderFrequencyInput)
	}
}

func TestSave_ReminderFrequencyValidation(t *testing.T) {
	tests := []struct {
		name  string
		days  *int
		valid bool
	}{
		{"missing", nil, false},
		{"zero", models.IntPtr(0), false},
		{"negative", models.IntPtr(-4), false},
		{"too large", models.IntPtr(200000000000000), false},
		{"three", models.IntPtr(3), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saver := &stubSaver{}
			s := readySession(t, Deps{Saver: saver, Permissions: &stubPermissions{granted: true}})
			require.NoError(t, s.ToggleReminder(context.Background(), true))
			require.NoError(t, s.SetReminderFrequency(tt.days))

			_, _, err := s.Save(context.Background(), "user-1")
			if tt.valid {
				require.NoError(t, err)
				assert.Equal(t, StateSaved, s.State())
				assert.Equal(t, 3, *saver.draft.ReminderFrequencyDays)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, "reminder_frequency_days")
			assert.ErrorIs(t, err, apperr.ErrValidation)
			assert.Equal(t, StateReady, s.State(), "validation leaves the state unchanged")
			assert.Zero(t, saver.calls)
		})
	}
}

func TestSave_DisabledReminderIgnoresFrequency(t *testing.T) {
	saver := &stubSaver{}
	s := readySession(t, Deps{Saver: saver})
	require.NoError(t, s.SetReminderFrequency(nil))
	_, _, err := s.Save(context.Background(), "user-1")
	require.NoError(t, err)
}

func TestSave_RequiresLocationAndUser(t *testing.T) {
	saver := &stubSaver{}
	s := newSession("s-2", Deps{
		Recognizer: recognizes("Monstera deliciosa"),
		Enricher:   &stubEnricher{facts: monsteraFacts()},
		Saver:      saver,
	}, nil, time.Now)
	require.NoError(t, s.Capture(context.Background(), testImage))

	_, _, err := s.Save(context.Background(), "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "location")
	assert.Contains(t, verr.Fields, "user_id")
	assert.NotContains(t, verr.Fields, "image")
	assert.Zero(t, saver.calls)
}

func TestSave_PersistenceFailureCanRetry(t *testing.T) {
	saver := &stubSaver{err: errors.New("connection reset")}
	s := readySession(t, Deps{Saver: saver})
	require.NoError(t, s.SetNotes("kitchen"))

	_, _, err := s.Save(context.Background(), "user-1")
	var failure *FailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, ReasonPersistenceError, failure.Reason)

	snap := s.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, "kitchen", snap.Draft.Notes, "draft preserved")
	assert.Equal(t, "Monstera deliciosa", snap.Draft.ScientificName)

	require.NoError(t, s.SetNotes("living room"))
	saver.err = nil
	rec, _, err := s.Save(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "p-1", rec.ID)
	assert.Equal(t, "living room", saver.draft.Notes)
	assert.Equal(t, StateSaved, s.State())
	assert.ErrorIs(t, s.Cancel(), apperr.ErrInvalidState)
}

func TestEvents_CarryTiming(t *testing.T) {
	rec := &recorder{}
	s := readySession(t, Deps{Observer: rec.observe, Saver: &stubSaver{}})
	_, _, err := s.Save(context.Background(), "user-1")
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.events)
	last := rec.events[len(rec.events)-1]
	assert.Equal(t, StateSaving, last.From)
	assert.Equal(t, StateSaved, last.State)
	assert.Equal(t, "s-1", last.SessionID)
	for _, ev := range rec.events {
		assert.GreaterOrEqual(t, ev.Elapsed, time.Duration(0))
	}
}

type stubGeocoder struct{ calls int }

func (g *stubGeocoder) ReverseGeocode(context.Context, float64, float64) models.Address {
	g.calls++
	return models.Address{Address: "Rua Augusta, Consolação", City: "São Paulo"}
}

func TestManager_StartAndGet(t *testing.T) {
	geo := &stubGeocoder{}
	m := NewManager(Deps{}, geo)

	s, err := m.Start(context.Background(), &Coordinates{Latitude: -23.55, Longitude: -46.63})
	require.NoError(t, err)
	assert.Equal(t, 1, geo.calls)
	assert.Equal(t, "São Paulo", s.Snapshot().Draft.Location.City)

	got, err := m.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, m.Len())

	m.Remove(s.ID())
	_, err = m.Get(s.ID())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = m.Start(context.Background(), &Coordinates{Latitude: 91})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	s, err = m.Start(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, s.Snapshot().HasLocation)
	assert.Equal(t, 1, geo.calls)
}

func TestManager_Expire(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	m := NewManager(Deps{}, nil, WithTTL(time.Minute), WithClock(clock))

	stale, err := m.Start(context.Background(), nil)
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	fresh, err := m.Start(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, m.Expire())
	_, err = m.Get(stale.ID())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = m.Get(fresh.ID())
	assert.NoError(t, err)
}

// upstreams starts fake recognition and enrichment services.
func upstreams(t *testing.T, suggestions string, content string) (recognition.Config, enrichment.Config) {
	t.Helper()
	plantID := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Api-Key") != "plant-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(suggestions))
	}))
	t.Cleanup(plantID.Close)

	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
	}))
	t.Cleanup(llm.Close)

	return recognition.Config{APIKey: "plant-key", BaseURL: plantID.URL},
		enrichment.Config{APIKey: "llm-key", BaseURL: llm.URL}
}

const monsteraReply = `{"common_name":"Swiss cheese plant","family":"Araceae","genus":"Monstera",` +
	`"description":"Climbing evergreen.","care_instructions":"Bright indirect light.",` +
	`"watering_frequency_text":"Weekly","watering_frequency_days":7}`

func endToEnd(t *testing.T, suggestions, content string, backend reminder.Backend) (*Manager, *gateway.Gateway, *stubEnricherSpy) {
	t.Helper()
	recCfg, enrCfg := upstreams(t, suggestions, content)
	spy := &stubEnricherSpy{inner: enrichment.New(enrCfg)}
	sched := reminder.New(backend)
	gw := gateway.New(recordstore.NewMemory(), sched)
	m := NewManager(Deps{
		Recognizer:  recognition.New(recCfg),
		Enricher:    spy,
		Permissions: sched,
		Saver:       gw,
	}, &stubGeocoder{})
	return m, gw, spy
}

type stubEnricherSpy struct {
	inner enrichment.Enricher
	calls atomic.Int32
}

func (s *stubEnricherSpy) Enrich(ctx context.Context, name string) (models.PlantFacts, enrichment.Warning) {
	s.calls.Add(1)
	return s.inner.Enrich(ctx, name)
}

var saoPaulo = &Coordinates{Latitude: -23.55, Longitude: -46.63}

func TestScenario_IdentifiedAndSaved(t *testing.T) {
	m, gw, _ := endToEnd(t,
		`{"suggestions":[{"probability":0.97,"plant_details":{"scientific_name":"Monstera deliciosa"}}]}`,
		monsteraReply, reminder.NewSimulated())

	snap, err := m.Process(context.Background(), Job{
		Coordinates:  saoPaulo,
		Image:        testImage,
		UserID:       "user-1",
		ReminderDays: models.IntPtr(5),
	})
	require.NoError(t, err)
	assert.Equal(t, StateSaved, snap.State)
	assert.Equal(t, 0, m.Len(), "one-shot sessions are removed")

	d := snap.Draft
	assert.Equal(t, "Monstera deliciosa", d.ScientificName)
	assert.Equal(t, 7, *d.WateringFrequencyDays)
	for _, v := range []string{d.CommonName, d.Family, d.Genus, d.Description, d.CareInstructions, d.WateringFrequencyText} {
		assert.NotContains(t, []string{
			enrichment.CommonNameNotFound, enrichment.FamilyNotFound, enrichment.GenusNotFound,
			enrichment.DescriptionNotFound, enrichment.CareInstructionsNotFound, enrichment.FrequencyNotProvided,
		}, v)
	}

	require.NotNil(t, snap.Record)
	require.NotNil(t, snap.Record.ReminderNotificationID)
	stored, err := gw.Get(context.Background(), snap.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, *stored.WateringFrequencyDays)
	assert.Equal(t, "São Paulo", stored.Location.City)
	assert.Equal(t, *snap.Record.ReminderNotificationID, *stored.ReminderNotificationID)
}

func TestScenario_NoSuggestions(t *testing.T) {
	m, _, spy := endToEnd(t, `{"suggestions":[]}`, monsteraReply, reminder.NewSimulated())

	snap, err := m.Process(context.Background(), Job{Coordinates: saoPaulo, Image: testImage, UserID: "user-1"})
	require.Error(t, err)
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, ReasonNoSuggestionsFound, snap.Reason)
	assert.Zero(t, spy.calls.Load())
}

func TestScenario_FreeTextReply(t *testing.T) {
	m, _, _ := endToEnd(t,
		`{"suggestions":[{"plant_details":{"scientific_name":"Ficus lyrata"}}]}`,
		"The fiddle-leaf fig likes bright light.", reminder.NewSimulated())

	snap, err := m.Process(context.Background(), Job{Coordinates: saoPaulo, Image: testImage})
	require.NoError(t, err)
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, enrichment.CommonNameNotFound, snap.Draft.CommonName)
	assert.Equal(t, enrichment.FrequencyNotProvided, snap.Draft.WateringFrequencyText)
	assert.Nil(t, snap.Draft.WateringFrequencyDays)
}

type grantingButBroken struct{ reminder.Unavailable }

func (grantingButBroken) GetPermission(context.Context) (reminder.Permission, error) {
	return reminder.Permission{Granted: true, Status: reminder.StatusGranted}, nil
}

func TestScenario_ReminderFailureStillSaves(t *testing.T) {
	m, gw, _ := endToEnd(t,
		`{"suggestions":[{"plant_details":{"scientific_name":"Monstera deliciosa"}}]}`,
		monsteraReply, grantingButBroken{})

	snap, err := m.Process(context.Background(), Job{
		Coordinates:  saoPaulo,
		Image:        testImage,
		UserID:       "user-1",
		ReminderDays: models.IntPtr(4),
	})
	require.NoError(t, err)
	assert.Equal(t, StateSaved, snap.State)
	require.Len(t, snap.SaveWarnings, 1)
	assert.Equal(t, gateway.WarningReminderSchedule, snap.SaveWarnings[0].Code)

	stored, err := gw.Get(context.Background(), snap.Record.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ReminderNotificationID)
	assert.True(t, stored.ReminderEnabled)
}
