package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeBackend struct {
	current   Permission
	requested Permission
	getErr    error
	reqErr    error
	schedErr  error
	panicOn   bool

	requests int
	last     Notification
}

func (f *fakeBackend) GetPermission(context.Context) (Permission, error) {
	return f.current, f.getErr
}

func (f *fakeBackend) RequestPermission(context.Context) (Permission, error) {
	f.requests++
	return f.requested, f.reqErr
}

func (f *fakeBackend) ScheduleRepeating(_ context.Context, n Notification) (string, error) {
	if f.panicOn {
		panic("platform exploded")
	}
	f.last = n
	if f.schedErr != nil {
		return "", f.schedErr
	}
	return "notif-1", nil
}

func TestIntervalSeconds(t *testing.T) {
	tests := []struct {
		days int
		want int64
	}{
		{1, 86400},
		{7, 7 * 86400},
		{0, MinIntervalSeconds},
		{-3, MinIntervalSeconds},
		{200000000000000, math.MaxInt64},
		{math.MaxInt64 / 86400, (math.MaxInt64 / 86400) * 86400},
	}
	for _, tt := range tests {
		got := IntervalSeconds(tt.days)
		if got != tt.want {
			t.Errorf("IntervalSeconds(%d) = %d, want %d", tt.days, got, tt.want)
		}
		if got < MinIntervalSeconds {
			t.Errorf("IntervalSeconds(%d) below floor", tt.days)
		}
	}
}

func TestEnsurePermission(t *testing.T) {
	tests := []struct {
		name         string
		backend      *fakeBackend
		want         bool
		wantRequests int
	}{
		{"already granted", &fakeBackend{current: Permission{Granted: true, Status: StatusGranted}}, true, 0},
		{"already provisional", &fakeBackend{current: Permission{Status: StatusProvisional}}, true, 0},
		{"request granted", &fakeBackend{current: Permission{Status: StatusUndetermined}, requested: Permission{Granted: true}}, true, 1},
		{"request provisional", &fakeBackend{current: Permission{Status: StatusUndetermined}, requested: Permission{Status: StatusProvisional}}, true, 1},
		{"request denied", &fakeBackend{current: Permission{Status: StatusDenied}, requested: Permission{Status: StatusDenied}}, false, 1},
		{"query error", &fakeBackend{getErr: errors.New("boom")}, false, 0},
		{"request error", &fakeBackend{requested: Permission{Granted: true}, reqErr: errors.New("boom")}, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.backend).EnsurePermission(context.Background())
			if got != tt.want {
				t.Errorf("EnsurePermission = %v, want %v", got, tt.want)
			}
			if tt.backend.requests != tt.wantRequests {
				t.Errorf("requests = %d, want %d", tt.backend.requests, tt.wantRequests)
			}
		})
	}
}

func TestScheduleReminder_Payload(t *testing.T) {
	b := &fakeBackend{}
	id, err := New(b).ScheduleReminder(context.Background(), Target{PlantID: "p1", CommonName: "Fern"}, 1)
	if err != nil {
		t.Fatalf("ScheduleReminder: %v", err)
	}
	if id != "notif-1" {
		t.Errorf("id = %q", id)
	}
	if b.last.Trigger.Seconds < MinIntervalSeconds || !b.last.Trigger.Repeats || b.last.Trigger.ChannelID != ChannelID {
		t.Errorf("trigger = %+v", b.last.Trigger)
	}
	if b.last.Content.Title != "Time to water Fern" || b.last.Content.Body != "Water this plant every 1 day." {
		t.Errorf("content = %+v", b.last.Content)
	}
	if b.last.Content.Data["plantId"] != "p1" || b.last.Content.Data["wateringFrequencyDays"] != 1 {
		t.Errorf("data = %v", b.last.Content.Data)
	}
}

func TestScheduleReminder_Failures(t *testing.T) {
	for name, b := range map[string]*fakeBackend{
		"error": {schedErr: errors.New("denied by os")},
		"panic": {panicOn: true},
	} {
		t.Run(name, func(t *testing.T) {
			id, err := New(b).ScheduleReminder(context.Background(), Target{PlantID: "p1"}, 5)
			if id != "" {
				t.Errorf("id = %q, want empty", id)
			}
			if !errors.Is(err, ErrScheduleFailed) {
				t.Errorf("err = %v, want ErrScheduleFailed", err)
			}
		})
	}
}

func TestTitleAndBody(t *testing.T) {
	if title("  ") != "Time to water your plant" {
		t.Error("blank common name should use generic title")
	}
	if body(5) != "Water this plant every 5 days." {
		t.Errorf("body = %q", body(5))
	}
}

func TestSimulatedAndUnavailable(t *testing.T) {
	sim := NewSimulated()
	s := New(sim)
	if !s.EnsurePermission(context.Background()) {
		t.Error("simulated backend must grant")
	}
	id, err := s.ScheduleReminder(context.Background(), Target{PlantID: "p"}, 3)
	if err != nil || !strings.HasPrefix(id, "sim-") {
		t.Fatalf("id = %q err = %v", id, err)
	}
	if n, ok := sim.Scheduled(id); !ok || n.Trigger.Seconds != 3*86400 {
		t.Errorf("scheduled = %+v %v", n, ok)
	}

	u := New(Unavailable{})
	if u.EnsurePermission(context.Background()) {
		t.Error("unavailable backend must deny")
	}
	if _, err := u.ScheduleReminder(context.Background(), Target{}, 3); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("err = %v", err)
	}
}

func TestNewBackend(t *testing.T) {
	if _, err := NewBackend(BackendConfig{Kind: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unknown kind")
	}
	if _, err := NewBackend(BackendConfig{Kind: KindLive}); err == nil {
		t.Error("live backend without url must fail")
	}
	b, err := NewBackend(BackendConfig{Kind: "Unavailable"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.(Unavailable); !ok {
		t.Errorf("backend = %T", b)
	}
}

func TestLiveBackend(t *testing.T) {
	var got Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/permissions":
			_, _ = w.Write([]byte(`{"granted":false,"status":"undetermined"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/permissions":
			_, _ = w.Write([]byte(`{"granted":false,"status":"provisional"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/schedules":
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode: %v", err)
			}
			_, _ = w.Write([]byte(`{"id":"remote-42"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	live, err := NewLive(srv.URL+"/", "tok", 0)
	if err != nil {
		t.Fatal(err)
	}
	s := New(live)
	if !s.EnsurePermission(context.Background()) {
		t.Error("provisional grant should count as granted")
	}
	id, err := s.ScheduleReminder(context.Background(), Target{PlantID: "p9", CommonName: "Monstera"}, 7)
	if err != nil || id != "remote-42" {
		t.Fatalf("id = %q err = %v", id, err)
	}
	if got.Trigger.Seconds != 7*86400 || got.Content.Data["plantId"] != "p9" {
		t.Errorf("notification = %+v", got)
	}
}

func TestLiveBackend_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	live, _ := NewLive(srv.URL, "", 0)
	s := New(live)
	if s.EnsurePermission(context.Background()) {
		t.Error("errors should deny")
	}
	if _, err := s.ScheduleReminder(context.Background(), Target{}, 2); !errors.Is(err, ErrScheduleFailed) {
		t.Errorf("err = %v", err)
	}
}
