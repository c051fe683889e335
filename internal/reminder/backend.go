package reminder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const userAgent = "Florae/1.0"

// Backend kinds selectable from configuration.
const (
	KindLive        = "live"
	KindSimulated   = "simulated"
	KindUnavailable = "unavailable"
)

// ErrBackendUnavailable is returned by the unavailable backend for every call
// that would reach a notification platform.
var ErrBackendUnavailable = errors.New("reminder: notification backend unavailable")

// PermissionStatus mirrors the platform permission states.
type PermissionStatus string

const (
	StatusGranted      PermissionStatus = "granted"
	StatusDenied       PermissionStatus = "denied"
	StatusProvisional  PermissionStatus = "provisional"
	StatusUndetermined PermissionStatus = "undetermined"
)

// Permission is the platform answer to a permission query or request.
type Permission struct {
	Granted bool             `json:"granted"`
	Status  PermissionStatus `json:"status"`
}

// Allowed treats provisional grants as granted.
func (p Permission) Allowed() bool {
	return p.Granted || p.Status == StatusGranted || p.Status == StatusProvisional
}

// Content is what the user sees when the reminder fires.
type Content struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

// Trigger describes a repeating interval.
type Trigger struct {
	Seconds   int64  `json:"seconds"`
	Repeats   bool   `json:"repeats"`
	ChannelID string `json:"channelId,omitempty"`
}

// Notification is a repeating notification registration.
type Notification struct {
	Content Content `json:"content"`
	Trigger Trigger `json:"trigger"`
}

// Backend is the notification platform capability.
type Backend interface {
	GetPermission(ctx context.Context) (Permission, error)
	RequestPermission(ctx context.Context) (Permission, error)
	ScheduleRepeating(ctx context.Context, n Notification) (string, error)
}

// BackendConfig selects and configures a Backend.
type BackendConfig struct {
	Kind    string
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NewBackend builds the backend named by cfg.Kind.
func NewBackend(cfg BackendConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case KindLive:
		return NewLive(cfg.BaseURL, cfg.Token, cfg.Timeout)
	case KindSimulated, "":
		return NewSimulated(), nil
	case KindUnavailable:
		return Unavailable{}, nil
	default:
		return nil, fmt.Errorf("reminder: unknown backend %q", cfg.Kind)
	}
}

// Live talks to an HTTP notification gateway.
type Live struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewLive creates a live backend rooted at baseURL.
func NewLive(baseURL, token string, timeout time.Duration) (*Live, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("reminder: live backend requires a base url")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Live{
		baseURL: baseURL,
		token:   strings.TrimSpace(token),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (l *Live) GetPermission(ctx context.Context) (Permission, error) {
	var p Permission
	err := l.do(ctx, http.MethodGet, "/permissions", nil, &p)
	return p, err
}

func (l *Live) RequestPermission(ctx context.Context) (Permission, error) {
	var p Permission
	err := l.do(ctx, http.MethodPost, "/permissions", nil, &p)
	return p, err
}

func (l *Live) ScheduleRepeating(ctx context.Context, n Notification) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := l.do(ctx, http.MethodPost, "/schedules", n, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", errors.New("reminder: gateway returned no id")
	}
	return out.ID, nil
}

func (l *Live) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("reminder: encode: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, l.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("reminder: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if l.token != "" {
		req.Header.Set("Authorization", "Bearer "+l.token)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("reminder: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("reminder: http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("reminder: decode: %w", err)
	}
	return nil
}

// Simulated grants every permission and issues fake ids. It keeps the
// registrations it received.
type Simulated struct {
	mu        sync.Mutex
	scheduled map[string]Notification
}

// NewSimulated creates an empty simulated backend.
func NewSimulated() *Simulated {
	return &Simulated{scheduled: make(map[string]Notification)}
}

func (*Simulated) GetPermission(context.Context) (Permission, error) {
	return Permission{Granted: true, Status: StatusGranted}, nil
}

func (*Simulated) RequestPermission(context.Context) (Permission, error) {
	return Permission{Granted: true, Status: StatusGranted}, nil
}

func (s *Simulated) ScheduleRepeating(_ context.Context, n Notification) (string, error) {
	id := "sim-" + uuid.NewString()
	s.mu.Lock()
	s.scheduled[id] = n
	s.mu.Unlock()
	return id, nil
}

// Scheduled returns the registration stored under id.
func (s *Simulated) Scheduled(id string) (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.scheduled[id]
	return n, ok
}

// Unavailable is used when no notification platform exists.
type Unavailable struct{}

func (Unavailable) GetPermission(context.Context) (Permission, error) {
	return Permission{Status: StatusDenied}, nil
}

func (Unavailable) RequestPermission(context.Context) (Permission, error) {
	return Permission{Status: StatusDenied}, nil
}

func (Unavailable) ScheduleRepeating(context.Context, Notification) (string, error) {
	return "", ErrBackendUnavailable
}
