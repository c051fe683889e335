// Package recognition talks to the plant-recognition service and extracts a
// best-guess scientific name from an image.
package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/starford/florae/internal/models"
)

const (
	defaultBaseURL = "https://api.plant.id/v2/identify"
	defaultTimeout = 30 * time.Second
	formField      = "images"
	formFilename   = "plant.jpg"
)

var (
	// ErrNoSuggestions means the service answered but had nothing to offer.
	// A new photo is needed.
	ErrNoSuggestions = errors.New("recognition: no suggestions found")
	// ErrServiceUnavailable classifies transport and HTTP failures.
	ErrServiceUnavailable = errors.New("recognition: service error")
)

// ServiceError describes a failed call to the recognition service.
type ServiceError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("recognition: http %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("recognition: %v", e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrServiceUnavailable) match every ServiceError.
func (e *ServiceError) Is(target error) bool {
	return target == ErrServiceUnavailable
}

// Config is the injected per-service configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Suggestion is one candidate returned by the service, in service order.
type Suggestion struct {
	ScientificName string  `json:"scientific_name"`
	Probability    float64 `json:"probability"`
}

// Result carries the authoritative name plus the raw suggestion list.
type Result struct {
	ScientificName string       `json:"scientific_name"`
	Suggestions    []Suggestion `json:"suggestions"`
}

// Identifier is the surface the orchestrator depends on.
type Identifier interface {
	Identify(ctx context.Context, img models.Image) (Result, error)
}

// Client is the HTTP recognition client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Identifier = (*Client)(nil)

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a recognition client.
func New(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type identifyResponse struct {
	Suggestions []struct {
		Probability  float64 `json:"probability"`
		PlantDetails struct {
			ScientificName string `json:"scientific_name"`
		} `json:"plant_details"`
	} `json:"suggestions"`
}

// Identify sends the image and returns the first suggestion's scientific name.
func (c *Client) Identify(ctx context.Context, img models.Image) (Result, error) {
	if img.Empty() {
		return Result{}, &ServiceError{Err: errors.New("empty image")}
	}

	body, contentType, err := encodeForm(img)
	if err != nil {
		return Result{}, &ServiceError{Err: fmt.Errorf("encode form: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, body)
	if err != nil {
		return Result{}, &ServiceError{Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Api-Key", c.cfg.APIKey)

	c.logger.Debug("recognition: sending image",
		slog.String("mime", img.MIME()),
		slog.String("size", humanize.Bytes(uint64(len(img.Data)))))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, &ServiceError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &ServiceError{Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Result{}, &ServiceError{StatusCode: resp.StatusCode, Body: snippet(raw)}
	}

	var payload identifyResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Result{}, &ServiceError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(payload.Suggestions) == 0 {
		return Result{}, ErrNoSuggestions
	}

	res := Result{Suggestions: make([]Suggestion, 0, len(payload.Suggestions))}
	for _, s := range payload.Suggestions {
		res.Suggestions = append(res.Suggestions, Suggestion{
			ScientificName: strings.TrimSpace(s.PlantDetails.ScientificName),
			Probability:    s.Probability,
		})
	}
	// First suggestion is authoritative; no re-ranking.
	res.ScientificName = res.Suggestions[0].ScientificName
	if res.ScientificName == "" {
		return res, ErrNoSuggestions
	}
	return res, nil
}

func encodeForm(img models.Image) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, formField, formFilename))
	h.Set("Content-Type", img.MIME())
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func snippet(raw []byte) string {
	s := strings.Join(strings.Fields(string(raw)), " ")
	if r := []rune(s); len(r) > 200 {
		s = string(r[:200]) + "..."
	}
	return s
}
