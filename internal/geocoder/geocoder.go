// Package geocoder reverse-geocodes coordinates through a Nominatim-style HTTP lookup.
package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/starford/florae/internal/models"
)

// Fallback literals.
const (
	AddressUnavailable      = "Address unavailable"
	CityUnavailable         = "City unavailable"
	RoadUnavailable         = "Road unavailable"
	NeighborhoodUnavailable = "Neighborhood unavailable"
)

const (
	defaultBaseURL   = "https://nominatim.openstreetmap.org/reverse"
	defaultUserAgent = "PlantApp/1.0"
	defaultTimeout   = 10 * time.Second
)

// Config holds the lookup endpoint settings.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Client performs reverse lookups. It never returns an error to callers.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

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

// WithLogger sets the logger used for failed lookups.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a geocoder client.
func New(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.UserAgent = strings.TrimSpace(cfg.UserAgent)
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
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

type reverseResponse struct {
	Address *struct {
		Road          string `json:"road"`
		Neighbourhood string `json:"neighbourhood"`
		City          string `json:"city"`
		Town          string `json:"town"`
		Village       string `json:"village"`
	} `json:"address"`
}

// Unavailable is the pair returned whenever a lookup fails.
func Unavailable() models.Address {
	return models.Address{Address: AddressUnavailable, City: CityUnavailable}
}

// ReverseGeocode resolves coordinates to an address and city, falling back to
// the unavailable literals on any failure.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) models.Address {
	addr, err := c.lookup(ctx, lat, lon)
	if err != nil {
		c.logger.Warn("geocoder: reverse lookup failed",
			slog.Float64("latitude", lat),
			slog.Float64("longitude", lon),
			slog.String("error", err.Error()))
		return Unavailable()
	}
	return addr
}

func (c *Client) lookup(ctx context.Context, lat, lon float64) (models.Address, error) {
	endpoint, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return models.Address{}, fmt.Errorf("build url: %w", err)
	}
	q := endpoint.Query()
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("format", "json")
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return models.Address{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Address{}, fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Address{}, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.Address{}, fmt.Errorf("decode response: %w", err)
	}
	if payload.Address == nil {
		return models.Address{}, fmt.Errorf("response has no address")
	}

	a := payload.Address
	road := firstNonEmpty(a.Road, RoadUnavailable)
	neighbourhood := firstNonEmpty(a.Neighbourhood, NeighborhoodUnavailable)
	return models.Address{
		Address: road + ", " + neighbourhood,
		City:    firstNonEmpty(a.City, a.Town, a.Village, CityUnavailable),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
