// Package enrichment asks a chat-completion model for botanical facts about a
// scientific name and normalizes the reply into models.PlantFacts.
//
// The client never fails: parse, auth and transport problems all degrade to
// fallback literals plus a Warning for the caller to surface once.
package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/starford/florae/internal/models"
)

const (
	defaultBaseURL  = "https://api.groq.com/openai/v1/chat/completions"
	defaultModel    = "llama-3.1-8b-instant"
	defaultLanguage = "English"
	defaultTimeout  = 30 * time.Second

	jsonResponseType = "json_object"
)

const systemPrompt = `Always reply with valid JSON (UTF-8, no backticks) in the shape {"common_name": string, "family": string, "genus": string, "description": string, "care_instructions": string, "watering_frequency_text": string, "watering_frequency_days": number}. "watering_frequency_days" must be an integer giving the recommended number of days between waterings. If unknown, use null.`

const userPromptFormat = `Provide short botanical data, care tips and the watering frequency for the plant %s in %s. Remember: reply ONLY in the specified JSON format, with no extra text.`

// Warning is a user-facing notice raised alongside degraded facts.
type Warning string

const (
	WarningNone        Warning = ""
	WarningCredentials Warning = "credentials"
	WarningUnavailable Warning = "unavailable"
)

// Message returns the text shown to the user for w.
func (w Warning) Message() string {
	switch w {
	case WarningCredentials:
		return "Check that the AI service API key is configured correctly."
	case WarningUnavailable:
		return "Could not fetch detailed information. Try again later."
	default:
		return ""
	}
}

// Config is the injected per-service configuration.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Timeout  time.Duration
}

// Enricher is the surface the orchestrator depends on.
type Enricher interface {
	Enrich(ctx context.Context, scientificName string) (models.PlantFacts, Warning)
}

// Client wraps the chat completion API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Enricher = (*Client)(nil)

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

// New constructs an enrichment client.
func New(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.Language = strings.TrimSpace(cfg.Language)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
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

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("enrichment: http %d: %s", e.StatusCode, e.Body)
}

// Enrich returns sanitized facts for scientificName. It always returns a
// fully populated value.
func (c *Client) Enrich(ctx context.Context, scientificName string) (models.PlantFacts, Warning) {
	if c.cfg.APIKey == "" {
		c.logger.Warn("enrichment: api key not configured")
		return notConfiguredFacts(), WarningCredentials
	}

	content, err := c.complete(ctx, strings.TrimSpace(scientificName))
	if err != nil {
		warning := WarningUnavailable
		if isAuthError(err) {
			warning = WarningCredentials
		}
		c.logger.Warn("enrichment: request failed",
			slog.String("scientific_name", scientificName),
			slog.String("warning", string(warning)),
			slog.String("error", err.Error()))
		return unavailableFacts(), warning
	}

	raw := parseReply(content)
	if len(raw) == 0 {
		c.logger.Warn("enrichment: reply is not a JSON object",
			slog.String("scientific_name", scientificName),
			slog.String("content", snippet(content)))
	}
	return Sanitize(raw), WarningNone
}

func (c *Client) complete(ctx context.Context, scientificName string) (string, error) {
	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(userPromptFormat, scientificName, c.cfg.Language)},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("enrichment: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("enrichment: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("enrichment: http error: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("enrichment: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", &statusError{StatusCode: resp.StatusCode, Body: snippet(string(raw))}
	}

	var decoded chatCompletionResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("enrichment: decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}

func isAuthError(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusUnauthorized || strings.Contains(se.Body, "invalid_api_key")
	}
	return false
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 200 {
		s = string(r[:200]) + "..."
	}
	return s
}
