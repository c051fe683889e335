package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/florae/internal/enrichment"
	"github.com/starford/florae/internal/geocoder"
	"github.com/starford/florae/internal/imagestore"
	"github.com/starford/florae/internal/inbox"
	"github.com/starford/florae/internal/pipeline"
	"github.com/starford/florae/internal/recognition"
	"github.com/starford/florae/internal/recordstore"
	"github.com/starford/florae/internal/reminder"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App           ApplicationConfig  `yaml:"app"`
	Auth          AuthConfig         `yaml:"auth"`
	Store         StoreConfig        `yaml:"store"`
	Images        ImagesConfig       `yaml:"images"`
	Recognition   RecognitionConfig  `yaml:"recognition"`
	Enrichment    EnrichmentConfig   `yaml:"enrichment"`
	Geocoder      GeocoderConfig     `yaml:"geocoder"`
	Notifications NotificationConfig `yaml:"notifications"`
	Sessions      SessionsConfig     `yaml:"sessions"`
	Inbox         InboxConfig        `yaml:"inbox"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App,
		&c.Auth,
		&c.Store,
		&c.Images,
		&c.Notifications,
		&c.Sessions,
		&c.Inbox,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// StoreConfig selects the record store.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required,
			validation.In(recordstore.DriverMemory, recordstore.DriverSQLite, recordstore.DriverPostgres)),
		validation.Field(&c.DSN, validation.When(c.Driver != recordstore.DriverMemory, validation.Required)),
	)
}

// ImagesConfig selects the image archive.
type ImagesConfig struct {
	Driver    string `yaml:"driver"`
	Path      string `yaml:"path"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// Validate validates the image archive configuration.
func (c *ImagesConfig) Validate() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.Driver == "" {
		c.Driver = imagestore.DriverNone
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.In(imagestore.DriverNone, imagestore.DriverFS, imagestore.DriverS3)),
		validation.Field(&c.Path, validation.When(c.Driver == imagestore.DriverFS, validation.Required)),
		validation.Field(&c.Bucket, validation.When(c.Driver == imagestore.DriverS3, validation.Required)),
	)
}

// Store returns the imagestore configuration.
func (c *ImagesConfig) Store() imagestore.Config {
	return imagestore.Config{
		Driver:    c.Driver,
		Path:      c.Path,
		Bucket:    c.Bucket,
		Region:    c.Region,
		Endpoint:  c.Endpoint,
		PathStyle: c.PathStyle,
	}
}

// RecognitionConfig configures the plant recognition service.
type RecognitionConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Client returns the recognition client configuration.
func (c *RecognitionConfig) Client() recognition.Config {
	return recognition.Config{APIKey: c.APIKey, BaseURL: c.BaseURL, Timeout: c.Timeout}
}

// EnrichmentConfig configures the language-model enrichment service.
type EnrichmentConfig struct {
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	Model    string        `yaml:"model"`
	Language string        `yaml:"language"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Client returns the enrichment client configuration.
func (c *EnrichmentConfig) Client() enrichment.Config {
	return enrichment.Config{
		APIKey:   c.APIKey,
		BaseURL:  c.BaseURL,
		Model:    c.Model,
		Language: c.Language,
		Timeout:  c.Timeout,
	}
}

// GeocoderConfig configures reverse geocoding.
type GeocoderConfig struct {
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Client returns the geocoder configuration.
func (c *GeocoderConfig) Client() geocoder.Config {
	return geocoder.Config{BaseURL: c.BaseURL, UserAgent: c.UserAgent, Timeout: c.Timeout}
}

// NotificationConfig selects the reminder backend.
type NotificationConfig struct {
	Backend string        `yaml:"backend"`
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the notification configuration.
func (c *NotificationConfig) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = reminder.KindSimulated
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.In(reminder.KindLive, reminder.KindSimulated, reminder.KindUnavailable)),
		validation.Field(&c.BaseURL, validation.When(c.Backend == reminder.KindLive, validation.Required)),
	)
}

// BackendConfig returns the reminder backend configuration.
func (c *NotificationConfig) BackendConfig() reminder.BackendConfig {
	return reminder.BackendConfig{Kind: c.Backend, BaseURL: c.BaseURL, Token: c.Token, Timeout: c.Timeout}
}

// SessionsConfig controls the in-memory session registry.
type SessionsConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// Validate validates the session configuration.
func (c *SessionsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TTL, validation.Min(time.Minute)),
	)
}

// InboxConfig enables the drop-folder watcher.
type InboxConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Path         string        `yaml:"path"`
	UserID       string        `yaml:"user_id"`
	Latitude     *float64      `yaml:"latitude"`
	Longitude    *float64      `yaml:"longitude"`
	ReminderDays *int          `yaml:"reminder_days"`
	Settle       time.Duration `yaml:"settle"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if (c.Latitude == nil) != (c.Longitude == nil) {
		return fmt.Errorf("inbox: latitude and longitude must be set together")
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.ReminderDays, validation.NilOrNotEmpty, validation.Min(1)),
	); err != nil {
		return err
	}
	if c.Latitude != nil {
		return c.coordinates().Validate()
	}
	return nil
}

func (c *InboxConfig) coordinates() *pipeline.Coordinates {
	if c.Latitude == nil || c.Longitude == nil {
		return nil
	}
	return &pipeline.Coordinates{Latitude: *c.Latitude, Longitude: *c.Longitude}
}

// Watcher returns the inbox configuration.
func (c *InboxConfig) Watcher() inbox.Config {
	return inbox.Config{
		Dir:          c.Path,
		UserID:       c.UserID,
		Coordinates:  c.coordinates(),
		ReminderDays: c.ReminderDays,
		Settle:       c.Settle,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Store: StoreConfig{
			Driver: recordstore.DriverSQLite,
			DSN:    "./florae.db",
		},
		Images: ImagesConfig{
			Driver: imagestore.DriverNone,
		},
		Recognition: RecognitionConfig{
			Timeout: 30 * time.Second,
		},
		Enrichment: EnrichmentConfig{
			Timeout: 30 * time.Second,
		},
		Geocoder: GeocoderConfig{
			Timeout: 10 * time.Second,
		},
		Notifications: NotificationConfig{
			Backend: reminder.KindSimulated,
		},
		Sessions: SessionsConfig{
			TTL: 30 * time.Minute,
		},
		Inbox: InboxConfig{
			Path:   "./inbox",
			Settle: 500 * time.Millisecond,
		},
	}
}
