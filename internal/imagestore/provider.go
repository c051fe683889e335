// Package imagestore archives raw capture bytes next to the plant records.
package imagestore

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/starford/florae/internal/apperr"
	"github.com/starford/florae/internal/media"
)

// Supported drivers.
const (
	DriverNone = "none"
	DriverFS   = "fs"
	DriverS3   = "s3"
)

// Store is the image archive abstraction.
type Store interface {
	// Put writes data under key, replacing any previous object.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns the bytes stored under key. Missing keys wrap apperr.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
	Driver() string
}

// Config selects and configures a Store.
type Config struct {
	Driver    string
	Path      string
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// Open builds the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverNone, "":
		return Noop{}, nil
	case DriverFS:
		return NewFS(cfg.Path)
	case DriverS3:
		return NewS3(ctx, S3Config{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			PathStyle: cfg.PathStyle,
		})
	default:
		return nil, fmt.Errorf("imagestore: unknown driver %q", cfg.Driver)
	}
}

// PlantKey is the archive key for a plant's image.
func PlantKey(plantID, mimeType string) string {
	return path.Join("plants", plantID+media.Ext(mimeType))
}

// Noop discards every write.
type Noop struct{}

func (Noop) Put(context.Context, string, []byte, string) error { return nil }

func (Noop) Get(_ context.Context, key string) ([]byte, error) {
	return nil, fmt.Errorf("imagestore: %s: %w", key, apperr.ErrNotFound)
}

func (Noop) Delete(context.Context, string) error { return nil }

func (Noop) Driver() string { return DriverNone }
