package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/starford/florae/internal/enrichment"
	"github.com/starford/florae/internal/gateway"
	"github.com/starford/florae/internal/geocoder"
	"github.com/starford/florae/internal/imagestore"
	"github.com/starford/florae/internal/metrics"
	"github.com/starford/florae/internal/pipeline"
	"github.com/starford/florae/internal/recognition"
	"github.com/starford/florae/internal/recordstore"
	"github.com/starford/florae/internal/reminder"
	"github.com/starford/florae/internal/sse"
)

// components is the assembled service graph shared by every command.
type components struct {
	cfg     *Config
	logger  *slog.Logger
	store   recordstore.Store
	gateway *gateway.Gateway
	manager *pipeline.Manager
	metrics *metrics.Recorder
	broker  *sse.Broker
}

func (a *application) setup() (*Config, *slog.Logger, error) {
	if a.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	out := a.logOutput
	if out == nil {
		out = os.Stdout
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return a.config, logger, nil
}

func newApplication(opts []Option) *application {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// build wires storage, upstream clients, the reminder scheduler and the
// session manager. The caller must call close.
func build(ctx context.Context, cfg *Config, logger *slog.Logger) (*components, error) {
	store, err := recordstore.New(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("init record store: %w", err)
	}

	images, err := imagestore.Open(ctx, cfg.Images.Store())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init image store: %w", err)
	}

	backend, err := reminder.NewBackend(cfg.Notifications.BackendConfig())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init notifications: %w", err)
	}
	scheduler := reminder.New(backend, reminder.WithLogger(logger))

	c := &components{
		cfg:    cfg,
		logger: logger,
		store:  store,
		broker: sse.NewBroker(2 * time.Second),
	}
	c.metrics = metrics.New(func() int { return c.manager.Len() })
	c.metrics.TrackDroppedEvents(c.broker.Dropped)

	c.gateway = gateway.New(store, scheduler,
		gateway.WithImageStore(images),
		gateway.WithLogger(logger),
		gateway.WithWarningHook(c.metrics.SaveWarning),
	)

	deps := pipeline.Deps{
		Recognizer:  recognition.New(cfg.Recognition.Client(), recognition.WithLogger(logger)),
		Enricher:    enrichment.New(cfg.Enrichment.Client(), enrichment.WithLogger(logger)),
		Permissions: scheduler,
		Saver:       c.gateway,
		Observer:    pipeline.Observers(c.broker.Observe, c.metrics.Observe),
		Logger:      logger,
	}
	geo := geocoder.New(cfg.Geocoder.Client(), geocoder.WithLogger(logger))
	c.manager = pipeline.NewManager(deps, geo, pipeline.WithTTL(cfg.Sessions.TTL))

	logger.Info("Components ready",
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("image_driver", images.Driver()),
		slog.String("notification_backend", cfg.Notifications.Backend))
	return c, nil
}

func (c *components) close() {
	c.broker.Close()
	if err := c.store.Close(); err != nil {
		c.logger.Error("record store close error", slog.String("error", err.Error()))
	}
}
