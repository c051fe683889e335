// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/florae/internal/api"
	"github.com/starford/florae/internal/gateway"
	"github.com/starford/florae/internal/inbox"
	"github.com/starford/florae/internal/mcpserver"
	"github.com/starford/florae/internal/models"
	"github.com/starford/florae/internal/pipeline"
)

// Run starts the HTTP service with the given options.
func Run(ctx context.Context, opts ...Option) error {
	cfg, logger, err := newApplication(opts).setup()
	if err != nil {
		return err
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("image_driver", cfg.Images.Driver),
		slog.Bool("inbox_enabled", cfg.Inbox.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	var watcher *inbox.Inbox
	if cfg.Inbox.Enabled {
		watcher, err = inbox.New(cfg.Inbox.Watcher(), c.manager, logger)
		if err != nil {
			return fmt.Errorf("init inbox: %w", err)
		}
	}

	apiRouter := api.NewRouter(c.manager, c.gateway, cfg.Auth.AuthEnabled(), cfg.Auth.Token, c.broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", c.metrics.Handler())

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Drop abandoned capture sessions.
	g.Go(func() error {
		return c.manager.RunJanitor(gCtx)
	})

	if watcher != nil {
		g.Go(func() error {
			logger.Info("Watching inbox", slog.String("path", watcher.Dir()))
			if err := watcher.Watch(gCtx); err != nil {
				return fmt.Errorf("inbox watcher: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// ServeMCP runs the MCP server on stdin/stdout until the client disconnects.
func ServeMCP(ctx context.Context, opts ...Option) error {
	cfg, logger, err := newApplication(opts).setup()
	if err != nil {
		return err
	}

	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(c.manager, c.gateway).ServeStdio()
}

// Identify runs one job through the pipeline and returns the final snapshot.
func Identify(ctx context.Context, job pipeline.Job, opts ...Option) (pipeline.Snapshot, error) {
	cfg, logger, err := newApplication(opts).setup()
	if err != nil {
		return pipeline.Snapshot{}, err
	}

	c, err := build(ctx, cfg, logger)
	if err != nil {
		return pipeline.Snapshot{}, err
	}
	defer c.close()

	return c.manager.Process(ctx, job)
}

// ListPlants reads saved plants matching f.
func ListPlants(ctx context.Context, f gateway.Filter, opts ...Option) ([]models.StoredPlantRecord, error) {
	cfg, logger, err := newApplication(opts).setup()
	if err != nil {
		return nil, err
	}

	c, err := build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer c.close()

	return c.gateway.List(ctx, f)
}
