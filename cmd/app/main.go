package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/florae/internal"
	"github.com/starford/florae/internal/gateway"
	"github.com/starford/florae/internal/media"
	"github.com/starford/florae/internal/models"
	"github.com/starford/florae/internal/pipeline"
	pkgconfig "github.com/starford/florae/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	return internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func identify(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	path := cmd.String("image")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("read image: %s is empty", path)
	}

	job := pipeline.Job{
		Image:  models.Image{Data: data, MIMEType: media.Detect(data, ""), URI: path},
		UserID: cmd.String("user"),
		Notes:  cmd.String("notes"),
	}
	if cmd.IsSet("lat") != cmd.IsSet("lon") {
		return fmt.Errorf("--lat and --lon must be given together")
	}
	if cmd.IsSet("lat") {
		job.Coordinates = &pipeline.Coordinates{Latitude: cmd.Float("lat"), Longitude: cmd.Float("lon")}
	}
	if cmd.IsSet("reminder-days") {
		days := int(cmd.Int("reminder-days"))
		job.ReminderDays = &days
	}

	slog.Info("identifying",
		slog.String("image", path),
		slog.String("size", humanize.Bytes(uint64(len(data)))))

	snap, err := internal.Identify(ctx, job, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return fmt.Errorf("identify: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func listPlants(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	plants, err := internal.ListPlants(ctx, gateway.Filter{
		UserID: cmd.String("user"),
		Query:  cmd.String("query"),
	}, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return fmt.Errorf("list plants: %w", err)
	}

	if len(plants) == 0 {
		fmt.Println("No plants saved yet.")
		return nil
	}
	fmt.Println(renderPlants(plants))
	fmt.Printf("%s plants\n", humanize.Comma(int64(len(plants))))
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "florae",
		Usage:  "Identify plants from photos, enrich them with care facts and keep a watering gallery",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, event stream and inbox watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Run the MCP server on stdin/stdout",
				Action: serveMCP,
			},
			{
				Name:   "identify",
				Usage:  "Identify one photo and print the result as JSON",
				Action: identify,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "image", Aliases: []string{"i"}, Usage: "Path to the photo", Required: true},
					&cli.FloatFlag{Name: "lat", Usage: "Latitude where the photo was taken"},
					&cli.FloatFlag{Name: "lon", Usage: "Longitude where the photo was taken"},
					&cli.StringFlag{Name: "user", Usage: "Save the plant for this user"},
					&cli.StringFlag{Name: "notes", Usage: "Notes stored with the plant"},
					&cli.IntFlag{Name: "reminder-days", Usage: "Enable a watering reminder every N days"},
				},
			},
			{
				Name:   "plants",
				Usage:  "List saved plants",
				Action: listPlants,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Only plants of this user"},
					&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Text filter on names and notes"},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
