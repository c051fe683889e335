// Package inbox runs the identification pipeline for photos dropped into a
// directory. Results are written next to the moved photo as JSON.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"

	"github.com/starford/florae/internal/media"
	"github.com/starford/florae/internal/models"
	"github.com/starford/florae/internal/pipeline"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
	lockName     = ".florae-inbox.lock"

	defaultSettle = 500 * time.Millisecond
)

// ErrLocked is returned when another process already consumes the inbox.
var ErrLocked = errors.New("inbox: directory is locked by another process")

var imageExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".heic": "image/heic",
}

// Processor runs one photo through the pipeline.
type Processor interface {
	Process(ctx context.Context, job pipeline.Job) (pipeline.Snapshot, error)
}

// Config describes the inbox.
type Config struct {
	Dir          string
	UserID       string // empty identifies without saving
	Coordinates  *pipeline.Coordinates
	ReminderDays *int
	Settle       time.Duration // quiet period before a new file is read
}

// Result is written to <photo>.json after processing.
type Result struct {
	File        string            `json:"file"`
	ProcessedAt time.Time         `json:"processed_at"`
	Error       string            `json:"error,omitempty"`
	Session     pipeline.Snapshot `json:"session"`
}

// Inbox watches a directory for photos.
type Inbox struct {
	cfg    Config
	proc   Processor
	logger *slog.Logger
	lock   *flock.Flock
}

// New creates the inbox directories.
func New(cfg Config, proc Processor, logger *slog.Logger) (*Inbox, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("inbox: directory is required")
	}
	if proc == nil {
		return nil, errors.New("inbox: processor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Settle <= 0 {
		cfg.Settle = defaultSettle
	}
	abs, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("inbox: resolve dir: %w", err)
	}
	cfg.Dir = abs
	for _, dir := range []string{abs, filepath.Join(abs, processedDir), filepath.Join(abs, failedDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("inbox: create %s: %w", dir, err)
		}
	}
	return &Inbox{
		cfg:    cfg,
		proc:   proc,
		logger: logger,
		lock:   flock.New(filepath.Join(abs, lockName)),
	}, nil
}

// Dir returns the watched directory.
func (in *Inbox) Dir() string { return in.cfg.Dir }

// Watch holds the inbox lock, processes photos already present and then
// every new photo until ctx is cancelled.
func (in *Inbox) Watch(ctx context.Context) error {
	ok, err := in.lock.TryLock()
	if err != nil {
		return fmt.Errorf("inbox: acquire lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	defer func() {
		if err := in.lock.Unlock(); err != nil {
			in.logger.Warn("inbox: release lock failed", slog.String("error", err.Error()))
		}
	}()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: new watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(in.cfg.Dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", in.cfg.Dir, err)
	}

	in.logger.Info("inbox: started", slog.String("dir", in.cfg.Dir))
	in.Scan(ctx)

	// Writes arrive in bursts; a file is read once it has been quiet for
	// the settle period.
	pending := make(map[string]struct{})
	var settleTimer *time.Timer
	var settleCh <-chan time.Time
	schedule := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(in.cfg.Settle)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(in.cfg.Settle)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			in.logger.Info("inbox: stopped")
			return nil

		case <-settleCh:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			sort.Strings(paths)
			for _, p := range paths {
				if ctx.Err() != nil {
					break
				}
				in.processFile(ctx, p)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isPhoto(ev.Name) {
				continue
			}
			pending[ev.Name] = struct{}{}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// Scan processes every photo currently in the inbox and returns how many
// were handled.
func (in *Inbox) Scan(ctx context.Context) int {
	entries, err := os.ReadDir(in.cfg.Dir)
	if err != nil {
		in.logger.Warn("inbox: scan failed", slog.String("error", err.Error()))
		return 0
	}
	n := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if e.IsDir() || !isPhoto(e.Name()) {
			continue
		}
		in.processFile(ctx, filepath.Join(in.cfg.Dir, e.Name()))
		n++
	}
	return n
}

func (in *Inbox) processFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			in.logger.Warn("inbox: read failed", slog.String("path", path), slog.String("error", err.Error()))
		}
		return
	}
	name := filepath.Base(path)
	img := models.Image{
		Data:     data,
		MIMEType: media.Detect(data, imageExts[strings.ToLower(filepath.Ext(name))]),
		URI:      name,
	}
	in.logger.Info("inbox: processing",
		slog.String("file", name),
		slog.String("size", humanize.Bytes(uint64(len(data)))))

	snap, err := in.proc.Process(ctx, pipeline.Job{
		Coordinates:  in.cfg.Coordinates,
		Image:        img,
		UserID:       in.cfg.UserID,
		ReminderDays: models.CopyInt(in.cfg.ReminderDays),
	})
	res := Result{File: name, ProcessedAt: time.Now().UTC(), Session: snap}
	dest := processedDir
	if err != nil {
		res.Error = err.Error()
		dest = failedDir
		in.logger.Warn("inbox: pipeline failed",
			slog.String("file", name),
			slog.String("reason", string(snap.Reason)),
			slog.String("error", err.Error()))
	} else {
		in.logger.Info("inbox: identified",
			slog.String("file", name),
			slog.String("scientific_name", snap.Draft.ScientificName),
			slog.String("state", string(snap.State)))
	}

	if err := in.archive(path, dest, res); err != nil {
		in.logger.Error("inbox: archive failed", slog.String("file", name), slog.String("error", err.Error()))
	}
}

// archive moves the photo into dest and writes the result beside it.
func (in *Inbox) archive(path, dest string, res Result) error {
	target := filepath.Join(in.cfg.Dir, dest, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("move photo: %w", err)
	}
	raw, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := os.WriteFile(target+".json", raw, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

func isPhoto(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	_, ok := imageExts[strings.ToLower(filepath.Ext(base))]
	return ok
}
