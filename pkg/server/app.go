// Package server wires the session store, tag registry, processing pipeline
// and connection hub behind one HTTP/websocket surface.
package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/widyatma/loratag/internal/config"
	"github.com/widyatma/loratag/pkg/hub"
	"github.com/widyatma/loratag/pkg/pipeline"
	"github.com/widyatma/loratag/pkg/session"
	"github.com/widyatma/loratag/pkg/tags"
	"github.com/widyatma/loratag/pkg/workqueue"
)

// App holds every collaborator the message handlers depend on. Handlers never
// touch the transport; they work against this explicit context.
type App struct {
	cfg       *config.Config
	logger    zerolog.Logger
	store     *session.Store
	hub       *hub.Hub
	queue     *workqueue.Queue
	processor *pipeline.Processor

	mu     sync.Mutex
	images []string // sorted canonical original paths

	// procMu serializes sequence allocation. Process works against a copy of
	// the processed-images map, so two in-flight pipeline runs could otherwise
	// allocate the same sequence number for different originals.
	procMu sync.Mutex
}

// NewApp builds the application context: loads or creates the session file,
// sets up the master tag file and reconciles it with the session record.
func NewApp(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	// Without resume the previous session record is discarded wholesale and
	// the store starts from a fresh default.
	if !cfg.Session.Resume {
		_ = os.Remove(cfg.SessionPath())
	}

	store := session.New(cfg.SessionPath(), logger)
	if err := store.SetAutoSaveInterval(cfg.Session.AutoSaveIntervalDuration()); err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		logger:    logger.With().Str("component", "app").Logger(),
		store:     store,
		hub:       hub.New(logger),
		queue:     workqueue.New(),
		processor: pipeline.NewProcessor(cfg.OutputDir(), cfg.Workspace.Prefix, logger),
	}

	if err := a.setupMasterTags(); err != nil {
		return nil, err
	}
	return a, nil
}

// setupMasterTags creates the master tag file when absent and merges it with
// the tags recorded in the session, so neither side loses vocabulary after a
// restart.
func (a *App) setupMasterTags() error {
	fileTags, err := tags.SetupFile(a.cfg.MasterTagsPath())
	if err != nil {
		return fmt.Errorf("setup master tags: %w", err)
	}

	merged := fileTags
	for _, tag := range a.store.Snapshot().Tags {
		merged = tags.Add(merged, tag)
	}

	if len(merged) != len(fileTags) {
		if err := tags.SaveFile(a.cfg.MasterTagsPath(), merged); err != nil {
			return err
		}
	}
	a.store.UpdateTags(merged)
	return nil
}

// Hub exposes the connection hub to the transport layer.
func (a *App) Hub() *hub.Hub {
	return a.hub
}

// Store exposes the session store for lifecycle hooks.
func (a *App) Store() *session.Store {
	return a.store
}

// Queue exposes the background work lanes.
func (a *App) Queue() *workqueue.Queue {
	return a.queue
}

// ScanAndProcess scans the input directory and runs every image through the
// processing pipeline. A single failing image is logged and skipped; the
// batch continues. The resulting image list replaces the in-memory one and
// the session is force-saved.
func (a *App) ScanAndProcess(ctx context.Context) error {
	found, err := a.queue.EnqueueWithContext(ctx, workqueue.LaneScan, func(context.Context) (interface{}, error) {
		return pipeline.ScanImages(a.cfg.Workspace.InputDir, a.logger)
	})
	if err != nil {
		return fmt.Errorf("scan input directory: %w", err)
	}
	images := found.([]string)

	processed := 0
	for _, img := range images {
		if err := a.processImage(ctx, img); err != nil {
			a.logger.Error().Err(err).Str("image", img).Msg("Processing failed, skipping image")
			continue
		}
		processed++
	}

	a.mu.Lock()
	a.images = canonicalSorted(images)
	total := len(a.images)
	a.mu.Unlock()

	a.store.UpdateStats(&total, nil)
	if err := a.saveSession(ctx, true); err != nil {
		a.logger.Error().Err(err).Msg("Failed to persist session after batch")
	}

	a.logger.Info().
		Int("total", total).
		Int("processed", processed).
		Msg("Batch processing complete")
	return nil
}

// Ingest processes a single image discovered after startup and appends it to
// the image list. Used by the directory watcher.
func (a *App) Ingest(ctx context.Context, path string) error {
	if err := a.processImage(ctx, path); err != nil {
		return err
	}

	key, err := filepath.Abs(path)
	if err != nil {
		key = path
	}

	a.mu.Lock()
	if !containsString(a.images, key) {
		a.images = append(a.images, key)
		sort.Strings(a.images)
	}
	total := len(a.images)
	a.mu.Unlock()

	a.store.UpdateStats(&total, nil)
	return a.saveSession(ctx, false)
}

// processImage runs one image through the pipeline on the disk lane and
// records the assignment in the session.
func (a *App) processImage(ctx context.Context, path string) error {
	_, err := a.queue.EnqueueWithContext(ctx, workqueue.LaneDisk, func(context.Context) (interface{}, error) {
		a.procMu.Lock()
		defer a.procMu.Unlock()

		existing := a.store.ProcessedImages()
		res, err := a.processor.Process(path, existing)
		if err != nil {
			return nil, err
		}

		key, aerr := filepath.Abs(path)
		if aerr != nil {
			key = path
		}
		if renamed, ok := existing[key]; ok {
			a.store.UpdateProcessedImage(key, renamed)
		}
		return res, nil
	})
	return err
}

// saveSession persists the session on the disk lane.
func (a *App) saveSession(ctx context.Context, force bool) error {
	_, err := a.queue.EnqueueWithContext(ctx, workqueue.LaneDisk, func(context.Context) (interface{}, error) {
		return nil, a.store.Save(force)
	})
	return err
}

// ImageCount returns the number of known images.
func (a *App) ImageCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.images)
}

// imageAt returns the canonical original path at index.
func (a *App) imageAt(index int) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if index < 0 || index >= len(a.images) {
		return "", false
	}
	return a.images[index], true
}

// imagePaths resolves the recorded destination and tag-file paths for one
// original. The image must already have been through the pipeline.
func (a *App) imagePaths(original string) (dest, tagPath string, ok bool) {
	renamed, found := a.store.ProcessedImages()[original]
	if !found {
		return "", "", false
	}
	dest = filepath.Join(a.processor.OutputDir(), filepath.Base(renamed))
	ext := filepath.Ext(dest)
	tagPath = dest[:len(dest)-len(ext)] + ".txt"
	return dest, tagPath, true
}

func canonicalSorted(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		out = append(out, abs)
	}
	sort.Strings(out)
	return out
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
