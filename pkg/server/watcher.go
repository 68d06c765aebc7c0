package server

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/widyatma/loratag/pkg/pipeline"
)

// Watcher monitors the input directory for images dropped in while the
// server is running. New images are pulled through the pipeline and every
// client is pushed a fresh session state.
type Watcher struct {
	watcher            *fsnotify.Watcher
	app                *App
	inputDir           string
	stabilityThreshold time.Duration
	logger             zerolog.Logger
	done               chan struct{}
	debounceTimers     map[string]*time.Timer
	debounceMu         sync.Mutex
	stopOnce           sync.Once
}

// NewWatcher creates a watcher for the input directory. The stability
// threshold lets a file finish copying before it is picked up.
func NewWatcher(app *App, inputDir string, logger zerolog.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		watcher:            watcher,
		app:                app,
		inputDir:           inputDir,
		stabilityThreshold: 500 * time.Millisecond,
		logger:             logger.With().Str("component", "watcher").Logger(),
		done:               make(chan struct{}),
		debounceTimers:     make(map[string]*time.Timer),
	}, nil
}

// Start begins watching the input directory.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.inputDir); err != nil {
		return fmt.Errorf("failed to watch input directory: %w", err)
	}

	go w.eventLoop()

	w.logger.Info().Str("path", w.inputDir).Msg("Input directory watcher started")
	return nil
}

// Stop stops the watcher and cancels any pending debounce timers.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.debounceMu.Lock()
	for _, timer := range w.debounceTimers {
		timer.Stop()
	}
	clear(w.debounceTimers)
	w.debounceMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to close watcher")
	}
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	// Only files directly in the input directory count; the output directory
	// lives underneath it and must never feed back into the pipeline.
	if filepath.Dir(event.Name) != filepath.Clean(w.inputDir) {
		return
	}

	w.debounce(event.Name)
}

// debounce coalesces the create/write burst a copy-in-progress produces and
// acts only once the file has been quiet for the stability threshold.
func (w *Watcher) debounce(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.debounceTimers[path]; exists {
		timer.Stop()
	}

	w.debounceTimers[path] = time.AfterFunc(w.stabilityThreshold, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		select {
		case <-w.done:
			return
		default:
			w.ingest(path)
		}
	})
}

func (w *Watcher) ingest(path string) {
	if !pipeline.IsValidImage(path) {
		return
	}

	w.logger.Info().Str("path", path).Msg("New image detected")

	if err := w.app.Ingest(context.Background(), path); err != nil {
		w.logger.Error().Err(err).Str("path", path).Msg("Failed to ingest image")
		return
	}

	if err := w.app.Hub().Broadcast(w.app.SessionStateEnvelope()); err != nil {
		w.logger.Error().Err(err).Msg("Failed to broadcast session state")
	}
}
