package server

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// AutoSaver periodically saves the session in the background. The save call
// is unforced, so the store's own interval gate decides whether disk is
// actually touched.
type AutoSaver struct {
	app      *App
	cron     *cron.Cron
	interval int // seconds
	logger   zerolog.Logger
}

// NewAutoSaver creates the auto-save scheduler.
func NewAutoSaver(app *App, intervalSeconds int, logger zerolog.Logger) *AutoSaver {
	return &AutoSaver{
		app:      app,
		cron:     cron.New(),
		interval: intervalSeconds,
		logger:   logger.With().Str("component", "autosave").Logger(),
	}
}

// Start schedules the periodic save.
func (as *AutoSaver) Start() error {
	if as.interval < 1 {
		return fmt.Errorf("auto-save interval must be at least 1 second, got %d", as.interval)
	}

	spec := fmt.Sprintf("@every %ds", as.interval)
	if _, err := as.cron.AddFunc(spec, as.tick); err != nil {
		return fmt.Errorf("schedule auto-save: %w", err)
	}
	as.cron.Start()

	as.logger.Info().Int("intervalSeconds", as.interval).Msg("Auto-save scheduled")
	return nil
}

// Stop halts the scheduler and waits for a running save to finish.
func (as *AutoSaver) Stop() {
	<-as.cron.Stop().Done()
}

func (as *AutoSaver) tick() {
	if err := as.app.saveSession(context.Background(), false); err != nil {
		as.logger.Error().Err(err).Msg("Auto-save failed")
	}
}
