package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(25 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_IngestsNewImage(t *testing.T) {
	app, cfg := newTestApp(t)

	w, err := NewWatcher(app, cfg.Workspace.InputDir, zerolog.Nop())
	require.NoError(t, err)
	w.stabilityThreshold = 50 * time.Millisecond
	require.NoError(t, w.Start())
	defer w.Stop()

	writePNG(t, filepath.Join(cfg.Workspace.InputDir, "third.png"))

	assert.True(t, waitFor(t, 5*time.Second, func() bool {
		return app.ImageCount() == 3
	}), "new image should join the image list")

	// The new image got the next sequence number.
	assert.FileExists(t, filepath.Join(cfg.OutputDir(), "img_003.png"))
}

func TestWatcher_IgnoresNonImages(t *testing.T) {
	app, cfg := newTestApp(t)

	w, err := NewWatcher(app, cfg.Workspace.InputDir, zerolog.Nop())
	require.NoError(t, err)
	w.stabilityThreshold = 50 * time.Millisecond
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Workspace.InputDir, "notes.txt"), []byte("x"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 2, app.ImageCount())
}

func TestWatcher_IgnoresOutputDirectory(t *testing.T) {
	app, cfg := newTestApp(t)

	w, err := NewWatcher(app, cfg.Workspace.InputDir, zerolog.Nop())
	require.NoError(t, err)
	w.stabilityThreshold = 50 * time.Millisecond
	require.NoError(t, w.Start())
	defer w.Stop()

	// Files landing in the output directory never feed back into the
	// pipeline.
	writePNG(t, filepath.Join(cfg.OutputDir(), "sneaky.png"))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 2, app.ImageCount())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	app, cfg := newTestApp(t)

	w, err := NewWatcher(app, cfg.Workspace.InputDir, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Start())

	w.Stop()
	w.Stop()
}
