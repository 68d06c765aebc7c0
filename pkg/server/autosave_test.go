package server

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/widyatma/loratag/internal/config"
)

func TestAutoSaver_PersistsInBackground(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Workspace.InputDir = t.TempDir()
	cfg.Session.AutoSaveInterval = 1

	app, err := NewApp(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer app.Queue().Close()

	app.Store().AddTag("pending")

	as := NewAutoSaver(app, 1, zerolog.Nop())
	require.NoError(t, as.Start())
	defer as.Stop()

	assert.True(t, waitFor(t, 5*time.Second, func() bool {
		_, err := os.Stat(cfg.SessionPath())
		return err == nil
	}), "auto-save should create the session file")
}

func TestAutoSaver_StartRejectsBadInterval(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Workspace.InputDir = t.TempDir()

	app, err := NewApp(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer app.Queue().Close()

	as := NewAutoSaver(app, 0, zerolog.Nop())
	assert.Error(t, as.Start())
}
