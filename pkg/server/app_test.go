package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/widyatma/loratag/internal/config"
)

// Two in-flight pipeline runs must never be handed the same sequence number:
// the slower one would see its destination already on disk, skip the copy and
// record another image's file as its own.
func TestProcessImage_ConcurrentOriginalsGetDistinctDestinations(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Workspace.InputDir = t.TempDir()

	const count = 6
	paths := make([]string, 0, count)
	for i := 0; i < count; i++ {
		p := filepath.Join(cfg.Workspace.InputDir, fmt.Sprintf("orig_%d.png", i))
		writePNG(t, p)
		paths = append(paths, p)
	}

	app, err := NewApp(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Queue().Close() })

	var wg sync.WaitGroup
	errs := make([]error, count)
	for i, p := range paths {
		wg.Add(1)
		go func(i int, p string) {
			defer wg.Done()
			errs[i] = app.processImage(context.Background(), p)
		}(i, p)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "image %d", i)
	}

	processed := app.Store().ProcessedImages()
	require.Len(t, processed, count)

	seen := make(map[string]string, count)
	for original, renamed := range processed {
		if prev, dup := seen[renamed]; dup {
			t.Fatalf("destination %s assigned to both %s and %s", renamed, prev, original)
		}
		seen[renamed] = original

		_, err := os.Stat(filepath.Join(cfg.OutputDir(), filepath.Base(renamed)))
		assert.NoError(t, err, "destination for %s", original)
	}
}

// Reprocessing an already recorded original keeps its assignment instead of
// allocating a fresh sequence number.
func TestProcessImage_IsIdempotentForKnownOriginals(t *testing.T) {
	app, cfg := newTestApp(t)

	key, err := filepath.Abs(filepath.Join(cfg.Workspace.InputDir, "first.png"))
	require.NoError(t, err)

	before := app.Store().ProcessedImages()
	renamed, ok := before[key]
	require.True(t, ok)

	require.NoError(t, app.processImage(context.Background(), key))

	after := app.Store().ProcessedImages()
	assert.Equal(t, renamed, after[key])
	assert.Len(t, after, len(before))
}
