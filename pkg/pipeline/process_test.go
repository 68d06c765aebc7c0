package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor(t *testing.T, outputDir string) *Processor {
	t.Helper()
	p := NewProcessor(outputDir, "img", zerolog.Nop())
	p.sleep = func(time.Duration) {}
	return p
}

func TestProcess_FirstImage(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := filepath.Join(inputDir, "output")
	original := filepath.Join(inputDir, "cat.jpg")
	writeJPEG(t, original)

	p := newTestProcessor(t, outputDir)
	existing := map[string]string{}

	res, err := p.Process(original, existing)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(outputDir, "img_001.jpg"), res.DestPath)
	assert.Equal(t, filepath.Join(outputDir, "img_001.txt"), res.TagPath)

	// Copied bytes match the source.
	src, err := os.ReadFile(original)
	require.NoError(t, err)
	dst, err := os.ReadFile(res.DestPath)
	require.NoError(t, err)
	assert.Equal(t, src, dst)

	// Paired tag file exists and is empty.
	tag, err := os.ReadFile(res.TagPath)
	require.NoError(t, err)
	assert.Empty(t, tag)

	// Map records the relative destination.
	assert.Equal(t, filepath.Join("output", "img_001.jpg"), existing[original])
}

func TestProcess_SequentialIdentities(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := filepath.Join(inputDir, "output")
	p := newTestProcessor(t, outputDir)
	existing := map[string]string{}

	names := []string{"cat.jpg", "dog.jpg", "bird.jpg"}
	for i, name := range names {
		original := filepath.Join(inputDir, name)
		writeJPEG(t, original)

		res, err := p.Process(original, existing)
		require.NoError(t, err)
		want := []string{"img_001.jpg", "img_002.jpg", "img_003.jpg"}[i]
		assert.Equal(t, want, filepath.Base(res.DestPath))
	}
}

func TestProcess_IdempotentWhenDestinationPresent(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := filepath.Join(inputDir, "output")
	original := filepath.Join(inputDir, "cat.jpg")
	writeJPEG(t, original)

	p := newTestProcessor(t, outputDir)
	existing := map[string]string{}

	first, err := p.Process(original, existing)
	require.NoError(t, err)

	info, err := os.Stat(first.DestPath)
	require.NoError(t, err)

	second, err := p.Process(original, existing)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, existing, 1)

	// No second copy happened.
	after, err := os.Stat(second.DestPath)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), after.ModTime())

	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2) // image + tag file
}

func TestProcess_RegeneratesMissingDestinationUnderSameName(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := filepath.Join(inputDir, "output")
	original := filepath.Join(inputDir, "cat.jpg")
	writeJPEG(t, original)

	p := newTestProcessor(t, outputDir)
	existing := map[string]string{}

	first, err := p.Process(original, existing)
	require.NoError(t, err)
	require.NoError(t, os.Remove(first.DestPath))

	second, err := p.Process(original, existing)
	require.NoError(t, err)

	// Same filename, no new sequence number leaked.
	assert.Equal(t, first.DestPath, second.DestPath)
	assert.FileExists(t, second.DestPath)

	_, err = os.Stat(filepath.Join(outputDir, "img_002.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestProcess_PreservesExistingTagFile(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := filepath.Join(inputDir, "output")
	original := filepath.Join(inputDir, "cat.jpg")
	writeJPEG(t, original)

	p := newTestProcessor(t, outputDir)
	existing := map[string]string{}

	first, err := p.Process(original, existing)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(first.TagPath, []byte("cat, fluffy"), 0o644))

	// Destination removed but tags kept: regeneration must not wipe them.
	require.NoError(t, os.Remove(first.DestPath))
	_, err = p.Process(original, existing)
	require.NoError(t, err)

	tag, err := os.ReadFile(first.TagPath)
	require.NoError(t, err)
	assert.Equal(t, "cat, fluffy", string(tag))
}

func TestCopyWithRetry_MissingSourceFailsImmediately(t *testing.T) {
	dir := t.TempDir()
	p := newTestProcessor(t, dir)

	slept := 0
	p.sleep = func(time.Duration) { slept++ }

	err := p.CopyWithRetry(filepath.Join(dir, "missing.jpg"), filepath.Join(dir, "out.jpg"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
	assert.NotErrorIs(t, err, ErrFatalIO)
	assert.Zero(t, slept, "not-found errors must not be retried")
}

func TestCopyWithRetry_ExhaustionIsFatalIO(t *testing.T) {
	dir := t.TempDir()
	p := newTestProcessor(t, dir)
	p.sleep = func(time.Duration) {}

	src := filepath.Join(dir, "src.jpg")
	writeJPEG(t, src)

	// A directory as destination yields EISDIR on every attempt, an error
	// that is neither not-found nor permission and so keeps being retried.
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.Mkdir(blocker, 0o755))

	err := p.CopyWithRetry(src, blocker)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatalIO)
}
