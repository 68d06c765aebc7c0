package tags

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupFile_CreatesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tags.txt")

	list, err := SetupFile(path)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLoadFile_CommaDelimited(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tags.txt")
	require.NoError(t, os.WriteFile(path, []byte("cat, dog, outdoor"), 0o644))

	list, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog", "outdoor"}, list)
}

func TestLoadFile_MigratesLegacyNewlineFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tags.txt")
	require.NoError(t, os.WriteFile(path, []byte("dog\ncat\noutdoor\n"), 0o644))

	list, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog", "outdoor"}, list)

	// Loading rewrote the file into the canonical comma-delimited form.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "cat, dog, outdoor", string(data))
}

func TestLoadFile_DeduplicatesAndRewrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tags.txt")
	require.NoError(t, os.WriteFile(path, []byte("cat, dog, cat"), 0o644))

	list, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, list)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "cat, dog", string(data))
}

func TestSaveFile_WritesCanonicalFormAndBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tags.txt")
	require.NoError(t, SaveFile(path, []string{"dog", "cat"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "cat, dog", string(data))

	require.NoError(t, SaveFile(path, []string{"cat", "dog", "outdoor"}))

	bak, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "cat, dog", string(bak))
}

func TestImageTags_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img_001.txt")

	require.NoError(t, SaveImageTags(path, []string{"outdoor", "cat"}))

	list, err := LoadImageTags(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "outdoor"}, list)
}

func TestLoadImageTags_MissingFileIsEmpty(t *testing.T) {
	list, err := LoadImageTags(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSaveImageTags_FullyRewrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img_001.txt")
	require.NoError(t, os.WriteFile(path, []byte("old, stale, tags"), 0o644))

	require.NoError(t, SaveImageTags(path, []string{"cat"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "cat", string(data))
}
