package pipeline

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func writeJPEG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, nil))
}

func TestIsValidImage(t *testing.T) {
	dir := t.TempDir()

	pngPath := filepath.Join(dir, "a.png")
	writePNG(t, pngPath)
	assert.True(t, IsValidImage(pngPath))

	jpgPath := filepath.Join(dir, "b.jpg")
	writeJPEG(t, jpgPath)
	assert.True(t, IsValidImage(jpgPath))

	// Unsupported extension, valid content.
	textPath := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(textPath, []byte("hello"), 0o644))
	assert.False(t, IsValidImage(textPath))

	// Supported extension, garbage content.
	fakePath := filepath.Join(dir, "fake.jpg")
	require.NoError(t, os.WriteFile(fakePath, []byte("definitely not a jpeg"), 0o644))
	assert.False(t, IsValidImage(fakePath))

	assert.False(t, IsValidImage(filepath.Join(dir, "missing.png")))
}

func TestScanImages_FiltersAndSorts(t *testing.T) {
	dir := t.TempDir()

	writePNG(t, filepath.Join(dir, "zebra.png"))
	writeJPEG(t, filepath.Join(dir, "apple.jpg"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	images, err := ScanImages(dir, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "apple.jpg"),
		filepath.Join(dir, "zebra.png"),
	}, images)
}

func TestScanImages_MissingDirectory(t *testing.T) {
	_, err := ScanImages(filepath.Join(t.TempDir(), "missing"), zerolog.Nop())
	assert.Error(t, err)
}

func TestScanImages_EmptyDirectory(t *testing.T) {
	images, err := ScanImages(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, images)
}
