package pipeline

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// supportedExtensions is the fast pre-filter before the decode check.
var supportedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
	".bmp":  {},
	".gif":  {},
	".tiff": {},
	".tif":  {},
}

// IsValidImage reports whether the file has a supported extension and a
// header that one of the registered decoders accepts.
func IsValidImage(path string) bool {
	if _, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]; !ok {
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	_, _, err = image.DecodeConfig(f)
	return err == nil
}

// ScanImages returns the valid image files directly inside dir, sorted by
// path. Subdirectories and non-image files are skipped.
func ScanImages(dir string, logger zerolog.Logger) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan directory %s: %w", dir, err)
	}

	images := []string{}
	skipped := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if IsValidImage(path) {
			images = append(images, path)
		} else {
			skipped++
		}
	}
	sort.Strings(images)

	logger.Info().
		Str("dir", dir).
		Int("images", len(images)).
		Int("skipped", skipped).
		Msg("Image scan complete")
	if len(images) == 0 {
		logger.Warn().Str("dir", dir).Msg("No valid image files found in directory")
	}

	return images, nil
}
