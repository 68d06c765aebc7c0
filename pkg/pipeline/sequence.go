package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// DefaultPadding is the zero padding applied to sequence numbers.
const DefaultPadding = 3

// NextSequenceNumber scans the renamed filenames recorded in existing for the
// pattern <prefix>_<digits>.<ext> and returns max+1, or 1 when nothing
// matches. Entries with other prefixes are ignored, so numbers are
// monotonically non-decreasing for a given prefix and never reused.
func NextSequenceNumber(existing map[string]string, prefix string) int {
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `_([0-9]+)\.`)

	max := 0
	for _, renamed := range existing {
		match := pattern.FindStringSubmatch(filepath.Base(renamed))
		if match == nil {
			continue
		}
		n, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1
}

// UniqueFilename computes the renamed filename for original. If original is
// already a key in existing, the filename on record is returned unchanged.
// Otherwise the next sequence number is zero-padded and combined with the
// lower-cased original extension; when a file of that exact name already sits
// in outputDir outside the map's knowledge, an incrementing _<n> suffix is
// appended until the name is free.
func UniqueFilename(original, prefix string, existing map[string]string, outputDir string, padding int) string {
	if recorded, ok := existing[original]; ok {
		return filepath.Base(recorded)
	}
	if padding <= 0 {
		padding = DefaultPadding
	}

	seq := NextSequenceNumber(existing, prefix)
	ext := strings.ToLower(filepath.Ext(original))
	name := fmt.Sprintf("%s_%0*d%s", prefix, padding, seq, ext)

	base := strings.TrimSuffix(name, ext)
	for n := 1; fileExists(filepath.Join(outputDir, name)); n++ {
		name = fmt.Sprintf("%s_%d%s", base, n, ext)
	}
	return name
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
