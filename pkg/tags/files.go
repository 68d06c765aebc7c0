package tags

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// parseContent splits raw tag-file content. The canonical on-disk format is a
// single comma-delimited line; a legacy newline-delimited format is still
// accepted on read. Duplicates are dropped and the result is sorted.
func parseContent(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return []string{}
	}

	var parts []string
	if strings.Contains(content, ",") {
		parts = strings.Split(content, ",")
	} else {
		parts = strings.Split(content, "\n")
	}

	seen := make(map[string]struct{}, len(parts))
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		tag := strings.TrimSpace(part)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// format renders tags as the canonical comma-delimited single line.
func format(list []string) string {
	sorted := make([]string, 0, len(list))
	for _, tag := range list {
		sorted = append(sorted, strings.TrimSpace(tag))
	}
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}

// SetupFile loads the master tag file, creating an empty one when absent.
func SetupFile(path string) ([]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create tags directory: %w", err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return nil, fmt.Errorf("create tags file: %w", err)
		}
		return []string{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads tags from a master tag file. Loading a legacy
// newline-delimited file, or one containing duplicates, rewrites the file in
// the canonical comma-delimited form as a side effect; the migration is
// one-way.
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tags file %s: %w", path, err)
	}

	content := strings.TrimSpace(string(data))
	tags := parseContent(content)

	if content != format(tags) {
		if err := SaveFile(path, tags); err != nil {
			return nil, err
		}
	}
	return tags, nil
}

// SaveFile writes tags to the master tag file in canonical form, preserving
// the previous content as a .bak sibling.
func SaveFile(path string, list []string) error {
	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".bak"); err != nil {
			return fmt.Errorf("back up tags file: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(format(list)), 0o644); err != nil {
		return fmt.Errorf("write tags file %s: %w", path, err)
	}
	return nil
}

// LoadImageTags reads the tags of one image from its paired text file. A
// missing file yields an empty list, not an error.
func LoadImageTags(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read image tag file %s: %w", path, err)
	}
	return parseContent(string(data)), nil
}

// SaveImageTags fully rewrites an image's paired tag file; partial patches
// are never applied.
func SaveImageTags(path string, list []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create tag file directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(format(list)), 0o644); err != nil {
		return fmt.Errorf("write image tag file %s: %w", path, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
