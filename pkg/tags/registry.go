// Package tags maintains the master tag vocabulary and the per-image tag
// files paired with renamed images. Tag equality is case-sensitive
// everywhere; "Cat" and "cat" are distinct tags.
package tags

import (
	"regexp"
	"strings"
)

// invalidChars matches everything outside the tag allow-list: letters,
// digits, underscore, hyphen, period, comma and space.
var invalidChars = regexp.MustCompile(`[^a-zA-Z0-9_\-., ]`)

// Normalize trims surrounding whitespace and strips disallowed characters.
// An empty result means "no tag" and callers must skip it.
func Normalize(tag string) string {
	return invalidChars.ReplaceAllString(strings.TrimSpace(tag), "")
}

// Add returns the list with the normalized tag appended. It is a pure
// operation: the input slice is never mutated, and adding an existing or
// empty tag returns the input unchanged.
func Add(list []string, tag string) []string {
	normalized := Normalize(tag)
	if normalized == "" {
		return list
	}
	for _, existing := range list {
		if existing == normalized {
			return list
		}
	}
	updated := make([]string, len(list), len(list)+1)
	copy(updated, list)
	return append(updated, normalized)
}

// Remove returns the list without the normalized tag. Removing an absent or
// empty tag returns the input unchanged.
func Remove(list []string, tag string) []string {
	normalized := Normalize(tag)
	if normalized == "" {
		return list
	}
	found := false
	for _, existing := range list {
		if existing == normalized {
			found = true
			break
		}
	}
	if !found {
		return list
	}
	updated := make([]string, 0, len(list)-1)
	for _, existing := range list {
		if existing != normalized {
			updated = append(updated, existing)
		}
	}
	return updated
}

// Search returns tags containing the query substring.
func Search(list []string, query string, caseSensitive bool) []string {
	if !caseSensitive {
		query = strings.ToLower(query)
	}
	matches := []string{}
	for _, tag := range list {
		candidate := tag
		if !caseSensitive {
			candidate = strings.ToLower(tag)
		}
		if strings.Contains(candidate, query) {
			matches = append(matches, tag)
		}
	}
	return matches
}

// FindByPrefix returns tags starting with the given prefix.
func FindByPrefix(list []string, prefix string, caseSensitive bool) []string {
	if !caseSensitive {
		prefix = strings.ToLower(prefix)
	}
	matches := []string{}
	for _, tag := range list {
		candidate := tag
		if !caseSensitive {
			candidate = strings.ToLower(tag)
		}
		if strings.HasPrefix(candidate, prefix) {
			matches = append(matches, tag)
		}
	}
	return matches
}
