// Package normalize cleans raw scraped text before extraction and provides
// the value canonicalizers used by validation and change detection.
package normalize

import (
	"strings"
	"unicode"
)

// boilerplateMarkers are line-level markers for chrome that scrapers drag in
// around the actual page content. A line containing one of these is dropped
// wholesale.
var boilerplateMarkers = []string{
	"accept all cookies",
	"cookie preferences",
	"cookies on this site",
	"we use cookies",
	"skip to main content",
	"skip to content",
	"navigation menu",
	"all rights reserved",
	"privacy policy",
	"terms of use",
}

// Text cleans raw scraped text: boilerplate lines are dropped, control
// characters removed, and whitespace runs collapsed to single spaces.
// Pure function; identical input always yields identical output.
func Text(raw string) string {
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isBoilerplate(trimmed) {
			continue
		}
		kept = append(kept, trimmed)
	}

	joined := strings.Join(kept, " ")

	var b strings.Builder
	b.Grow(len(joined))
	lastSpace := false
	for _, r := range joined {
		// Tabs and newlines are control runes too; whitespace wins.
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteByte(' ')
			}
			lastSpace = true
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}

	return strings.TrimSpace(b.String())
}

func isBoilerplate(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range boilerplateMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
