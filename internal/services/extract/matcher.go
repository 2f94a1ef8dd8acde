// Package extract implements the URL match predicate shared by both
// interception hooks and the dot-path payload extraction applied to
// complete exchanges.
package extract

import (
	"strings"
)

// heuristicPatterns are the common API-path substrings used when no
// explicit pattern is configured.
var heuristicPatterns = []string{
	"/api/",
	"/service/",
	"/graphql",
	".json",
}

// Matcher decides whether an observed URL should be captured.
// Match order: exact containment of the configured pattern, containment of
// any alternate in the fallback list, or (when no pattern is configured) a
// heuristic match against common API-path substrings.
type Matcher struct {
	pattern    string
	alternates []string
}

// NewMatcher creates a matcher for the configured pattern and fallback
// alternates. Whitespace-only patterns count as unconfigured.
func NewMatcher(pattern string, alternates []string) *Matcher {
	cleaned := make([]string, 0, len(alternates))
	for _, alt := range alternates {
		if alt = strings.TrimSpace(alt); alt != "" {
			cleaned = append(cleaned, alt)
		}
	}
	return &Matcher{
		pattern:    strings.TrimSpace(pattern),
		alternates: cleaned,
	}
}

// Match reports whether the URL belongs to a call that should be captured
func (m *Matcher) Match(url string) bool {
	if url == "" {
		return false
	}

	if m.pattern != "" {
		if strings.Contains(url, m.pattern) {
			return true
		}
		for _, alt := range m.alternates {
			if strings.Contains(url, alt) {
				return true
			}
		}
		return false
	}

	if len(m.alternates) > 0 {
		for _, alt := range m.alternates {
			if strings.Contains(url, alt) {
				return true
			}
		}
		return false
	}

	// No configured pattern at all: fall back to API-path heuristics.
	lowered := strings.ToLower(url)
	for _, h := range heuristicPatterns {
		if strings.Contains(lowered, h) {
			return true
		}
	}
	return false
}
