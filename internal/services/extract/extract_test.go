package extract

import (
	"encoding/json"
	"testing"
)

func TestMatcherConfiguredPattern(t *testing.T) {
	m := NewMatcher("https://x/api/v4/pdp/get_pc", nil)

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"exact", "https://x/api/v4/pdp/get_pc", true},
		{"with query string", "https://x/api/v4/pdp/get_pc?id=1", true},
		{"different path", "https://x/other", false},
		{"empty url", "", false},
		{"prefix only", "https://x/api/v4/pdp", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Match(tt.url); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestMatcherAlternates(t *testing.T) {
	m := NewMatcher("/api/v4/pdp/get_pc", []string{"/api/v3/pdp/get", "item_detail"})

	tests := []struct {
		url  string
		want bool
	}{
		{"https://x/api/v4/pdp/get_pc?id=1", true},
		{"https://x/api/v3/pdp/get?id=1", true},
		{"https://x/h5/item_detail?id=2", true},
		{"https://x/api/v4/cart/list", false},
	}

	for _, tt := range tests {
		if got := m.Match(tt.url); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestMatcherHeuristicFallback(t *testing.T) {
	// No configured pattern: common API-path substrings match.
	m := NewMatcher("", nil)

	tests := []struct {
		url  string
		want bool
	}{
		{"https://x/api/v1/items", true},
		{"https://x/service/detail", true},
		{"https://x/graphql", true},
		{"https://x/data/feed.json", true},
		{"https://x/index.html", false},
		{"https://x/static/app.js", false},
	}

	for _, tt := range tests {
		if got := m.Match(tt.url); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestMatcherWhitespacePatternIsUnconfigured(t *testing.T) {
	m := NewMatcher("   ", nil)
	if !m.Match("https://x/api/v1/items") {
		t.Error("whitespace pattern should fall back to heuristics")
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		path   string
		want   string
		wantOK bool
	}{
		{
			name:   "nested array",
			body:   `{"data":{"item":{"models":[1,2]}}}`,
			path:   "data.item.models",
			want:   `[1,2]`,
			wantOK: true,
		},
		{
			name:   "missing intermediate segment",
			body:   `{"data":{}}`,
			path:   "data.item.models",
			wantOK: false,
		},
		{
			name:   "single segment",
			body:   `{"code":0}`,
			path:   "code",
			want:   `0`,
			wantOK: true,
		},
		{
			name:   "nested object value",
			body:   `{"data":{"item":{"title":"widget"}}}`,
			path:   "data.item",
			want:   `{"title":"widget"}`,
			wantOK: true,
		},
		{
			name:   "empty path never extracts",
			body:   `{"data":1}`,
			path:   "",
			wantOK: false,
		},
		{
			name:   "whitespace path never extracts",
			body:   `{"data":1}`,
			path:   "  ",
			wantOK: false,
		},
		{
			name:   "non-json body",
			body:   `<html>not json</html>`,
			path:   "data",
			wantOK: false,
		},
		{
			name:   "empty body",
			body:   ``,
			path:   "data",
			wantOK: false,
		},
		{
			name:   "null leaf still extracts",
			body:   `{"data":{"item":null}}`,
			path:   "data.item",
			want:   `null`,
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract([]byte(tt.body), tt.path)
			if ok != tt.wantOK {
				t.Fatalf("Extract() ok = %v, want %v", ok, tt.wantOK)
			}
			if !tt.wantOK {
				return
			}
			if string(got) != tt.want {
				t.Errorf("Extract() = %s, want %s", got, tt.want)
			}
			// The extracted payload must be valid JSON on its own.
			if !json.Valid(got) {
				t.Errorf("Extract() returned invalid JSON: %s", got)
			}
		})
	}
}
