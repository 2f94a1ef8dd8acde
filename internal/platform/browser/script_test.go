package browser

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/chromedp/cdproto/network"
)

func TestBuildPageScriptEmbedsPatterns(t *testing.T) {
	script := buildPageScript("/api/v4/pdp/get_pc", []string{"/api/v4/pdp/", "/pdp/get_pc"})

	if strings.Contains(script, "__PATTERNS__") {
		t.Error("patterns placeholder not replaced")
	}
	want := `["/api/v4/pdp/get_pc","/api/v4/pdp/","/pdp/get_pc"]`
	if !strings.Contains(script, want) {
		t.Errorf("script missing pattern array %s", want)
	}
}

func TestBuildPageScriptEmptyPatterns(t *testing.T) {
	script := buildPageScript("", []string{"  ", ""})
	if !strings.Contains(script, "var patterns = []") {
		t.Error("unconfigured patterns should render as an empty array")
	}
	// The heuristic fallback must survive templating.
	if !strings.Contains(script, `"/graphql"`) {
		t.Error("heuristic patterns missing from script")
	}
}

func TestPageMessageRoundTrip(t *testing.T) {
	payload := `{"type":"response","id":"f3","url":"https://x/api/items","method":"GET","status":200,"headers":{"content-type":"application/json"},"body":"{\"ok\":true}"}`

	var msg pageMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "response" || msg.ID != "f3" || msg.Status != 200 {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.Headers["content-type"] != "application/json" {
		t.Errorf("headers = %v", msg.Headers)
	}
	if msg.Body != `{"ok":true}` {
		t.Errorf("body = %s", msg.Body)
	}
}

func TestFlattenHeaders(t *testing.T) {
	headers := network.Headers{
		"Content-Type":   "application/json",
		"Content-Length": 42,
	}
	flat := flattenHeaders(headers)
	if flat["Content-Type"] != "application/json" {
		t.Errorf("Content-Type = %s", flat["Content-Type"])
	}
	if flat["Content-Length"] != "42" {
		t.Errorf("Content-Length = %s", flat["Content-Length"])
	}

	if flattenHeaders(nil) != nil {
		t.Error("nil headers should flatten to nil")
	}
}
