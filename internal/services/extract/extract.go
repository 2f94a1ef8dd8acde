package extract

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Extract walks a dot-separated path (e.g. "data.item.models") through a
// JSON body and returns the value found there. Every path segment must be
// traversable; a missing segment, a non-JSON body, or an empty path yields
// no payload. Extraction misses are not errors - the payload field simply
// stays empty on the captured exchange.
func Extract(body []byte, path string) (json.RawMessage, bool) {
	path = strings.TrimSpace(path)
	if path == "" || len(body) == 0 {
		return nil, false
	}
	if !gjson.ValidBytes(body) {
		return nil, false
	}

	// gjson treats dots as path separators, matching the configured
	// extraction path format exactly.
	result := gjson.GetBytes(body, path)
	if !result.Exists() {
		return nil, false
	}

	return json.RawMessage(result.Raw), true
}
