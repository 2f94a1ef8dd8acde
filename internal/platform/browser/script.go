package browser

import (
	"encoding/json"
	"strings"
)

// relayBindingName is the CDP binding the injected script calls to deliver
// events back to the orchestrator.
const relayBindingName = "__tapwireRelay"

// pageScriptTemplate is the page-layer hook. It wraps fetch and
// XMLHttpRequest so calls issued by page scripts are visible with their full
// request and response bodies, which the network layer cannot always
// provide. The wrapper is install-once per document and relays one ready
// handshake when it lands.
const pageScriptTemplate = `(function () {
	if (window.__tapwireHooked) { return; }
	window.__tapwireHooked = true;

	var patterns = __PATTERNS__;
	var heuristics = ["/api/", "/service/", "/graphql", ".json"];
	var seq = 0;

	function relay(msg) {
		try { window.__tapwireRelay(JSON.stringify(msg)); } catch (e) {}
	}

	function matches(url) {
		if (!url) { return false; }
		var list = patterns.length ? patterns : heuristics;
		var haystack = patterns.length ? url : url.toLowerCase();
		for (var i = 0; i < list.length; i++) {
			if (haystack.indexOf(list[i]) !== -1) { return true; }
		}
		return false;
	}

	function headerMap(headers) {
		var out = {};
		try {
			if (headers && typeof headers.forEach === "function") {
				headers.forEach(function (value, key) { out[key] = value; });
			} else if (headers) {
				for (var k in headers) { out[k] = String(headers[k]); }
			}
		} catch (e) {}
		return out;
	}

	var origFetch = window.fetch;
	window.fetch = function (input, init) {
		var url = typeof input === "string" ? input : (input && input.url) || "";
		var method = (init && init.method) || (input && input.method) || "GET";
		var tracked = matches(url);
		var id = "f" + (++seq);
		if (tracked) {
			relay({ type: "request", id: id, url: url, method: method,
				headers: headerMap(init && init.headers),
				body: init && typeof init.body === "string" ? init.body : "" });
		}
		return origFetch.apply(this, arguments).then(function (response) {
			if (tracked) {
				response.clone().text().then(function (text) {
					relay({ type: "response", id: id, url: url, method: method,
						status: response.status,
						headers: headerMap(response.headers), body: text });
				}, function () {
					relay({ type: "response", id: id, url: url, method: method,
						status: response.status, headers: {}, body: "" });
				});
			}
			return response;
		}, function (err) {
			if (tracked) {
				relay({ type: "error", id: id, url: url, method: method,
					message: String(err) });
			}
			throw err;
		});
	};

	var origOpen = XMLHttpRequest.prototype.open;
	var origSend = XMLHttpRequest.prototype.send;
	XMLHttpRequest.prototype.open = function (method, url) {
		this.__tapwireMeta = { method: method, url: String(url) };
		return origOpen.apply(this, arguments);
	};
	XMLHttpRequest.prototype.send = function (body) {
		var meta = this.__tapwireMeta;
		if (meta && matches(meta.url)) {
			var id = "x" + (++seq);
			relay({ type: "request", id: id, url: meta.url, method: meta.method,
				headers: {}, body: typeof body === "string" ? body : "" });
			var xhr = this;
			xhr.addEventListener("loadend", function () {
				if (xhr.status === 0) {
					relay({ type: "error", id: id, url: meta.url,
						method: meta.method, message: "request failed" });
					return;
				}
				var text = "";
				try {
					if (!xhr.responseType || xhr.responseType === "text") {
						text = xhr.responseText;
					}
				} catch (e) {}
				relay({ type: "response", id: id, url: meta.url,
					method: meta.method, status: xhr.status,
					headers: {}, body: text });
			});
		}
		return origSend.apply(this, arguments);
	};

	relay({ type: "ready" });
})();`

// buildPageScript renders the hook with the configured URL patterns baked
// in so the page-side match decision agrees with the network layer.
func buildPageScript(pattern string, alternates []string) string {
	patterns := make([]string, 0, len(alternates)+1)
	if p := strings.TrimSpace(pattern); p != "" {
		patterns = append(patterns, p)
	}
	for _, alt := range alternates {
		if alt = strings.TrimSpace(alt); alt != "" {
			patterns = append(patterns, alt)
		}
	}

	encoded, err := json.Marshal(patterns)
	if err != nil {
		encoded = []byte("[]")
	}
	return strings.Replace(pageScriptTemplate, "__PATTERNS__", string(encoded), 1)
}

// pageMessage is the JSON envelope the injected script relays
type pageMessage struct {
	Type    string            `json:"type"`
	ID      string            `json:"id"`
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
	Message string            `json:"message"`
}
