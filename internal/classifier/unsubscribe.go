package classifier

import "strings"

// Unsubscribe method types.
const (
	MethodMailto = "mailto"
	MethodHTTP   = "http"
)

// UnsubscribeMethod is one entry of a List-Unsubscribe header.
type UnsubscribeMethod struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// ParseListUnsubscribe parses an RFC 2369 List-Unsubscribe value such as
// "<mailto:unsub@example.com>, <https://example.com/unsub>". Entries with an
// unsupported scheme are skipped.
func ParseListUnsubscribe(header string) []UnsubscribeMethod {
	var methods []UnsubscribeMethod

	for _, part := range strings.Split(header, "<") {
		part = strings.TrimSpace(part)
		end := strings.Index(part, ">")
		if end == -1 {
			continue
		}

		url := strings.TrimSpace(part[:end])
		switch {
		case strings.HasPrefix(url, "mailto:"):
			methods = append(methods, UnsubscribeMethod{Type: MethodMailto, URL: url})
		case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
			methods = append(methods, UnsubscribeMethod{Type: MethodHTTP, URL: url})
		}
	}

	return methods
}

// HTTPUnsubscribeURL returns the first HTTP method of header, if any.
func HTTPUnsubscribeURL(header string) (string, bool) {
	for _, m := range ParseListUnsubscribe(header) {
		if m.Type == MethodHTTP {
			return m.URL, true
		}
	}
	return "", false
}
