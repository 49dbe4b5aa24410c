package connection

import (
	"fmt"
	"net/url"
	"path"
)

// subscribePath is the server's event subscription endpoint. The topic
// pattern is appended as the final path segments.
const subscribePath = "v1/sys/events/subscribe"

// SubscribeURL builds the WebSocket URL for one topic pattern. The address
// keeps its host and any path prefix; http(s) schemes are mapped to ws(s).
// The json=true query parameter is always set, and the filter expression,
// when present, is URL-encoded into the filter parameter.
func SubscribeURL(addr, pattern, filter string) (string, error) {
	if pattern == "" {
		return "", fmt.Errorf("empty topic pattern")
	}

	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("parse address: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in address %q", u.Scheme, addr)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in address %q", addr)
	}

	u.Path = path.Join("/", u.Path, subscribePath, pattern)

	q := url.Values{}
	q.Set("json", "true")
	if filter != "" {
		q.Set("filter", filter)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
