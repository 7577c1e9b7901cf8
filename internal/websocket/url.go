package websocket

import (
	"fmt"
	"net/url"
)

// ValidateStreamURL checks that a signed URL can be dialed.
func ValidateStreamURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid stream URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid stream URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("stream URL has no host")
	}
	return nil
}

// redactQuery strips the query string, which carries the signature of
// signed URLs, before a URL is logged.
func redactQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}
