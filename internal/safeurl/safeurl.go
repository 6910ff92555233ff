package safeurl

import (
	"fmt"
	"net/url"
	"strings"
)

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https and a host.
// Used to reject file://, ftp://, and other schemes that could lead to SSRF or local file access.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return false
	}
	s := strings.ToLower(parsed.Scheme)
	return s == "http" || s == "https"
}

// CheckPortal accepts a host[:port][/path] with no scheme (http is implied)
// or an http(s) URL.
func CheckPortal(u string) error {
	u = strings.TrimSpace(u)
	if u == "" {
		return fmt.Errorf("portal url is required")
	}
	if !strings.Contains(u, "://") {
		u = "http://" + u
	}
	if !IsHTTPOrHTTPS(u) {
		return fmt.Errorf("portal url must be http or https")
	}
	return nil
}

// CheckOptional accepts an empty string or an http(s) URL. field names the
// value in the error.
func CheckOptional(field, u string) error {
	u = strings.TrimSpace(u)
	if u == "" || IsHTTPOrHTTPS(u) {
		return nil
	}
	return fmt.Errorf("%s must be an http or https url", field)
}
