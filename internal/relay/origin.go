package relay

import (
	"net/url"
	"strings"
)

// NormalizeOrigin reduces a URL to its scheme://host[:port] origin.
// Returns "" for anything that does not parse as an absolute URL.
func NormalizeOrigin(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}
