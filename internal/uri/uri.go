// Package uri provides the one piece of URI handling this module needs:
// extracting the scheme that selects a transport plugin (spec §3, "URI —
// scheme:address").
package uri

import "strings"

// SplitScheme extracts the scheme of a "scheme:address" URI, splitting on
// the first colon only, matching the original's uri.split(":", 1)) so
// addresses containing colons (e.g. "ws://host:1234") survive intact.
func SplitScheme(u string) (scheme, rest string, ok bool) {
	idx := strings.Index(u, ":")
	if idx < 0 {
		return "", "", false
	}
	return u[:idx], u[idx+1:], true
}
