// Package hlsproxy implements the core of the proxy: resolving playlist
// references to absolute URLs and re-emitting playlists with every
// segment, key and variant reference routed back through the proxy.
package hlsproxy

import (
	"net/url"
	"regexp"
	"strings"
)

// looseHostPattern matches schemeless host[:port] inputs such as
// "cdn.example.com/live/index.m3u8" or "localhost:8080/seg.ts".
var looseHostPattern = regexp.MustCompile(`^(?:(?:[A-Za-z0-9-]+\.)+[A-Za-z]{2,}|localhost)(:\d+)?(?:/|$)`)

// Resolve turns raw into an absolute http(s) URL. Relative references are
// resolved against base per RFC 3986. A schemeless host[:port]/path input
// with no base gets https inferred, unless it carries an explicit port
// other than 443, in which case http is used. Returns false when raw
// cannot be resolved; it never panics.
func Resolve(raw, base string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return parseAbsolute(raw)
	}

	// Protocol-relative reference.
	if strings.HasPrefix(raw, "//") {
		return parseAbsolute("https:" + raw)
	}

	if base != "" {
		b, err := url.Parse(base)
		if err != nil || !b.IsAbs() {
			return nil, false
		}
		ref, err := url.Parse(raw)
		if err != nil {
			return nil, false
		}
		return normalize(b.ResolveReference(ref))
	}

	if m := looseHostPattern.FindStringSubmatch(raw); m != nil {
		scheme := "https"
		if port := strings.TrimPrefix(m[1], ":"); port != "" && port != "443" {
			scheme = "http"
		}
		return parseAbsolute(scheme + "://" + raw)
	}

	return nil, false
}

func parseAbsolute(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	return normalize(u)
}

func normalize(u *url.URL) (*url.URL, bool) {
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, false
	}
	u.Host = strings.ToLower(u.Host)
	return u, true
}
