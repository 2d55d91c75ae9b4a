package hlsproxy

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Kind distinguishes master playlists (variant lists) from media playlists
// (segment lists).
type Kind int

const (
	Media Kind = iota
	Master
)

// Classify tags a playlist body as Master or Media. Master playlists carry
// RESOLUTION= attributes on their #EXT-X-STREAM-INF lines; the substring
// test is a heuristic, not a full HLS tag parse.
func Classify(body string) Kind {
	if strings.Contains(body, "RESOLUTION=") {
		return Master
	}
	return Media
}

// Rewriter re-emits playlist bodies with every resolvable reference
// replaced by a proxy URL carrying the original target and the forwarded
// headers as query parameters.
type Rewriter struct {
	ProxyBase     string // public base URL of this proxy, no trailing slash
	PlaylistRoute string // route for nested playlists, e.g. "/m3u8-proxy"
	SegmentRoute  string // route for segments and keys, e.g. "/ts-proxy"
}

// Rewrite walks body line by line and rewrites segment, key and variant
// references. Line order and count are preserved; blank lines pass through
// verbatim. References that cannot be resolved against sourceURL are left
// unchanged rather than failing the whole playlist.
func (rw *Rewriter) Rewrite(body, sourceURL string, headers map[string]string) string {
	kind := Classify(body)

	if headers == nil {
		headers = map[string]string{}
	}
	headersJSON, _ := json.Marshal(headers)
	headersParam := url.QueryEscape(string(headersJSON))

	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if rewritten, ok := rw.rewriteLine(line, kind, sourceURL, headersParam); ok {
			lines[i] = rewritten
		}
	}
	return strings.Join(lines, "\n")
}

// rewriteLine produces the rewritten form of a single playlist line. The
// second return is false when the line passes through unchanged: comments,
// blanks, and any reference that fails to resolve.
func (rw *Rewriter) rewriteLine(line string, kind Kind, sourceURL, headersParam string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", false
	}

	if strings.HasPrefix(trimmed, "#") {
		switch {
		case strings.HasPrefix(trimmed, "#EXT-X-KEY:"), strings.HasPrefix(trimmed, "#EXT-X-SESSION-KEY:"):
			// Keys are opaque byte fetches, never playlists.
			return rw.rewriteURIAttr(line, sourceURL, rw.SegmentRoute, headersParam)
		case kind == Master && strings.HasPrefix(trimmed, "#EXT-X-MEDIA:"):
			// Alternate renditions are themselves playlists.
			return rw.rewriteURIAttr(line, sourceURL, rw.PlaylistRoute, headersParam)
		}
		return "", false
	}

	resolved, ok := Resolve(trimmed, sourceURL)
	if !ok {
		return "", false
	}

	route := rw.SegmentRoute
	if kind == Master {
		route = rw.PlaylistRoute
	}
	return rw.proxyURL(route, resolved, headersParam), true
}

// rewriteURIAttr replaces the quoted URI="..." attribute value inside a tag
// line, leaving the rest of the line intact.
func (rw *Rewriter) rewriteURIAttr(line, sourceURL, route, headersParam string) (string, bool) {
	start := strings.Index(line, `URI="`)
	if start == -1 {
		return "", false
	}
	start += len(`URI="`)
	end := strings.Index(line[start:], `"`)
	if end == -1 {
		return "", false
	}

	original := line[start : start+end]
	resolved, ok := Resolve(original, sourceURL)
	if !ok {
		return "", false
	}
	return line[:start] + rw.proxyURL(route, resolved, headersParam) + line[start+end:], true
}

func (rw *Rewriter) proxyURL(route string, target *url.URL, headersParam string) string {
	return rw.ProxyBase + route + "?url=" + url.QueryEscape(target.String()) + "&headers=" + headersParam
}
