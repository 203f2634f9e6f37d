// Package urlutil provides URL helpers that preserve original encoding.
package urlutil

import (
	"net/http"
	"net/url"
	"strings"
)

// ResolveURL resolves a potentially relative URL against the page it was
// found on. Absolute and protocol-relative URLs are returned as absolute
// URLs without re-encoding, since CDN signatures break when query strings
// are normalized.
func ResolveURL(ref, pageURL string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}

	base, err := url.Parse(pageURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return ref
	}
	if strings.HasPrefix(ref, "//") {
		return base.Scheme + ":" + ref
	}
	if strings.HasPrefix(ref, "/") {
		return base.Scheme + "://" + base.Host + ref
	}

	dir := base.Path
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		dir = dir[:i+1]
	} else {
		dir = "/"
	}
	for strings.HasPrefix(ref, "../") {
		ref = ref[3:]
		trimmed := strings.TrimSuffix(dir, "/")
		if i := strings.LastIndex(trimmed, "/"); i >= 0 {
			dir = trimmed[:i+1]
		}
	}
	return base.Scheme + "://" + base.Host + dir + strings.TrimPrefix(ref, "./")
}

// RequestBaseURL returns the externally visible scheme://host of r,
// honoring X-Forwarded-Proto and X-Forwarded-Host from a fronting proxy.
func RequestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := firstValue(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		scheme = proto
	}

	host := r.Host
	if fwd := firstValue(r.Header.Get("X-Forwarded-Host")); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host
}

func firstValue(header string) string {
	if i := strings.Index(header, ","); i >= 0 {
		header = header[:i]
	}
	return strings.TrimSpace(header)
}
