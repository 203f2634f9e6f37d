// Package platform classifies source URLs by the social platform serving them.
//
// Classification is heuristic: it looks for well-known substrings in the URL
// host and is not an authoritative ownership check.
package platform

import (
	"net/url"
	"strings"

	"media-resolver-go/pkg/types"
)

type rule struct {
	platform types.Platform
	match    func(host string) bool
}

func contains(needles ...string) func(string) bool {
	return func(host string) bool {
		for _, n := range needles {
			if strings.Contains(host, n) {
				return true
			}
		}
		return false
	}
}

func isHost(domain string) func(string) bool {
	return func(host string) bool {
		return host == domain || strings.HasSuffix(host, "."+domain)
	}
}

// Order matters: the first matching rule wins.
var rules = []rule{
	{types.PlatformInstagram, contains("instagram", "instagr.am")},
	{types.PlatformTikTok, contains("tiktok")},
	{types.PlatformFacebook, contains("facebook", "fb.watch")},
	{types.PlatformYouTube, contains("youtube", "youtu.be")},
	{types.PlatformTwitter, func(host string) bool { return contains("twitter")(host) || isHost("x.com")(host) }},
}

// Detect returns the platform for rawURL, or PlatformUnknown.
func Detect(rawURL string) types.Platform {
	host := hostOf(rawURL)
	if host == "" {
		return types.PlatformUnknown
	}
	for _, r := range rules {
		if r.match(host) {
			return r.platform
		}
	}
	return types.PlatformUnknown
}

// IsGenericURL reports whether rawURL is the bare homepage of a known
// platform, which never identifies a single post.
func IsGenericURL(rawURL string) bool {
	if Detect(rawURL) == types.PlatformUnknown {
		return false
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	return strings.Trim(u.Path, "/") == ""
}

// shortcodeMarkers are the path segments followed by an Instagram post id.
var shortcodeMarkers = map[string]bool{
	"p":     true,
	"reel":  true,
	"reels": true,
	"tv":    true,
}

// Shortcode extracts the Instagram post identifier from a /p/ or /reel/ URL.
func Shortcode(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if shortcodeMarkers[segments[i]] && segments[i+1] != "" {
			return segments[i+1], true
		}
	}
	return "", false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
