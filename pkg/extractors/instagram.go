package extractors

import (
	"bytes"
	"net/url"
	"strings"
	"time"

	"media-resolver-go/pkg/flaresolverr"
	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/registry"
	"media-resolver-go/pkg/types"
)

const (
	instagramOrigin = "https://www.instagram.com"
	// instagramAppID is the app identifier the web client sends.
	instagramAppID = "936619743392459"
)

// RegisterInstagram registers the Instagram fallback chain in run order:
// API replay, HTML scraping, oEmbed.
func RegisterInstagram(
	reg *registry.FallbackRegistry,
	client interfaces.HTTPClient,
	flare *flaresolverr.Client,
	log *logging.Logger,
	timeout time.Duration,
) {
	reg.Register(types.PlatformInstagram, NewInstagramAPI(client, log, timeout))
	reg.Register(types.PlatformInstagram, NewInstagramHTML(client, flare, log, timeout))
	reg.Register(types.PlatformInstagram, NewInstagramOEmbed(client, log, timeout))
}

// postURL is the canonical page of the post, or the source URL when the
// shortcode is unknown.
func postURL(origin string, state *interfaces.FallbackState) string {
	if state.Shortcode == "" {
		return state.SourceURL
	}
	return origin + "/p/" + state.Shortcode + "/"
}

// isCDNURL reports whether u is served from Instagram's media CDN.
func isCDNURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.HasSuffix(host, "cdninstagram.com") || strings.HasSuffix(host, "fbcdn.net")
}

// looksLikeHTML reports whether a reply is a page rather than an API payload.
func looksLikeHTML(p *page) bool {
	if strings.Contains(strings.ToLower(p.contentType), "text/html") {
		return true
	}
	trimmed := bytes.TrimSpace(p.body)
	return bytes.HasPrefix(trimmed, []byte("<"))
}
