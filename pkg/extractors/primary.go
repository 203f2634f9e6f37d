package extractors

import (
	"context"

	"github.com/samber/mo"

	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/media"
	"media-resolver-go/pkg/types"
)

// Pass selects how strict an extractor run is.
type Pass string

const (
	// PassStrict requests a concrete format and disables playlist expansion.
	PassStrict Pass = "strict"
	// PassLoose drops the format constraint and flattens playlists.
	PassLoose Pass = "loose"
)

// strictFormat prefers a single mp4 file, then anything playable.
const strictFormat = "best[ext=mp4]/best/bestvideo+bestaudio/bestvideo/best"

const (
	tiktokAPIHostname = "api22-normal-c-useast2a.tiktokv.com"
	tiktokReferer     = "https://www.tiktok.com/"
)

// BuildConfig returns the extractor options for one pass. It is a pure
// function of its inputs.
func BuildConfig(p types.Platform, pass Pass, cookieFile, proxyURL string) types.ExtractorConfig {
	cfg := types.ExtractorConfig{
		Quiet:        true,
		IgnoreErrors: true,
		SkipDownload: true,
		VerifyTLS:    false,
		UserAgent:    media.DefaultUserAgent,
		CookieFile:   cookieFile,
		Proxy:        proxyURL,
		// Instagram carousels are playlists; everything else is one item.
		AllowPlaylist: p == types.PlatformInstagram,
	}

	switch p {
	case types.PlatformTikTok:
		cfg.Impersonation = types.ImpersonateChrome
		cfg.ExtraHeaders = map[string]string{"Referer": tiktokReferer}
		cfg.ExtractorHints = map[string]map[string]string{
			"tiktok": {"api_hostname": tiktokAPIHostname},
		}
	case types.PlatformYouTube:
		cfg.ExtractorHints = map[string]map[string]string{
			"youtube": {"player_client": "android,web"},
		}
	}

	if pass == PassStrict {
		cfg.Format = strictFormat
	} else {
		cfg.AllowPlaylist = true
		cfg.FlatPlaylist = true
	}

	return cfg
}

// ProxyRouter reports the proxy for a target URL.
type ProxyRouter interface {
	ProxyURL(targetURL string) string
}

// Primary runs the strict and loose extractor passes.
type Primary struct {
	extractor interfaces.MetadataExtractor
	proxies   ProxyRouter
	log       *logging.Logger
}

// NewPrimary creates the adapter. proxies may be nil.
func NewPrimary(extractor interfaces.MetadataExtractor, proxies ProxyRouter, log *logging.Logger) *Primary {
	return &Primary{
		extractor: extractor,
		proxies:   proxies,
		log:       log.WithComponent("primary-extractor"),
	}
}

// Extract returns the first metadata document either pass produced.
// Extractor failures are logged and reported as mo.None.
func (e *Primary) Extract(ctx context.Context, sourceURL string, p types.Platform, cookieFile string) (mo.Option[*types.RawMediaInfo], Pass) {
	proxyURL := ""
	if e.proxies != nil {
		proxyURL = e.proxies.ProxyURL(sourceURL)
	}

	log := e.log.WithURL(sourceURL).WithPlatform(string(p))
	for _, pass := range []Pass{PassStrict, PassLoose} {
		info, err := e.extractor.Probe(ctx, sourceURL, BuildConfig(p, pass, cookieFile, proxyURL))
		if err != nil || info == nil {
			log.Info("extractor pass found nothing", "pass", pass, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		log.Debug("extractor pass succeeded", "pass", pass)
		return mo.Some(info), pass
	}
	return mo.None[*types.RawMediaInfo](), ""
}
