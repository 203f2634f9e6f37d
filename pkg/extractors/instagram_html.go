package extractors

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"mvdan.cc/xurls/v2"

	"media-resolver-go/pkg/flaresolverr"
	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/media"
	"media-resolver-go/pkg/types"
	"media-resolver-go/pkg/urlutil"
)

// embeddedURLPattern matches quoted display_url and src values in the JSON
// blobs embedded in post pages.
var embeddedURLPattern = regexp.MustCompile(`"(?:display_url|src)"\s*:\s*"((?:[^"\\]|\\.)+)"`)

var jsonEscapes = strings.NewReplacer(`\/`, `/`, `\u0026`, `&`, `&amp;`, `&`)

// InstagramHTML scrapes media URLs out of the post page.
type InstagramHTML struct {
	*BaseExtractor
	flare  *flaresolverr.Client
	origin string
}

// NewInstagramHTML creates the scraping stage. flare may be nil; when set,
// pages are rendered through it instead of fetched directly.
func NewInstagramHTML(client interfaces.HTTPClient, flare *flaresolverr.Client, log *logging.Logger, timeout time.Duration) *InstagramHTML {
	return &InstagramHTML{
		BaseExtractor: NewBaseExtractor(client, log.WithComponent("instagram-html"), timeout),
		flare:         flare,
		origin:        instagramOrigin,
	}
}

// Name returns the stage name.
func (e *InstagramHTML) Name() string {
	return "instagram-html"
}

// Resolve implements interfaces.FallbackResolver.
func (e *InstagramHTML) Resolve(ctx context.Context, state *interfaces.FallbackState) mo.Option[*types.FallbackMedia] {
	html := state.PageHTML
	if html == "" {
		fetched, err := e.loadPage(ctx, state)
		if err != nil {
			e.log.Warn("failed to load post page", "url", state.SourceURL, "error", err)
			return mo.None[*types.FallbackMedia]()
		}
		html = fetched
		state.PageHTML = fetched
	}

	u, how := ScrapeMediaURL(html, postURL(e.origin, state))
	if u == "" {
		e.log.Debug("no media URL in page", "url", state.SourceURL)
		return mo.None[*types.FallbackMedia]()
	}

	e.log.Debug("scraped media URL", "url", state.SourceURL, "method", how)
	return mo.Some(&types.FallbackMedia{
		Stage: e.Name(),
		URLs:  []string{u},
		Title: pageTitle(html),
	})
}

func (e *InstagramHTML) loadPage(ctx context.Context, state *interfaces.FallbackState) (string, error) {
	target := postURL(e.origin, state)

	if e.flare.IsConfigured() {
		var cookies []*http.Cookie
		if state.Jar != nil {
			if req, err := http.NewRequest(http.MethodGet, target, nil); err == nil {
				cookies = state.Jar.Cookies(req.URL)
			}
		}
		sol, err := e.flare.Get(ctx, target, cookies)
		if err != nil {
			return "", err
		}
		return sol.Response, nil
	}

	p, err := e.fetch(ctx, target, map[string]string{"Accept": "text/html"}, state.Jar)
	if err != nil {
		return "", err
	}
	if p.status != http.StatusOK {
		return "", &statusError{status: p.status}
	}
	return string(p.body), nil
}

type statusError struct{ status int }

func (e *statusError) Error() string {
	return "unexpected status " + strconv.Itoa(e.status)
}

// ScrapeMediaURL finds a CDN media URL in a post page. It tries, in order,
// embedded display_url/src fields, the og:image meta tag (resolved against
// pageURL) and a sweep of every URL in the page. The second result names
// the method that matched.
func ScrapeMediaURL(html, pageURL string) (string, string) {
	if u, ok := lo.Find(embeddedURLs(html), isCDNURL); ok {
		return u, "embedded"
	}
	if u := urlutil.ResolveURL(ogImage(html), pageURL); u != "" {
		return u, "og:image"
	}
	if u, ok := lo.Find(xurls.Strict().FindAllString(jsonEscapes.Replace(html), -1), func(u string) bool {
		return isCDNURL(u) && media.IsImageExt(media.PathExt(u))
	}); ok {
		return u, "sweep"
	}
	return "", ""
}

// embeddedURLs returns every quoted display_url/src value, unescaped.
func embeddedURLs(html string) []string {
	matches := embeddedURLPattern.FindAllStringSubmatch(html, -1)
	return lo.Map(matches, func(m []string, _ int) string {
		return unescapeJSON(m[1])
	})
}

func unescapeJSON(s string) string {
	s = jsonEscapes.Replace(s)
	if unquoted, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return unquoted
	}
	return s
}

func parseDocument(html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	return doc
}

func ogImage(html string) string {
	doc := parseDocument(html)
	if doc == nil {
		return ""
	}
	return strings.TrimSpace(doc.Find(`meta[property="og:image"]`).First().AttrOr("content", ""))
}

func pageTitle(html string) string {
	doc := parseDocument(html)
	if doc == nil {
		return ""
	}
	if t := doc.Find(`meta[property="og:title"]`).First().AttrOr("content", ""); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

var _ interfaces.FallbackResolver = (*InstagramHTML)(nil)
