package extractors

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/samber/lo"
	"github.com/samber/mo"

	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/types"
)

// InstagramAPI replays the web client's post-detail request.
type InstagramAPI struct {
	*BaseExtractor
	origin string
}

// NewInstagramAPI creates the API replay stage.
func NewInstagramAPI(client interfaces.HTTPClient, log *logging.Logger, timeout time.Duration) *InstagramAPI {
	return &InstagramAPI{
		BaseExtractor: NewBaseExtractor(client, log.WithComponent("instagram-api"), timeout),
		origin:        instagramOrigin,
	}
}

// Name returns the stage name.
func (e *InstagramAPI) Name() string {
	return "instagram-api"
}

type candidate struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type apiItem struct {
	ImageVersions2 struct {
		Candidates []candidate `json:"candidates"`
	} `json:"image_versions2"`
	VideoVersions []candidate `json:"video_versions"`
	CarouselMedia []apiItem   `json:"carousel_media"`
	Caption       *struct {
		Text string `json:"text"`
	} `json:"caption"`
}

type graphMedia struct {
	DisplayURL string `json:"display_url"`
	VideoURL   string `json:"video_url"`
	IsVideo    bool   `json:"is_video"`
	Children   struct {
		Edges []graphEdge `json:"edges"`
	} `json:"edge_sidecar_to_children"`
	Caption struct {
		Edges []struct {
			Node struct {
				Text string `json:"text"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_media_to_caption"`
}

type graphEdge struct {
	Node graphMedia `json:"node"`
}

type apiPayload struct {
	Items   []apiItem `json:"items"`
	GraphQL struct {
		ShortcodeMedia *graphMedia `json:"shortcode_media"`
	} `json:"graphql"`
}

// Resolve implements interfaces.FallbackResolver.
func (e *InstagramAPI) Resolve(ctx context.Context, state *interfaces.FallbackState) mo.Option[*types.FallbackMedia] {
	if state.Shortcode == "" {
		e.log.Debug("no shortcode in URL", "url", state.SourceURL)
		return mo.None[*types.FallbackMedia]()
	}

	endpoint := e.origin + "/p/" + state.Shortcode + "/?__a=1&__d=dis"
	headers := map[string]string{
		"X-IG-App-ID":      instagramAppID,
		"X-Requested-With": "XMLHttpRequest",
		"Accept":           "application/json, text/html;q=0.9",
		"Referer":          postURL(e.origin, state),
	}

	p, err := e.fetch(ctx, endpoint, headers, state.Jar)
	if err != nil {
		e.log.Warn("api request failed", "shortcode", state.Shortcode, "error", err)
		return mo.None[*types.FallbackMedia]()
	}

	if looksLikeHTML(p) {
		e.log.Debug("api replied with a page", "shortcode", state.Shortcode, "status", p.status)
		state.PageHTML = string(p.body)
		return mo.None[*types.FallbackMedia]()
	}
	if p.status != http.StatusOK {
		e.log.Warn("api request rejected", "shortcode", state.Shortcode, "status", p.status)
		return mo.None[*types.FallbackMedia]()
	}

	var payload apiPayload
	if err := json.Unmarshal(p.body, &payload); err != nil {
		e.log.Warn("failed to parse api reply", "shortcode", state.Shortcode, "error", err)
		return mo.None[*types.FallbackMedia]()
	}

	result := payload.media()
	if len(result.URLs) == 0 {
		e.log.Debug("api reply had no media", "shortcode", state.Shortcode)
		return mo.None[*types.FallbackMedia]()
	}
	result.Stage = e.Name()
	return mo.Some(result)
}

func (p apiPayload) media() *types.FallbackMedia {
	if len(p.Items) > 0 {
		item := p.Items[0]
		parts := item.CarouselMedia
		if len(parts) == 0 {
			parts = []apiItem{item}
		}
		result := &types.FallbackMedia{
			URLs: lo.FilterMap(parts, func(it apiItem, _ int) (string, bool) {
				u := it.bestURL()
				return u, u != ""
			}),
		}
		if item.Caption != nil {
			result.Title = item.Caption.Text
		}
		return result
	}

	if m := p.GraphQL.ShortcodeMedia; m != nil {
		nodes := lo.Map(m.Children.Edges, func(e graphEdge, _ int) graphMedia { return e.Node })
		if len(nodes) == 0 {
			nodes = []graphMedia{*m}
		}
		result := &types.FallbackMedia{
			URLs: lo.FilterMap(nodes, func(n graphMedia, _ int) (string, bool) {
				u := n.DisplayURL
				if n.IsVideo && n.VideoURL != "" {
					u = n.VideoURL
				}
				return u, u != ""
			}),
		}
		if len(m.Caption.Edges) > 0 {
			result.Title = m.Caption.Edges[0].Node.Text
		}
		return result
	}

	return &types.FallbackMedia{}
}

// bestURL prefers the widest video rendition, then the widest image.
func (it apiItem) bestURL() string {
	for _, list := range [][]candidate{it.VideoVersions, it.ImageVersions2.Candidates} {
		usable := lo.Filter(list, func(c candidate, _ int) bool { return c.URL != "" })
		if len(usable) == 0 {
			continue
		}
		return lo.MaxBy(usable, func(a, b candidate) bool { return a.Width > b.Width }).URL
	}
	return ""
}

var _ interfaces.FallbackResolver = (*InstagramAPI)(nil)
