package extractors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/samber/mo"

	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/types"
)

const instagramOEmbedEndpoint = "https://api.instagram.com/oembed/"

// InstagramOEmbed asks the public oEmbed endpoint for the post thumbnail.
// It is the last stage and never sends cookies.
type InstagramOEmbed struct {
	*BaseExtractor
	endpoint string
	origin   string
}

// NewInstagramOEmbed creates the oEmbed stage.
func NewInstagramOEmbed(client interfaces.HTTPClient, log *logging.Logger, timeout time.Duration) *InstagramOEmbed {
	return &InstagramOEmbed{
		BaseExtractor: NewBaseExtractor(client, log.WithComponent("instagram-oembed"), timeout),
		endpoint:      instagramOEmbedEndpoint,
		origin:        instagramOrigin,
	}
}

// Name returns the stage name.
func (e *InstagramOEmbed) Name() string {
	return "instagram-oembed"
}

type oembedReply struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Resolve implements interfaces.FallbackResolver.
func (e *InstagramOEmbed) Resolve(ctx context.Context, state *interfaces.FallbackState) mo.Option[*types.FallbackMedia] {
	endpoint := e.endpoint + "?url=" + url.QueryEscape(postURL(e.origin, state))

	p, err := e.fetch(ctx, endpoint, map[string]string{"Accept": "application/json"}, nil)
	if err != nil {
		e.log.Warn("oembed request failed", "url", state.SourceURL, "error", err)
		return mo.None[*types.FallbackMedia]()
	}
	if p.status != http.StatusOK {
		e.log.Debug("oembed request rejected", "url", state.SourceURL, "status", p.status)
		return mo.None[*types.FallbackMedia]()
	}

	var reply oembedReply
	if err := json.Unmarshal(p.body, &reply); err != nil {
		e.log.Warn("failed to parse oembed reply", "url", state.SourceURL, "error", err)
		return mo.None[*types.FallbackMedia]()
	}
	if reply.ThumbnailURL == "" {
		return mo.None[*types.FallbackMedia]()
	}

	title := reply.Title
	if title == "" {
		title = reply.AuthorName
	}
	return mo.Some(&types.FallbackMedia{
		Stage: e.Name(),
		URLs:  []string{reply.ThumbnailURL},
		Title: title,
	})
}

var _ interfaces.FallbackResolver = (*InstagramOEmbed)(nil)
