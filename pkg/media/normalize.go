package media

import (
	"strings"
	"unicode"

	"github.com/samber/lo"

	"media-resolver-go/pkg/types"
)

const (
	maxTitleLength = 100
	defaultTitle   = "Media"
)

var instagramHeaders = map[string]string{
	"Referer": "https://www.instagram.com/",
}

// SanitizeTitle keeps letters, digits, spaces, dashes and underscores,
// truncates to 100 characters and falls back to "Media".
func SanitizeTitle(title string) string {
	kept := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			return r
		}
		return -1
	}, title)

	if runes := []rune(kept); len(runes) > maxTitleLength {
		kept = string(runes[:maxTitleLength])
	}

	kept = strings.TrimSpace(kept)
	if kept == "" {
		return defaultTitle
	}
	return kept
}

// FromFallback converts URLs recovered by a platform fallback stage into
// selected items. Each URL is classified by its path.
func FromFallback(fb *types.FallbackMedia, p types.Platform) []*types.SelectedMedia {
	var headers map[string]string
	if p == types.PlatformInstagram {
		headers = instagramHeaders
	}

	return lo.FilterMap(lo.Uniq(fb.URLs), func(u string, _ int) (*types.SelectedMedia, bool) {
		if u == "" {
			return nil, false
		}
		mediaType := types.MediaTypeImage
		if strings.Contains(urlPath(u), ".mp4") {
			mediaType = types.MediaTypeVideo
		}
		return &types.SelectedMedia{
			URL:       u,
			Ext:       NormalizeExt(PathExt(u), u, mediaType),
			MediaType: mediaType,
			Headers:   CompleteHeaders(headers, p),
			Title:     fb.Title,
		}, true
	})
}

// Normalize assembles the response from selected items. The first item
// provides the metadata; every item contributes to media_urls.
func Normalize(items []*types.SelectedMedia, source types.Platform) (*types.ResolvedMedia, error) {
	if len(items) == 0 {
		return nil, types.ErrNoDirectURL
	}
	first := items[0]

	return &types.ResolvedMedia{
		Status:    types.StatusSuccess,
		Title:     SanitizeTitle(first.Title),
		DirectURL: first.URL,
		MediaURLs: lo.Map(items, func(s *types.SelectedMedia, _ int) string { return s.URL }),
		Ext:       first.Ext,
		MediaType: first.MediaType,
		Headers:   CompleteHeaders(first.Headers, source),
		Thumbnail: first.Thumbnail,
		Source:    source,
		Duration:  first.Duration,
		Filesize:  first.Filesize,
	}, nil
}
