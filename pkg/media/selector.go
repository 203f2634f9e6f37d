// Package media holds the pure selection steps of the resolution pipeline:
// carousel reduction, format selection and result normalization.
package media

import (
	"net/url"
	"path"
	"strings"

	"media-resolver-go/pkg/types"
)

// DefaultUserAgent is sent with every resolved URL that carries no
// extractor-supplied headers.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const tiktokReferer = "https://www.tiktok.com/"

var imageExts = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"webp": true,
	"heic": true,
}

// IsImageExt reports whether ext belongs to the fixed image extension set.
func IsImageExt(ext string) bool {
	return imageExts[strings.ToLower(ext)]
}

func realCodec(codec string) bool {
	return codec != "" && codec != "none"
}

// Classify returns image when the video codec is explicitly "none" or the
// extension is an image extension, and video otherwise.
func Classify(info *types.RawMediaInfo) types.MediaType {
	if info.VCodec == "none" || IsImageExt(info.Ext) {
		return types.MediaTypeImage
	}
	return types.MediaTypeVideo
}

// Select recovers a direct URL for a single item. The rules are tried in
// order and each later rule only runs when the earlier ones found nothing:
// the item url, then (for video) a format, then the last thumbnail, then
// the thumbnail field. Thumbnail recoveries always yield an image.
// Unresolved references recover nothing.
func Select(info *types.RawMediaInfo, p types.Platform) (*types.SelectedMedia, bool) {
	if info == nil || info.IsReference() {
		return nil, false
	}

	mediaType := Classify(info)
	directURL := info.URL
	headers := info.HTTPHeaders
	ext := info.Ext

	if directURL == "" && mediaType == types.MediaTypeVideo {
		if f, ok := pickFormat(info.Formats); ok {
			directURL = f.URL
			if len(f.HTTPHeaders) > 0 {
				headers = f.HTTPHeaders
			}
			if ext == "" {
				ext = f.Ext
			}
		}
	}

	if directURL == "" {
		for i := len(info.Thumbnails) - 1; i >= 0; i-- {
			if info.Thumbnails[i].URL != "" {
				directURL = info.Thumbnails[i].URL
				mediaType = types.MediaTypeImage
				break
			}
		}
	}

	if directURL == "" && info.Thumbnail != "" {
		directURL = info.Thumbnail
		mediaType = types.MediaTypeImage
	}

	if directURL == "" {
		return nil, false
	}

	return &types.SelectedMedia{
		URL:       directURL,
		Ext:       NormalizeExt(ext, directURL, mediaType),
		MediaType: mediaType,
		Headers:   CompleteHeaders(headers, p),
		Title:     info.Title,
		Thumbnail: thumbnailOf(info),
		Duration:  info.Duration,
		Filesize:  info.Size(),
	}, true
}

// pickFormat chooses a video format. formats is ordered worst to best.
func pickFormat(formats []types.Format) (types.Format, bool) {
	for i := len(formats) - 1; i >= 0; i-- {
		f := formats[i]
		if f.URL != "" && realCodec(f.VCodec) && f.Ext == "mp4" {
			return f, true
		}
	}
	for i := len(formats) - 1; i >= 0; i-- {
		f := formats[i]
		if f.URL != "" && realCodec(f.VCodec) && realCodec(f.ACodec) {
			return f, true
		}
	}
	for i := len(formats) - 1; i >= 0; i-- {
		if formats[i].URL != "" {
			return formats[i], true
		}
	}
	return types.Format{}, false
}

// NormalizeExt never returns "none". Video URLs whose path contains ".mp4"
// are reported as mp4; images always get an extension from the image set.
func NormalizeExt(ext, directURL string, mediaType types.MediaType) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "none" {
		ext = "jpg"
	}

	if mediaType == types.MediaTypeVideo {
		if strings.Contains(urlPath(directURL), ".mp4") {
			return "mp4"
		}
		if ext == "" {
			return "mp4"
		}
		return ext
	}

	if imageExts[ext] {
		return ext
	}
	if fromPath := PathExt(directURL); imageExts[fromPath] {
		return fromPath
	}
	return "jpg"
}

// CompleteHeaders returns a copy of headers with a User-Agent, plus the
// Referer TikTok requires.
func CompleteHeaders(headers map[string]string, p types.Platform) map[string]string {
	out := make(map[string]string, len(headers)+2)
	for k, v := range headers {
		out[k] = v
	}
	if !hasHeader(out, "User-Agent") {
		out["User-Agent"] = DefaultUserAgent
	}
	if p == types.PlatformTikTok && !hasHeader(out, "Referer") {
		out["Referer"] = tiktokReferer
	}
	return out
}

func hasHeader(headers map[string]string, name string) bool {
	for k, v := range headers {
		if strings.EqualFold(k, name) && v != "" {
			return true
		}
	}
	return false
}

func thumbnailOf(info *types.RawMediaInfo) string {
	if info.Thumbnail != "" {
		return info.Thumbnail
	}
	if n := len(info.Thumbnails); n > 0 {
		return info.Thumbnails[n-1].URL
	}
	return ""
}

// PathExt returns the lower-case extension of the URL path without the dot.
func PathExt(rawURL string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(urlPath(rawURL))), ".")
}

func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}
