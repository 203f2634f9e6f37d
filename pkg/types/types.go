// Package types defines core domain types used throughout the application.
package types

import "encoding/json"

// MediaType identifies the kind of media a resolution produced.
type MediaType string

const (
	MediaTypeVideo MediaType = "video"
	MediaTypeImage MediaType = "image"
)

// Platform is the heuristic classification of a source URL.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformFacebook  Platform = "facebook"
	PlatformYouTube   Platform = "youtube"
	PlatformTwitter   Platform = "twitter"
	PlatformUnknown   Platform = "unknown"
)

// ImpersonationProfile names a browser connection fingerprint for the extractor.
type ImpersonationProfile string

const (
	ImpersonateNone   ImpersonationProfile = ""
	ImpersonateChrome ImpersonationProfile = "chrome"
	ImpersonateSafari ImpersonationProfile = "safari"
	ImpersonateEdge   ImpersonationProfile = "edge"
)

// ResolutionRequest is a single client call. It is not mutated after creation.
type ResolutionRequest struct {
	SourceURL      string `json:"url"`
	CredentialBlob string `json:"cookies,omitempty"` // base64 Netscape cookie jar
}

// ExtractorConfig is the option record handed to the primary extractor.
// A fresh value is built for every pass of every request.
type ExtractorConfig struct {
	Quiet         bool
	IgnoreErrors  bool
	AllowPlaylist bool
	FlatPlaylist  bool
	SkipDownload  bool
	VerifyTLS     bool

	UserAgent      string
	ExtraHeaders   map[string]string
	Impersonation  ImpersonationProfile
	ExtractorHints map[string]map[string]string // extractor key -> arg -> value
	Format         string
	CookieFile     string
	Proxy          string
}

// Format is one encoded variant of a media item.
type Format struct {
	FormatID    string            `json:"format_id"`
	URL         string            `json:"url"`
	Ext         string            `json:"ext"`
	VCodec      string            `json:"vcodec"`
	ACodec      string            `json:"acodec"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Bitrate     float64           `json:"tbr"`
	HTTPHeaders map[string]string `json:"http_headers"`
}

// Thumbnail is one entry of the thumbnails list. Later entries are larger.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// RawMediaInfo is the JSON document printed by the extractor. It describes
// either a single item or a collection through Entries.
type RawMediaInfo struct {
	Type           string            `json:"_type"`
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Ext            string            `json:"ext"`
	VCodec         string            `json:"vcodec"`
	ACodec         string            `json:"acodec"`
	URL            string            `json:"url"`
	WebpageURL     string            `json:"webpage_url"`
	Formats        []Format          `json:"formats"`
	Thumbnail      string            `json:"thumbnail"`
	Thumbnails     []Thumbnail       `json:"thumbnails"`
	Entries        []*RawMediaInfo   `json:"entries"`
	HTTPHeaders    map[string]string `json:"http_headers"`
	Duration       float64           `json:"duration"`
	Filesize       int64             `json:"filesize"`
	FilesizeApprox int64             `json:"filesize_approx"`
	Filename       string            `json:"filename"`
}

// HasEntries reports whether the document is a playlist or carousel.
// An explicit empty "entries" array still counts.
func (r *RawMediaInfo) HasEntries() bool {
	return r.Entries != nil
}

// IsReference reports whether the document only points at another page,
// as flat playlist entries do. Its url is not media.
func (r *RawMediaInfo) IsReference() bool {
	return r.Type == "url" || r.Type == "url_transparent"
}

// Size returns the exact or approximate byte size, whichever is known.
func (r *RawMediaInfo) Size() int64 {
	if r.Filesize > 0 {
		return r.Filesize
	}
	return r.FilesizeApprox
}

// UnmarshalJSON keeps a present-but-empty entries list distinguishable from
// a missing one.
func (r *RawMediaInfo) UnmarshalJSON(data []byte) error {
	type raw RawMediaInfo
	var aux struct {
		raw
		Entries *[]*RawMediaInfo `json:"entries"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = RawMediaInfo(aux.raw)
	if aux.Entries != nil {
		r.Entries = *aux.Entries
		if r.Entries == nil {
			r.Entries = []*RawMediaInfo{}
		}
	}
	return nil
}

// SelectedMedia is what the format selector recovered for one item.
type SelectedMedia struct {
	URL       string
	Ext       string
	MediaType MediaType
	Headers   map[string]string
	Title     string
	Thumbnail string
	Duration  float64
	Filesize  int64
}

// FallbackMedia is the result of a platform fallback stage.
type FallbackMedia struct {
	Stage string
	URLs  []string
	Title string
}

// ResolvedMedia is the response contract of a successful resolution.
type ResolvedMedia struct {
	Status    string            `json:"status"`
	Title     string            `json:"title"`
	DirectURL string            `json:"direct_url"`
	MediaURLs []string          `json:"media_urls"`
	Ext       string            `json:"ext"`
	MediaType MediaType         `json:"media_type"`
	Headers   map[string]string `json:"headers"`
	Thumbnail string            `json:"thumbnail,omitempty"`
	Source    Platform          `json:"source,omitempty"`
	Duration  float64           `json:"duration,omitempty"`
	Filesize  int64             `json:"filesize,omitempty"`
}

// StatusSuccess is the only status value a ResolvedMedia carries.
const StatusSuccess = "success"
