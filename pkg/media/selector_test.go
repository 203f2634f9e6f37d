package media

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-resolver-go/pkg/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		info     types.RawMediaInfo
		expected types.MediaType
	}{
		{"vcodec none", types.RawMediaInfo{VCodec: "none", Ext: "mp4"}, types.MediaTypeImage},
		{"image ext", types.RawMediaInfo{Ext: "webp"}, types.MediaTypeImage},
		{"upper case image ext", types.RawMediaInfo{Ext: "JPG"}, types.MediaTypeImage},
		{"video", types.RawMediaInfo{VCodec: "h264", Ext: "mp4"}, types.MediaTypeVideo},
		{"unknown codec", types.RawMediaInfo{}, types.MediaTypeVideo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(&tt.info))
		})
	}
}

func TestSelect_RecoveryOrder(t *testing.T) {
	tests := []struct {
		name      string
		info      types.RawMediaInfo
		wantURL   string
		wantType  types.MediaType
		wantFound bool
	}{
		{
			name: "direct url wins over formats",
			info: types.RawMediaInfo{
				URL:     "https://cdn/direct.mp4",
				Formats: []types.Format{{URL: "https://cdn/f.mp4", VCodec: "h264", Ext: "mp4"}},
			},
			wantURL: "https://cdn/direct.mp4", wantType: types.MediaTypeVideo, wantFound: true,
		},
		{
			name: "best mp4 with real video codec",
			info: types.RawMediaInfo{Formats: []types.Format{
				{URL: "https://cdn/low.mp4", VCodec: "h264", Ext: "mp4", Height: 360},
				{URL: "https://cdn/high.mp4", VCodec: "h264", Ext: "mp4", Height: 1080},
				{URL: "https://cdn/high.webm", VCodec: "vp9", ACodec: "opus", Ext: "webm", Height: 1440},
			}},
			wantURL: "https://cdn/high.mp4", wantType: types.MediaTypeVideo, wantFound: true,
		},
		{
			name: "last format with both codecs when no mp4",
			info: types.RawMediaInfo{Formats: []types.Format{
				{URL: "https://cdn/a.webm", VCodec: "vp9", ACodec: "opus", Ext: "webm"},
				{URL: "https://cdn/b.webm", VCodec: "vp9", ACodec: "opus", Ext: "webm"},
				{URL: "https://cdn/c.webm", VCodec: "vp9", ACodec: "none", Ext: "webm"},
			}},
			wantURL: "https://cdn/b.webm", wantType: types.MediaTypeVideo, wantFound: true,
		},
		{
			name: "last format regardless of codecs",
			info: types.RawMediaInfo{Formats: []types.Format{
				{URL: "https://cdn/a.m3u8", Ext: "m3u8"},
				{URL: "https://cdn/b.m3u8", Ext: "m3u8"},
			}},
			wantURL: "https://cdn/b.m3u8", wantType: types.MediaTypeVideo, wantFound: true,
		},
		{
			name: "last thumbnail forces image",
			info: types.RawMediaInfo{
				Ext: "mp4",
				Thumbnails: []types.Thumbnail{
					{URL: "https://cdn/small.jpg"},
					{URL: "https://cdn/large.jpg"},
				},
				Thumbnail: "https://cdn/thumb.jpg",
			},
			wantURL: "https://cdn/large.jpg", wantType: types.MediaTypeImage, wantFound: true,
		},
		{
			name:    "thumbnail field forces image",
			info:    types.RawMediaInfo{Thumbnail: "https://cdn/thumb.png"},
			wantURL: "https://cdn/thumb.png", wantType: types.MediaTypeImage, wantFound: true,
		},
		{
			name: "image items skip format scanning",
			info: types.RawMediaInfo{
				Ext:        "jpg",
				Formats:    []types.Format{{URL: "https://cdn/f.mp4", VCodec: "h264", Ext: "mp4"}},
				Thumbnails: []types.Thumbnail{{URL: "https://cdn/pic.jpg"}},
			},
			wantURL: "https://cdn/pic.jpg", wantType: types.MediaTypeImage, wantFound: true,
		},
		{
			name:      "nothing recoverable",
			info:      types.RawMediaInfo{Title: "empty"},
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, ok := Select(&tt.info, types.PlatformUnknown)
			require.Equal(t, tt.wantFound, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantURL, sel.URL)
			assert.Equal(t, tt.wantType, sel.MediaType)
		})
	}
}

func TestSelect_TikTokFormatScenario(t *testing.T) {
	info := &types.RawMediaInfo{
		Title:  "dance",
		Ext:    "mp4",
		VCodec: "h264",
		Formats: []types.Format{
			{
				URL:         "https://v16.tiktokcdn.com/video/tos/abc.mp4?x=1",
				VCodec:      "h264",
				ACodec:      "aac",
				Ext:         "mp4",
				HTTPHeaders: map[string]string{"User-Agent": "TikTokUA"},
			},
		},
	}

	sel, ok := Select(info, types.PlatformTikTok)
	require.True(t, ok)
	assert.Equal(t, "https://v16.tiktokcdn.com/video/tos/abc.mp4?x=1", sel.URL)
	assert.Equal(t, "mp4", sel.Ext)
	assert.Equal(t, types.MediaTypeVideo, sel.MediaType)
	assert.Equal(t, "TikTokUA", sel.Headers["User-Agent"])
	assert.Equal(t, "https://www.tiktok.com/", sel.Headers["Referer"])
}

func TestNormalizeExt(t *testing.T) {
	tests := []struct {
		name      string
		ext       string
		url       string
		mediaType types.MediaType
		expected  string
	}{
		{"none becomes jpg", "none", "https://cdn/a", types.MediaTypeImage, "jpg"},
		{"none video without mp4 path", "none", "https://cdn/a", types.MediaTypeVideo, "jpg"},
		{"stale video ext with mp4 path", "webm", "https://cdn/v/a.mp4?sig=1", types.MediaTypeVideo, "mp4"},
		{"none video with mp4 path", "none", "https://cdn/a.mp4", types.MediaTypeVideo, "mp4"},
		{"mp4 only in query is ignored", "webm", "https://cdn/a?f=.mp4", types.MediaTypeVideo, "webm"},
		{"empty video ext", "", "https://cdn/a", types.MediaTypeVideo, "mp4"},
		{"image ext kept", "PNG", "https://cdn/a.jpg", types.MediaTypeImage, "png"},
		{"image from path", "mp4", "https://cdn/a.webp", types.MediaTypeImage, "webp"},
		{"image default", "mp4", "https://cdn/a", types.MediaTypeImage, "jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeExt(tt.ext, tt.url, tt.mediaType))
		})
	}
}

func TestCompleteHeaders(t *testing.T) {
	t.Run("default user agent", func(t *testing.T) {
		h := CompleteHeaders(nil, types.PlatformYouTube)
		assert.Equal(t, map[string]string{"User-Agent": DefaultUserAgent}, h)
	})

	t.Run("extractor headers kept", func(t *testing.T) {
		in := map[string]string{"user-agent": "X", "Referer": "https://r/"}
		h := CompleteHeaders(in, types.PlatformTikTok)
		assert.Equal(t, "X", h["user-agent"])
		assert.Equal(t, "https://r/", h["Referer"])
		assert.NotContains(t, h, "User-Agent")
	})

	t.Run("input not mutated", func(t *testing.T) {
		in := map[string]string{}
		CompleteHeaders(in, types.PlatformTikTok)
		assert.Empty(t, in)
	})
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"punctuation stripped", "Hello, World! #fun", "Hello World fun"},
		{"dash and underscore kept", "a-b_c", "a-b_c"},
		{"empty", "", "Media"},
		{"only punctuation", "!!!", "Media"},
		{"unicode letters kept", "Café día", "Café día"},
		{"newlines removed", "line1\nline2", "line1line2"},
		{"truncated", strings.Repeat("a", 150), strings.Repeat("a", 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeTitle(tt.in))
		})
	}
}
