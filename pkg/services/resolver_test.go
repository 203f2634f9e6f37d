package services

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/samber/mo"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"media-resolver-go/pkg/config"
	"media-resolver-go/pkg/cookies"
	"media-resolver-go/pkg/extractors"
	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/metrics"
	"media-resolver-go/pkg/registry"
	"media-resolver-go/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const cookieDir = "/tmp/cookies"

var cookieBlob = base64.StdEncoding.EncodeToString([]byte(
	".instagram.com\tTRUE\t/\tTRUE\t1999999999\tsessionid\tabc\n"))

// fakeExtractor returns canned documents and records whether the cookie
// file existed while it ran.
type fakeExtractor struct {
	fs      afero.Fs
	results []*types.RawMediaInfo
	err     error

	mu         sync.Mutex
	calls      int
	cookieSeen []string
}

func (f *fakeExtractor) Probe(_ context.Context, _ string, cfg types.ExtractorConfig) (*types.RawMediaInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cfg.CookieFile != "" {
		if ok, _ := afero.Exists(f.fs, cfg.CookieFile); ok {
			f.cookieSeen = append(f.cookieSeen, cfg.CookieFile)
		}
	}
	i := f.calls
	f.calls++
	if i < len(f.results) {
		return f.results[i], f.err
	}
	return nil, f.err
}

type fakeStage struct {
	name   string
	result *types.FallbackMedia
	calls  int
	state  *interfaces.FallbackState
}

func (s *fakeStage) Name() string { return s.name }

func (s *fakeStage) Resolve(_ context.Context, state *interfaces.FallbackState) mo.Option[*types.FallbackMedia] {
	s.calls++
	s.state = state
	if s.result == nil {
		return mo.None[*types.FallbackMedia]()
	}
	return mo.Some(s.result)
}

type fixture struct {
	fs        afero.Fs
	extractor *fakeExtractor
	fallbacks *registry.FallbackRegistry
	resolver  *Resolver
}

func newFixture(policy config.CarouselPolicy, results ...*types.RawMediaInfo) *fixture {
	log := logging.New("error", false, io.Discard)
	fs := afero.NewMemMapFs()
	ext := &fakeExtractor{fs: fs, results: results}
	fallbacks := registry.NewFallbackRegistry()

	return &fixture{
		fs:        fs,
		extractor: ext,
		fallbacks: fallbacks,
		resolver: NewResolver(
			cookies.NewProvisioner(fs, cookieDir, "", log),
			extractors.NewPrimary(ext, nil, log),
			fallbacks,
			policy,
			metrics.New(),
			log,
		),
	}
}

func (f *fixture) cookieFiles(t *testing.T) []string {
	t.Helper()
	files, err := afero.Glob(f.fs, cookieDir+"/cookies-*.txt")
	require.NoError(t, err)
	return files
}

func TestResolve_InvalidURL(t *testing.T) {
	f := newFixture(config.CarouselAll)

	for _, u := range []string{"ftp://example.com/x", "example.com/video", "", "https://exa mple.com/v"} {
		_, err := f.resolver.Resolve(context.Background(), types.ResolutionRequest{SourceURL: u})
		require.Error(t, err, u)
		assert.ErrorIs(t, err, types.ErrInvalidURL, u)
	}
	assert.Zero(t, f.extractor.calls)
}

func TestResolve_GenericURL(t *testing.T) {
	f := newFixture(config.CarouselAll)

	_, err := f.resolver.Resolve(context.Background(), types.ResolutionRequest{SourceURL: "https://www.instagram.com"})
	assert.ErrorIs(t, err, types.ErrGenericURL)
	assert.Equal(t, types.ErrGenericURL.Error(), types.Detail(err))
	assert.Zero(t, f.extractor.calls, "no extractor call for a homepage")
}

func TestResolve_SingleVideo(t *testing.T) {
	f := newFixture(config.CarouselAll, &types.RawMediaInfo{
		Title:  "My clip!",
		URL:    "https://cdn.example.com/v.mp4",
		Ext:    "mp4",
		VCodec: "h264",
	})

	got, err := f.resolver.Resolve(context.Background(), types.ResolutionRequest{SourceURL: "https://www.youtube.com/watch?v=abc"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, got.Status)
	assert.Equal(t, "My clip", got.Title)
	assert.Equal(t, "https://cdn.example.com/v.mp4", got.DirectURL)
	assert.Equal(t, []string{got.DirectURL}, got.MediaURLs)
	assert.Equal(t, types.MediaTypeVideo, got.MediaType)
	assert.Equal(t, types.PlatformYouTube, got.Source)
	assert.NotEmpty(t, got.Headers["User-Agent"])
}

func TestResolve_TikTokFormats(t *testing.T) {
	f := newFixture(config.CarouselAll, &types.RawMediaInfo{
		Title: "dance",
		Formats: []types.Format{
			{URL: "https://v16.tiktokcdn.com/a.mp4", Ext: "mp4", VCodec: "h264", ACodec: "aac"},
		},
	})

	got, err := f.resolver.Resolve(context.Background(), types.ResolutionRequest{SourceURL: "https://www.tiktok.com/@u/video/1"})
	require.NoError(t, err)
	assert.Equal(t, "https://v16.tiktokcdn.com/a.mp4", got.DirectURL)
	assert.Equal(t, "mp4", got.Ext)
	assert.Equal(t, "https://www.tiktok.com/", got.Headers["Referer"])
}

func TestResolve_CarouselAll(t *testing.T) {
	f := newFixture(config.CarouselAll, &types.RawMediaInfo{
		Title: "album",
		Entries: []*types.RawMediaInfo{
			{URL: "https://scontent.cdninstagram.com/1.jpg", Ext: "jpg"},
			{URL: "https://scontent.cdninstagram.com/2.jpg", Ext: "jpg"},
			{URL: "https://scontent.cdninstagram.com/3.mp4", Ext: "mp4", VCodec: "h264"},
		},
	})

	got, err := f.resolver.Resolve(context.Background(), types.ResolutionRequest{SourceURL: "https://www.instagram.com/p/ABC/"})
	require.NoError(t, err)
	require.Len(t, got.MediaURLs, 3)
	assert.Equal(t, got.MediaURLs[0], got.DirectURL)
	assert.Equal(t, types.MediaTypeImage, got.MediaType)
	assert.Equal(t, "album", got.Title)
}

func TestResolve_NoInfoNoFallback(t *testing.T) {
	f := newFixture(config.CarouselAll)
	f.extractor.err = errors.New("Unsupported URL")

	_, err := f.resolver.Resolve(context.Background(), types.ResolutionRequest{SourceURL: "https://example.com/video123"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNoInfo)
	assert.Equal(t, 2, f.extractor.calls, "strict and loose passes")
}

func TestResolve_EmptyCarousel(t *testing.T) {
	f := newFixture(config.CarouselFirst, &types.RawMediaInfo{Entries: []*types.RawMediaInfo{}})

	_, err := f.resolver.Resolve(context.Background(), types.ResolutionRequest{SourceURL: "https://www.facebook.com/watch/?v=1"})
	assert.ErrorIs(t, err, types.ErrEmptyCarousel)
}

func TestResolve_FallbackChain(t *testing.T) {
	f := newFixture(config.CarouselAll)
	api := &fakeStage{name: "api"}
	html := &fakeStage{name: "html", result: &types.FallbackMedia{
		Stage: "html",
		URLs:  []string{"https://scontent.cdninstagram.com/x.jpg"},
		Title: "From page",
	}}
	oembed := &fakeStage{name: "oembed"}
	f.fallbacks.Register(types.PlatformInstagram, api)
	f.fallbacks.Register(types.PlatformInstagram, html)
	f.fallbacks.Register(types.PlatformInstagram, oembed)

	got, err := f.resolver.Resolve(context.Background(), types.ResolutionRequest{
		SourceURL:      "https://www.instagram.com/reel/XYZ/",
		CredentialBlob: cookieBlob,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://scontent.cdninstagram.com/x.jpg", got.DirectURL)
	assert.Equal(t, types.MediaTypeImage, got.MediaType)
	assert.Equal(t, "jpg", got.Ext)
	assert.Equal(t, "From page", got.Title)
	assert.Equal(t, "https://www.instagram.com/", got.Headers["Referer"])

	assert.Equal(t, 1, api.calls)
	assert.Equal(t, 1, html.calls)
	assert.Zero(t, oembed.calls, "chain stops at first success")
	assert.Equal(t, "XYZ", api.state.Shortcode)
	assert.NotNil(t, api.state.Jar)

	assert.Len(t, f.extractor.cookieSeen, 2, "cookie file exists while extracting")
	assert.Empty(t, f.cookieFiles(t), "cookie file removed after success")
}

func TestResolve_FallbackExhausted(t *testing.T) {
	f := newFixture(config.CarouselAll)
	f.fallbacks.Register(types.PlatformInstagram, &fakeStage{name: "api"})
	f.fallbacks.Register(types.PlatformInstagram, &fakeStage{name: "oembed"})

	_, err := f.resolver.Resolve(context.Background(), types.ResolutionRequest{
		SourceURL:      "https://www.instagram.com/p/ABC/",
		CredentialBlob: cookieBlob,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNoDirectURL)
	assert.Equal(t, types.ErrNoDirectURL.Error(), types.Detail(err))
	assert.Empty(t, f.cookieFiles(t), "cookie file removed after failure")
}

func TestResolve_UnrecoverableItemUsesFallback(t *testing.T) {
	f := newFixture(config.CarouselAll, &types.RawMediaInfo{Title: "nothing here"})
	stage := &fakeStage{name: "oembed", result: &types.FallbackMedia{URLs: []string{"https://scontent.cdninstagram.com/t.jpg"}}}
	f.fallbacks.Register(types.PlatformInstagram, stage)

	got, err := f.resolver.Resolve(context.Background(), types.ResolutionRequest{SourceURL: "https://www.instagram.com/p/ABC/"})
	require.NoError(t, err)
	assert.Equal(t, 1, stage.calls)
	assert.Equal(t, "Media", got.Title)
}

func flatPlaylist(urls ...string) *types.RawMediaInfo {
	info := &types.RawMediaInfo{Type: "playlist", Entries: []*types.RawMediaInfo{}}
	for _, u := range urls {
		info.Entries = append(info.Entries, &types.RawMediaInfo{Type: "url", URL: u})
	}
	return info
}

func TestResolve_FlatPlaylistIsNotResolved(t *testing.T) {
	f := newFixture(config.CarouselAll, nil, flatPlaylist("https://www.youtube.com/watch?v=a", "https://www.youtube.com/watch?v=b"))

	_, err := f.resolver.Resolve(context.Background(), types.ResolutionRequest{SourceURL: "https://www.youtube.com/playlist?list=PL1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNoDirectURL)
}

func TestResolve_FlatPlaylistUsesFallback(t *testing.T) {
	f := newFixture(config.CarouselAll, nil, flatPlaylist("https://www.instagram.com/p/ABC/"))
	stage := &fakeStage{name: "api", result: &types.FallbackMedia{URLs: []string{"https://scontent.cdninstagram.com/a.jpg"}}}
	f.fallbacks.Register(types.PlatformInstagram, stage)

	got, err := f.resolver.Resolve(context.Background(), types.ResolutionRequest{SourceURL: "https://www.instagram.com/p/ABC/"})
	require.NoError(t, err)
	assert.Equal(t, 1, stage.calls)
	assert.Equal(t, "https://scontent.cdninstagram.com/a.jpg", got.DirectURL)
}

func TestResolve_NoCredentialWithoutBlob(t *testing.T) {
	f := newFixture(config.CarouselAll, &types.RawMediaInfo{URL: "https://cdn.example.com/v.mp4"})

	_, err := f.resolver.Resolve(context.Background(), types.ResolutionRequest{SourceURL: "https://x.com/u/status/1"})
	require.NoError(t, err)
	assert.Empty(t, f.extractor.cookieSeen)
	assert.Empty(t, f.cookieFiles(t))
}
