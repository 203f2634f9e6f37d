package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-resolver-go/pkg/appctx"
	"media-resolver-go/pkg/config"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/metrics"
	"media-resolver-go/pkg/services"
	"media-resolver-go/pkg/types"
)

type fakeResolver struct {
	got    types.ResolutionRequest
	result *types.ResolvedMedia
	err    error
}

func (f *fakeResolver) Resolve(_ context.Context, req types.ResolutionRequest) (*types.ResolvedMedia, error) {
	f.got = req
	return f.result, f.err
}

type fakeDownloads struct {
	fs      afero.Fs
	baseURL string
	removed []string
}

func (f *fakeDownloads) Fetch(_ context.Context, req types.ResolutionRequest, baseURL string) (*types.ResolvedMedia, error) {
	f.baseURL = baseURL
	return &types.ResolvedMedia{Status: types.StatusSuccess, DirectURL: baseURL + "/get_file/a.mp4"}, nil
}

func (f *fakeDownloads) Open(name string) (*services.StoredFile, error) {
	file, err := f.fs.Open("/" + name)
	if err != nil {
		return nil, types.ErrFileNotFound
	}
	fi, _ := file.Stat()
	return &services.StoredFile{File: file, Name: name, Size: fi.Size(), ModTime: fi.ModTime(), ContentType: "video/mp4"}, nil
}

func (f *fakeDownloads) Remove(name string) {
	f.removed = append(f.removed, name)
}

func newTestMux(cfg *config.Config, resolver appctx.Resolver, downloads appctx.Downloads) *http.ServeMux {
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = 10
	}
	log := logging.New("error", false, io.Discard)
	ctx := appctx.New(cfg, log).WithResolver(resolver).WithMetrics(metrics.New())
	if downloads != nil {
		ctx.WithDownloads(downloads)
	}
	mux := http.NewServeMux()
	NewHandlers(ctx).RegisterRoutes(mux)
	return mux
}

func postExtract(mux http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/extract", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndIndex(t *testing.T) {
	mux := newTestMux(&config.Config{}, &fakeResolver{}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","message":"Server is running"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"media-resolver"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExtract_Success(t *testing.T) {
	resolver := &fakeResolver{result: &types.ResolvedMedia{
		Status:    types.StatusSuccess,
		Title:     "Media",
		DirectURL: "https://cdn.example.com/v.mp4",
		MediaURLs: []string{"https://cdn.example.com/v.mp4"},
		Ext:       "mp4",
		MediaType: types.MediaTypeVideo,
		Headers:   map[string]string{"User-Agent": "ua"},
	}}
	mux := newTestMux(&config.Config{}, resolver, nil)

	rec := postExtract(mux, `{"url":"https://www.youtube.com/watch?v=1","cookies":"Zm9v"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://www.youtube.com/watch?v=1", resolver.got.SourceURL)
	assert.Equal(t, "Zm9v", resolver.got.CredentialBlob)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "https://cdn.example.com/v.mp4", body["direct_url"])
	assert.Equal(t, "video", body["media_type"])
	assert.NotContains(t, body, "thumbnail", "empty optional fields are omitted")
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   string
		detail string
	}{
		{
			name:   "generic URL",
			err:    types.NewResolveError(types.ErrGenericURL, "validate", nil),
			body:   `{"url":"https://www.instagram.com"}`,
			detail: types.ErrGenericURL.Error(),
		},
		{
			name:   "no info hides cause",
			err:    types.NewResolveError(types.ErrNoInfo, "extract", io.ErrUnexpectedEOF),
			body:   `{"url":"https://example.com/video123"}`,
			detail: types.ErrNoInfo.Error(),
		},
		{
			name:   "malformed body",
			body:   `{"url":`,
			detail: types.ErrInvalidURL.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(&config.Config{}, &fakeResolver{err: tt.err}, nil)
			rec := postExtract(mux, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"detail":`+string(mustJSON(t, tt.detail))+`}`, rec.Body.String())
		})
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestExtract_RateLimited(t *testing.T) {
	resolver := &fakeResolver{result: &types.ResolvedMedia{Status: types.StatusSuccess}}
	mux := newTestMux(&config.Config{RateLimitPerMinute: 1}, resolver, nil)

	assert.Equal(t, http.StatusOK, postExtract(mux, `{"url":"https://x.com/a/status/1"}`).Code)

	rec := postExtract(mux, `{"url":"https://x.com/a/status/1"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
}

func TestExtract_DownloadMode(t *testing.T) {
	downloads := &fakeDownloads{fs: afero.NewMemMapFs()}
	mux := newTestMux(&config.Config{}, &fakeResolver{}, downloads)

	req := httptest.NewRequest(http.MethodPost, "http://resolver.local:8000/extract", strings.NewReader(`{"url":"https://www.tiktok.com/@u/video/1"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://resolver.local:8000", downloads.baseURL)

	mux = newTestMux(&config.Config{BaseURL: "https://media.example.com"}, &fakeResolver{}, downloads)
	postExtract(mux, `{"url":"https://www.tiktok.com/@u/video/1"}`)
	assert.Equal(t, "https://media.example.com", downloads.baseURL)
}

func TestGetFile(t *testing.T) {
	downloads := &fakeDownloads{fs: afero.NewMemMapFs()}
	require.NoError(t, afero.WriteFile(downloads.fs, "/clip.mp4", []byte("video-bytes"), 0644))
	mux := newTestMux(&config.Config{}, &fakeResolver{}, downloads)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/get_file/clip.mp4", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "video-bytes", rec.Body.String())
	assert.Equal(t, []string{"clip.mp4"}, downloads.removed)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/get_file/missing.mp4", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail":"File not found."}`, rec.Body.String())
}

func TestGetFile_DisabledWithoutDownloadMode(t *testing.T) {
	mux := newTestMux(&config.Config{}, &fakeResolver{}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/get_file/clip.mp4", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
