// Package extractors provides the primary extractor adapter and the
// platform fallback stages that run when it comes back empty.
//
// To add a fallback stage:
// 1. Create a new file (e.g., myplatform_api.go)
// 2. Implement the interfaces.FallbackResolver interface
// 3. Register it for its platform (see RegisterInstagram)
package extractors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/media"
)

// maxBodySize bounds how much of a page or API reply is read.
const maxBodySize = 8 << 20

// BaseExtractor provides request plumbing shared by fallback stages.
type BaseExtractor struct {
	client  interfaces.HTTPClient
	log     *logging.Logger
	timeout time.Duration
}

// NewBaseExtractor creates a base whose requests are bounded by timeout.
func NewBaseExtractor(client interfaces.HTTPClient, log *logging.Logger, timeout time.Duration) *BaseExtractor {
	return &BaseExtractor{
		client:  client,
		log:     log,
		timeout: timeout,
	}
}

// DoRequest performs an HTTP request, adding a browser User-Agent when the
// caller did not set one and any cookies of jar that apply to the URL.
func (b *BaseExtractor) DoRequest(ctx context.Context, method, urlStr string, headers map[string]string, jar http.CookieJar) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
	if err != nil {
		return nil, err
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", media.DefaultUserAgent)
	}
	if jar != nil {
		for _, c := range jar.Cookies(req.URL) {
			req.AddCookie(c)
		}
	}

	return b.client.Do(req)
}

// page is a fetched response body.
type page struct {
	status      int
	contentType string
	body        []byte
}

// fetch GETs urlStr within the stage timeout and reads the body.
func (b *BaseExtractor) fetch(ctx context.Context, urlStr string, headers map[string]string, jar http.CookieJar) (*page, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	resp, err := b.DoRequest(ctx, http.MethodGet, urlStr, headers, jar)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	return &page{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
	}, nil
}
