// Package interfaces defines the core abstractions for the resolution pipeline.
// The primary extractor and each platform fallback stage implement these
// interfaces, so tests can swap any of them for a fake.
package interfaces

import (
	"context"
	"net/http"

	"github.com/samber/mo"

	"media-resolver-go/pkg/types"
)

// MetadataExtractor runs the external metadata extractor for one URL.
type MetadataExtractor interface {
	// Probe returns the decoded metadata document, or an error when the
	// extractor failed or printed nothing usable.
	Probe(ctx context.Context, url string, cfg types.ExtractorConfig) (*types.RawMediaInfo, error)
}

// MediaDownloader fetches media to local disk (legacy file-serving mode).
type MediaDownloader interface {
	// Download stores the media for url at outputTemplate and returns the
	// metadata of what was written.
	Download(ctx context.Context, url, outputTemplate string, cfg types.ExtractorConfig) (*types.RawMediaInfo, error)
}

// FallbackResolver is one platform-specific recovery stage.
//
// To add a new stage:
// 1. Create a new file in pkg/extractors/
// 2. Implement this interface
// 3. Register it for its platform in the FallbackRegistry
type FallbackResolver interface {
	// Name returns a unique identifier used in logs and metrics.
	Name() string

	// Resolve tries to recover media for the request. mo.None means the
	// stage found nothing; the next stage then runs.
	Resolve(ctx context.Context, state *FallbackState) mo.Option[*types.FallbackMedia]
}

// FallbackState is shared by the stages of a single resolution call.
type FallbackState struct {
	SourceURL string
	Shortcode string
	Jar       http.CookieJar // provisioned cookies, nil when none

	// PageHTML is set by a stage that received an HTML page where it
	// expected an API payload, for later stages to reuse.
	PageHTML string
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Registry is a generic interface for component registries.
type Registry[K comparable, T any] interface {
	// Register adds a component under key.
	Register(key K, component T)

	// Get returns the components registered for key, in order.
	Get(key K) []T
}
