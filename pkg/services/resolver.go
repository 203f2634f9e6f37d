// Package services holds the resolution pipeline and the legacy download
// store built on top of it.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"

	"media-resolver-go/pkg/config"
	"media-resolver-go/pkg/cookies"
	"media-resolver-go/pkg/extractors"
	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/media"
	"media-resolver-go/pkg/metrics"
	"media-resolver-go/pkg/platform"
	"media-resolver-go/pkg/registry"
	"media-resolver-go/pkg/types"
)

// Pipeline stage names used in ResolveError.
const (
	stageValidate = "validate"
	stageExtract  = "extract"
	stageReduce   = "reduce"
	stageSelect   = "select"
	stageFallback = "fallback"
)

// Resolver turns a post URL into direct media URLs.
type Resolver struct {
	cookies   *cookies.Provisioner
	primary   *extractors.Primary
	fallbacks *registry.FallbackRegistry
	policy    config.CarouselPolicy
	metrics   *metrics.Metrics
	log       *logging.Logger
}

// NewResolver creates a resolver. m may be nil.
func NewResolver(
	provisioner *cookies.Provisioner,
	primary *extractors.Primary,
	fallbacks *registry.FallbackRegistry,
	policy config.CarouselPolicy,
	m *metrics.Metrics,
	log *logging.Logger,
) *Resolver {
	return &Resolver{
		cookies:   provisioner,
		primary:   primary,
		fallbacks: fallbacks,
		policy:    policy,
		metrics:   m,
		log:       log.WithComponent("resolver"),
	}
}

// ValidateURL checks the scheme and shape of a source URL.
func ValidateURL(rawURL string) error {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return types.NewResolveError(types.ErrInvalidURL, stageValidate, nil)
	}
	if !govalidator.IsRequestURL(rawURL) {
		return types.NewResolveError(types.ErrInvalidURL, stageValidate, nil)
	}
	if platform.IsGenericURL(rawURL) {
		return types.NewResolveError(types.ErrGenericURL, stageValidate, nil)
	}
	return nil
}

// Resolve runs the pipeline for one request. The provisioned credential
// file is removed before Resolve returns, whatever the outcome.
func (r *Resolver) Resolve(ctx context.Context, req types.ResolutionRequest) (*types.ResolvedMedia, error) {
	sourceURL := strings.TrimSpace(req.SourceURL)
	if err := ValidateURL(sourceURL); err != nil {
		return nil, err
	}

	start := time.Now()
	p := platform.Detect(sourceURL)
	log := r.log.WithURL(sourceURL).WithPlatform(string(p))

	cred := r.cookies.Acquire(req.CredentialBlob)
	defer cred.Release()

	result, outcome, err := r.resolve(ctx, sourceURL, p, cred, log)
	if err != nil {
		outcome = metrics.OutcomeFailed
		log.WithError(err).Warn("resolution failed")
	} else {
		log.Info("resolved",
			"outcome", outcome,
			"media_type", result.MediaType,
			"items", len(result.MediaURLs),
			"duration_ms", time.Since(start).Milliseconds())
	}
	r.metrics.ObserveResolution(string(p), outcome, time.Since(start))
	return result, err
}

func (r *Resolver) resolve(ctx context.Context, sourceURL string, p types.Platform, cred *cookies.Credential, log *logging.Logger) (*types.ResolvedMedia, string, error) {
	info, pass := r.primary.Extract(ctx, sourceURL, p, cred.File())

	var (
		items []*types.SelectedMedia
		cause error
	)
	if doc, ok := info.Get(); ok {
		log.Debug("metadata extracted", "pass", pass, "entries", len(doc.Entries))
		reduced, err := media.Reduce(doc, r.policy)
		if err != nil {
			cause = types.NewResolveError(err, stageReduce, nil)
		} else {
			items = media.SelectAll(reduced, p, doc.Title)
			if len(items) == 0 {
				cause = types.NewResolveError(types.ErrNoDirectURL, stageSelect, nil)
			}
		}
	} else {
		cause = types.NewResolveError(types.ErrNoInfo, stageExtract, nil)
	}

	if len(items) > 0 {
		resolved, err := media.Normalize(items, p)
		return resolved, metrics.OutcomePrimary, err
	}

	if !r.fallbacks.Has(p) {
		return nil, "", cause
	}

	log.Info("primary extraction found no media, trying fallbacks", "cause", cause)
	fb, ok := r.runFallbacks(ctx, sourceURL, p, cred, log)
	if !ok {
		return nil, "", types.NewResolveError(types.ErrNoDirectURL, stageFallback, cause)
	}

	resolved, err := media.Normalize(media.FromFallback(fb, p), p)
	if err != nil {
		return nil, "", types.NewResolveError(types.ErrNoDirectURL, stageFallback, err)
	}
	return resolved, metrics.OutcomeFallback, nil
}

// runFallbacks tries the registered stages in order and stops at the
// first one that recovers a URL.
func (r *Resolver) runFallbacks(ctx context.Context, sourceURL string, p types.Platform, cred *cookies.Credential, log *logging.Logger) (*types.FallbackMedia, bool) {
	shortcode, _ := platform.Shortcode(sourceURL)
	state := &interfaces.FallbackState{
		SourceURL: sourceURL,
		Shortcode: shortcode,
		Jar:       cred.Jar(),
	}

	for _, stage := range r.fallbacks.Get(p) {
		if ctx.Err() != nil {
			log.Warn("fallbacks cancelled", "error", ctx.Err())
			return nil, false
		}
		fb, found := stage.Resolve(ctx, state).Get()
		found = found && fb != nil && len(fb.URLs) > 0
		r.metrics.ObserveStage(stage.Name(), found)
		if found {
			log.Info("fallback stage recovered media", "stage", stage.Name(), "items", len(fb.URLs))
			return fb, true
		}
		log.Debug("fallback stage found nothing", "stage", stage.Name())
	}
	return nil, false
}
