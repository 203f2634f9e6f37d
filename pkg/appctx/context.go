// Package appctx provides the application context that holds all runtime dependencies.
package appctx

import (
	"context"

	"media-resolver-go/pkg/config"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/metrics"
	"media-resolver-go/pkg/services"
	"media-resolver-go/pkg/types"
)

// Resolver resolves one request into direct media URLs.
type Resolver interface {
	Resolve(ctx context.Context, req types.ResolutionRequest) (*types.ResolvedMedia, error)
}

// Downloads is the legacy download-then-serve store.
type Downloads interface {
	Fetch(ctx context.Context, req types.ResolutionRequest, baseURL string) (*types.ResolvedMedia, error)
	Open(name string) (*services.StoredFile, error)
	Remove(name string)
}

// Context holds all application runtime dependencies.
// Pass this single struct to components instead of individual parameters.
type Context struct {
	Config    *config.Config
	Log       *logging.Logger
	Resolver  Resolver
	Downloads Downloads
	Metrics   *metrics.Metrics
	BaseURL   string // public URL of this server, "" to derive it per request
}

// New creates a new application context.
func New(cfg *config.Config, log *logging.Logger) *Context {
	return &Context{
		Config:  cfg,
		Log:     log,
		BaseURL: cfg.BaseURL,
	}
}

// WithResolver sets the resolver.
func (c *Context) WithResolver(r Resolver) *Context {
	c.Resolver = r
	return c
}

// WithDownloads sets the download store used in download mode.
func (c *Context) WithDownloads(d Downloads) *Context {
	c.Downloads = d
	return c
}

// WithMetrics sets the metrics collectors.
func (c *Context) WithMetrics(m *metrics.Metrics) *Context {
	c.Metrics = m
	return c
}

var (
	_ Resolver  = (*services.Resolver)(nil)
	_ Downloads = (*services.DownloadStore)(nil)
)
