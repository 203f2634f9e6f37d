// Package app provides the main application setup and dependency injection.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"media-resolver-go/pkg/appctx"
	"media-resolver-go/pkg/config"
	"media-resolver-go/pkg/cookies"
	"media-resolver-go/pkg/extractors"
	"media-resolver-go/pkg/flaresolverr"
	"media-resolver-go/pkg/handlers/api"
	"media-resolver-go/pkg/httpclient"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/metrics"
	"media-resolver-go/pkg/registry"
	"media-resolver-go/pkg/server"
	"media-resolver-go/pkg/services"
	"media-resolver-go/pkg/ytdlp"
)

// App is the main application container.
type App struct {
	Ctx        *appctx.Context
	Server     *server.Server
	HTTPClient *httpclient.Client
	Fallbacks  *registry.FallbackRegistry
	Resolver   *services.Resolver
	Downloads  *services.DownloadStore
}

// New creates and initializes the application.
func New(cfg *config.Config) (*App, error) {
	var logOut io.Writer
	if cfg.LogFile != "" {
		w, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxAge)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logOut = w
	}

	log := logging.New(cfg.LogLevel, cfg.LogJSON, logOut)
	log.Info("initializing media resolver",
		"port", cfg.Port,
		"log_level", cfg.LogLevel,
		"carousel_policy", cfg.CarouselPolicy,
		"download_mode", cfg.DownloadMode)

	// Create application context
	ctx := appctx.New(cfg, log)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
		ctx.WithMetrics(m)
	}

	// Create HTTP client
	httpClient := httpclient.New(cfg, log)

	// Create FlareSolverr client if configured
	var flareClient *flaresolverr.Client
	if cfg.FlareSolverrURL != "" {
		flareClient = flaresolverr.NewClient(cfg.FlareSolverrURL, cfg.FlareSolverrTimeout, log)
		log.Info("FlareSolverr client enabled", "url", cfg.FlareSolverrURL)
	}

	// Register fallback stages
	fallbacks := registry.NewFallbackRegistry()
	registerFallbacks(fallbacks, httpClient, flareClient, cfg, log)

	fs := afero.NewOsFs()
	provisioner := cookies.NewProvisioner(fs, cfg.CookieDir, cfg.DefaultCookies, log)
	runner := ytdlp.NewClient(cfg.YtDlpPath, ytdlp.ExecRunner{}, cfg.ExtractorTimeout, log)

	resolver := services.NewResolver(
		provisioner,
		extractors.NewPrimary(runner, httpClient, log),
		fallbacks,
		cfg.CarouselPolicy,
		m,
		log,
	)
	ctx.WithResolver(resolver)

	a := &App{
		Ctx:        ctx,
		HTTPClient: httpClient,
		Fallbacks:  fallbacks,
		Resolver:   resolver,
	}

	if cfg.DownloadMode {
		downloads, err := services.NewDownloadStore(fs, cfg.DownloadDir, cfg.DownloadRetention, runner, provisioner, httpClient, log)
		if err != nil {
			return nil, err
		}
		ctx.WithDownloads(downloads)
		a.Downloads = downloads
		log.Info("download mode enabled", "dir", cfg.DownloadDir, "retention", cfg.DownloadRetention)
	}

	// Create HTTP server
	a.Server = server.New(cfg, log)

	// Create API handlers
	handlers := api.NewHandlers(ctx)
	handlers.RegisterRoutes(a.Server.Router())

	return a, nil
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.Ctx.Log.Info("starting media resolver server", "port", a.Ctx.Config.Port)
	return a.Server.Start(ctx)
}

// Shutdown releases background resources.
func (a *App) Shutdown() {
	a.Ctx.Log.Info("shutting down application")

	if a.Downloads != nil {
		a.Downloads.Close()
	}
}

// registerFallbacks registers the platform fallback stages.
// Add new stages here by:
// 1. Creating a new stage in pkg/extractors/
// 2. Registering it below for its platform
func registerFallbacks(
	reg *registry.FallbackRegistry,
	client *httpclient.Client,
	flareClient *flaresolverr.Client,
	cfg *config.Config,
	log *logging.Logger,
) {
	extractors.RegisterInstagram(reg, client, flareClient, log, cfg.FallbackTimeout)

	log.Info("registered fallback stages", "count", reg.Count())
}
