// Package config handles application configuration from defaults,
// environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// CarouselPolicy decides how multi-item posts are reduced.
type CarouselPolicy string

const (
	// CarouselFirst keeps only entry 0 of a carousel.
	CarouselFirst CarouselPolicy = "first"
	// CarouselAll recovers every entry and reports them in media_urls.
	CarouselAll CarouselPolicy = "all"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// Access
	APIPassword        string   `mapstructure:"api_password"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`

	// Resolution
	DefaultCookies   string         `mapstructure:"default_cookies"` // base64 Netscape jar
	CookieDir        string         `mapstructure:"cookie_dir"`
	CarouselPolicy   CarouselPolicy `mapstructure:"carousel_policy"`
	YtDlpPath        string         `mapstructure:"ytdlp_path"`
	ExtractorTimeout time.Duration  `mapstructure:"extractor_timeout"` // 0 disables
	FallbackTimeout  time.Duration  `mapstructure:"fallback_timeout"`

	// Legacy download-then-serve mode
	DownloadMode      bool          `mapstructure:"download_mode"`
	DownloadDir       string        `mapstructure:"download_dir"`
	DownloadRetention time.Duration `mapstructure:"download_retention"`

	// Proxy settings
	GlobalProxies   []string `mapstructure:"global_proxies"`
	TransportRoutes []TransportRoute `mapstructure:"-"`

	// Logging
	LogLevel  string        `mapstructure:"log_level"`
	LogJSON   bool          `mapstructure:"log_json"`
	LogFile   string        `mapstructure:"log_file"`
	LogMaxAge time.Duration `mapstructure:"log_max_age"`

	// Metrics
	MetricsEnabled bool `mapstructure:"metrics_enabled"`

	// FlareSolverr settings (rendered page source for scraping)
	FlareSolverrURL     string        `mapstructure:"flaresolverr_url"`
	FlareSolverrTimeout time.Duration `mapstructure:"flaresolverr_timeout"`
}

// TransportRoute defines URL-specific proxy routing.
type TransportRoute struct {
	URLPattern string
	Proxy      string
	DisableSSL bool
	Direct     bool // If true, bypass global proxy and connect directly
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8000)
	v.SetDefault("base_url", "")
	v.SetDefault("read_timeout", 30*time.Second)
	v.SetDefault("write_timeout", 120*time.Second)
	v.SetDefault("idle_timeout", 60*time.Second)

	v.SetDefault("api_password", "")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("rate_limit_per_minute", 10)

	v.SetDefault("default_cookies", "")
	v.SetDefault("cookie_dir", os.TempDir())
	v.SetDefault("carousel_policy", string(CarouselAll))
	v.SetDefault("ytdlp_path", "yt-dlp")
	v.SetDefault("extractor_timeout", time.Duration(0))
	v.SetDefault("fallback_timeout", 12*time.Second)

	v.SetDefault("download_mode", false)
	v.SetDefault("download_dir", "downloads")
	v.SetDefault("download_retention", time.Hour)

	v.SetDefault("global_proxies", []string{})
	v.SetDefault("global_proxy", "")
	v.SetDefault("transport_routes", "")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_age", 7*24*time.Hour)

	v.SetDefault("metrics_enabled", true)

	v.SetDefault("flaresolverr_url", "")
	v.SetDefault("flaresolverr_timeout", 60*time.Second)
}

// BindFlags registers the command-line flags that override configuration.
func BindFlags(flags *pflag.FlagSet) {
	flags.Int("port", 8000, "HTTP listen port")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "emit JSON logs")
	flags.String("carousel-policy", string(CarouselAll), "carousel reduction policy (first, all)")
	flags.String("ytdlp-path", "yt-dlp", "path to the yt-dlp binary")
	flags.Bool("download-mode", false, "download media and serve it from /get_file")
}

// Load reads configuration from defaults, environment variables and, when
// flags is non-nil, any flags that were explicitly set.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range map[string]string{
			"port":            "port",
			"log_level":       "log-level",
			"log_json":        "log-json",
			"carousel_policy": "carousel-policy",
			"ytdlp_path":      "ytdlp-path",
			"download_mode":   "download-mode",
		} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	cfg.AllowedOrigins = splitList(cfg.AllowedOrigins)
	cfg.GlobalProxies = splitList(cfg.GlobalProxies)
	cfg.TransportRoutes = parseTransportRoutes(v.GetString("transport_routes"))

	// Legacy single proxy support
	if globalProxy := v.GetString("global_proxy"); globalProxy != "" && len(cfg.GlobalProxies) == 0 {
		cfg.GlobalProxies = []string{globalProxy}
	}

	// An empty base URL means download links are built from the request host.
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have a fixed set of choices.
func (c *Config) Validate() error {
	switch c.CarouselPolicy {
	case CarouselFirst, CarouselAll:
	default:
		return fmt.Errorf("invalid carousel policy %q (want %q or %q)", c.CarouselPolicy, CarouselFirst, CarouselAll)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("invalid rate limit %d", c.RateLimitPerMinute)
	}
	return nil
}

// parseTransportRoutes parses the TRANSPORT_ROUTES env var.
// Format: {URL=pattern, PROXY=url, DISABLE_SSL=true}, {URL=pattern2}
func parseTransportRoutes(s string) []TransportRoute {
	if s == "" {
		return nil
	}

	var routes []TransportRoute
	s = strings.TrimSpace(s)

	parts := strings.Split(s, "}, {")
	for _, part := range parts {
		part = strings.Trim(part, "{} ")
		if part == "" {
			continue
		}

		route := TransportRoute{}
		for _, field := range strings.Split(part, ", ") {
			key, value, ok := strings.Cut(field, "=")
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)

			switch strings.ToUpper(strings.TrimSpace(key)) {
			case "URL":
				route.URLPattern = value
			case "PROXY":
				route.Proxy = value
			case "DISABLE_SSL":
				route.DisableSSL = strings.EqualFold(value, "true")
			case "DIRECT":
				route.Direct = strings.EqualFold(value, "true")
			}
		}
		if route.URLPattern != "" {
			routes = append(routes, route)
		}
	}

	return routes
}

// splitList flattens comma separated elements and drops blanks.
// Environment values arrive as a single element.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, p := range strings.Split(item, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
