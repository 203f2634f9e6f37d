package ytdlp

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"media-resolver-go/pkg/types"
)

// Args maps an ExtractorConfig onto yt-dlp command-line flags for a
// metadata-only run against target.
func Args(cfg types.ExtractorConfig, target string) []string {
	args := []string{"--dump-single-json", "--no-progress"}
	if cfg.SkipDownload {
		args = append(args, "--skip-download")
	}
	args = append(args, commonArgs(cfg)...)
	return append(args, "--", target)
}

// DownloadArgs maps cfg onto flags that download target into outputTemplate
// and print the resulting metadata.
func DownloadArgs(cfg types.ExtractorConfig, target, outputTemplate string) []string {
	args := []string{
		"--dump-single-json", "--no-simulate", "--no-progress",
		"--restrict-filenames",
		"-o", outputTemplate,
	}
	args = append(args, commonArgs(cfg)...)
	return append(args, "--", target)
}

func commonArgs(cfg types.ExtractorConfig) []string {
	var args []string

	if cfg.Quiet {
		args = append(args, "--quiet", "--no-warnings")
	}
	if cfg.IgnoreErrors {
		args = append(args, "--ignore-errors")
	}
	if cfg.AllowPlaylist {
		args = append(args, "--yes-playlist")
	} else {
		args = append(args, "--no-playlist")
	}
	if cfg.FlatPlaylist {
		args = append(args, "--flat-playlist")
	}
	if !cfg.VerifyTLS {
		args = append(args, "--no-check-certificates")
	}
	if cfg.UserAgent != "" {
		args = append(args, "--user-agent", cfg.UserAgent)
	}
	for _, key := range sortedKeys(cfg.ExtraHeaders) {
		args = append(args, "--add-header", fmt.Sprintf("%s:%s", key, cfg.ExtraHeaders[key]))
	}
	if cfg.Impersonation != types.ImpersonateNone {
		args = append(args, "--impersonate", string(cfg.Impersonation))
	}
	for _, extractor := range sortedKeys(cfg.ExtractorHints) {
		hints := cfg.ExtractorHints[extractor]
		pairs := lo.Map(sortedKeys(hints), func(k string, _ int) string {
			return k + "=" + hints[k]
		})
		args = append(args, "--extractor-args", extractor+":"+strings.Join(pairs, ";"))
	}
	if cfg.Format != "" {
		args = append(args, "-f", cfg.Format)
	}
	if cfg.CookieFile != "" {
		args = append(args, "--cookies", cfg.CookieFile)
	}
	if cfg.Proxy != "" {
		args = append(args, "--proxy", cfg.Proxy)
	}

	return args
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
