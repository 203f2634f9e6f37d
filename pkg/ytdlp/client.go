// Package ytdlp runs the yt-dlp binary and decodes the metadata it prints.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/types"
)

// ErrNoOutput is returned when yt-dlp exits without printing metadata.
var ErrNoOutput = errors.New("yt-dlp printed no metadata")

// Runner executes a command and returns its standard output. Lines written
// to standard error are passed to stderr as they arrive.
type Runner interface {
	Run(ctx context.Context, stderr func(line string), name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, stderr func(line string), name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &lineWriter{emit: stderr}

	err := cmd.Run()
	return stdout.Bytes(), err
}

// Client drives yt-dlp for metadata probes and legacy downloads.
type Client struct {
	path    string
	runner  Runner
	timeout time.Duration
	log     *logging.Logger
}

// NewClient creates a client for the yt-dlp binary at path. A zero timeout
// leaves extractor runs unbounded.
func NewClient(path string, runner Runner, timeout time.Duration, log *logging.Logger) *Client {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Client{
		path:    path,
		runner:  runner,
		timeout: timeout,
		log:     log.WithComponent("ytdlp"),
	}
}

// Probe runs a metadata-only extraction.
func (c *Client) Probe(ctx context.Context, target string, cfg types.ExtractorConfig) (*types.RawMediaInfo, error) {
	return c.run(ctx, target, Args(cfg, target))
}

// Download fetches the media into outputTemplate and returns its metadata.
func (c *Client) Download(ctx context.Context, target, outputTemplate string, cfg types.ExtractorConfig) (*types.RawMediaInfo, error) {
	return c.run(ctx, target, DownloadArgs(cfg, target, outputTemplate))
}

func (c *Client) run(ctx context.Context, target string, args []string) (*types.RawMediaInfo, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	log := c.log.WithURL(target)
	start := time.Now()

	var lastLine string
	out, err := c.runner.Run(ctx, func(line string) {
		lastLine = line
		log.Debug("yt-dlp output", "output", line)
	}, c.path, args...)

	log.WithDuration(time.Since(start)).Debug("yt-dlp finished", "bytes", len(out))

	info, decodeErr := decode(out)
	if decodeErr == nil {
		// --ignore-errors may exit non-zero while still printing metadata.
		if err != nil {
			log.Debug("yt-dlp exited with error but printed metadata", "error", err)
		}
		return info, nil
	}

	if err != nil {
		if lastLine != "" {
			return nil, fmt.Errorf("yt-dlp failed: %w: %s", err, lastLine)
		}
		return nil, fmt.Errorf("yt-dlp failed: %w", err)
	}
	return nil, decodeErr
}

func decode(out []byte) (*types.RawMediaInfo, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 || bytes.Equal(out, []byte("null")) {
		return nil, ErrNoOutput
	}

	// Only the last line carries the document; earlier lines may be notices.
	if i := bytes.LastIndexByte(out, '\n'); i >= 0 {
		out = out[i+1:]
	}

	var info types.RawMediaInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("failed to parse yt-dlp output: %w", err)
	}
	return &info, nil
}

// lineWriter splits written bytes into lines for a callback.
type lineWriter struct {
	emit func(string)
	buf  []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	if w.emit == nil {
		return len(p), nil
	}
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(string(w.buf[:i])); line != "" {
			w.emit(line)
		}
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

var (
	_ interfaces.MetadataExtractor = (*Client)(nil)
	_ interfaces.MediaDownloader   = (*Client)(nil)
)
