package services

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"media-resolver-go/pkg/cookies"
	"media-resolver-go/pkg/extractors"
	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/media"
	"media-resolver-go/pkg/platform"
	"media-resolver-go/pkg/types"
)

const (
	stageDownload = "download"
	// downloadFormat prefers a single mp4 so no merge step is needed.
	downloadFormat = "best[ext=mp4]/best"
)

// DownloadStore implements the legacy download-then-serve mode. Files are
// written under dir with a random name, served once, then deleted.
type DownloadStore struct {
	fs         afero.Fs
	dir        string
	retention  time.Duration
	downloader interfaces.MediaDownloader
	cookies    *cookies.Provisioner
	proxies    extractors.ProxyRouter
	log        *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// StoredFile is an open downloaded file ready to be served.
type StoredFile struct {
	afero.File
	Name        string
	Size        int64
	ModTime     time.Time
	ContentType string
}

// NewDownloadStore creates the store and starts its retention loop.
// proxies may be nil.
func NewDownloadStore(
	fs afero.Fs,
	dir string,
	retention time.Duration,
	downloader interfaces.MediaDownloader,
	provisioner *cookies.Provisioner,
	proxies extractors.ProxyRouter,
	log *logging.Logger,
) (*DownloadStore, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve download directory: %w", err)
	}
	if err := fs.MkdirAll(absDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &DownloadStore{
		fs:         fs,
		dir:        absDir,
		retention:  retention,
		downloader: downloader,
		cookies:    provisioner,
		proxies:    proxies,
		log:        log.WithComponent("downloads"),
		ctx:        ctx,
		cancel:     cancel,
	}

	if retention > 0 {
		s.wg.Add(1)
		go s.cleanupLoop()
	}
	return s, nil
}

// Fetch downloads the media behind req and returns a result whose direct
// URL points at baseURL/get_file/{name}.
func (s *DownloadStore) Fetch(ctx context.Context, req types.ResolutionRequest, baseURL string) (*types.ResolvedMedia, error) {
	sourceURL := strings.TrimSpace(req.SourceURL)
	if err := ValidateURL(sourceURL); err != nil {
		return nil, err
	}

	p := platform.Detect(sourceURL)
	log := s.log.WithURL(sourceURL).WithPlatform(string(p))

	cred := s.cookies.Acquire(req.CredentialBlob)
	defer cred.Release()

	proxyURL := ""
	if s.proxies != nil {
		proxyURL = s.proxies.ProxyURL(sourceURL)
	}
	cfg := extractors.BuildConfig(p, extractors.PassStrict, cred.File(), proxyURL)
	cfg.SkipDownload = false
	cfg.AllowPlaylist = false
	cfg.Format = downloadFormat

	id := uuid.NewString()
	template := filepath.Join(s.dir, id+".%(ext)s")

	info, err := s.downloader.Download(ctx, sourceURL, template, cfg)
	if err != nil {
		log.WithError(err).Warn("download failed")
		return nil, types.NewResolveError(types.ErrDownloadFailed, stageDownload, err)
	}

	name, err := s.locate(id)
	if err != nil {
		log.Warn("downloaded file not found", "id", id, "error", err)
		return nil, types.NewResolveError(types.ErrDownloadFailed, stageDownload, err)
	}

	if fi, err := s.fs.Stat(filepath.Join(s.dir, name)); err == nil {
		log.Info("media downloaded", "file", name, "size", humanize.Bytes(uint64(fi.Size())))
	}

	mediaType := media.Classify(info)
	ext := media.NormalizeExt(strings.TrimPrefix(filepath.Ext(name), "."), name, mediaType)
	return media.Normalize([]*types.SelectedMedia{{
		URL:       strings.TrimRight(baseURL, "/") + "/get_file/" + url.PathEscape(name),
		Ext:       ext,
		MediaType: mediaType,
		Title:     info.Title,
		Thumbnail: info.Thumbnail,
		Duration:  info.Duration,
		Filesize:  info.Size(),
	}}, p)
}

// locate finds the file the downloader wrote for id.
func (s *DownloadStore) locate(id string) (string, error) {
	matches, err := afero.Glob(s.fs, filepath.Join(s.dir, id+".*"))
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		// Skip partial and fragment files left by an interrupted run.
		if strings.HasSuffix(m, ".part") || strings.HasSuffix(m, ".ytdl") {
			continue
		}
		return filepath.Base(m), nil
	}
	return "", os.ErrNotExist
}

// path returns the absolute path of name inside the store, rejecting any
// name that would escape it.
func (s *DownloadStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", types.ErrFileNotFound
	}
	full := filepath.Join(s.dir, name)
	if !strings.HasPrefix(full, s.dir+string(filepath.Separator)) {
		return "", types.ErrFileNotFound
	}
	return full, nil
}

// Open opens a downloaded file for serving and sniffs its content type.
func (s *DownloadStore) Open(name string) (*StoredFile, error) {
	full, err := s.path(name)
	if err != nil {
		return nil, err
	}

	f, err := s.fs.Open(full)
	if err != nil {
		return nil, types.NewResolveError(types.ErrFileNotFound, stageDownload, err)
	}
	fi, err := f.Stat()
	if err != nil || fi.IsDir() {
		f.Close()
		return nil, types.NewResolveError(types.ErrFileNotFound, stageDownload, err)
	}

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to detect content type: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rewind file: %w", err)
	}

	return &StoredFile{
		File:        f,
		Name:        name,
		Size:        fi.Size(),
		ModTime:     fi.ModTime(),
		ContentType: mtype.String(),
	}, nil
}

// Remove deletes a served file.
func (s *DownloadStore) Remove(name string) {
	full, err := s.path(name)
	if err != nil {
		return
	}
	if err := s.fs.Remove(full); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to remove served file", "file", name, "error", err)
		return
	}
	s.log.Debug("removed served file", "file", name)
}

// Close stops the retention loop.
func (s *DownloadStore) Close() {
	s.cancel()
	s.wg.Wait()
}

// cleanupLoop periodically removes files that were never fetched.
func (s *DownloadStore) cleanupLoop() {
	defer s.wg.Done()

	interval := s.retention / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.cleanupStale(time.Now())
		}
	}
}

// cleanupStale removes files last modified before now minus retention.
func (s *DownloadStore) cleanupStale(now time.Time) int {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		s.log.Warn("failed to list download directory", "error", err)
		return 0
	}

	cutoff := now.Add(-s.retention)
	removed := 0
	for _, fi := range entries {
		if fi.IsDir() || !fi.ModTime().Before(cutoff) {
			continue
		}
		if err := s.fs.Remove(filepath.Join(s.dir, fi.Name())); err != nil {
			s.log.Warn("failed to remove stale file", "file", fi.Name(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info("removed stale downloads", "count", removed)
	}
	return removed
}
