// Package cookies turns client-supplied cookie material into request-scoped
// credential files for the extractor and a cookie jar for fallback requests.
package cookies

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/spf13/afero"

	"media-resolver-go/pkg/logging"
)

var errNotText = errors.New("decoded cookies are not text")

// Provisioner writes one temporary cookie file per resolution call.
type Provisioner struct {
	fs          afero.Fs
	dir         string
	defaultBlob string
	log         *logging.Logger
}

// NewProvisioner creates a provisioner writing into dir on fs. defaultBlob
// is used when a request carries no cookies of its own.
func NewProvisioner(fs afero.Fs, dir, defaultBlob string, log *logging.Logger) *Provisioner {
	return &Provisioner{
		fs:          fs,
		dir:         dir,
		defaultBlob: strings.TrimSpace(defaultBlob),
		log:         log.WithComponent("cookies"),
	}
}

// Credential is a provisioned cookie jar. It must be released by the caller.
type Credential struct {
	Path    string
	Cookies []*http.Cookie

	fs   afero.Fs
	log  *logging.Logger
	once sync.Once
}

// Acquire decodes blob (or the default credential) and writes it to a new
// temporary file. It returns nil when no usable credential is available;
// decoding problems are logged and never fail the request.
func (p *Provisioner) Acquire(blob string) *Credential {
	source := "request"
	blob = strings.TrimSpace(blob)
	if blob == "" {
		blob, source = p.defaultBlob, "default"
	}
	if blob == "" {
		return nil
	}

	text, err := decodeBlob(blob)
	if err != nil {
		p.log.Warn("ignoring cookies that failed to decode", "source", source, "error", err)
		return nil
	}

	parsed, err := ParseNetscape(bytes.NewReader(text))
	if err != nil || len(parsed) == 0 {
		p.log.Warn("ignoring cookies without Netscape entries", "source", source, "error", err)
		return nil
	}

	if !bytes.HasPrefix(text, []byte(netscapeHeader)) {
		text = append([]byte(netscapeHeader+"\n"), text...)
	}

	path, err := p.write(text)
	if err != nil {
		p.log.Warn("failed to write cookie file", "error", err)
		return nil
	}

	p.log.Debug("provisioned cookie file", "source", source, "path", path, "cookies", len(parsed))
	return &Credential{Path: path, Cookies: parsed, fs: p.fs, log: p.log}
}

func (p *Provisioner) write(text []byte) (string, error) {
	if err := p.fs.MkdirAll(p.dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create cookie dir: %w", err)
	}

	f, err := afero.TempFile(p.fs, p.dir, "cookies-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create cookie file: %w", err)
	}
	if _, err := f.Write(text); err != nil {
		f.Close()
		_ = p.fs.Remove(f.Name())
		return "", fmt.Errorf("failed to write cookie file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = p.fs.Remove(f.Name())
		return "", fmt.Errorf("failed to close cookie file: %w", err)
	}
	return f.Name(), nil
}

// File returns the path of the cookie file, or "" for a nil credential.
func (c *Credential) File() string {
	if c == nil {
		return ""
	}
	return c.Path
}

// Jar returns the cookies as a jar, or nil for a nil credential.
func (c *Credential) Jar() http.CookieJar {
	if c == nil {
		return nil
	}
	jar, err := NewJar(c.Cookies)
	if err != nil {
		c.log.Warn("failed to build cookie jar", "error", err)
		return nil
	}
	return jar
}

// Release removes the cookie file. It is safe to call more than once and on
// a nil credential.
func (c *Credential) Release() {
	if c == nil {
		return
	}
	c.once.Do(func() {
		if err := c.fs.Remove(c.Path); err != nil {
			c.log.Warn("failed to remove cookie file", "path", c.Path, "error", err)
		}
	})
}

// decodeBlob accepts standard or URL-safe base64, padded or not.
func decodeBlob(blob string) ([]byte, error) {
	blob = strings.Join(strings.Fields(blob), "")

	var lastErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		text, err := enc.DecodeString(blob)
		if err != nil {
			lastErr = err
			continue
		}
		if !utf8.Valid(text) {
			return nil, errNotText
		}
		return text, nil
	}
	return nil, lastErr
}
