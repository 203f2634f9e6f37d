// Package flaresolverr fetches rendered pages through a FlareSolverr
// instance. The HTML scraping stage uses it when the platform serves
// challenge pages to plain HTTP clients.
package flaresolverr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"media-resolver-go/pkg/logging"
)

// Cookie is the cookie shape FlareSolverr accepts and returns.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path,omitempty"`
	Expires  int64  `json:"expires,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
}

// Solution is the rendered page.
type Solution struct {
	URL       string   `json:"url"`
	Status    int      `json:"status"`
	Response  string   `json:"response"`
	Cookies   []Cookie `json:"cookies"`
	UserAgent string   `json:"userAgent"`
}

type request struct {
	Cmd        string   `json:"cmd"`
	URL        string   `json:"url"`
	MaxTimeout int      `json:"maxTimeout"`
	Cookies    []Cookie `json:"cookies,omitempty"`
}

type response struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Solution Solution `json:"solution"`
}

// Client is a FlareSolverr API client.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	log        *logging.Logger
}

// NewClient creates a client for the FlareSolverr instance at baseURL.
func NewClient(baseURL string, timeout time.Duration, log *logging.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout + 10*time.Second,
		},
		log: log.WithComponent("flaresolverr"),
	}
}

// IsConfigured reports whether an instance URL was provided.
func (c *Client) IsConfigured() bool {
	return c != nil && c.baseURL != ""
}

// Get renders targetURL, sending cookies along with the browser request.
func (c *Client) Get(ctx context.Context, targetURL string, cookies []*http.Cookie) (*Solution, error) {
	body, err := json.Marshal(request{
		Cmd:        "request.get",
		URL:        targetURL,
		MaxTimeout: int(c.timeout.Milliseconds()),
		Cookies:    FromHTTPCookies(cookies),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("FlareSolverr returned status %d", resp.StatusCode)
	}

	var decoded response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if decoded.Status != "ok" {
		return nil, fmt.Errorf("FlareSolverr error: %s", decoded.Message)
	}

	c.log.Debug("page rendered",
		"url", targetURL,
		"status", decoded.Solution.Status,
		"response_length", len(decoded.Solution.Response))

	return &decoded.Solution, nil
}

// FromHTTPCookies converts cookies to the FlareSolverr shape.
func FromHTTPCookies(cookies []*http.Cookie) []Cookie {
	if len(cookies) == 0 {
		return nil
	}
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		fc := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if !c.Expires.IsZero() {
			fc.Expires = c.Expires.Unix()
		}
		out = append(out, fc)
	}
	return out
}
