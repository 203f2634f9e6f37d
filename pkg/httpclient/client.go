// Package httpclient provides the outbound HTTP client used by the platform
// fallback stages. It routes each request to a plain, proxied or browser
// fingerprinted transport.
package httpclient

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"media-resolver-go/pkg/config"
	"media-resolver-go/pkg/logging"
)

const clientTimeout = 30 * time.Second

// Hosts that reject non-browser TLS handshakes.
var utlsDomains = []string{
	"instagram.com",
	"tiktok.com",
}

// Client routes requests by URL to the matching transport.
type Client struct {
	defaultClient *http.Client
	utlsClient    *http.Client // Chrome TLS fingerprint
	routes        []config.TransportRoute
	globalProxies []string
	log           *logging.Logger

	mu           sync.RWMutex
	proxyClients map[string]*http.Client // keyed by proxy URL plus TLS mode
}

// New creates a client with the proxy routing of cfg.
func New(cfg *config.Config, log *logging.Logger) *Client {
	defaultTransport := newTransport()
	defaultTransport.ResponseHeaderTimeout = clientTimeout

	return &Client{
		defaultClient: &http.Client{Transport: defaultTransport, Timeout: clientTimeout},
		utlsClient:    &http.Client{Transport: newUTLSRoundTripper(), Timeout: clientTimeout},
		routes:        cfg.TransportRoutes,
		globalProxies: cfg.GlobalProxies,
		log:           log.WithComponent("httpclient"),
		proxyClients:  make(map[string]*http.Client),
	}
}

// newTransport returns a pooled IPv4-only transport.
func newTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: clientTimeout, KeepAlive: 60 * time.Second}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if network == "tcp" {
				network = "tcp4"
			}
			return dialer.DialContext(ctx, network, addr)
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Do executes an HTTP request on the transport its URL is routed to.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.clientFor(req.URL.String()).Do(req)
}

// ProxyURL returns the proxy that requests to targetURL are routed through,
// or "" for a direct connection. The extractor subprocess uses the same
// routing as in-process requests.
func (c *Client) ProxyURL(targetURL string) string {
	if route, ok := c.matchRoute(targetURL); ok {
		if route.Direct || route.Proxy != "" {
			return route.Proxy
		}
	}
	if len(c.globalProxies) > 0 {
		return c.globalProxies[0]
	}
	return ""
}

// needsUTLS reports whether the URL's host requires a browser TLS fingerprint.
func needsUTLS(targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, domain := range utlsDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func (c *Client) matchRoute(targetURL string) (config.TransportRoute, bool) {
	for _, route := range c.routes {
		if strings.Contains(targetURL, route.URLPattern) {
			return route, true
		}
	}
	return config.TransportRoute{}, false
}

// clientFor picks the client for targetURL. Fingerprinted hosts come first,
// then the first matching transport route, then the global proxy.
func (c *Client) clientFor(targetURL string) *http.Client {
	if needsUTLS(targetURL) {
		c.log.Debug("using utls client", "url", targetURL)
		return c.utlsClient
	}

	if route, ok := c.matchRoute(targetURL); ok {
		c.log.Debug("matched transport route", "url", targetURL, "pattern", route.URLPattern, "proxy", route.Proxy, "direct", route.Direct)
		switch {
		case route.Direct && !route.DisableSSL:
			return c.defaultClient
		case route.Direct:
			return c.proxyClient("", true)
		case route.Proxy != "" || route.DisableSSL:
			return c.proxyClient(route.Proxy, route.DisableSSL)
		}
	}

	if len(c.globalProxies) > 0 {
		c.log.Debug("using global proxy", "url", targetURL, "proxy", c.globalProxies[0])
		return c.proxyClient(c.globalProxies[0], false)
	}

	return c.defaultClient
}

// proxyClient returns a cached client for proxyURL, creating it on first use.
func (c *Client) proxyClient(proxyURL string, insecure bool) *http.Client {
	key := proxyURL
	if insecure {
		key += "|insecure"
	}

	c.mu.RLock()
	client, ok := c.proxyClients[key]
	c.mu.RUnlock()
	if ok {
		return client
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.proxyClients[key]; ok {
		return client
	}

	client, err := newProxyClient(proxyURL, insecure)
	if err != nil {
		c.log.Error("failed to create proxy client, using default", "proxy", proxyURL, "error", err)
		return c.defaultClient
	}
	c.proxyClients[key] = client
	c.log.Debug("created proxy client", "proxy", proxyURL, "insecure", insecure)
	return client
}

type unsupportedSchemeError string

func (e unsupportedSchemeError) Error() string {
	return "unsupported proxy scheme " + string(e)
}

func newProxyClient(proxyURL string, insecure bool) (*http.Client, error) {
	transport := newTransport()
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}

		switch parsed.Scheme {
		case "socks5", "socks5h":
			dialer, err := proxy.FromURL(parsed, proxy.Direct)
			if err != nil {
				return nil, err
			}
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				transport.DialContext = cd.DialContext
			} else {
				transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
					return dialer.Dial(network, addr)
				}
			}
		case "http", "https":
			transport.Proxy = http.ProxyURL(parsed)
		default:
			return nil, unsupportedSchemeError(parsed.Scheme)
		}
	}

	return &http.Client{Transport: transport, Timeout: clientTimeout}, nil
}
