package httpclient

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// utlsRoundTripper performs the TLS handshake with a Chrome ClientHello and
// speaks HTTP/2 or HTTP/1.1 depending on the negotiated ALPN protocol.
type utlsRoundTripper struct {
	dialer      *net.Dialer
	h2Transport *http2.Transport
	hello       utls.ClientHelloID
}

func newUTLSRoundTripper() *utlsRoundTripper {
	return &utlsRoundTripper{
		dialer: &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 60 * time.Second,
		},
		h2Transport: &http2.Transport{},
		hello:       utls.HelloChrome_120,
	}
}

func (t *utlsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return http.DefaultTransport.RoundTrip(req)
	}

	conn, err := t.dialTLS(req.Context(), req.URL.Hostname(), req.URL.Port())
	if err != nil {
		return nil, err
	}

	if conn.ConnectionState().NegotiatedProtocol == http2.NextProtoTLS {
		return roundTripHTTP2(t.h2Transport, conn, req)
	}

	return roundTripHTTP1(conn, req)
}

func (t *utlsRoundTripper) dialTLS(ctx context.Context, host, port string) (*utls.UConn, error) {
	if port == "" {
		port = "443"
	}

	raw, err := t.dialer.DialContext(ctx, "tcp4", net.JoinHostPort(host, port))
	if err != nil {
		return nil, err
	}

	conn := utls.UClient(raw, &utls.Config{ServerName: host}, t.hello)
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, err
	}
	return conn, nil
}

func roundTripHTTP1(conn net.Conn, req *http.Request) (*http.Response, error) {
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, err
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, err
	}

	resp.Body = &connCloser{ReadCloser: resp.Body, conn: conn}
	return resp, nil
}

// roundTripHTTP2 sends req on a client connection of its own. The
// connection is closed together with the response body.
func roundTripHTTP2(tr *http2.Transport, conn net.Conn, req *http.Request) (*http.Response, error) {
	h2Conn, err := tr.NewClientConn(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	resp, err := h2Conn.RoundTrip(req)
	if err != nil {
		h2Conn.Close()
		return nil, err
	}

	resp.Body = &connCloser{ReadCloser: resp.Body, conn: h2Conn}
	return resp, nil
}

// connCloser closes the underlying connection together with the body.
type connCloser struct {
	io.ReadCloser
	conn io.Closer
}

func (c *connCloser) Close() error {
	err := c.ReadCloser.Close()
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
