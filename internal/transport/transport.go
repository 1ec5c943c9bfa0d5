// Package transport builds the HTTP round trippers used to reach the catalog service.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Fingerprint selects the TLS ClientHello presented to the catalog service.
type Fingerprint string

const (
	// FingerprintGo uses crypto/tls with an HTTP/2-enabled transport.
	FingerprintGo Fingerprint = "go"

	// FingerprintChrome presents Chrome's ClientHello through uTLS. Some CDNs
	// fronting catalog APIs throttle Go's JA3 fingerprint.
	FingerprintChrome Fingerprint = "chrome"
)

// ParseFingerprint maps a config value to a Fingerprint. Empty means FingerprintGo.
func ParseFingerprint(s string) (Fingerprint, error) {
	switch Fingerprint(s) {
	case "", FingerprintGo:
		return FingerprintGo, nil
	case FingerprintChrome:
		return FingerprintChrome, nil
	default:
		return "", fmt.Errorf("unknown TLS fingerprint %q (want go or chrome)", s)
	}
}

// New returns a RoundTripper for the given fingerprint.
// dialTimeout bounds TCP connect and the TLS handshake.
func New(fp Fingerprint, dialTimeout time.Duration) (http.RoundTripper, error) {
	switch fp {
	case "", FingerprintGo:
		return newStandardTransport(dialTimeout)
	case FingerprintChrome:
		return newChromeTransport(dialTimeout), nil
	default:
		return nil, fmt.Errorf("unknown TLS fingerprint %q", fp)
	}
}

// newStandardTransport clones http.DefaultTransport and enables HTTP/2 on it.
func newStandardTransport(dialTimeout time.Duration) (http.RoundTripper, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = dialTimeout
	if err := http2.ConfigureTransport(t); err != nil {
		return nil, fmt.Errorf("configuring http2: %w", err)
	}
	return t, nil
}

// chromeTransport routes HTTPS through h2 first and falls back to HTTP/1.1.
// Plain HTTP goes through plain, since uTLS only matters for TLS.
type chromeTransport struct {
	h2    *http2.Transport
	h1    *http.Transport
	plain *http.Transport
}

func newChromeTransport(dialTimeout time.Duration) *chromeTransport {
	dialer := &net.Dialer{Timeout: dialTimeout}

	return &chromeTransport{
		h2: &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dialChromeTLS(ctx, dialer, network, addr)
			},
		},
		h1: &http.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialChromeTLS(ctx, dialer, network, addr)
			},
			ForceAttemptHTTP2: false,
		},
		plain: &http.Transport{DialContext: dialer.DialContext},
	}
}

// RoundTrip implements http.RoundTripper.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.plain.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	// Server without h2; a GET body is nil so the request can be replayed.
	return t.h1.RoundTrip(req)
}

// dialChromeTLS establishes a TLS connection with Chrome's fingerprint.
// ALPN offers h2 and http/1.1, as Chrome does.
func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	uconn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := uconn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return uconn, nil
}
