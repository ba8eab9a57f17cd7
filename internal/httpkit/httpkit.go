// Package httpkit builds the http.Client used for outbound calls to media
// servers, search backends and web pages.
package httpkit

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Default timeouts and connection pool limits for the shared transport.
const (
	DefaultTimeout             = 30 * time.Second
	DefaultDialTimeout         = 10 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultMaxIdleConnsPerHost = 5
)

// UserAgent is sent on every request unless overridden.
const UserAgent = "cinematic/1.0"

// ClientOption configures a Client built by NewClient.
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout   time.Duration
	userAgent string
	headers   http.Header
	transport http.RoundTripper
}

// WithTimeout sets the overall request timeout. Zero disables it.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.timeout = d }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *clientConfig) { c.userAgent = ua }
}

// WithHeader adds a header to every request, e.g. an API key.
func WithHeader(key, value string) ClientOption {
	return func(c *clientConfig) { c.headers.Set(key, value) }
}

// WithTransport overrides the default transport. Tests use it with
// httptest servers.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *clientConfig) { c.transport = rt }
}

// NewTransport creates an http.Transport with explicit dial and TLS timeouts.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   DefaultDialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: DefaultTLSHandshakeTimeout,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		ForceAttemptHTTP2:   true,
	}
}

// NewClient builds an *http.Client with timeouts and default headers.
func NewClient(opts ...ClientOption) *http.Client {
	cfg := &clientConfig{
		timeout:   DefaultTimeout,
		userAgent: UserAgent,
		headers:   make(http.Header),
	}
	for _, o := range opts {
		o(cfg)
	}

	base := cfg.transport
	if base == nil {
		base = NewTransport()
	}

	return &http.Client{
		Timeout: cfg.timeout,
		Transport: &headerTransport{
			base:      base,
			userAgent: cfg.userAgent,
			headers:   cfg.headers,
		},
	}
}

// headerTransport sets default headers without overriding ones already on
// the request.
type headerTransport struct {
	base      http.RoundTripper
	userAgent string
	headers   http.Header
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" && t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	for k, vs := range t.headers {
		if req.Header.Get(k) == "" {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}
	return t.base.RoundTrip(req)
}

// ReadErrorBody reads up to limit bytes of an error response for inclusion
// in an error message.
func ReadErrorBody(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return fmt.Sprintf("(failed to read body: %v)", err)
	}
	return strings.TrimSpace(string(body))
}
