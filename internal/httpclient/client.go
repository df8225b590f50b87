package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/torosent/vuload/internal/config"
)

// RequestBuilder creates the GET request each iteration sends.
type RequestBuilder struct {
	target    *url.URL
	headers   http.Header
	userAgent string
}

// NewRequestBuilder validates the target and headers once so Build stays cheap.
// defaultUserAgent is used when cfg sets neither user_agent nor a User-Agent header.
func NewRequestBuilder(cfg *config.Config, defaultUserAgent string) (*RequestBuilder, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	target, err := parseTarget(cfg.TargetURL)
	if err != nil {
		return nil, err
	}
	headers, err := normalizeHeaders(cfg.Headers)
	if err != nil {
		return nil, err
	}

	b := &RequestBuilder{target: target, headers: headers}
	for _, ua := range []string{strings.TrimSpace(cfg.UserAgent), headers.Get("User-Agent"), defaultUserAgent} {
		if ua != "" {
			b.userAgent = ua
			break
		}
	}
	headers.Del("User-Agent")
	return b, nil
}

func parseTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("target URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("target URL must be absolute http or https, got %q", raw)
	}
	return u, nil
}

// normalizeHeaders canonicalizes names and rejects anything that would not
// survive the wire, such as CR/LF in a value.
func normalizeHeaders(in map[string]string) (http.Header, error) {
	out := make(http.Header, len(in))
	for key, value := range in {
		name := strings.TrimSpace(key)
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		name = http.CanonicalHeaderKey(name)
		if !httpguts.ValidHeaderFieldValue(value) {
			return nil, fmt.Errorf("invalid header value for %s", name)
		}
		out.Set(name, value)
	}
	return out, nil
}

// Target returns the request URL.
func (b *RequestBuilder) Target() string {
	return b.target.String()
}

// Build returns a fresh GET request bound to ctx.
func (b *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header = b.headers.Clone()
	if b.userAgent != "" {
		req.Header.Set("User-Agent", b.userAgent)
	}
	return req, nil
}

// ClientOptions tune the HTTP client shared by all VUs.
type ClientOptions struct {
	Timeout               time.Duration // per request, 0 disables
	MaxConnsPerHost       int           // usually the VU count
	DisableKeepAlives     bool
	InsecureSkipTLSVerify bool
}

const (
	defaultIdleConns = 32
	dialTimeout      = 30 * time.Second
	dialKeepAlive    = 30 * time.Second
	idleConnTimeout  = 90 * time.Second
	tlsHandshake     = 10 * time.Second
)

// NewClient returns a client whose idle pool holds one connection per VU so
// keep-alive reuse matches the closed model.
func NewClient(opts ClientOptions) *http.Client {
	idle := opts.MaxConnsPerHost
	if idle <= 0 {
		idle = defaultIdleConns
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: dialKeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          idle,
		MaxIdleConnsPerHost:   idle,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshake,
		ExpectContinueTimeout: time.Second,
		DisableKeepAlives:     opts.DisableKeepAlives,
	}
	if opts.InsecureSkipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in flag
	}
	return &http.Client{
		Timeout:   max(opts.Timeout, 0),
		Transport: transport,
	}
}
