// Package transport provides the HTTP client used to reach hidden services
// through a SOCKS5 proxy. Callers treat it as an opaque blocking fetcher;
// unreachable targets are a routine outcome, not an exceptional one.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultProxyAddr    = "127.0.0.1:9050"
	defaultTimeout      = 60 * time.Second
	defaultMaxBodyBytes = 2 << 20 // 2 MiB per page is plenty for text extraction
	defaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; rv:128.0) Gecko/20100101 Firefox/128.0"
)

// Client fetches the raw body of a single URL. Implementations block until
// the fetch completes or the context is canceled.
type Client interface {
	// Get returns the response body for url as a string.
	Get(ctx context.Context, url string) (string, error)

	// Ping verifies that the underlying transport itself is reachable.
	// A Ping failure means the whole batch would fail, as opposed to
	// individual targets being offline.
	Ping(ctx context.Context) error
}

// Config holds Tor client configuration.
type Config struct {
	// ProxyAddr is the SOCKS5 proxy address (host:port).
	ProxyAddr string
	// Timeout is the per-request timeout.
	Timeout time.Duration
	// RequestsPerSecond caps the request rate against the proxy (0 = no limit).
	RequestsPerSecond float64
	// Burst is the rate limiter burst size.
	Burst int
	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64
	// UserAgent overrides the default request User-Agent.
	UserAgent string
}

// TorClient is a Client that routes all requests through a SOCKS5 proxy.
type TorClient struct {
	http      *http.Client
	proxyAddr string
	limiter   *rate.Limiter
	maxBody   int64
	userAgent string
}

// NewTorClient creates a Tor-backed Client.
func NewTorClient(cfg Config) (*TorClient, error) {
	proxyAddr := cfg.ProxyAddr
	if proxyAddr == "" {
		proxyAddr = defaultProxyAddr
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	proxyURL, err := url.Parse("socks5://" + proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("parse proxy address: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &TorClient{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyURL(proxyURL),
				DisableKeepAlives:   true,
				MaxIdleConnsPerHost: 1,
			},
		},
		proxyAddr: proxyAddr,
		limiter:   limiter,
		maxBody:   maxBody,
		userAgent: userAgent,
	}, nil
}

// Get fetches url through the proxy and returns the body.
func (c *TorClient) Get(ctx context.Context, rawURL string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	return string(body), nil
}

// Ping dials the SOCKS5 proxy to check that Tor is up at all.
func (c *TorClient) Ping(ctx context.Context) error {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddr)
	if err != nil {
		return fmt.Errorf("tor proxy %s unreachable: %w", c.proxyAddr, err)
	}
	return conn.Close()
}
