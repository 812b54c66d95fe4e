package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	DefaultTimeout           = 30 * time.Second
	DefaultProxyURL          = "http://localhost:3000"
	DefaultUserAgent         = "CSV-Explorer/1.0"
	DefaultRestrictedDomains = []string{"data.healthcare.gov", "data.cdc.gov", "healthdata.gov"}
)

// ProxyPath is the endpoint restricted-domain fetches are routed through.
const ProxyPath = "/api/proxy/csv"

// Result is a fetched body plus the headers the cache records.
type Result struct {
	Text         string
	ETag         string
	LastModified string
	ContentType  string
}

// Fetcher retrieves CSV text for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}

// Config controls a Client. Zero values fall back to the package defaults.
type Config struct {
	Timeout           time.Duration
	ProxyURL          string
	RestrictedDomains []string
	UserAgent         string
	// RequestsPerSecond bounds outgoing requests; 0 means 10.
	RequestsPerSecond int
	// MaxBodyBytes caps a response body; 0 means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Client fetches CSV files over HTTP, routing restricted domains through
// the CSV proxy.
type Client struct {
	httpClient  *http.Client
	rateLimiter *RateLimiter
	proxyURL    string
	restricted  []string
	userAgent   string
	maxBody     int64
}

// NewClient creates a new fetch client
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ProxyURL == "" {
		cfg.ProxyURL = DefaultProxyURL
	}
	if cfg.RestrictedDomains == nil {
		cfg.RestrictedDomains = DefaultRestrictedDomains
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewRateLimiter(cfg.RequestsPerSecond, time.Second),
		proxyURL:    strings.TrimRight(cfg.ProxyURL, "/"),
		restricted:  cfg.RestrictedDomains,
		userAgent:   cfg.UserAgent,
		maxBody:     cfg.MaxBodyBytes,
	}
}

// NeedsProxy reports whether rawURL's host is one of the restricted domains
// or a subdomain of one.
func (c *Client) NeedsProxy(rawURL string) bool {
	return HostMatches(rawURL, c.restricted)
}

// Fetch downloads rawURL directly, or through the proxy for restricted hosts.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("rate limiter error: %w", err)}
	}

	req, err := c.newRequest(ctx, rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := ReadLimited(resp.Body, c.maxBody)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fe := &FetchError{
			URL:        rawURL,
			Status:     resp.StatusCode,
			StatusText: statusText(resp.StatusCode),
		}
		if err := json.Unmarshal(body, &fe.Detail); err != nil || fe.Detail.Error == "" {
			fe.Detail = Detail{Error: fe.StatusText, Hint: fe.Detail.Hint}
		}
		return nil, fe
	}

	return &Result{
		Text:         DecodeText(body, resp.Header.Get("Content-Type")),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		ContentType:  resp.Header.Get("Content-Type"),
	}, nil
}

// Close releases the client's rate limiter.
func (c *Client) Close() {
	c.rateLimiter.Close()
}

func (c *Client) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	if !c.NeedsProxy(rawURL) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.userAgent)
		return req, nil
	}

	payload, err := json.Marshal(map[string]string{"url": rawURL})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.proxyURL+ProxyPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// HostMatches reports whether the host of rawURL equals one of domains or
// ends with "." plus one of them. Unparseable URLs never match.
func HostMatches(rawURL string, domains []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
