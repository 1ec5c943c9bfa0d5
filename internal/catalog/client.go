package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"storefront/internal/model"
	"storefront/internal/transport"
)

// serviceName labels upstream errors.
const serviceName = "catalog"

// maxResponseSize caps catalog response bodies.
const maxResponseSize = 10 << 20 // 10MB

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Config holds catalog client configuration. Endpoint is passed in explicitly
// at startup; there is no package-level endpoint.
type Config struct {
	// Endpoint is the API root, e.g. "http://10.0.0.5:8082/api/v1".
	Endpoint    string
	Timeout     time.Duration
	Fingerprint transport.Fingerprint

	// HTTPClient overrides the client built from Timeout/Fingerprint (tests).
	HTTPClient *http.Client
}

// Client implements Service over the catalog's REST API:
//
//	GET {endpoint}/products                → 200 [Product...]
//	GET {endpoint}/products/search?value=q → 200 [Product...] | 404 no matches
type Client struct {
	httpClient *http.Client
	endpoint   string
}

// New creates a catalog client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("catalog endpoint is required")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("catalog endpoint must be http or https, got %q", u.Scheme)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		rt, err := transport.New(cfg.Fingerprint, timeout)
		if err != nil {
			return nil, fmt.Errorf("creating transport: %w", err)
		}
		httpClient = &http.Client{Timeout: timeout, Transport: rt}
	}

	return &Client{
		httpClient: httpClient,
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
	}, nil
}

// FetchAll returns the full catalog. A 404 means the catalog is empty.
func (c *Client) FetchAll(ctx context.Context) ([]model.Product, error) {
	return c.getProducts(ctx, c.endpoint+"/products")
}

// Search queries the catalog's search endpoint. A 404 means no product matched
// and is returned as a not-found APIError.
func (c *Client) Search(ctx context.Context, query string) ([]model.Product, error) {
	q := url.Values{}
	q.Set("value", query)
	return c.getProducts(ctx, c.endpoint+"/products/search?"+q.Encode())
}

func (c *Client) getProducts(ctx context.Context, rawURL string) ([]model.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating products request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, model.NewUpstreamError(serviceName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, model.NewUpstreamError(serviceName, fmt.Errorf("reading products response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, body)
	}

	var products []model.Product
	if err := json.Unmarshal(body, &products); err != nil {
		return nil, model.NewUpstreamError(serviceName, fmt.Errorf("parsing products response: %w", err))
	}
	if products == nil {
		products = []model.Product{}
	}
	return products, nil
}

// catalogError is the error body the catalog service sends alongside 4xx/5xx.
type catalogError struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// parseErrorResponse maps catalog HTTP errors onto the model error taxonomy.
func parseErrorResponse(statusCode int, body []byte) error {
	switch statusCode {
	case http.StatusNotFound:
		return model.NewNotFoundError("products")
	case http.StatusTooManyRequests:
		return model.NewRateLimitError(serviceName)
	}

	msg := strings.TrimSpace(string(body))
	var ce catalogError
	if err := json.Unmarshal(body, &ce); err == nil && ce.Message != "" {
		msg = ce.Message
	}
	return model.NewUpstreamError(serviceName, fmt.Errorf("status %d: %s", statusCode, truncate(msg, maxErrorMessage)))
}

// maxErrorMessage bounds how much of an upstream error body is kept, in bytes.
const maxErrorMessage = 200

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
