package client

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/Muhammadurasheed/genesis-breaker/internal/circuitbreaker"
)

// HTTPClient wraps http.Client with per-host circuit breakers. Each target
// host gets its own breaker from the registry, so one failing host never
// blocks traffic to another.
type HTTPClient struct {
	client   *http.Client
	registry *circuitbreaker.Registry
}

// NewHTTPClient creates an HTTP client guarded by the given registry
func NewHTTPClient(registry *circuitbreaker.Registry) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		registry: registry,
	}
}

// Get performs a GET request through the circuit breaker
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, url, nil)
}

// Post performs a POST request through the circuit breaker
func (c *HTTPClient) Post(ctx context.Context, url string, body io.Reader) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, url, body)
}

// Do performs an HTTP request through the breaker of the request's host
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response

	result := c.registry.Execute(req.Context(), req.URL.Host, func(ctx context.Context) (any, error) {
		var err error
		resp, err = c.client.Do(req.WithContext(ctx))
		return nil, err
	}, nil)

	if result.Err != nil {
		return nil, result.Err
	}
	return resp, nil
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Status returns the breaker snapshot for a host, if one exists
func (c *HTTPClient) Status(host string) (circuitbreaker.StatusView, bool) {
	return c.registry.Status(host)
}
