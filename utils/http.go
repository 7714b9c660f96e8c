package utils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"cars-scraper/internal/types"

	"golang.org/x/time/rate"
)

// HTTPClient provides HTTP functionality with rate limiting and retries
type HTTPClient struct {
	client  *http.Client
	config  *types.Config
	logger  types.Logger
	limiter *rate.Limiter
}

// NewHTTPClient creates a new HTTP client with the given configuration
func NewHTTPClient(config *types.Config, logger types.Logger) *HTTPClient {
	client := &http.Client{
		Timeout: config.Browser.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	limit := rate.Inf
	if config.RequestDelay > 0 {
		limit = rate.Every(config.RequestDelay)
	}

	return &HTTPClient{
		client:  client,
		config:  config,
		logger:  logger,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Fetch performs a GET request with rate limiting and retries and returns the
// body together with the declared content type.
func (h *HTTPClient) Fetch(ctx context.Context, url string) (*types.FetchResult, error) {
	var lastErr error

	for attempt := 0; attempt <= h.config.MaxRetries; attempt++ {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		h.logger.Debugf("Making request to %s (attempt %d/%d)", url, attempt+1, h.config.MaxRetries+1)
		result, err := h.do(ctx, url)
		if err == nil {
			h.logger.Debugf("Successfully retrieved %d bytes from %s", len(result.Body), url)
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		h.logger.Warnf("Request to %s failed (attempt %d): %v", url, attempt+1, err)
	}

	return nil, fmt.Errorf("all retry attempts failed: %w", lastErr)
}

// Get returns only the body of url
func (h *HTTPClient) Get(ctx context.Context, url string) ([]byte, error) {
	result, err := h.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return result.Body, nil
}

// fetchOnce makes a single paced request. Page loads go through here so the
// caller's retry policy is the only one applied to them.
func (h *HTTPClient) fetchOnce(ctx context.Context, url string) (*types.FetchResult, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	h.logger.Debugf("Loading page %s", url)
	return h.do(ctx, url)
}

func (h *HTTPClient) do(ctx context.Context, url string) (*types.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	userAgent := h.config.Browser.UserAgent
	if userAgent == "" {
		userAgent = userAgents[0]
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &types.FetchResult{Body: body, ContentType: resp.Header.Get("Content-Type")}, nil
}

// Close cleans up resources
func (h *HTTPClient) Close() {
	h.client.CloseIdleConnections()
}

// HTTPRenderer opens static sessions that load pages with plain HTTP requests.
// It is used when the headless browser is disabled.
type HTTPRenderer struct {
	client *HTTPClient
}

// NewHTTPRenderer creates a renderer over client
func NewHTTPRenderer(client *HTTPClient) *HTTPRenderer {
	return &HTTPRenderer{client: client}
}

// Open returns a new page whose navigations are single HTTP GETs
func (r *HTTPRenderer) Open(ctx context.Context) (types.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &StaticPage{load: func(ctx context.Context, url string) (string, error) {
		result, err := r.client.fetchOnce(ctx, url)
		if err != nil {
			return "", err
		}
		return string(result.Body), nil
	}}, nil
}

var (
	_ types.Fetcher  = (*HTTPClient)(nil)
	_ types.Renderer = (*HTTPRenderer)(nil)
)
