package types

import (
	"context"
	"fmt"
	"time"
)

// BrowserConfig holds the settings for each browsing session
type BrowserConfig struct {
	Headless       bool
	UserAgent      string // empty picks a random agent per session
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	Timezone       string
	Timeout        time.Duration // bound on every navigation and query
	SettleDelay    time.Duration // pause between simulated user actions
}

// Config holds the configuration for the scraper
type Config struct {
	Browser            BrowserConfig
	MaxConcurrentPages int
	MinDelay           time.Duration
	MaxDelay           time.Duration
	MaxRetries         int
	BackoffUnit        time.Duration
	MaxListingsPerPage int
	SaveImages         bool
	ImageDirectory     string
	RequestDelay       time.Duration // pacing for raw image fetches
	UseHeadlessBrowser bool
	Seed               int64 // 0 seeds from the clock
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:       true,
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			Locale:         "en-US",
			Timezone:       "America/New_York",
			Timeout:        30 * time.Second,
			SettleDelay:    100 * time.Millisecond,
		},
		MaxConcurrentPages: 3,
		MinDelay:           1 * time.Second,
		MaxDelay:           3 * time.Second,
		MaxRetries:         3,
		BackoffUnit:        1 * time.Second,
		MaxListingsPerPage: 25,
		SaveImages:         false,
		ImageDirectory:     "./images",
		RequestDelay:       200 * time.Millisecond,
		UseHeadlessBrowser: true,
	}
}

// Validate rejects configurations the scraper cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.MaxConcurrentPages < 1 || c.MaxConcurrentPages > 10:
		return invalidConfig("concurrency limit must be between 1 and 10, got %d", c.MaxConcurrentPages)
	case c.MinDelay < 100*time.Millisecond:
		return invalidConfig("minimum delay must be at least 100ms, got %v", c.MinDelay)
	case c.MaxDelay < c.MinDelay:
		return invalidConfig("maximum delay %v is below minimum delay %v", c.MaxDelay, c.MinDelay)
	case c.MaxRetries < 0 || c.MaxRetries > 10:
		return invalidConfig("retry budget must be between 0 and 10, got %d", c.MaxRetries)
	case c.BackoffUnit < 0:
		return invalidConfig("backoff unit must not be negative, got %v", c.BackoffUnit)
	case c.MaxListingsPerPage < 1:
		return invalidConfig("listing cap must be at least 1, got %d", c.MaxListingsPerPage)
	case c.SaveImages && c.ImageDirectory == "":
		return invalidConfig("image directory is required when image download is enabled")
	case c.RequestDelay < 0:
		return invalidConfig("request delay must not be negative, got %v", c.RequestDelay)
	}
	return c.Browser.Validate()
}

// Validate checks the browser session settings.
func (b *BrowserConfig) Validate() error {
	switch {
	case b.ViewportWidth < 800 || b.ViewportHeight < 600:
		return invalidConfig("viewport must be at least 800x600, got %dx%d", b.ViewportWidth, b.ViewportHeight)
	case b.Timeout < time.Second:
		return invalidConfig("timeout must be at least 1s, got %v", b.Timeout)
	case b.SettleDelay < 0 || b.SettleDelay > 5*time.Second:
		return invalidConfig("settle delay must be between 0 and 5s, got %v", b.SettleDelay)
	}
	return nil
}

func invalidConfig(format string, args ...interface{}) error {
	return NewScrapeError(ErrCodeInvalidConfig, fmt.Sprintf(format, args...), ErrInvalidConfig)
}

// Element is a snapshot of one DOM element returned by a query
type Element struct {
	Text     string            `json:"text"`
	Attrs    map[string]string `json:"attrs"`
	NextText string            `json:"next"` // text of the next element sibling, if any
}

// Attr returns the named attribute and whether it was present
func (e Element) Attr(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// Page is one open browsing session.
type Page interface {
	// Navigate loads url and returns once the document is ready
	Navigate(ctx context.Context, url string) error

	// Settle runs the simulated user activity that lets lazy content load
	Settle(ctx context.Context) error

	// QueryAll returns every element matching a CSS selector, in document order
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	// BodyText returns the rendered text of the document body
	BodyText(ctx context.Context) (string, error)

	// Content returns the serialized HTML of the document
	Content(ctx context.Context) (string, error)

	// Close releases the session. It is safe to call more than once.
	Close() error
}

// Renderer opens isolated browsing sessions
type Renderer interface {
	Open(ctx context.Context) (Page, error)
}

// FetchResult is the raw response for a byte fetch
type FetchResult struct {
	Body        []byte
	ContentType string
}

// Fetcher fetches raw bytes by URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// SearchQuery describes a marketplace search
type SearchQuery struct {
	StockType   string `json:"stock_type"` // used, new or cpo
	Make        string `json:"make"`
	Model       string `json:"model"`
	YearMin     int    `json:"year_min"`
	YearMax     int    `json:"year_max"`
	ZipCode     string `json:"zip"`
	MaxDistance int    `json:"max_distance"`
	PriceMin    int    `json:"price_min"`
	PriceMax    int    `json:"price_max"`
}

// SiteAdapter defines the interface for marketplace-specific discovery and extraction
type SiteAdapter interface {
	// GetSiteName returns the name of the marketplace
	GetSiteName() string

	// DiscoverListingURLs returns the listing URLs on a loaded search results page
	DiscoverListingURLs(ctx context.Context, page Page) ([]string, error)

	// ExtractListing builds a record from a loaded listing page
	ExtractListing(ctx context.Context, page Page, url string) (*ListingRecord, error)
}

// Logger defines the logging interface
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
