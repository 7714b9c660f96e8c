package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cars-scraper/adapters"
	"cars-scraper/internal/types"
	"cars-scraper/utils"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// BatchResult is the outcome of one scrape. Failed listings are counted and
// logged but never returned as an error.
type BatchResult struct {
	Listings   []*types.ListingRecord `json:"listings"`
	Discovered int                    `json:"discovered"`
	Failed     int                    `json:"failed"`
	Duration   time.Duration          `json:"duration"`
}

// Scraper discovers listings on search pages and scrapes them concurrently.
// No more than Config.MaxConcurrentPages sessions are open at any instant.
type Scraper struct {
	config   *types.Config
	logger   types.Logger
	renderer types.Renderer
	fetcher  types.Fetcher
	adapter  types.SiteAdapter
	images   *ImageDownloader
	jitter   *utils.Jitter
	gate     *semaphore.Weighted

	closers []func()
}

// Option customizes a Scraper
type Option func(*Scraper)

// WithRenderer sets the session renderer instead of launching one
func WithRenderer(r types.Renderer) Option {
	return func(s *Scraper) { s.renderer = r }
}

// WithFetcher sets the byte fetcher used for image downloads
func WithFetcher(f types.Fetcher) Option {
	return func(s *Scraper) { s.fetcher = f }
}

// WithAdapter sets the site adapter. The default is cars.com.
func WithAdapter(a types.SiteAdapter) Option {
	return func(s *Scraper) { s.adapter = a }
}

// NewScraper validates config and builds a scraper. Without WithRenderer it
// launches a headless browser, or uses plain HTTP when
// Config.UseHeadlessBrowser is off.
func NewScraper(config *types.Config, logger types.Logger, opts ...Option) (*Scraper, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Scraper{
		config: config,
		logger: logger,
		jitter: utils.NewJitter(config.Seed),
		gate:   semaphore.NewWeighted(int64(config.MaxConcurrentPages)),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.adapter == nil {
		s.adapter = adapters.NewCarsComAdapter(config, logger)
	}

	var client *utils.HTTPClient
	if s.fetcher == nil || (s.renderer == nil && !config.UseHeadlessBrowser) {
		client = utils.NewHTTPClient(config, logger)
		s.closers = append(s.closers, client.Close)
	}
	if s.fetcher == nil {
		s.fetcher = client
	}

	if s.renderer == nil {
		if config.UseHeadlessBrowser {
			browser, err := utils.NewBrowserRenderer(&config.Browser, s.jitter, logger)
			if err != nil {
				s.Close()
				return nil, err
			}
			s.renderer = browser
			s.closers = append(s.closers, browser.Close)
		} else {
			s.renderer = utils.NewHTTPRenderer(client)
		}
	}

	s.images = NewImageDownloader(s.fetcher, config.ImageDirectory, logger)
	return s, nil
}

// SiteName returns the name of the marketplace being scraped
func (s *Scraper) SiteName() string {
	return s.adapter.GetSiteName()
}

// Fetcher returns the fetcher used for image downloads
func (s *Scraper) Fetcher() types.Fetcher {
	return s.fetcher
}

// DiscoverListings loads a search results page and returns its listing URLs
func (s *Scraper) DiscoverListings(ctx context.Context, searchURL string) ([]string, error) {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.gate.Release(1)

	var urls []string
	err := utils.Retry(ctx, s.config.MaxRetries, s.config.BackoffUnit, s.logger, func(attempt int) error {
		found, err := s.discoverOnce(ctx, searchURL)
		if err != nil {
			return err
		}
		urls = found
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover listings on %s: %w", searchURL, err)
	}

	if limit := s.config.MaxListingsPerPage; len(urls) > limit {
		urls = urls[:limit]
	}
	return urls, nil
}

func (s *Scraper) discoverOnce(ctx context.Context, searchURL string) ([]string, error) {
	page, err := s.renderer.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer s.closePage(page)

	s.logger.Infof("Loading search page %s", searchURL)
	if err := page.Navigate(ctx, searchURL); err != nil {
		return nil, err
	}
	if err := page.Settle(ctx); err != nil {
		s.logger.Debugf("Settling search page failed: %v", err)
	}

	return s.adapter.DiscoverListingURLs(ctx, page)
}

// ScrapeSearchPage discovers the listings on searchURL and scrapes each of them
func (s *Scraper) ScrapeSearchPage(ctx context.Context, searchURL string) (*BatchResult, error) {
	urls, err := s.DiscoverListings(ctx, searchURL)
	if err != nil {
		return nil, err
	}
	s.logger.Infof("Found %d listings to scrape", len(urls))

	return s.ScrapeURLs(ctx, urls)
}

// ScrapeURLs scrapes an explicit list of listing URLs. Listings come back in
// completion order. A listing that fails after every retry is dropped and
// counted in Failed.
func (s *Scraper) ScrapeURLs(ctx context.Context, urls []string) (*BatchResult, error) {
	start := time.Now()
	result := &BatchResult{Discovered: len(urls)}

	type outcome struct {
		url    string
		record *types.ListingRecord
		err    error
	}
	outcomes := make(chan outcome, len(urls))

	// A plain group: one listing failing must not cancel its siblings.
	var g errgroup.Group
	for i, u := range urls {
		u := u
		if err := s.gate.Acquire(ctx, 1); err != nil {
			s.logger.Warnf("Batch cancelled, %d listings not started", len(urls)-i)
			result.Failed += len(urls) - i
			break
		}

		g.Go(func() error {
			defer s.gate.Release(1)
			record, err := s.scrapeWithRetry(ctx, u)
			outcomes <- outcome{url: u, record: record, err: err}
			return nil
		})
	}

	_ = g.Wait()
	close(outcomes)

	for o := range outcomes {
		if o.err != nil {
			s.logger.Errorf("Listing %s failed [%s]: %v", o.url, failureCode(o.err), o.err)
			result.Failed++
			continue
		}
		result.Listings = append(result.Listings, o.record)
	}

	result.Duration = time.Since(start)
	s.logger.Infof("Scraped %d listings | Failed: %d | Took %v", len(result.Listings), result.Failed, result.Duration)
	return result, nil
}

// ScrapeListing scrapes a single listing page with retries
func (s *Scraper) ScrapeListing(ctx context.Context, url string) (*types.ListingRecord, error) {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.gate.Release(1)

	return s.scrapeWithRetry(ctx, url)
}

func (s *Scraper) scrapeWithRetry(ctx context.Context, url string) (*types.ListingRecord, error) {
	var record *types.ListingRecord
	err := utils.Retry(ctx, s.config.MaxRetries, s.config.BackoffUnit, s.logger, func(attempt int) error {
		s.logger.Debugf("Scraping %s (attempt %d/%d)", url, attempt+1, s.config.MaxRetries+1)
		r, err := s.scrapeOnce(ctx, url)
		if err != nil {
			return err
		}
		record = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// scrapeOnce is one attempt: open, navigate, delay, settle, extract, download
func (s *Scraper) scrapeOnce(ctx context.Context, url string) (*types.ListingRecord, error) {
	page, err := s.renderer.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer s.closePage(page)

	if err := page.Navigate(ctx, url); err != nil {
		return nil, err
	}
	if err := s.jitter.RandomDelay(ctx, s.config.MinDelay, s.config.MaxDelay); err != nil {
		return nil, err
	}
	// Extraction tolerates partially loaded content.
	if err := page.Settle(ctx); err != nil {
		s.logger.Debugf("Settling %s failed: %v", url, err)
	}

	record, err := s.adapter.ExtractListing(ctx, page, url)
	if err != nil {
		return nil, err
	}

	if s.config.SaveImages {
		saved := s.images.Download(ctx, record)
		s.logger.Debugf("Saved %d/%d images for %s", saved, len(record.Images()), url)
	}
	return record, nil
}

func (s *Scraper) closePage(page types.Page) {
	if err := page.Close(); err != nil {
		s.logger.Debugf("Closing session failed: %v", err)
	}
}

// Close releases the browser and HTTP connections the scraper created
func (s *Scraper) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func failureCode(err error) string {
	if code := types.ErrorCode(err); code != "" {
		return code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ErrCodeTimeout
	}
	return "UNKNOWN"
}
