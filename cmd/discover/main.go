package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"cars-scraper/adapters"
	"cars-scraper/extractor"
	"cars-scraper/internal/types"
	"cars-scraper/utils"
)

// Prints what a search results page exposes: raw link counts, then the
// listing URLs discovery keeps.
func main() {
	var (
		searchURL = flag.String("search-url", "", "Search results URL (default: built from -make/-model/-zip)")
		makeFlag  = flag.String("make", "honda", "Vehicle make")
		modelFlag = flag.String("model", "", "Vehicle model")
		zipCode   = flag.String("zip", "", "ZIP code")
		httpOnly  = flag.Bool("http-only", false, "Fetch with plain HTTP instead of a headless browser")
		samples   = flag.Int("samples", 10, "Number of sample links to print")
	)
	flag.Parse()

	if *searchURL == "" {
		*searchURL = adapters.BuildSearchURL(types.SearchQuery{
			StockType: "used",
			Make:      *makeFlag,
			Model:     *modelFlag,
			ZipCode:   *zipCode,
		})
	}

	config := types.DefaultConfig()
	config.UseHeadlessBrowser = !*httpOnly
	config.MaxRetries = 0
	config.Browser.Timeout = 60 * time.Second

	logger := &debugLogger{}

	renderer, closeRenderer, err := newRenderer(config, logger)
	if err != nil {
		log.Fatalf("Failed to start renderer: %v", err)
	}
	defer closeRenderer()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Printf("=== Inspecting %s ===\n", *searchURL)
	inspectLinks(ctx, renderer, *searchURL, *samples)

	scraper, err := extractor.NewScraper(config, logger, extractor.WithRenderer(renderer))
	if err != nil {
		log.Fatalf("Failed to create scraper: %v", err)
	}
	defer scraper.Close()

	urls, err := scraper.DiscoverListings(ctx, *searchURL)
	if err != nil {
		log.Fatalf("Discovery failed: %v", err)
	}

	fmt.Printf("\n=== Discovered %d listings on %s ===\n", len(urls), scraper.SiteName())
	for i, u := range urls {
		fmt.Printf("  %d: %s\n", i+1, u)
	}
}

func newRenderer(config *types.Config, logger types.Logger) (types.Renderer, func(), error) {
	if !config.UseHeadlessBrowser {
		client := utils.NewHTTPClient(config, logger)
		return utils.NewHTTPRenderer(client), client.Close, nil
	}

	browser, err := utils.NewBrowserRenderer(&config.Browser, utils.NewJitter(config.Seed), logger)
	if err != nil {
		return nil, nil, err
	}
	return browser, browser.Close, nil
}

func inspectLinks(ctx context.Context, renderer types.Renderer, searchURL string, samples int) {
	page, err := renderer.Open(ctx)
	if err != nil {
		log.Printf("Failed to open page: %v", err)
		return
	}
	defer page.Close()

	if err := page.Navigate(ctx, searchURL); err != nil {
		log.Printf("Failed to load search page: %v", err)
		return
	}
	_ = page.Settle(ctx)

	links, err := page.QueryAll(ctx, "a[href]")
	if err != nil {
		log.Printf("Failed to query links: %v", err)
		return
	}
	fmt.Printf("Total links found: %d\n", len(links))

	profile := adapters.CarsComProfile
	for _, keyword := range profile.ListingKeywords {
		count := 0
		for _, link := range links {
			if href, _ := link.Attr("href"); strings.Contains(href, keyword) {
				count++
			}
		}
		fmt.Printf("Links with '%s' in href: %d\n", keyword, count)
	}

	fmt.Println("Sample of all links:")
	printed := 0
	for i, link := range links {
		if printed >= samples {
			break
		}
		href, _ := link.Attr("href")
		if href != "" && len(href) < 100 {
			fmt.Printf("  %d: href='%s', text='%s'\n", i+1, href, link.Text)
			printed++
		}
	}
}

type debugLogger struct{}

func (d *debugLogger) Debug(args ...interface{})                 { fmt.Println(args...) }
func (d *debugLogger) Info(args ...interface{})                  { fmt.Println(args...) }
func (d *debugLogger) Warn(args ...interface{})                  { fmt.Println(args...) }
func (d *debugLogger) Error(args ...interface{})                 { fmt.Println(args...) }
func (d *debugLogger) Debugf(format string, args ...interface{}) { fmt.Printf(format+"\n", args...) }
func (d *debugLogger) Infof(format string, args ...interface{})  { fmt.Printf(format+"\n", args...) }
func (d *debugLogger) Warnf(format string, args ...interface{})  { fmt.Printf(format+"\n", args...) }
func (d *debugLogger) Errorf(format string, args ...interface{}) { fmt.Printf(format+"\n", args...) }
