package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cars-scraper/adapters"
	"cars-scraper/extractor"
	"cars-scraper/internal/types"
	"cars-scraper/services"
	"cars-scraper/storage"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	defaults := types.DefaultConfig()

	var (
		searchURL     = flag.String("search-url", "", "Search results URL to scrape")
		urlsFlag      = flag.String("urls", "", "Comma-separated listing URLs to scrape instead of a search")
		stockType     = flag.String("stock", "used", "Stock type for a built search (used, new, cpo)")
		makeFlag      = flag.String("make", "", "Vehicle make for a built search")
		modelFlag     = flag.String("model", "", "Vehicle model for a built search")
		yearMin       = flag.Int("year-min", 0, "Minimum model year")
		yearMax       = flag.Int("year-max", 0, "Maximum model year")
		zipCode       = flag.String("zip", "", "ZIP code to search around")
		distance      = flag.Int("distance", 0, "Maximum distance from the ZIP code in miles")
		priceMin      = flag.Int("price-min", 0, "Minimum price")
		priceMax      = flag.Int("price-max", 0, "Maximum price")
		outputFlag    = flag.String("output", "", "JSON output file path (default: stdout)")
		csvFlag       = flag.String("csv", "", "Also write listings to this CSV file")
		dataDir       = flag.String("data-dir", "", "Also save listings as <dir>/<make>/<model>/<id>/")
		postgresDSN   = flag.String("postgres", os.Getenv("DATABASE_URL"), "PostgreSQL DSN to upsert listings into")
		maxConcurrent = flag.Int("concurrent", defaults.MaxConcurrentPages, "Maximum concurrent browser sessions (1-10)")
		minDelay      = flag.Duration("min-delay", defaults.MinDelay, "Minimum delay before extracting a listing")
		maxDelay      = flag.Duration("max-delay", defaults.MaxDelay, "Maximum delay before extracting a listing")
		maxRetries    = flag.Int("retries", defaults.MaxRetries, "Retries per listing after the first attempt")
		maxListings   = flag.Int("max-listings", defaults.MaxListingsPerPage, "Maximum listings taken from the search page")
		saveImages    = flag.Bool("images", false, "Download listing images")
		imageDir      = flag.String("image-dir", defaults.ImageDirectory, "Directory for downloaded images")
		timeout       = flag.Duration("timeout", defaults.Browser.Timeout, "Timeout for each navigation and query")
		runTimeout    = flag.Duration("run-timeout", 30*time.Minute, "Timeout for the whole run")
		headless      = flag.Bool("headless", true, "Run the browser without a window")
		httpOnly      = flag.Bool("http-only", false, "Use HTTP requests only (disable headless browser)")
		seed          = flag.Int64("seed", 0, "Random seed for delays and user agents (0 = time based)")
		report        = flag.Bool("report", true, "Print a summary report")
		verbose       = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	query := types.SearchQuery{
		StockType:   *stockType,
		Make:        *makeFlag,
		Model:       *modelFlag,
		YearMin:     *yearMin,
		YearMax:     *yearMax,
		ZipCode:     *zipCode,
		MaxDistance: *distance,
		PriceMin:    *priceMin,
		PriceMax:    *priceMax,
	}

	var listingURLs []string
	if *urlsFlag != "" {
		for _, u := range strings.Split(*urlsFlag, ",") {
			if u = strings.TrimSpace(u); u != "" {
				listingURLs = append(listingURLs, u)
			}
		}
	}
	if *searchURL != "" && len(listingURLs) > 0 {
		log.Fatal("Cannot use both --search-url and --urls flags")
	}
	if *searchURL == "" && len(listingURLs) == 0 {
		*searchURL = adapters.BuildSearchURL(query)
	}

	// Setup logging
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	if levelStr := os.Getenv("LOG_LEVEL"); levelStr != "" {
		if level, err := logrus.ParseLevel(levelStr); err == nil {
			logger.SetLevel(level)
		}
	} else if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	config := defaults
	config.MaxConcurrentPages = *maxConcurrent
	config.MinDelay = *minDelay
	config.MaxDelay = *maxDelay
	config.MaxRetries = *maxRetries
	config.MaxListingsPerPage = *maxListings
	config.SaveImages = *saveImages
	config.ImageDirectory = *imageDir
	config.UseHeadlessBrowser = !*httpOnly
	config.Seed = *seed
	config.Browser.Headless = *headless
	config.Browser.Timeout = *timeout

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *runTimeout)
	defer cancel()

	scraper, err := extractor.NewScraper(config, logger)
	if err != nil {
		logger.Fatalf("Failed to create scraper: %v", err)
	}
	defer scraper.Close()

	var result *extractor.BatchResult
	if len(listingURLs) > 0 {
		logger.Infof("Scraping %d listing URLs", len(listingURLs))
		result, err = scraper.ScrapeURLs(ctx, listingURLs)
	} else {
		logger.Infof("Scraping search: %s", *searchURL)
		result, err = scraper.ScrapeSearchPage(ctx, *searchURL)
	}
	if err != nil {
		logger.Fatalf("Scrape failed: %v", err)
	}

	if err := writeOutputs(ctx, logger, scraper, result.Listings, *outputFlag, *csvFlag, *dataDir, *postgresDSN); err != nil {
		logger.Fatalf("Failed to save results: %v", err)
	}

	if *report {
		services.PrintReport(os.Stderr, services.GenerateReport(result.Listings))
	}

	logger.Infof("Scrape completed in %v", result.Duration)
	logger.Infof("Listings discovered: %d", result.Discovered)
	logger.Infof("Listings scraped: %d", len(result.Listings))
	logger.Infof("Listings failed: %d", result.Failed)
}

func writeOutputs(ctx context.Context, logger *logrus.Logger, scraper *extractor.Scraper, listings []*types.ListingRecord, output, csvPath, dataDir, dsn string) error {
	if dataDir != "" {
		writer := storage.NewHierarchicalWriter(dataDir, scraper.Fetcher(), logger)
		if _, err := writer.Write(ctx, listings); err != nil {
			return err
		}
	}

	if output != "" {
		if err := storage.WriteJSON(output, listings); err != nil {
			return err
		}
		logger.Infof("Results written to: %s", output)
	} else {
		if listings == nil {
			listings = []*types.ListingRecord{}
		}
		jsonData, err := json.MarshalIndent(listings, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		fmt.Println(string(jsonData))
	}

	if csvPath != "" {
		if err := storage.NewCSVWriter(csvPath, logger).Write(listings); err != nil {
			return err
		}
	}

	if dsn != "" {
		pg, err := storage.NewPostgresWriter(ctx, dsn, logger)
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := pg.WriteBatch(ctx, listings); err != nil {
			return err
		}
	}

	return nil
}
