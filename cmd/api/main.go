package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"cars-scraper/adapters"
	"cars-scraper/extractor"
	"cars-scraper/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	errCodeInvalidInput = "INVALID_INPUT"
	errCodeScrapeFailed = "SCRAPE_FAILED"

	requestTimeout = 10 * time.Minute
)

// ScrapeRequest is the body of POST /scrape. Exactly one of SearchURL, Query
// or URLs must be set.
type ScrapeRequest struct {
	SearchURL string             `json:"search_url"`
	Query     *types.SearchQuery `json:"query"`
	URLs      []string           `json:"urls"`
}

// ErrorDetail describes a failed request
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeResponse represents the response from the API
type ScrapeResponse struct {
	Success bool                   `json:"success"`
	Data    *extractor.BatchResult `json:"data,omitempty"`
	Error   *ErrorDetail           `json:"error,omitempty"`
}

// Server holds the API server configuration
type Server struct {
	logger    *logrus.Logger
	scraper   *extractor.Scraper
	startTime time.Time
}

// NewServer creates a new API server with a scraper built from the environment
func NewServer() (*Server, error) {
	// Load .env file if present
	_ = godotenv.Load()

	// Setup logging
	logger := logrus.New()

	// Set timestamp format with milliseconds
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	if levelStr := os.Getenv("LOG_LEVEL"); levelStr != "" {
		if level, err := logrus.ParseLevel(levelStr); err == nil {
			logger.SetLevel(level)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	config := types.DefaultConfig()
	if os.Getenv("SCRAPER_HTTP_ONLY") == "true" {
		config.UseHeadlessBrowser = false
	}

	scraper, err := extractor.NewScraper(config, logger)
	if err != nil {
		return nil, err
	}

	return &Server{
		logger:    logger,
		scraper:   scraper,
		startTime: time.Now(),
	}, nil
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", s.handleHealth)
	r.POST("/scrape", s.handleScrape)

	return r
}

// handleScrape runs one scrape batch and returns its listings
func (s *Server) handleScrape(c *gin.Context) {
	var req ScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendError(c, http.StatusBadRequest, errCodeInvalidInput, err.Error())
		return
	}

	searchURL, urls, err := req.resolve()
	if err != nil {
		s.sendError(c, http.StatusBadRequest, errCodeInvalidInput, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	var result *extractor.BatchResult
	if len(urls) > 0 {
		s.logger.Infof("API request received for %d listing URLs", len(urls))
		result, err = s.scraper.ScrapeURLs(ctx, urls)
	} else {
		s.logger.Infof("API request received for search: %s", searchURL)
		result, err = s.scraper.ScrapeSearchPage(ctx, searchURL)
	}
	if err != nil {
		code := types.ErrorCode(err)
		if code == "" {
			code = errCodeScrapeFailed
		}
		s.sendError(c, http.StatusBadGateway, code, err.Error())
		return
	}

	c.JSON(http.StatusOK, ScrapeResponse{
		Success: true,
		Data:    result,
	})
}

// resolve returns either a search URL or a list of listing URLs
func (r *ScrapeRequest) resolve() (string, []string, error) {
	var urls []string
	for _, u := range r.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	searchURL := strings.TrimSpace(r.SearchURL)

	set := 0
	for _, present := range []bool{searchURL != "", r.Query != nil, len(urls) > 0} {
		if present {
			set++
		}
	}
	if set != 1 {
		return "", nil, errors.New("exactly one of search_url, query or urls is required")
	}

	if r.Query != nil {
		searchURL = adapters.BuildSearchURL(*r.Query)
	}
	if searchURL != "" && !adapters.IsAbsoluteHTTPURL(searchURL) {
		return "", nil, fmt.Errorf("search_url must be an absolute http(s) URL: %q", searchURL)
	}
	return searchURL, urls, nil
}

// sendError sends an error response
func (s *Server) sendError(c *gin.Context, status int, code, message string) {
	s.logger.Warnf("Request failed with %s: %s", code, message)
	c.JSON(status, ScrapeResponse{
		Success: false,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"site":   s.scraper.SiteName(),
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

// Start starts the API server
func (s *Server) Start(port string) error {
	s.logger.Infof("Starting API server on port %s", port)
	s.logger.Info("Available endpoints:")
	s.logger.Info("  POST /scrape - Scrape vehicle listings from a search or a URL list")
	s.logger.Info("  GET  /health - Health check")

	return s.router().Run(":" + port)
}

// Close releases the scraper's browser and HTTP resources
func (s *Server) Close() {
	s.scraper.Close()
}

func main() {
	// Get port from environment variable, default to 8080
	serverPort := "8080"
	if envPort := os.Getenv("API_PORT"); envPort != "" {
		serverPort = envPort
		fmt.Printf("Using port from environment variable API_PORT: %s\n", serverPort)
	} else {
		fmt.Printf("No API_PORT environment variable found, using default: %s\n", serverPort)
	}

	server, err := NewServer()
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	defer server.Close()

	log.Printf("Starting API server on port %s", serverPort)
	if err := server.Start(serverPort); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
