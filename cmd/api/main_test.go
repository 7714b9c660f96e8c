package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cars-scraper/adapters"
	"cars-scraper/extractor"
	"cars-scraper/internal/types"
	"cars-scraper/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const civicURL = "https://www.cars.com/vehicledetail/civic/"

func newTestServer(t *testing.T, pages map[string]string) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	config := types.DefaultConfig()
	config.MinDelay = 100 * time.Millisecond
	config.MaxDelay = 100 * time.Millisecond
	config.MaxRetries = 0
	config.BackoffUnit = 0

	scraper, err := extractor.NewScraper(config, logger, extractor.WithRenderer(utils.NewStaticRenderer(pages)))
	require.NoError(t, err)

	server := &Server{logger: logger, scraper: scraper, startTime: time.Now()}
	t.Cleanup(server.Close)
	return server
}

func doRequest(t *testing.T, server *Server, method, path string, body any) (*httptest.ResponseRecorder, ScrapeResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.router().ServeHTTP(w, req)

	var resp ScrapeResponse
	if w.Code != http.StatusOK || path == "/scrape" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func civicPage() string {
	return `<html><body><h1>2021 Honda Civic</h1><span data-testid="price">$18,500</span></body></html>`
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, nil)

	w, _ := doRequest(t, server, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "cars.com", body["site"])
}

func TestScrape_URLs(t *testing.T) {
	server := newTestServer(t, map[string]string{civicURL: civicPage()})

	w, resp := doRequest(t, server, http.MethodPost, "/scrape", ScrapeRequest{
		URLs: []string{civicURL, " ", "https://www.cars.com/vehicledetail/missing/"},
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Data)
	assert.Equal(t, 2, resp.Data.Discovered)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Listings, 1)
	assert.Equal(t, "Civic", resp.Data.Listings[0].Model)
}

func TestScrape_Query(t *testing.T) {
	query := types.SearchQuery{StockType: "used", Make: "Honda"}
	server := newTestServer(t, map[string]string{
		adapters.BuildSearchURL(query): `<html><body><a href="/vehicledetail/civic/">Civic</a></body></html>`,
		civicURL:                       civicPage(),
	})

	w, resp := doRequest(t, server, http.MethodPost, "/scrape", ScrapeRequest{Query: &query})

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, resp.Data)
	assert.Equal(t, 1, resp.Data.Discovered)
	require.Len(t, resp.Data.Listings, 1)
	assert.Equal(t, civicURL, resp.Data.Listings[0].URL)
}

func TestScrape_InvalidInput(t *testing.T) {
	server := newTestServer(t, nil)

	tests := []struct {
		name string
		body any
	}{
		{"empty", ScrapeRequest{}},
		{"two sources", ScrapeRequest{SearchURL: "https://www.cars.com/shopping/results/", URLs: []string{civicURL}}},
		{"relative search url", ScrapeRequest{SearchURL: "/shopping/results/"}},
		{"malformed json", "not an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := doRequest(t, server, http.MethodPost, "/scrape", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, errCodeInvalidInput, resp.Error.Code)
		})
	}
}

func TestScrape_SearchPageUnavailable(t *testing.T) {
	server := newTestServer(t, nil)

	w, resp := doRequest(t, server, http.MethodPost, "/scrape", ScrapeRequest{
		SearchURL: "https://www.cars.com/shopping/results/?makes[]=honda",
	})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, types.ErrCodeNavigation, resp.Error.Code)
}
