package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cars-scraper/internal/types"
)

// csvColumns is the fixed column order of exported listings
var csvColumns = []string{
	"listing_id", "url", "make", "model", "year", "condition", "price", "mileage",
	"vin", "location", "dealer_name", "exterior_color", "interior_color",
	"transmission", "drivetrain", "fuel_type", "mpg_city", "mpg_highway",
	"engine", "image_count", "scraped_at",
}

// CSVWriter saves listings to a CSV file, one row per listing
type CSVWriter struct {
	path   string
	logger types.Logger
}

// NewCSVWriter creates a writer for path
func NewCSVWriter(path string, logger types.Logger) *CSVWriter {
	return &CSVWriter{path: path, logger: logger}
}

// Write saves all listings. Writing an empty batch only logs a warning.
func (w *CSVWriter) Write(listings []*types.ListingRecord) error {
	if len(listings) == 0 {
		w.logger.Warn("No listings to write")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("could not create output dir: %w", err)
	}

	file, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvColumns); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}
	for _, l := range listings {
		if err := writer.Write(csvRow(l)); err != nil {
			return fmt.Errorf("csv write error: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}

	w.logger.Infof("Saved %d listings to %s", len(listings), w.path)
	return nil
}

func csvRow(l *types.ListingRecord) []string {
	price := ""
	if l.Price != nil {
		price = l.Price.StringFixed(2)
	}

	return []string{
		l.ID.String(),
		l.URL,
		l.Make,
		l.Model,
		strconv.Itoa(l.Year),
		string(l.Condition),
		price,
		optionalInt(l.Mileage),
		l.VIN,
		l.Location,
		l.DealerName,
		l.ExteriorColor,
		l.InteriorColor,
		l.Transmission,
		l.Drivetrain,
		l.FuelType,
		optionalInt(l.MPGCity),
		optionalInt(l.MPGHighway),
		l.Engine,
		strconv.Itoa(len(l.Images())),
		l.ScrapedAt.Format(time.RFC3339),
	}
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
