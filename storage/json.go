package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cars-scraper/internal/types"
)

// WriteJSON saves listings as an indented JSON array, creating the parent
// directory if needed.
func WriteJSON(path string, listings []*types.ListingRecord) error {
	if listings == nil {
		listings = []*types.ListingRecord{}
	}

	data, err := json.MarshalIndent(listings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal listings to JSON: %w", err)
	}

	if err := writeFile(path, data); err != nil {
		return fmt.Errorf("failed to write listings: %w", err)
	}
	return nil
}

// LoadJSON reads listings saved by WriteJSON. Every record is validated again
// on the way in.
func LoadJSON(path string) ([]*types.ListingRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read listings: %w", err)
	}

	var listings []*types.ListingRecord
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("failed to parse listings from %s: %w", path, err)
	}
	return listings, nil
}

// writeListing saves a single listing as indented JSON
func writeListing(path string, l *types.ListingRecord) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal listing: %w", err)
	}
	if err := writeFile(path, data); err != nil {
		return fmt.Errorf("failed to write listing: %w", err)
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}
