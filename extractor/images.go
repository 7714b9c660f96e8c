package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"cars-scraper/internal/types"
	"cars-scraper/utils"
)

// ImageDownloader stores listing images under <dir>/<listing id>/image_NN.ext
type ImageDownloader struct {
	fetcher types.Fetcher
	dir     string
	logger  types.Logger
}

// NewImageDownloader creates a downloader writing below dir
func NewImageDownloader(fetcher types.Fetcher, dir string, logger types.Logger) *ImageDownloader {
	return &ImageDownloader{
		fetcher: fetcher,
		dir:     dir,
		logger:  logger,
	}
}

// Download fetches every image of record that has no local path yet and
// records where it was stored. A failed image is logged and skipped. It
// returns the number of images saved.
func (d *ImageDownloader) Download(ctx context.Context, record *types.ListingRecord) int {
	listingDir := filepath.Join(d.dir, record.ID.String())
	saved := 0

	for _, img := range record.Images() {
		if img.LocalPath != "" {
			continue
		}

		path, err := d.save(ctx, listingDir, img)
		if err != nil {
			d.logger.Warnf("Failed to download image %d of %s: %v", img.Position, record.URL, err)
			continue
		}
		if err := record.SetImageLocalPath(img.Position, path); err != nil {
			d.logger.Warnf("Failed to record image path: %v", err)
			continue
		}
		saved++
	}

	return saved
}

func (d *ImageDownloader) save(ctx context.Context, dir string, img types.ImageRef) (string, error) {
	result, err := d.fetcher.Fetch(ctx, img.URL)
	if err != nil {
		return "", types.NewScrapeError(types.ErrCodeImageDownload, "fetch "+img.URL, err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}

	path := filepath.Join(dir, utils.ImageFileName(img.Position, utils.ImageExtension(img.URL, result.ContentType)))
	if err := os.WriteFile(path, result.Body, 0644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}

	d.logger.Debugf("Saved image %s", path)
	return path, nil
}
