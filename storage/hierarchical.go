package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cars-scraper/internal/types"
	"cars-scraper/utils"
)

// HierarchicalWriter saves each listing in its own directory:
//
//	<base>/<make>/<model>/<listing id>/listing.json
//	<base>/<make>/<model>/<listing id>/images/image_NN.ext
type HierarchicalWriter struct {
	baseDir string
	fetcher types.Fetcher
	logger  types.Logger
}

// NewHierarchicalWriter creates a writer rooted at baseDir. fetcher is used
// for images that were not downloaded during the scrape.
func NewHierarchicalWriter(baseDir string, fetcher types.Fetcher, logger types.Logger) *HierarchicalWriter {
	return &HierarchicalWriter{
		baseDir: baseDir,
		fetcher: fetcher,
		logger:  logger,
	}
}

// ListingDir returns the directory a listing is stored in
func (w *HierarchicalWriter) ListingDir(l *types.ListingRecord) string {
	return filepath.Join(w.baseDir, pathSegment(l.Make), pathSegment(l.Model), l.ID.String())
}

// Write stores every listing and returns how many were saved. Image failures
// are logged and leave that image without a local path.
func (w *HierarchicalWriter) Write(ctx context.Context, listings []*types.ListingRecord) (int, error) {
	if len(listings) == 0 {
		w.logger.Warn("No listings to save")
		return 0, nil
	}

	saved := 0
	for _, l := range listings {
		if err := ctx.Err(); err != nil {
			return saved, err
		}

		dir := w.ListingDir(l)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return saved, fmt.Errorf("failed to create listing directory: %w", err)
		}

		w.storeImages(ctx, l, filepath.Join(dir, "images"))

		if err := writeListing(filepath.Join(dir, "listing.json"), l); err != nil {
			return saved, err
		}

		saved++
		rel, _ := filepath.Rel(w.baseDir, dir)
		w.logger.Infof("Saved %s to %s", l.Title(), rel)
	}

	w.logger.Infof("Saved %d listings to %s", saved, w.baseDir)
	return saved, nil
}

// storeImages puts every image of l under imagesDir, reusing files downloaded
// during the scrape and fetching the rest.
func (w *HierarchicalWriter) storeImages(ctx context.Context, l *types.ListingRecord, imagesDir string) {
	images := l.Images()
	if len(images) == 0 {
		return
	}
	if err := os.MkdirAll(imagesDir, 0755); err != nil {
		w.logger.Warnf("Failed to create images directory for %s: %v", l.URL, err)
		return
	}

	for _, img := range images {
		path, err := w.storeImage(ctx, img, imagesDir)
		if err != nil {
			w.logger.Warnf("Failed to save image %s: %v", img.URL, err)
			continue
		}
		if err := l.SetImageLocalPath(img.Position, path); err != nil {
			w.logger.Warnf("Failed to record image path: %v", err)
		}
	}
}

func (w *HierarchicalWriter) storeImage(ctx context.Context, img types.ImageRef, imagesDir string) (string, error) {
	if img.LocalPath != "" {
		if data, err := os.ReadFile(img.LocalPath); err == nil {
			ext := filepath.Ext(img.LocalPath)
			if ext == "" {
				ext = utils.ImageExtension(img.URL, "")
			}
			path := filepath.Join(imagesDir, utils.ImageFileName(img.Position, ext))
			if path == img.LocalPath {
				return path, nil
			}
			return path, os.WriteFile(path, data, 0644)
		}
	}

	if w.fetcher == nil {
		return "", fmt.Errorf("image is not stored locally and no fetcher is configured")
	}
	result, err := w.fetcher.Fetch(ctx, img.URL)
	if err != nil {
		return "", types.NewScrapeError(types.ErrCodeImageDownload, "fetch "+img.URL, err)
	}

	path := filepath.Join(imagesDir, utils.ImageFileName(img.Position, utils.ImageExtension(img.URL, result.ContentType)))
	return path, os.WriteFile(path, result.Body, 0644)
}

var segmentReplacer = strings.NewReplacer(" ", "_", "/", "_", "\\", "_")

// pathSegment lowercases s and replaces spaces and separators with underscores.
// Segments made only of dots become "_" so they cannot climb out of the base.
func pathSegment(s string) string {
	seg := segmentReplacer.Replace(strings.ToLower(strings.TrimSpace(s)))
	if strings.Trim(seg, ".") == "" {
		return "_"
	}
	return seg
}
