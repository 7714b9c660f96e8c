package storage

import (
	"context"
	"fmt"
	"time"

	"cars-scraper/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS listings (
	listing_id UUID PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	make TEXT NOT NULL,
	model TEXT NOT NULL,
	year INTEGER NOT NULL CHECK (year BETWEEN 1900 AND 2030),
	condition TEXT NOT NULL,
	price NUMERIC(12,2) CHECK (price >= 0),
	mileage INTEGER CHECK (mileage >= 0),
	vin CHAR(17),
	description TEXT,
	location TEXT,
	dealer_name TEXT,
	exterior_color TEXT,
	interior_color TEXT,
	transmission TEXT,
	drivetrain TEXT,
	fuel_type TEXT,
	mpg_city INTEGER CHECK (mpg_city >= 0),
	mpg_highway INTEGER CHECK (mpg_highway >= 0),
	engine TEXT,
	scraped_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_listings_make_model ON listings(make, model);
CREATE INDEX IF NOT EXISTS idx_listings_price ON listings(price);

CREATE TABLE IF NOT EXISTS listing_images (
	image_id UUID PRIMARY KEY,
	listing_id UUID NOT NULL REFERENCES listings(listing_id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	local_path TEXT,
	is_primary BOOLEAN NOT NULL DEFAULT FALSE,
	position INTEGER NOT NULL,
	UNIQUE (listing_id, position)
);
`

// A listing scraped again keeps its first listing_id so its images stay attached.
const upsertListingSQL = `
INSERT INTO listings (listing_id, url, make, model, year, condition, price, mileage, vin,
	description, location, dealer_name, exterior_color, interior_color, transmission,
	drivetrain, fuel_type, mpg_city, mpg_highway, engine, scraped_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
ON CONFLICT (url) DO UPDATE SET
	make = EXCLUDED.make,
	model = EXCLUDED.model,
	year = EXCLUDED.year,
	condition = EXCLUDED.condition,
	price = EXCLUDED.price,
	mileage = EXCLUDED.mileage,
	vin = EXCLUDED.vin,
	description = EXCLUDED.description,
	location = EXCLUDED.location,
	dealer_name = EXCLUDED.dealer_name,
	exterior_color = EXCLUDED.exterior_color,
	interior_color = EXCLUDED.interior_color,
	transmission = EXCLUDED.transmission,
	drivetrain = EXCLUDED.drivetrain,
	fuel_type = EXCLUDED.fuel_type,
	mpg_city = EXCLUDED.mpg_city,
	mpg_highway = EXCLUDED.mpg_highway,
	engine = EXCLUDED.engine,
	scraped_at = EXCLUDED.scraped_at;
`

const upsertImageSQL = `
INSERT INTO listing_images (image_id, listing_id, url, local_path, is_primary, position)
SELECT $1, listing_id, $3, $4, $5, $6 FROM listings WHERE url = $2
ON CONFLICT (listing_id, position) DO UPDATE SET
	url = EXCLUDED.url,
	local_path = EXCLUDED.local_path,
	is_primary = EXCLUDED.is_primary;
`

// Rows left over from an earlier scrape with more images are removed.
const trimImagesSQL = `
DELETE FROM listing_images
WHERE listing_id = (SELECT listing_id FROM listings WHERE url = $1) AND position >= $2;
`

// PostgresWriter upserts listings and their images into PostgreSQL
type PostgresWriter struct {
	pool   *pgxpool.Pool
	logger types.Logger
}

// NewPostgresWriter connects to the database at dsn
func NewPostgresWriter(ctx context.Context, dsn string, logger types.Logger) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	return &PostgresWriter{pool: pool, logger: logger}, nil
}

// Close closes the connection pool
func (w *PostgresWriter) Close() {
	if w.pool != nil {
		w.pool.Close()
	}
}

// EnsureSchema creates the listing tables if they do not exist
func (w *PostgresWriter) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if _, err := w.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// WriteBatch upserts listings and their images in one round trip
func (w *PostgresWriter) WriteBatch(ctx context.Context, listings []*types.ListingRecord) error {
	if len(listings) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	batch := buildBatch(listings)
	results := w.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch upsert failed at statement %d: %w", i, err)
		}
	}

	w.logger.Infof("Upserted %d listings into postgres", len(listings))
	return nil
}

func buildBatch(listings []*types.ListingRecord) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, l := range listings {
		batch.Queue(upsertListingSQL, listingArgs(l)...)
		images := l.Images()
		for _, img := range images {
			batch.Queue(upsertImageSQL, imageArgs(l, img)...)
		}
		batch.Queue(trimImagesSQL, l.URL, len(images))
	}
	return batch
}

func listingArgs(l *types.ListingRecord) []any {
	var price any
	if l.Price != nil {
		price = l.Price.StringFixed(2)
	}

	return []any{
		l.ID,
		l.URL,
		l.Make,
		l.Model,
		l.Year,
		string(l.Condition),
		price,
		l.Mileage,
		nullable(l.VIN),
		nullable(l.Description),
		nullable(l.Location),
		nullable(l.DealerName),
		nullable(l.ExteriorColor),
		nullable(l.InteriorColor),
		nullable(l.Transmission),
		nullable(l.Drivetrain),
		nullable(l.FuelType),
		l.MPGCity,
		l.MPGHighway,
		nullable(l.Engine),
		l.ScrapedAt,
	}
}

func imageArgs(l *types.ListingRecord, img types.ImageRef) []any {
	return []any{
		img.ID,
		l.URL,
		img.URL,
		nullable(img.LocalPath),
		img.IsPrimary,
		img.Position,
	}
}

// nullable maps an empty string to SQL NULL
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
