package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cars-scraper/internal/types"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func sampleListing(t *testing.T, vehicleMake, model string) *types.ListingRecord {
	t.Helper()
	price := decimal.RequireFromString("18500.5")
	mileage := 32150
	city, hwy := 30, 38
	slug := strings.ToLower(strings.ReplaceAll(model, " ", "-"))

	l, err := types.NewListingRecord(types.ListingFields{
		URL:           "https://www.cars.com/vehicledetail/" + slug + "/",
		Make:          vehicleMake,
		Model:         model,
		Year:          2021,
		Condition:     types.ConditionUsed,
		Price:         &price,
		Mileage:       &mileage,
		VIN:           "1hgcv1f30la000001",
		ExteriorColor: "Sonic Gray",
		MPGCity:       &city,
		MPGHighway:    &hwy,
	})
	require.NoError(t, err)

	_, err = l.AddImage("https://images.cars.com/"+slug+"-1.jpg", true)
	require.NoError(t, err)
	_, err = l.AddImage("https://images.cars.com/"+slug+"-2", false)
	require.NoError(t, err)
	return l
}

func TestWriteJSON_LoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "listings.json")
	original := []*types.ListingRecord{sampleListing(t, "Honda", "Civic"), sampleListing(t, "Toyota", "Camry")}

	require.NoError(t, WriteJSON(path, original))

	loaded, err := LoadJSON(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	for i := range original {
		assert.Equal(t, original[i].ID, loaded[i].ID)
		assert.Equal(t, original[i].URL, loaded[i].URL)
		assert.Equal(t, original[i].VIN, loaded[i].VIN)
		assert.True(t, original[i].Price.Equal(*loaded[i].Price))
		assert.True(t, original[i].ScrapedAt.Equal(loaded[i].ScrapedAt))
		assert.Equal(t, original[i].Images(), loaded[i].Images())
	}
}

func TestLoadJSON_RejectsInvalidRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{
		"url": "https://www.cars.com/vehicledetail/x/",
		"make": "Honda", "model": "Civic", "year": 1850, "condition": "used"
	}]`), 0644))

	_, err := LoadJSON(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidRecord))
}

func TestWriteJSON_EmptyBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, WriteJSON(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestCSVWriter_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.csv")
	listing := sampleListing(t, "Honda", "Civic")

	require.NoError(t, NewCSVWriter(path, testLogger()).Write([]*types.ListingRecord{listing}))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, csvColumns, rows[0])

	row := make(map[string]string)
	for i, col := range rows[0] {
		row[col] = rows[1][i]
	}
	assert.Equal(t, listing.ID.String(), row["listing_id"])
	assert.Equal(t, "2021", row["year"])
	assert.Equal(t, "18500.50", row["price"])
	assert.Equal(t, "32150", row["mileage"])
	assert.Equal(t, "1HGCV1F30LA000001", row["vin"])
	assert.Equal(t, "", row["location"])
	assert.Equal(t, "30", row["mpg_city"])
	assert.Equal(t, "2", row["image_count"])
}

func TestCSVWriter_EmptyBatchWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.csv")

	require.NoError(t, NewCSVWriter(path, testLogger()).Write(nil))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

type mapFetcher map[string]*types.FetchResult

func (m mapFetcher) Fetch(ctx context.Context, url string) (*types.FetchResult, error) {
	if r, ok := m[url]; ok {
		return r, nil
	}
	return nil, errors.New("not found")
}

func TestHierarchicalWriter_Write(t *testing.T) {
	base := t.TempDir()
	listing := sampleListing(t, "Land Rover", "Range Rover")

	// The first image was already downloaded during the scrape.
	scraped := filepath.Join(t.TempDir(), "image_00.jpg")
	require.NoError(t, os.WriteFile(scraped, []byte("front"), 0644))
	require.NoError(t, listing.SetImageLocalPath(0, scraped))

	fetcher := mapFetcher{
		"https://images.cars.com/range-rover-2": {Body: []byte("side"), ContentType: "image/png"},
	}
	writer := NewHierarchicalWriter(base, fetcher, testLogger())

	saved, err := writer.Write(context.Background(), []*types.ListingRecord{listing})
	require.NoError(t, err)
	assert.Equal(t, 1, saved)

	dir := filepath.Join(base, "land_rover", "range_rover", listing.ID.String())
	assert.Equal(t, dir, writer.ListingDir(listing))

	front, err := os.ReadFile(filepath.Join(dir, "images", "image_00.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "front", string(front))

	side, err := os.ReadFile(filepath.Join(dir, "images", "image_01.png"))
	require.NoError(t, err)
	assert.Equal(t, "side", string(side))

	data, err := os.ReadFile(filepath.Join(dir, "listing.json"))
	require.NoError(t, err)
	var stored types.ListingRecord
	require.NoError(t, stored.UnmarshalJSON(data))
	images := stored.Images()
	require.Len(t, images, 2)
	assert.Equal(t, filepath.Join(dir, "images", "image_00.jpg"), images[0].LocalPath)
	assert.Equal(t, filepath.Join(dir, "images", "image_01.png"), images[1].LocalPath)
}

func TestHierarchicalWriter_ImageFailureIsSkipped(t *testing.T) {
	base := t.TempDir()
	listing := sampleListing(t, "Honda", "Civic")
	writer := NewHierarchicalWriter(base, mapFetcher{}, testLogger())

	saved, err := writer.Write(context.Background(), []*types.ListingRecord{listing})
	require.NoError(t, err)
	assert.Equal(t, 1, saved)

	for _, img := range listing.Images() {
		assert.Empty(t, img.LocalPath)
	}
	_, err = os.Stat(filepath.Join(writer.ListingDir(listing), "listing.json"))
	assert.NoError(t, err)
}

func TestPathSegment(t *testing.T) {
	assert.Equal(t, "land_rover", pathSegment(" Land Rover "))
	assert.Equal(t, "f-150", pathSegment("F-150"))
	assert.Equal(t, "a_b", pathSegment("A/B"))
	assert.Equal(t, "_", pathSegment(".."))
	assert.Equal(t, "_", pathSegment(" . "))
	assert.Equal(t, "_", pathSegment(""))
	assert.Equal(t, "...x", pathSegment("...x"))
}

func TestHierarchicalWriter_DotSegmentsStayInBase(t *testing.T) {
	base := t.TempDir()
	listing := sampleListing(t, "..", "..")
	writer := NewHierarchicalWriter(base, mapFetcher{}, testLogger())

	dir := writer.ListingDir(listing)
	assert.Equal(t, filepath.Join(base, "_", "_", listing.ID.String()), dir)

	rel, err := filepath.Rel(base, dir)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(rel, ".."))
}

func TestBuildBatch(t *testing.T) {
	listing := sampleListing(t, "Honda", "Civic")

	batch := buildBatch([]*types.ListingRecord{listing})
	assert.Equal(t, 4, batch.Len())

	// Images beyond the current count are trimmed after the upserts.
	trim := batch.QueuedQueries[3]
	assert.Equal(t, trimImagesSQL, trim.SQL)
	assert.Equal(t, []any{listing.URL, 2}, trim.Arguments)

	args := listingArgs(listing)
	require.Len(t, args, 21)
	assert.Equal(t, listing.ID, args[0])
	assert.Equal(t, "18500.50", args[6])
	assert.Nil(t, args[10], "empty location is stored as NULL")

	img := listing.Images()[1]
	imgArgs := imageArgs(listing, img)
	assert.Equal(t, listing.URL, imgArgs[1])
	assert.Equal(t, false, imgArgs[4])
	assert.Equal(t, 1, imgArgs[5])
}

func TestPostgresWriter_Integration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	writer, err := NewPostgresWriter(ctx, dsn, testLogger())
	require.NoError(t, err)
	defer writer.Close()

	require.NoError(t, writer.EnsureSchema(ctx))
	listing := sampleListing(t, "Honda", "Civic")
	require.NoError(t, writer.WriteBatch(ctx, []*types.ListingRecord{listing}))
	// Writing again updates in place.
	require.NoError(t, writer.WriteBatch(ctx, []*types.ListingRecord{listing}))
	assert.Equal(t, 2, countImages(t, writer, listing.URL))

	// A re-scrape with fewer images drops the stale rows.
	rescraped, err := types.NewListingRecord(types.ListingFields{
		URL:       listing.URL,
		Make:      listing.Make,
		Model:     listing.Model,
		Year:      listing.Year,
		Condition: listing.Condition,
	})
	require.NoError(t, err)
	_, err = rescraped.AddImage("https://images.cars.com/civic-new.jpg", true)
	require.NoError(t, err)

	require.NoError(t, writer.WriteBatch(ctx, []*types.ListingRecord{rescraped}))
	assert.Equal(t, 1, countImages(t, writer, listing.URL))
}

func countImages(t *testing.T, writer *PostgresWriter, url string) int {
	t.Helper()
	var n int
	err := writer.pool.QueryRow(context.Background(),
		`SELECT count(*) FROM listing_images i JOIN listings l USING (listing_id) WHERE l.url = $1`, url).Scan(&n)
	require.NoError(t, err)
	return n
}
