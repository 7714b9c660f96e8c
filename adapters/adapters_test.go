package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"cars-scraper/internal/types"
	"cars-scraper/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingHTML = `<html><body>
<h1>2021 Honda Civic EX Sedan</h1>
<span data-testid="price">$18,500</span>
<div class="mileage">32,150 mi.</div>
<div class="description">One owner, clean history.</div>
<div data-testid="dealer-location">Austin, TX</div>
<div data-testid="dealer-name">Lone Star Honda</div>
<p>VIN: 1hgcv1f30la000001</p>
<p>30 city / 38 hwy</p>
<dl>
  <dt>Exterior color</dt><dd>Sonic Gray</dd>
  <dt>Interior color</dt><dd>Black</dd>
  <dt>Transmission</dt><dd>CVT</dd>
  <dt>Drivetrain</dt><dd>Front-wheel Drive</dd>
  <dt>Fuel type</dt><dd>Gasoline</dd>
  <dt>Engine</dt><dd>1.5L I4</dd>
</dl>
<div class="gallery">
  <img src="https://images.cars.com/civic-1.jpg">
  <img data-src="https://images.cars.com/civic-2.jpg">
  <img src="/relative/civic-3.jpg">
</div>
<picture><img src="https://images.cars.com/civic-1.jpg"></picture>
</body></html>`

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestAdapter(t *testing.T) *ListingAdapter {
	t.Helper()
	return NewCarsComAdapter(types.DefaultConfig(), testLogger())
}

func staticPage(t *testing.T, html string) *utils.StaticPage {
	t.Helper()
	page, err := utils.NewStaticPage(html)
	require.NoError(t, err)
	return page
}

func TestExtractListing_AllFields(t *testing.T) {
	adapter := newTestAdapter(t)
	page := staticPage(t, listingHTML)

	record, err := adapter.ExtractListing(context.Background(), page, "https://www.cars.com/vehicledetail/abc/")
	require.NoError(t, err)

	assert.Equal(t, 2021, record.Year)
	assert.Equal(t, "Honda", record.Make)
	assert.Equal(t, "Civic EX Sedan", record.Model)
	assert.Equal(t, types.ConditionUsed, record.Condition)
	require.NotNil(t, record.Price)
	assert.True(t, decimal.NewFromInt(18500).Equal(*record.Price))
	require.NotNil(t, record.Mileage)
	assert.Equal(t, 32150, *record.Mileage)
	assert.Equal(t, "1HGCV1F30LA000001", record.VIN)
	assert.Equal(t, "One owner, clean history.", record.Description)
	assert.Equal(t, "Austin, TX", record.Location)
	assert.Equal(t, "Lone Star Honda", record.DealerName)
	assert.Equal(t, "Sonic Gray", record.ExteriorColor)
	assert.Equal(t, "Black", record.InteriorColor)
	assert.Equal(t, "CVT", record.Transmission)
	assert.Equal(t, "Front-wheel Drive", record.Drivetrain)
	assert.Equal(t, "Gasoline", record.FuelType)
	assert.Equal(t, "1.5L I4", record.Engine)
	require.NotNil(t, record.MPGCity)
	require.NotNil(t, record.MPGHighway)
	assert.Equal(t, 30, *record.MPGCity)
	assert.Equal(t, 38, *record.MPGHighway)

	images := record.Images()
	require.Len(t, images, 2)
	assert.Equal(t, "https://images.cars.com/civic-1.jpg", images[0].URL)
	assert.True(t, images[0].IsPrimary)
	assert.Equal(t, 0, images[0].Position)
	assert.Equal(t, "https://images.cars.com/civic-2.jpg", images[1].URL)
	assert.False(t, images[1].IsPrimary)
	assert.Equal(t, 1, images[1].Position)
}

func TestExtractListing_MissingHeading(t *testing.T) {
	adapter := newTestAdapter(t)
	page := staticPage(t, `<html><body><span class="price">$9,000</span></body></html>`)

	record, err := adapter.ExtractListing(context.Background(), page, "https://www.cars.com/vehicledetail/x/")

	assert.Nil(t, record)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrMissingHeading))
	assert.Equal(t, types.ErrCodeMissingHeading, types.ErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestExtractListing_SparsePageLeavesFieldsUnset(t *testing.T) {
	adapter := newTestAdapter(t)
	page := staticPage(t, `<html><body><h1>Civic</h1><p>Call for price</p></body></html>`)

	record, err := adapter.ExtractListing(context.Background(), page, "https://www.cars.com/vehicledetail/y/")
	require.NoError(t, err)

	assert.Equal(t, DefaultYear, record.Year)
	assert.Equal(t, UnknownValue, record.Make)
	assert.Equal(t, UnknownValue, record.Model)
	assert.Nil(t, record.Price)
	assert.Nil(t, record.Mileage)
	assert.Nil(t, record.MPGCity)
	assert.Nil(t, record.MPGHighway)
	assert.Empty(t, record.VIN)
	assert.Empty(t, record.ExteriorColor)
	assert.Empty(t, record.Images())
}

func TestExtractListing_VINAndMPGFromDefinitionList(t *testing.T) {
	adapter := newTestAdapter(t)
	page := staticPage(t, `<html><body><h1>2021 Honda Civic</h1>
<dl><dt>VIN</dt><dd>1HGCM82633A004352</dd><dt>MPG</dt><dd><span>31</span> city / <span>40</span> hwy</dd></dl>
</body></html>`)

	record, err := adapter.ExtractListing(context.Background(), page, "https://www.cars.com/vehicledetail/dl/")
	require.NoError(t, err)

	assert.Equal(t, "1HGCM82633A004352", record.VIN)
	require.NotNil(t, record.MPGCity)
	require.NotNil(t, record.MPGHighway)
	assert.Equal(t, 31, *record.MPGCity)
	assert.Equal(t, 40, *record.MPGHighway)
}

// faultyPage panics on one selector and fails another, the way a brittle
// selector or a detached node would.
type faultyPage struct {
	*utils.StaticPage
	panicOn string
	failOn  string
}

func (p *faultyPage) QueryAll(ctx context.Context, selector string) ([]types.Element, error) {
	switch selector {
	case p.panicOn:
		panic("node detached")
	case p.failOn:
		return nil, errors.New("query timed out")
	}
	return p.StaticPage.QueryAll(ctx, selector)
}

func TestExtractListing_FieldFaultsAreContained(t *testing.T) {
	adapter := newTestAdapter(t)
	page := &faultyPage{
		StaticPage: staticPage(t, listingHTML),
		panicOn:    `[data-testid="price"]`,
		failOn:     `[data-testid="dealer-name"]`,
	}

	record, err := adapter.ExtractListing(context.Background(), page, "https://www.cars.com/vehicledetail/abc/")
	require.NoError(t, err)

	assert.Nil(t, record.Price)
	assert.Empty(t, record.DealerName)
	assert.Equal(t, "Honda", record.Make)
	assert.Len(t, record.Images(), 2)
}

func TestExtractListing_PriceFallsThroughLocators(t *testing.T) {
	adapter := newTestAdapter(t)
	page := staticPage(t, `<html><body>
<h1>2019 Toyota Camry</h1>
<span data-testid="price">Contact dealer</span>
<div class="price">$21,995</div>
</body></html>`)

	record, err := adapter.ExtractListing(context.Background(), page, "https://www.cars.com/vehicledetail/z/")
	require.NoError(t, err)
	require.NotNil(t, record.Price)
	assert.True(t, decimal.NewFromInt(21995).Equal(*record.Price))
}

func TestExtractListing_MileageFromContent(t *testing.T) {
	adapter := newTestAdapter(t)
	page := staticPage(t, `<html><body><h1>2018 Ford F-150</h1><p>Only 54,200 miles on this truck</p></body></html>`)

	record, err := adapter.ExtractListing(context.Background(), page, "https://www.cars.com/vehicledetail/f/")
	require.NoError(t, err)
	require.NotNil(t, record.Mileage)
	assert.Equal(t, 54200, *record.Mileage)
}

func TestExtractListing_InvalidLocatorIsSkipped(t *testing.T) {
	profile := CarsComProfile
	profile.Price = append([]Locator{Text("[[broken")}, CarsComProfile.Price...)
	adapter := NewSiteAdapter(profile, types.DefaultConfig(), testLogger())
	page := staticPage(t, listingHTML)

	record, err := adapter.ExtractListing(context.Background(), page, "https://www.cars.com/vehicledetail/abc/")
	require.NoError(t, err)
	require.NotNil(t, record.Price)
	assert.True(t, decimal.NewFromInt(18500).Equal(*record.Price))
}

func TestExtractListing_ImageCapAcrossLocators(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<html><body><h1>2020 Mazda CX-5</h1><div class="gallery">`)
	for i := 0; i < 15; i++ {
		fmt.Fprintf(&b, `<img src="https://images.cars.com/g-%d.jpg">`, i)
	}
	b.WriteString(`</div>`)
	for i := 10; i < 30; i++ {
		fmt.Fprintf(&b, `<picture><img src="https://images.cars.com/g-%d.jpg"></picture>`, i)
	}
	b.WriteString(`</body></html>`)

	adapter := newTestAdapter(t)
	page := staticPage(t, b.String())

	record, err := adapter.ExtractListing(context.Background(), page, "https://www.cars.com/vehicledetail/m/")
	require.NoError(t, err)

	images := record.Images()
	require.Len(t, images, MaxImagesPerListing)

	seen := make(map[string]bool)
	for i, img := range images {
		assert.False(t, seen[img.URL], "duplicate image %s", img.URL)
		seen[img.URL] = true
		assert.Equal(t, i, img.Position)
		assert.Equal(t, i == 0, img.IsPrimary)
		assert.Equal(t, fmt.Sprintf("https://images.cars.com/g-%d.jpg", i), img.URL)
	}
}

func TestExtractListing_CertifiedCondition(t *testing.T) {
	adapter := newTestAdapter(t)
	page := staticPage(t, `<html><body><h1>2022 Lexus RX 350</h1><p>Lexus Certified Pre-Owned</p></body></html>`)

	record, err := adapter.ExtractListing(context.Background(), page, "https://www.cars.com/vehicledetail/l/")
	require.NoError(t, err)
	assert.Equal(t, types.ConditionCertified, record.Condition)
}

func TestExtractListing_InvalidVINFailsRecord(t *testing.T) {
	profile := CarsComProfile
	profile.VIN = []Locator{Pattern(`VIN:\s*(\S+)`, BodyText)}
	adapter := NewSiteAdapter(profile, types.DefaultConfig(), testLogger())
	page := staticPage(t, `<html><body><h1>2021 Honda Civic</h1><p>VIN: SHORTVIN</p></body></html>`)

	record, err := adapter.ExtractListing(context.Background(), page, "https://www.cars.com/vehicledetail/v/")

	assert.Nil(t, record)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidRecord))
	assert.False(t, types.IsRetryable(err))
}

func TestParseTitle(t *testing.T) {
	tests := []struct {
		title     string
		wantYear  int
		wantMake  string
		wantModel string
	}{
		{"2021 Honda Civic", 2021, "Honda", "Civic"},
		{"  2015 Land Rover Range Rover Sport  ", 2015, "Land", "Rover Range Rover Sport"},
		{"Used Toyota Camry", DefaultYear, "Toyota", "Camry"},
		{"2019 Tesla", 2019, UnknownValue, UnknownValue},
		{"", DefaultYear, UnknownValue, UnknownValue},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			year, vehicleMake, model := ParseTitle(tt.title)
			assert.Equal(t, tt.wantYear, year)
			assert.Equal(t, tt.wantMake, vehicleMake)
			assert.Equal(t, tt.wantModel, model)
		})
	}
}

func TestParsePriceAndNumber(t *testing.T) {
	price, ok := ParsePrice("$18,500")
	require.True(t, ok)
	assert.Equal(t, "18500", price.String())

	price, ok = ParsePrice("Now $1,234,567 (was more)")
	require.True(t, ok)
	assert.Equal(t, "1234567", price.String())

	_, ok = ParsePrice("Call for price")
	assert.False(t, ok)

	n, ok := ParseNumber("12,345 mi.")
	require.True(t, ok)
	assert.Equal(t, 12345, n)

	_, ok = ParseNumber("")
	assert.False(t, ok)
}

func TestInferCondition(t *testing.T) {
	assert.Equal(t, types.ConditionCertified, InferCondition("Certified Pre-Owned", 2020))
	assert.Equal(t, types.ConditionNew, InferCondition("Brand NEW", 2024))
	assert.Equal(t, types.ConditionUsed, InferCondition("Brand new tires", 2023))
	assert.Equal(t, types.ConditionUsed, InferCondition("certified mechanic inspected", 2025))
}

func TestParseMPG(t *testing.T) {
	city, hwy, ok := ParseMPG("EPA est. 28 City / 36 Hwy")
	require.True(t, ok)
	assert.Equal(t, 28, city)
	assert.Equal(t, 36, hwy)

	_, _, ok = ParseMPG("28 city mpg")
	assert.False(t, ok)
}
