package adapters

import (
	"fmt"
	"strings"

	"cars-scraper/internal/types"
)

// SiteProfile holds the locator tables for one marketplace. Every chain is
// tried in order and the first success wins.
type SiteProfile struct {
	Name   string
	Origin string
	// Host restricts structural link matches to the marketplace's own domain
	Host string

	ListingLinks    []Locator
	ListingKeywords []string

	Heading     string
	Price       []Locator
	Mileage     []Locator
	Description []Locator
	Location    []Locator
	Dealer      []Locator
	VIN         []Locator
	Details     map[string][]Locator
	Gallery     []string
}

// detailChain builds the label scan used for the vehicle details table
func detailChain(label string) []Locator {
	return []Locator{
		Label("dt", label),
		Label("th", label),
		Label("label", label),
		Label("div", label),
	}
}

// Detail labels scanned in the vehicle details table
const (
	DetailExteriorColor = "Exterior color"
	DetailInteriorColor = "Interior color"
	DetailTransmission  = "Transmission"
	DetailDrivetrain    = "Drivetrain"
	DetailFuelType      = "Fuel type"
	DetailEngine        = "Engine"
)

// CarsComProfile is the locator table for cars.com
var CarsComProfile = SiteProfile{
	Name:   "cars.com",
	Origin: "https://www.cars.com",
	Host:   "cars.com",

	ListingLinks: []Locator{
		Attribute(`a[href*="/vehicledetail/"]`, "href"),
		Attribute(`a[data-testid="listing-link"]`, "href"),
		Attribute(`.vehicle-card a[href*="/detail/"]`, "href"),
		Attribute(`a[class*="vehicle-card-link"]`, "href"),
	},
	ListingKeywords: []string{"vehicledetail", "/detail/"},

	Heading: "h1",
	Price: []Locator{
		Text(`[data-testid="price"]`),
		Text(".price"),
		Text(`[class*="price"]`),
		Text(`[aria-label*="price"]`),
	},
	Mileage: []Locator{
		Text(`[data-testid="mileage"]`),
		Text(".mileage"),
		Text(`[class*="mileage"]`),
		Pattern(`(?i)(\d[\d,]*)\s*miles?`, RawContent),
	},
	Description: []Locator{
		Text(`[data-testid="description"]`),
		Text(".description"),
		Text(`[class*="description"]`),
		Text(`[class*="comments"]`),
	},
	Location: []Locator{
		Text(`[data-testid="dealer-location"]`),
		Text(".dealer-address"),
		Text(`[class*="location"]`),
	},
	Dealer: []Locator{
		Text(`[data-testid="dealer-name"]`),
		Text(".dealer-name"),
		Text(`[class*="seller-name"]`),
	},
	VIN: []Locator{
		Pattern(`(?i:VIN)[:\s]+([A-HJ-NPR-Za-hj-npr-z0-9]{17})`, BodyText),
	},
	Details: map[string][]Locator{
		DetailExteriorColor: detailChain(DetailExteriorColor),
		DetailInteriorColor: detailChain(DetailInteriorColor),
		DetailTransmission:  detailChain(DetailTransmission),
		DetailDrivetrain:    detailChain(DetailDrivetrain),
		DetailFuelType:      detailChain(DetailFuelType),
		DetailEngine:        detailChain(DetailEngine),
	},
	Gallery: []string{
		`img[data-testid="photo"]`,
		".vehicle-image img",
		`[class*="gallery"] img`,
		`[class*="photo"] img`,
		"picture img",
	},
}

// ListingAdapter discovers and extracts listings for the marketplace its
// profile describes
type ListingAdapter struct {
	*BaseAdapter
	profile SiteProfile
}

// NewCarsComAdapter creates a new cars.com adapter
func NewCarsComAdapter(config *types.Config, logger types.Logger) *ListingAdapter {
	return NewSiteAdapter(CarsComProfile, config, logger)
}

// NewSiteAdapter creates an adapter for profile
func NewSiteAdapter(profile SiteProfile, config *types.Config, logger types.Logger) *ListingAdapter {
	return &ListingAdapter{
		BaseAdapter: NewBaseAdapter(config, logger),
		profile:     profile,
	}
}

// GetSiteName returns the site name
func (a *ListingAdapter) GetSiteName() string {
	return a.profile.Name
}

// Profile returns the adapter's locator tables
func (a *ListingAdapter) Profile() SiteProfile {
	return a.profile
}

const carsComSearchURL = "https://www.cars.com/shopping/results/"

// BuildSearchURL builds the cars.com search URL for q. Parameters keep the
// marketplace's order: stock type, make, model, years, location, prices.
func BuildSearchURL(q types.SearchQuery) string {
	var params []string

	if q.StockType != "" {
		params = append(params, "stock_type="+q.StockType)
	}
	if q.Make != "" {
		makeSlug := slug(q.Make)
		params = append(params, "makes[]="+makeSlug)
		if q.Model != "" {
			params = append(params, "models[]="+makeSlug+"-"+slug(q.Model))
		}
	}
	if q.YearMin > 0 {
		params = append(params, fmt.Sprintf("year_min=%d", q.YearMin))
	}
	if q.YearMax > 0 {
		params = append(params, fmt.Sprintf("year_max=%d", q.YearMax))
	}
	if q.ZipCode != "" {
		params = append(params, "zip="+q.ZipCode)
	}
	if q.MaxDistance > 0 {
		params = append(params, fmt.Sprintf("maximum_distance=%d", q.MaxDistance))
	}
	if q.PriceMin > 0 {
		params = append(params, fmt.Sprintf("price_min=%d", q.PriceMin))
	}
	if q.PriceMax > 0 {
		params = append(params, fmt.Sprintf("price_max=%d", q.PriceMax))
	}

	if len(params) == 0 {
		return carsComSearchURL
	}
	return carsComSearchURL + "?" + strings.Join(params, "&")
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
}

var _ types.SiteAdapter = (*ListingAdapter)(nil)
