package types

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Condition is the sale condition of a vehicle
type Condition string

const (
	ConditionNew       Condition = "new"
	ConditionUsed      Condition = "used"
	ConditionCertified Condition = "certified"
)

// Valid reports whether c is one of the known conditions
func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionUsed, ConditionCertified:
		return true
	}
	return false
}

const (
	MinYear   = 1900
	MaxYear   = 2030
	VINLength = 17
)

// ImageRef is one gallery image of a listing
type ImageRef struct {
	ID        uuid.UUID `json:"image_id"`
	URL       string    `json:"url"`
	LocalPath string    `json:"local_path,omitempty"`
	IsPrimary bool      `json:"is_primary"`
	Position  int       `json:"position"`
}

// ListingFields carries the extracted values used to build a ListingRecord.
// Empty strings and nil pointers mean the field was not found.
type ListingFields struct {
	URL           string
	Make          string
	Model         string
	Year          int
	Condition     Condition
	Price         *decimal.Decimal
	Mileage       *int
	VIN           string
	Description   string
	Location      string
	DealerName    string
	ExteriorColor string
	InteriorColor string
	Transmission  string
	Drivetrain    string
	FuelType      string
	MPGCity       *int
	MPGHighway    *int
	Engine        string
}

// ListingRecord is a validated vehicle listing. Images are owned by the record
// and can only be appended through AddImage.
type ListingRecord struct {
	ID            uuid.UUID        `json:"listing_id"`
	URL           string           `json:"url"`
	Make          string           `json:"make"`
	Model         string           `json:"model"`
	Year          int              `json:"year"`
	Condition     Condition        `json:"condition"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	Mileage       *int             `json:"mileage,omitempty"`
	VIN           string           `json:"vin,omitempty"`
	Description   string           `json:"description,omitempty"`
	Location      string           `json:"location,omitempty"`
	DealerName    string           `json:"dealer_name,omitempty"`
	ExteriorColor string           `json:"exterior_color,omitempty"`
	InteriorColor string           `json:"interior_color,omitempty"`
	Transmission  string           `json:"transmission,omitempty"`
	Drivetrain    string           `json:"drivetrain,omitempty"`
	FuelType      string           `json:"fuel_type,omitempty"`
	MPGCity       *int             `json:"mpg_city,omitempty"`
	MPGHighway    *int             `json:"mpg_highway,omitempty"`
	Engine        string           `json:"engine,omitempty"`
	ScrapedAt     time.Time        `json:"scraped_at"`

	images       []ImageRef
	nextPosition int
}

// NewListingRecord validates f and builds a record with a fresh identity and
// a UTC capture timestamp. Every violation wraps ErrInvalidRecord.
func NewListingRecord(f ListingFields) (*ListingRecord, error) {
	if err := validateHTTPURL(f.URL); err != nil {
		return nil, invalidRecord("url: %v", err)
	}
	if err := validateName("make", f.Make); err != nil {
		return nil, err
	}
	if err := validateName("model", f.Model); err != nil {
		return nil, err
	}
	if f.Year < MinYear || f.Year > MaxYear {
		return nil, invalidRecord("year %d outside [%d, %d]", f.Year, MinYear, MaxYear)
	}
	if !f.Condition.Valid() {
		return nil, invalidRecord("unknown condition %q", f.Condition)
	}

	var price *decimal.Decimal
	if f.Price != nil {
		if f.Price.IsNegative() {
			return nil, invalidRecord("price %s is negative", f.Price)
		}
		if !f.Price.Equal(f.Price.Round(2)) {
			return nil, invalidRecord("price %s has more than 2 decimal places", f.Price)
		}
		p := f.Price.Round(2)
		price = &p
	}

	for name, v := range map[string]*int{"mileage": f.Mileage, "mpg_city": f.MPGCity, "mpg_highway": f.MPGHighway} {
		if v != nil && *v < 0 {
			return nil, invalidRecord("%s %d is negative", name, *v)
		}
	}

	vin, err := NormalizeVIN(f.VIN)
	if err != nil {
		return nil, err
	}

	return &ListingRecord{
		ID:            uuid.New(),
		URL:           f.URL,
		Make:          f.Make,
		Model:         f.Model,
		Year:          f.Year,
		Condition:     f.Condition,
		Price:         price,
		Mileage:       copyInt(f.Mileage),
		VIN:           vin,
		Description:   f.Description,
		Location:      f.Location,
		DealerName:    f.DealerName,
		ExteriorColor: f.ExteriorColor,
		InteriorColor: f.InteriorColor,
		Transmission:  f.Transmission,
		Drivetrain:    f.Drivetrain,
		FuelType:      f.FuelType,
		MPGCity:       copyInt(f.MPGCity),
		MPGHighway:    copyInt(f.MPGHighway),
		Engine:        f.Engine,
		ScrapedAt:     time.Now().UTC(),
	}, nil
}

// NormalizeVIN uppercases a VIN and checks its length and alphabet.
// An empty VIN is valid and stays empty.
func NormalizeVIN(vin string) (string, error) {
	if vin == "" {
		return "", nil
	}
	vin = strings.ToUpper(vin)
	if len(vin) != VINLength {
		return "", invalidRecord("vin %q must be %d characters", vin, VINLength)
	}
	if strings.ContainsAny(vin, "IOQ") {
		return "", invalidRecord("vin %q cannot contain the letters I, O or Q", vin)
	}
	return vin, nil
}

// AddImage appends an image at the next position. Only the first image of a
// record may be primary; isPrimary is ignored on every later call.
func (l *ListingRecord) AddImage(imageURL string, isPrimary bool) (ImageRef, error) {
	if err := validateHTTPURL(imageURL); err != nil {
		return ImageRef{}, invalidRecord("image url: %v", err)
	}

	img := ImageRef{
		ID:        uuid.New(),
		URL:       imageURL,
		IsPrimary: isPrimary && l.nextPosition == 0,
		Position:  l.nextPosition,
	}
	l.images = append(l.images, img)
	l.nextPosition++
	return img, nil
}

// Images returns a copy of the record's images in position order
func (l *ListingRecord) Images() []ImageRef {
	out := make([]ImageRef, len(l.images))
	copy(out, l.images)
	return out
}

// SetImageLocalPath records where the image at position was stored
func (l *ListingRecord) SetImageLocalPath(position int, path string) error {
	for i := range l.images {
		if l.images[i].Position == position {
			l.images[i].LocalPath = path
			return nil
		}
	}
	return fmt.Errorf("no image at position %d", position)
}

// Title returns the "year make model" heading of the listing
func (l *ListingRecord) Title() string {
	return fmt.Sprintf("%d %s %s", l.Year, l.Make, l.Model)
}

type listingAlias ListingRecord

type listingJSON struct {
	*listingAlias
	Images []ImageRef `json:"images"`
}

// MarshalJSON includes the owned images.
func (l *ListingRecord) MarshalJSON() ([]byte, error) {
	images := l.images
	if images == nil {
		images = []ImageRef{}
	}
	return json.Marshal(listingJSON{listingAlias: (*listingAlias)(l), Images: images})
}

// UnmarshalJSON re-validates a stored record and its images so that loaded
// records hold the same invariants as freshly extracted ones.
func (l *ListingRecord) UnmarshalJSON(data []byte) error {
	var raw listingJSON
	raw.listingAlias = new(listingAlias)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r := raw.listingAlias
	rec, err := NewListingRecord(ListingFields{
		URL:           r.URL,
		Make:          r.Make,
		Model:         r.Model,
		Year:          r.Year,
		Condition:     r.Condition,
		Price:         r.Price,
		Mileage:       r.Mileage,
		VIN:           r.VIN,
		Description:   r.Description,
		Location:      r.Location,
		DealerName:    r.DealerName,
		ExteriorColor: r.ExteriorColor,
		InteriorColor: r.InteriorColor,
		Transmission:  r.Transmission,
		Drivetrain:    r.Drivetrain,
		FuelType:      r.FuelType,
		MPGCity:       r.MPGCity,
		MPGHighway:    r.MPGHighway,
		Engine:        r.Engine,
	})
	if err != nil {
		return err
	}
	if r.ID != uuid.Nil {
		rec.ID = r.ID
	}
	if !r.ScrapedAt.IsZero() {
		rec.ScrapedAt = r.ScrapedAt.UTC()
	}

	for _, img := range raw.Images {
		added, err := rec.AddImage(img.URL, img.IsPrimary)
		if err != nil {
			return err
		}
		rec.images[added.Position].LocalPath = img.LocalPath
		if img.ID != uuid.Nil {
			rec.images[added.Position].ID = img.ID
		}
	}

	*l = *rec
	return nil
}

func validateName(field, v string) error {
	n := utf8.RuneCountInString(v)
	if n < 1 || n > 100 {
		return invalidRecord("%s must be 1 to 100 characters, got %d", field, n)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return nil
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func invalidRecord(format string, args ...interface{}) error {
	return NewScrapeError(ErrCodeInvalidRecord, fmt.Sprintf(format, args...), ErrInvalidRecord)
}
