package adapters

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"cars-scraper/internal/types"

	"github.com/shopspring/decimal"
)

const (
	// MaxImagesPerListing caps the gallery across every gallery locator
	MaxImagesPerListing = 20

	// DefaultYear is used when the heading does not start with a year
	DefaultYear = 2020

	// UnknownValue stands in for a make or model the heading does not carry
	UnknownValue = "Unknown"

	// newConditionMinYear is the first model year "new" is inferred for
	newConditionMinYear = 2024
)

var (
	leadingYearRe = regexp.MustCompile(`^(\d{4})\b`)
	digitRunRe    = regexp.MustCompile(`\d[\d,]*`)
	mpgRe         = regexp.MustCompile(`(?i)(\d+)\s*city\s*/\s*(\d+)\s*hwy`)
)

// ExtractListing maps a loaded listing page to a record. Missing fields are
// left unset. Only a page without a primary heading, or a record that fails
// validation, is an error.
func (a *ListingAdapter) ExtractListing(ctx context.Context, page types.Page, url string) (*types.ListingRecord, error) {
	view := newPageView(page)

	headings, err := page.QueryAll(ctx, a.profile.Heading)
	if err != nil {
		return nil, err
	}
	if len(headings) == 0 {
		return nil, types.NewScrapeError(types.ErrCodeMissingHeading, "no primary heading on "+url, types.ErrMissingHeading)
	}

	title := headings[0].Text
	year, vehicleMake, model := ParseTitle(title)
	a.logger.Debugf("Parsed title %q as %d %s %s", title, year, vehicleMake, model)

	fields := types.ListingFields{
		URL:       url,
		Make:      vehicleMake,
		Model:     model,
		Year:      year,
		Condition: types.ConditionUsed,
	}

	a.safeField("price", func() {
		if p, ok := firstParsed(ctx, a.BaseAdapter, view, "price", a.profile.Price, ParsePrice); ok {
			fields.Price = &p
		}
	})
	a.safeField("mileage", func() {
		if m, ok := firstParsed(ctx, a.BaseAdapter, view, "mileage", a.profile.Mileage, ParseNumber); ok {
			fields.Mileage = &m
		}
	})
	a.safeField("condition", func() {
		content, err := view.text(ctx, RawContent)
		if err != nil {
			a.logger.Debugf("Reading content for condition failed: %v", err)
			return
		}
		fields.Condition = InferCondition(content, year)
	})
	a.safeField("vin", func() {
		if vin, ok := a.FirstText(ctx, view, "vin", a.profile.VIN); ok {
			fields.VIN = strings.ToUpper(vin)
		}
	})
	a.safeField("description", func() {
		fields.Description, _ = a.FirstText(ctx, view, "description", a.profile.Description)
	})
	a.safeField("location", func() {
		fields.Location, _ = a.FirstText(ctx, view, "location", a.profile.Location)
	})
	a.safeField("dealer", func() {
		fields.DealerName, _ = a.FirstText(ctx, view, "dealer", a.profile.Dealer)
	})

	details := map[string]*string{
		DetailExteriorColor: &fields.ExteriorColor,
		DetailInteriorColor: &fields.InteriorColor,
		DetailTransmission:  &fields.Transmission,
		DetailDrivetrain:    &fields.Drivetrain,
		DetailFuelType:      &fields.FuelType,
		DetailEngine:        &fields.Engine,
	}
	for label, dst := range details {
		chain, ok := a.profile.Details[label]
		if !ok {
			continue
		}
		a.safeField(label, func() {
			*dst, _ = a.FirstText(ctx, view, label, chain)
		})
	}

	a.safeField("mpg", func() {
		body, err := view.text(ctx, BodyText)
		if err != nil {
			a.logger.Debugf("Reading body for mpg failed: %v", err)
			return
		}
		if city, hwy, ok := ParseMPG(body); ok {
			fields.MPGCity, fields.MPGHighway = &city, &hwy
		}
	})

	record, err := types.NewListingRecord(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build listing for %s: %w", url, err)
	}

	a.safeField("images", func() {
		a.extractImages(ctx, view, record)
	})

	a.logger.Infof("Extracted %s (%d images) from %s", record.Title(), len(record.Images()), url)
	return record, nil
}

// extractImages appends gallery images to record in first-seen order. Later
// gallery locators only contribute URLs the earlier ones did not.
func (a *ListingAdapter) extractImages(ctx context.Context, view *pageView, record *types.ListingRecord) {
	seen := make(map[string]bool)
	count := 0

	for _, selector := range a.profile.Gallery {
		if count >= MaxImagesPerListing {
			return
		}

		elements, err := view.page.QueryAll(ctx, selector)
		if err != nil {
			a.logger.Debugf("Gallery locator %s failed: %v", selector, err)
			continue
		}

		for _, el := range elements {
			src := imageSource(el)
			if src == "" || seen[src] || !IsAbsoluteHTTPURL(src) {
				continue
			}
			seen[src] = true

			if _, err := record.AddImage(src, count == 0); err != nil {
				a.logger.Debugf("Skipping image %s: %v", src, err)
				continue
			}
			count++
			if count >= MaxImagesPerListing {
				return
			}
		}
	}
}

// imageSource returns src, or data-src for lazy-loaded images
func imageSource(el types.Element) string {
	if src, _ := el.Attr("src"); strings.TrimSpace(src) != "" {
		return strings.TrimSpace(src)
	}
	src, _ := el.Attr("data-src")
	return strings.TrimSpace(src)
}

// ParseTitle splits a "<year> <make> <model...>" heading. A heading without a
// leading year gets DefaultYear, and one with fewer than three words gets
// UnknownValue for both make and model.
func ParseTitle(title string) (year int, vehicleMake, model string) {
	title = strings.TrimSpace(title)

	year = DefaultYear
	if m := leadingYearRe.FindStringSubmatch(title); m != nil {
		year, _ = strconv.Atoi(m[1])
	}

	parts := strings.Fields(title)
	if len(parts) < 3 {
		return year, UnknownValue, UnknownValue
	}
	return year, parts[1], strings.Join(parts[2:], " ")
}

// ParsePrice reads the first digit run of text, dropping thousands separators
func ParsePrice(text string) (decimal.Decimal, bool) {
	digits, ok := firstDigitRun(text)
	if !ok {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ParseNumber reads the first digit run of text as an integer
func ParseNumber(text string) (int, bool) {
	digits, ok := firstDigitRun(text)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

func firstDigitRun(text string) (string, bool) {
	run := digitRunRe.FindString(text)
	if run == "" {
		return "", false
	}
	return strings.ReplaceAll(run, ",", ""), true
}

// InferCondition guesses the sale condition from page content. It is a
// best-effort heuristic: any mention of "new" on a recent model reads as new.
func InferCondition(content string, year int) types.Condition {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "certified") && strings.Contains(lower, "pre-owned"):
		return types.ConditionCertified
	case strings.Contains(lower, "new") && year >= newConditionMinYear:
		return types.ConditionNew
	}
	return types.ConditionUsed
}

// ParseMPG finds a "<n> city / <n> hwy" token. Both values are returned or neither.
func ParseMPG(text string) (city, highway int, ok bool) {
	m := mpgRe.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	city, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	highway, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return city, highway, true
}
