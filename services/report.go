package services

import (
	"fmt"
	"io"
	"sort"

	"cars-scraper/internal/types"

	"github.com/shopspring/decimal"
)

// Report summarizes a batch of scraped listings
type Report struct {
	TotalListings       int
	PricedListings      int
	AveragePrice        decimal.Decimal
	MinPrice            decimal.Decimal
	MaxPrice            decimal.Decimal
	AverageMileage      int
	TotalImages         int
	ListingsByMake      map[string]int
	ListingsByCondition map[types.Condition]int
}

// GenerateReport computes the summary of listings. Price and mileage
// statistics only cover the listings that carry them.
func GenerateReport(listings []*types.ListingRecord) Report {
	report := Report{
		TotalListings:       len(listings),
		ListingsByMake:      make(map[string]int),
		ListingsByCondition: make(map[types.Condition]int),
	}

	var (
		priceSum     decimal.Decimal
		mileageSum   int
		mileageCount int
	)

	for _, l := range listings {
		report.ListingsByMake[l.Make]++
		report.ListingsByCondition[l.Condition]++
		report.TotalImages += len(l.Images())

		if l.Price != nil {
			p := *l.Price
			if report.PricedListings == 0 || p.LessThan(report.MinPrice) {
				report.MinPrice = p
			}
			if report.PricedListings == 0 || p.GreaterThan(report.MaxPrice) {
				report.MaxPrice = p
			}
			priceSum = priceSum.Add(p)
			report.PricedListings++
		}

		if l.Mileage != nil {
			mileageSum += *l.Mileage
			mileageCount++
		}
	}

	if report.PricedListings > 0 {
		report.AveragePrice = priceSum.Div(decimal.NewFromInt(int64(report.PricedListings))).Round(2)
	}
	if mileageCount > 0 {
		report.AverageMileage = mileageSum / mileageCount
	}

	return report
}

// PrintReport writes report as a table to w
func PrintReport(w io.Writer, report Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "┌──────────────────────────────────────────────────────────────┐")
	fmt.Fprintln(w, "│                     Vehicle Listing Summary                  │")
	fmt.Fprintln(w, "├───────────────────────────────┬──────────────────────────────┤")
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Total Listings Scraped", report.TotalListings)
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Listings With Price", report.PricedListings)
	fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Average Price", "$"+report.AveragePrice.StringFixed(2))
	fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Minimum Price", "$"+report.MinPrice.StringFixed(2))
	fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Maximum Price", "$"+report.MaxPrice.StringFixed(2))
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Average Mileage", report.AverageMileage)
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Total Images", report.TotalImages)
	fmt.Fprintln(w, "└───────────────────────────────┴──────────────────────────────┘")

	if len(report.ListingsByMake) == 0 {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "┌──────────────────────────────────────────────┬───────────────┐")
	fmt.Fprintln(w, "│ Listings per Make                            │ Count         │")
	fmt.Fprintln(w, "├──────────────────────────────────────────────┼───────────────┤")
	for _, vehicleMake := range sortedKeys(report.ListingsByMake) {
		fmt.Fprintf(w, "│ %-44s │ %-13d │\n", truncateText(vehicleMake, 44), report.ListingsByMake[vehicleMake])
	}
	fmt.Fprintln(w, "└──────────────────────────────────────────────┴───────────────┘")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
