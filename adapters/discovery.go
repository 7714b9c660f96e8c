package adapters

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"cars-scraper/internal/types"
)

// DiscoverListingURLs returns the absolute listing URLs on a loaded search
// results page, de-duplicated in first-seen order and capped at the configured
// listings per page.
//
// The structural link locators are tried in order and the first one that
// yields a link on the site's host wins. When none does, every anchor is
// scanned for the profile's listing path keywords.
func (a *ListingAdapter) DiscoverListingURLs(ctx context.Context, page types.Page) ([]string, error) {
	view := newPageView(page)

	var urls []string
	for _, loc := range a.profile.ListingLinks {
		hrefs, err := a.Values(ctx, view, loc)
		if err != nil {
			a.logger.Debugf("Listing locator %s failed: %v", loc, err)
			continue
		}

		urls = a.absoluteOnHost(hrefs)
		if len(urls) > 0 {
			a.logger.Debugf("Found %d listing links using locator %s", len(urls), loc)
			break
		}
	}

	if len(urls) == 0 {
		a.logger.Debugf("No structural listing links found, scanning all anchors")
		hrefs, err := a.Values(ctx, view, Attribute("a[href]", "href"))
		if err != nil {
			return nil, fmt.Errorf("failed to scan anchors: %w", err)
		}
		var matched []string
		for _, href := range hrefs {
			if containsAny(href, a.profile.ListingKeywords) {
				matched = append(matched, href)
			}
		}
		urls = a.absoluteOnHost(matched)
	}

	urls = RemoveDuplicateURLs(urls)
	if limit := a.config.MaxListingsPerPage; limit > 0 && len(urls) > limit {
		urls = urls[:limit]
	}

	a.logger.Infof("Discovered %d listing URLs", len(urls))
	return urls, nil
}

// absoluteOnHost resolves hrefs against the site origin and keeps those on the site's host
func (a *ListingAdapter) absoluteOnHost(hrefs []string) []string {
	var urls []string
	for _, href := range hrefs {
		abs, ok := NormalizeURL(href, a.profile.Origin)
		if !ok {
			continue
		}
		if a.profile.Host != "" {
			u, err := url.Parse(abs)
			if err != nil || !onHost(u.Hostname(), a.profile.Host) {
				continue
			}
		}
		urls = append(urls, abs)
	}
	return urls
}

// onHost reports whether hostname is host or one of its subdomains
func onHost(hostname, host string) bool {
	return hostname == host || strings.HasSuffix(hostname, "."+host)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
