package adapters

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"cars-scraper/internal/types"
)

// Strategy says how a Locator finds its value on a page
type Strategy int

const (
	// ByText takes the text of the elements matching Selector
	ByText Strategy = iota
	// ByAttribute takes attribute Attr of the elements matching Selector
	ByAttribute
	// ByLabel finds an element matching Selector whose text contains Label
	// (case-insensitive) and takes the text of its next sibling
	ByLabel
	// ByPattern runs Pattern over the page text and takes the first capture group
	ByPattern
)

// TextSource selects the page text a ByPattern locator searches
type TextSource int

const (
	// BodyText is the rendered text of the body
	BodyText TextSource = iota
	// RawContent is the serialized HTML of the document
	RawContent
)

// maxLabelLength bounds the text of a ByLabel match so that wrapper elements
// containing a whole section are not mistaken for a label.
const maxLabelLength = 64

// Locator is one step of a fallback chain
type Locator struct {
	Strategy Strategy
	Selector string
	Attr     string
	Label    string
	Pattern  *regexp.Regexp
	Source   TextSource
}

func (l Locator) String() string {
	switch l.Strategy {
	case ByAttribute:
		return fmt.Sprintf("%s@%s", l.Selector, l.Attr)
	case ByLabel:
		return fmt.Sprintf("%s~%q", l.Selector, l.Label)
	case ByPattern:
		return fmt.Sprintf("/%s/", l.Pattern)
	}
	return l.Selector
}

// Text builds a ByText locator
func Text(selector string) Locator {
	return Locator{Strategy: ByText, Selector: selector}
}

// Attribute builds a ByAttribute locator
func Attribute(selector, attr string) Locator {
	return Locator{Strategy: ByAttribute, Selector: selector, Attr: attr}
}

// Label builds a ByLabel locator
func Label(selector, label string) Locator {
	return Locator{Strategy: ByLabel, Selector: selector, Label: label}
}

// Pattern builds a ByPattern locator
func Pattern(expr string, source TextSource) Locator {
	return Locator{Strategy: ByPattern, Pattern: regexp.MustCompile(expr), Source: source}
}

// pageView wraps a page for one extraction and memoizes its full-text reads,
// which several fields scan.
type pageView struct {
	page    types.Page
	body    *string
	content *string
}

func newPageView(page types.Page) *pageView {
	return &pageView{page: page}
}

func (v *pageView) text(ctx context.Context, source TextSource) (string, error) {
	if source == RawContent {
		if v.content == nil {
			s, err := v.page.Content(ctx)
			if err != nil {
				return "", err
			}
			v.content = &s
		}
		return *v.content, nil
	}

	if v.body == nil {
		s, err := v.page.BodyText(ctx)
		if err != nil {
			return "", err
		}
		v.body = &s
	}
	return *v.body, nil
}

// BaseAdapter provides the locator machinery shared by site adapters
type BaseAdapter struct {
	config *types.Config
	logger types.Logger
}

// NewBaseAdapter creates a new base adapter
func NewBaseAdapter(config *types.Config, logger types.Logger) *BaseAdapter {
	return &BaseAdapter{
		config: config,
		logger: logger,
	}
}

// Config returns the config field of the BaseAdapter
func (b *BaseAdapter) Config() *types.Config {
	return b.config
}

// Values returns every non-empty value loc yields, in document order.
func (b *BaseAdapter) Values(ctx context.Context, view *pageView, loc Locator) ([]string, error) {
	if loc.Strategy == ByPattern {
		text, err := view.text(ctx, loc.Source)
		if err != nil {
			return nil, err
		}
		m := loc.Pattern.FindStringSubmatch(text)
		if len(m) < 2 || strings.TrimSpace(m[1]) == "" {
			return nil, nil
		}
		return []string{strings.TrimSpace(m[1])}, nil
	}

	elements, err := view.page.QueryAll(ctx, loc.Selector)
	if err != nil {
		return nil, err
	}

	var values []string
	label := strings.ToLower(loc.Label)
	for _, el := range elements {
		var v string
		switch loc.Strategy {
		case ByAttribute:
			v, _ = el.Attr(loc.Attr)
		case ByLabel:
			if len(el.Text) > maxLabelLength || !strings.Contains(strings.ToLower(el.Text), label) {
				continue
			}
			v = el.NextText
		default:
			v = el.Text
		}
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values, nil
}

// FirstText walks chain in order and returns the first non-empty value. Query
// failures are treated as "not found" for that step.
func (b *BaseAdapter) FirstText(ctx context.Context, view *pageView, field string, chain []Locator) (string, bool) {
	v, ok := firstParsed(ctx, b, view, field, chain, func(s string) (string, bool) { return s, true })
	return v, ok
}

// firstParsed walks chain and returns the first value parse accepts
func firstParsed[T any](ctx context.Context, b *BaseAdapter, view *pageView, field string, chain []Locator, parse func(string) (T, bool)) (T, bool) {
	var zero T
	for _, loc := range chain {
		values, err := b.Values(ctx, view, loc)
		if err != nil {
			b.logger.Debugf("Locator %s for %s failed: %v", loc, field, err)
			continue
		}
		if len(values) == 0 {
			continue
		}
		// Only the first value of a locator is considered.
		if parsed, ok := parse(values[0]); ok {
			b.logger.Debugf("Extracted %s using locator %s", field, loc)
			return parsed, true
		}
	}
	return zero, false
}

// safeField runs fn and converts a panic into a logged "field absent"
func (b *BaseAdapter) safeField(field string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warnf("Extracting %s failed: %v", field, r)
		}
	}()
	fn()
}

// NormalizeURL resolves href against origin and returns it when the result is
// an absolute http(s) URL.
func NormalizeURL(href, origin string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", false
	}

	base, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	return abs.String(), true
}

// IsAbsoluteHTTPURL reports whether raw is an absolute http(s) URL
func IsAbsoluteHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// RemoveDuplicateURLs removes duplicate URLs, keeping first occurrences in order
func RemoveDuplicateURLs(urls []string) []string {
	seen := make(map[string]bool)
	var uniqueURLs []string

	for _, u := range urls {
		if !seen[u] {
			seen[u] = true
			uniqueURLs = append(uniqueURLs, u)
		}
	}

	return uniqueURLs
}
