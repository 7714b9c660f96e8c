package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cars-scraper/internal/types"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ErrPageNotLoaded is returned when a static page is queried before any navigation
var ErrPageNotLoaded = errors.New("page not loaded")

// loadFunc returns the HTML served at a URL
type loadFunc func(ctx context.Context, url string) (string, error)

// StaticPage is a session over server-rendered HTML parsed with goquery. No
// script runs, so Settle does nothing.
type StaticPage struct {
	mu     sync.Mutex
	load   loadFunc
	html   string
	doc    *goquery.Document
	closed bool
}

// NewStaticPage creates a page already holding html. Navigate on it is a no-op.
func NewStaticPage(html string) (*StaticPage, error) {
	p := &StaticPage{}
	if err := p.setHTML(html); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *StaticPage) setHTML(html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}
	p.mu.Lock()
	p.html = html
	p.doc = doc
	p.mu.Unlock()
	return nil
}

func (p *StaticPage) document() (*goquery.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("page is closed")
	}
	if p.doc == nil {
		return nil, ErrPageNotLoaded
	}
	return p.doc, nil
}

// Navigate loads and parses url
func (p *StaticPage) Navigate(ctx context.Context, url string) error {
	if p.load == nil {
		return ctx.Err()
	}
	html, err := p.load(ctx, url)
	if err != nil {
		return types.NewScrapeError(types.ErrCodeNavigation, "navigate to "+url+" failed", err)
	}
	return p.setHTML(html)
}

// Settle is a no-op for static pages
func (p *StaticPage) Settle(ctx context.Context) error {
	return ctx.Err()
}

// QueryAll returns every element matching selector. An invalid selector is an
// error rather than a panic.
func (p *StaticPage) QueryAll(ctx context.Context, selector string) ([]types.Element, error) {
	doc, err := p.document()
	if err != nil {
		return nil, err
	}
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %s: %w", selector, err)
	}

	var elements []types.Element
	doc.FindMatcher(matcher).Each(func(i int, s *goquery.Selection) {
		attrs := make(map[string]string, len(s.Nodes[0].Attr))
		for _, a := range s.Nodes[0].Attr {
			attrs[a.Key] = a.Val
		}
		elements = append(elements, types.Element{
			Text:     strings.TrimSpace(s.Text()),
			Attrs:    attrs,
			NextText: strings.TrimSpace(s.Next().Text()),
		})
	})
	return elements, ctx.Err()
}

// BodyText returns the text of the body with a line break around every block
// element, so adjacent cells such as a label and its value stay apart.
func (p *StaticPage) BodyText(ctx context.Context) (string, error) {
	doc, err := p.document()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, n := range doc.Find("body").Nodes {
		writeText(&b, n)
	}
	return collapseLines(b.String()), ctx.Err()
}

// blockElements end a line of rendered text, the way innerText breaks them
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "dd": true,
	"div": true, "dl": true, "dt": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "nav": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "td": true, "th": true, "tr": true, "ul": true,
}

var hiddenElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true, "head": true,
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if hiddenElements[n.Data] {
			return
		}
		if n.Data == "br" {
			b.WriteByte('\n')
			return
		}
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}

// collapseLines squeezes whitespace runs within each line and drops blank lines
func collapseLines(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// Content returns the HTML the page was built from
func (p *StaticPage) Content(ctx context.Context) (string, error) {
	if _, err := p.document(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, ctx.Err()
}

// Close marks the page closed
func (p *StaticPage) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// StaticRenderer serves pages from a fixed URL to HTML map. It backs saved-page
// replays and tests.
type StaticRenderer struct {
	pages map[string]string
}

// NewStaticRenderer creates a renderer over pages
func NewStaticRenderer(pages map[string]string) *StaticRenderer {
	return &StaticRenderer{pages: pages}
}

// Open returns a fresh page bound to the renderer's pages
func (r *StaticRenderer) Open(ctx context.Context) (types.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &StaticPage{load: func(ctx context.Context, url string) (string, error) {
		html, ok := r.pages[url]
		if !ok {
			return "", fmt.Errorf("no page for %s", url)
		}
		return html, ctx.Err()
	}}, nil
}

var (
	_ types.Page     = (*StaticPage)(nil)
	_ types.Renderer = (*StaticRenderer)(nil)
)
