package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"cars-scraper/internal/types"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// BrowserRenderer owns one headless Chrome process and opens a fresh tab with
// its own identity for every session.
type BrowserRenderer struct {
	config        *types.BrowserConfig
	logger        types.Logger
	jitter        *Jitter
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewBrowserRenderer launches the browser
func NewBrowserRenderer(config *types.BrowserConfig, jitter *Jitter, logger types.Logger) (*BrowserRenderer, error) {
	logger.Info("Launching Chrome browser...")
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), StealthOpts(config.Headless)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(logger.Debugf))

	// The first Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, types.NewScrapeError(types.ErrCodeNavigation, "failed to launch browser", err)
	}
	logger.Info("Browser ready")

	return &BrowserRenderer{
		config:        config,
		logger:        logger,
		jitter:        jitter,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Open creates a new tab in its own browser context, so sessions never share
// cookies or storage. The tab gets a randomized or configured user agent, a
// fixed viewport, locale and timezone, and the automation signals masked.
func (b *BrowserRenderer) Open(ctx context.Context) (types.Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx, chromedp.WithNewBrowserContext())
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	ua := b.config.UserAgent
	if ua == "" {
		ua = RandomUserAgent(b.jitter)
	}

	err := chromedp.Run(tabCtx,
		emulation.SetUserAgentOverride(ua).WithAcceptLanguage("en-US,en;q=0.9"),
		chromedp.EmulateViewport(int64(b.config.ViewportWidth), int64(b.config.ViewportHeight)),
		emulation.SetLocaleOverride().WithLocale(b.config.Locale),
		emulation.SetTimezoneOverride(b.config.Timezone),
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers(defaultHeaders)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(maskAutomationJS).Do(ctx)
			return err
		}),
	)
	if err != nil {
		tabCancel()
		return nil, types.NewScrapeError(types.ErrCodeNavigation, "failed to open browser session", err)
	}

	b.logger.Debugf("Opened browser session (ua=%q)", ua)
	return &BrowserPage{
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
		config:    b.config,
		jitter:    b.jitter,
		logger:    b.logger,
	}, nil
}

// Close shuts the browser down
func (b *BrowserRenderer) Close() {
	b.logger.Info("Closing browser...")
	b.browserCancel()
	b.allocCancel()
}

// BrowserPage is one browser tab
type BrowserPage struct {
	tabCtx    context.Context
	tabCancel context.CancelFunc
	config    *types.BrowserConfig
	jitter    *Jitter
	logger    types.Logger
	closeOnce sync.Once
}

// run executes actions under the configured timeout and the caller's context
func (p *BrowserPage) run(ctx context.Context, what string, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(p.tabCtx, p.config.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return types.NewScrapeError(types.ErrCodeTimeout, what+" timed out", err)
	}
	return types.NewScrapeError(types.ErrCodeNavigation, what+" failed", err)
}

// Navigate loads url and waits for the load event and a ready body. Network
// idle is not awaited since listing pages keep long-polling connections open.
func (p *BrowserPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, "navigate to "+url,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Settle scrolls down the page a few times, returns to the top and moves the
// mouse around so lazy-loaded galleries and cards get a chance to render.
func (p *BrowserPage) Settle(ctx context.Context) error {
	unit := p.config.SettleDelay
	var actions []chromedp.Action

	for i := 0; i < 3; i++ {
		actions = append(actions,
			chromedp.Evaluate(`window.scrollBy(0, window.innerHeight * 0.8)`, nil),
			chromedp.Sleep(p.jitter.Duration(5*unit, 15*unit)),
		)
	}
	actions = append(actions,
		chromedp.Evaluate(`window.scrollTo(0, 0)`, nil),
		chromedp.Sleep(p.jitter.Duration(3*unit, 7*unit)),
	)

	moves := p.jitter.IntRange(1, 3)
	for i := 0; i < moves; i++ {
		x := p.jitter.IntRange(100, p.config.ViewportWidth-100)
		y := p.jitter.IntRange(100, p.config.ViewportHeight-100)
		actions = append(actions,
			chromedp.MouseEvent(input.MouseMoved, float64(x), float64(y)),
			chromedp.Sleep(p.jitter.Duration(unit, 3*unit)),
		)
	}

	return p.run(ctx, "settle page", actions...)
}

const queryAllJS = `(() => Array.from(document.querySelectorAll(%s)).map(el => {
	const attrs = {};
	for (const a of el.attributes) attrs[a.name] = a.value;
	const next = el.nextElementSibling;
	return {
		text: (el.innerText || el.textContent || '').trim(),
		attrs: attrs,
		next: next ? (next.textContent || '').trim() : ''
	};
}))()`

// QueryAll snapshots every element matching selector
func (p *BrowserPage) QueryAll(ctx context.Context, selector string) ([]types.Element, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to encode selector %s: %w", selector, err)
	}

	var elements []types.Element
	if err := p.run(ctx, "query "+selector, chromedp.Evaluate(fmt.Sprintf(queryAllJS, quoted), &elements)); err != nil {
		return nil, err
	}
	return elements, nil
}

// BodyText returns document.body.innerText
func (p *BrowserPage) BodyText(ctx context.Context) (string, error) {
	var text string
	err := p.run(ctx, "read body text",
		chromedp.Evaluate(`document.body ? document.body.innerText : ''`, &text),
	)
	return text, err
}

// Content returns the outer HTML of the document
func (p *BrowserPage) Content(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, "read page content", chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err == nil {
		p.logger.Debugf("Read page content (%d bytes)", len(html))
	}
	return html, err
}

// Close closes the tab and disposes its browser context
func (p *BrowserPage) Close() error {
	p.closeOnce.Do(func() {
		p.tabCancel()
	})
	return nil
}

var _ types.Page = (*BrowserPage)(nil)
