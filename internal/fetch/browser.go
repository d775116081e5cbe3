package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserFetcher renders pages in a shared headless Chrome and returns the
// resulting DOM. Each fetch runs in its own tab.
type BrowserFetcher struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	timeout       time.Duration
	wait          time.Duration
}

// NewBrowserFetcher starts the browser. wait is an extra settle delay after
// the body is ready, for pages that hydrate client side.
func NewBrowserFetcher(userAgent string, timeout, wait time.Duration) (*BrowserFetcher, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Headless,
	)
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser eagerly so a missing Chrome fails before the crawl.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &BrowserFetcher{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		timeout:       timeout,
		wait:          wait,
	}, nil
}

// Fetch navigates a new tab to rawURL and returns the rendered document.
func (b *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	defer cancel()

	timeoutCtx, timeoutCancel := context.WithTimeout(tabCtx, b.timeout)
	defer timeoutCancel()
	stop := context.AfterFunc(ctx, timeoutCancel)
	defer stop()

	resp, err := chromedp.RunResponse(timeoutCtx, chromedp.Navigate(rawURL))
	if err != nil {
		return "", &TransportError{URL: rawURL, Err: err}
	}
	if resp == nil {
		return "", &TransportError{URL: rawURL, Err: errors.New("no document response")}
	}
	if resp.Status < 200 || resp.Status > 299 {
		return "", &StatusError{URL: rawURL, StatusCode: int(resp.Status)}
	}

	tasks := []chromedp.Action{chromedp.WaitReady("body")}
	if b.wait > 0 {
		tasks = append(tasks, chromedp.Sleep(b.wait))
	}
	var pageHTML string
	tasks = append(tasks, chromedp.OuterHTML("html", &pageHTML))

	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return "", &TransportError{URL: rawURL, Err: err}
	}
	return "<!DOCTYPE html>\n" + pageHTML, nil
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() {
	b.browserCancel()
	b.allocCancel()
}
