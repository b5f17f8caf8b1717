// Package capture screenshots a chart tab in an already-running Chromium
// reached over CDP. The primary path uses chromedp; a raw WebSocket
// fallback covers browser builds that chromedp's session initialisation
// destabilises.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Client captures screenshots of the first tab matching a URL filter.
type Client struct {
	cdpURL    string
	tabFilter string
	timeout   time.Duration
}

// NewClient creates a capture client for the given CDP HTTP endpoint.
func NewClient(cdpURL, tabFilter string, timeout time.Duration) *Client {
	return &Client{
		cdpURL:    strings.TrimRight(cdpURL, "/"),
		tabFilter: tabFilter,
		timeout:   timeout,
	}
}

// Screenshot returns a PNG of the matching chart tab.
func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := c.chromedpScreenshot(ctx)
	if err == nil {
		return data, nil
	}
	slog.Debug("chromedp capture failed, falling back to raw CDP", "error", err)
	return c.rawScreenshot(ctx)
}

func (c *Client) chromedpScreenshot(ctx context.Context) ([]byte, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, c.cdpURL)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		return nil, fmt.Errorf("capture: enumerate targets: %w", err)
	}

	for _, t := range targets {
		if t.Type != "page" || !strings.Contains(t.URL, c.tabFilter) {
			continue
		}

		tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithTargetID(t.TargetID))
		defer tabCancel()

		runCtx, runCancel := context.WithTimeout(tabCtx, c.timeout)
		defer runCancel()

		var buf []byte
		err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			data, err := page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				Do(ctx)
			if err != nil {
				return err
			}
			buf = data
			return nil
		}))
		if err != nil {
			return nil, fmt.Errorf("capture: screenshot target %s: %w", t.TargetID, err)
		}
		return buf, nil
	}

	return nil, fmt.Errorf("capture: no tab matching %q", c.tabFilter)
}
