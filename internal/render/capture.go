package render

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
)

// Default capture parameters for the day-sheet preview; A4-ish portrait.
const (
	DefaultWidth      = 1240
	DefaultHeight     = 1754
	DefaultTimeoutSec = 30
)

// CaptureOptions defines parameters for a Chromium-based screenshot capture.
type CaptureOptions struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/sheet?date=2024-05-10".
	URL string

	// OutputPath is where the PNG screenshot will be written, e.g.
	// "/var/lib/variazioni/preview.png".
	OutputPath string

	// Width and Height are the viewport dimensions in pixels. If zero,
	// DefaultWidth / DefaultHeight are used.
	Width  int
	Height int

	// Timeout bounds the entire capture operation.
	Timeout time.Duration
}

// CaptureSheetPNG launches a headless Chromium instance via chromedp,
// navigates to opts.URL (the /sheet page), waits for the page to signal
// readiness through its data-ready attribute, and captures a PNG screenshot
// at the requested resolution.
func CaptureSheetPNG(parentCtx context.Context, opts CaptureOptions) error {
	if opts.URL == "" {
		return fmt.Errorf("capture: URL is required")
	}
	if opts.OutputPath == "" {
		return fmt.Errorf("capture: OutputPath is required")
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeoutSec * time.Second
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(`[data-ready="true"]`, chromedp.ByQuery),
		// Small extra delay to allow final paints.
		chromedp.Sleep(250 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	return nil
}
