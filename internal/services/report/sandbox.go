// -----------------------------------------------------------------------
// Offscreen Sandbox - Headless rendering of report markup to a bitmap
// -----------------------------------------------------------------------

package report

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// SandboxConfig holds the offscreen rendering parameters
type SandboxConfig struct {
	Width       int64         `json:"width"`        // logical viewport width in px
	RasterScale float64       `json:"raster_scale"` // device scale factor
	LoadTimeout time.Duration `json:"load_timeout"` // bounded wait for document + images
	SettleDelay time.Duration `json:"settle_delay"` // post-readiness layout settle
}

// DefaultSandboxConfig returns the standard rendering parameters
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		Width:       794,
		RasterScale: 2.0,
		LoadTimeout: 7 * time.Second,
		SettleDelay: 200 * time.Millisecond,
	}
}

// Sandbox renders HTML markup in a throwaway headless browser and captures
// the full page as a PNG bitmap. Every capture gets a fresh allocator and
// browser context; nothing is pooled or reused, and teardown runs on every
// exit path.
type Sandbox struct {
	config SandboxConfig
	logger arbor.ILogger
}

// NewSandbox creates an offscreen rendering sandbox
func NewSandbox(config SandboxConfig, logger arbor.ILogger) *Sandbox {
	if config.Width <= 0 {
		config.Width = 794
	}
	if config.RasterScale <= 0 {
		config.RasterScale = 2.0
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = 7 * time.Second
	}
	if config.SettleDelay <= 0 {
		config.SettleDelay = 200 * time.Millisecond
	}
	return &Sandbox{config: config, logger: logger}
}

// readinessExpr is polled until the document has finished loading and every
// image has either loaded or failed. A failed image does not block capture;
// it renders as a broken placeholder rather than stalling the export.
const readinessExpr = `document.readyState === 'complete' &&
	Array.from(document.images).every(img => img.complete)`

// RenderToRaster renders markup at the configured width and returns a PNG
// of the full page. The load wait is bounded: if readiness is not reached
// within the load timeout, capture proceeds with whatever has rendered.
func (s *Sandbox) RenderToRaster(ctx context.Context, markup string, width int64) ([]byte, error) {
	if markup == "" {
		return nil, fmt.Errorf("cannot render empty markup")
	}
	if width <= 0 {
		width = s.config.Width
	}

	started := time.Now()

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, allocatorOpts...)
	defer allocatorCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	defer browserCancel()

	// Overall budget: load wait plus settle plus capture headroom
	runCtx, runCancel := context.WithTimeout(browserCtx, s.config.LoadTimeout+s.config.SettleDelay+30*time.Second)
	defer runCancel()

	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(markup))

	err := chromedp.Run(runCtx,
		emulation.SetDeviceMetricsOverride(width, 0, s.config.RasterScale, false),
		chromedp.Navigate(dataURL),
	)
	if err != nil {
		return nil, fmt.Errorf("sandbox navigation failed: %w", err)
	}

	// Bounded readiness wait; a timeout here is not fatal
	pollCtx, pollCancel := context.WithTimeout(runCtx, s.config.LoadTimeout)
	err = chromedp.Run(pollCtx,
		chromedp.Poll(readinessExpr, nil, chromedp.WithPollingInterval(100*time.Millisecond)),
	)
	pollCancel()
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, chromedp.ErrPollingTimeout) {
			return nil, fmt.Errorf("sandbox readiness poll failed: %w", err)
		}
		s.logger.Warn().
			Dur("load_timeout", s.config.LoadTimeout).
			Msg("Document readiness not reached within load timeout, capturing anyway")
	}

	var capture []byte
	err = chromedp.Run(runCtx,
		chromedp.Sleep(s.config.SettleDelay),
		chromedp.FullScreenshot(&capture, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("sandbox capture failed: %w", err)
	}
	if len(capture) == 0 {
		return nil, fmt.Errorf("sandbox produced empty capture")
	}

	s.logger.Debug().
		Int64("width", width).
		Int("bytes", len(capture)).
		Dur("duration", time.Since(started)).
		Msg("Offscreen capture completed")

	return capture, nil
}
