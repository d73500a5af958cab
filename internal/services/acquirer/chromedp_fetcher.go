package acquirer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
)

// ErrNotPDF indicates navigation completed but no PDF response was
// captured, usually because the URL served an HTML page instead.
var ErrNotPDF = errors.New("no PDF response captured")

// consentSelectors are tried in order when the document URL lands on a
// terms acceptance page instead of the PDF itself.
var consentSelectors = []string{
	`input[type="submit"][value*="Agree"]`,
	`input[type="submit"][value*="Accept"]`,
	`button[type="submit"]`,
	`input[name="security"]`,
	`a.btn-primary`,
}

// ChromeFetcher retrieves PDFs through a headless browser so consent
// interstitials and script redirects resolve before capture. One
// browser process is shared; each Fetch runs in its own tab.
type ChromeFetcher struct {
	browserCtx     context.Context
	allocCancel    context.CancelFunc
	browserCancel  context.CancelFunc
	navigationWait time.Duration
	logger         arbor.ILogger
}

var _ interfaces.PageFetcher = (*ChromeFetcher)(nil)

// NewChromeFetcher launches the shared browser process.
func NewChromeFetcher(cfg *common.AcquirerConfig, logger arbor.ILogger) (*ChromeFetcher, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser eagerly so a missing Chrome binary surfaces at
	// construction instead of on the first fetch.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Debug().Bool("headless", cfg.Headless).Msg("Browser started")

	return &ChromeFetcher{
		browserCtx:     browserCtx,
		allocCancel:    allocCancel,
		browserCancel:  browserCancel,
		navigationWait: common.Duration(cfg.NavigationWait, 2*time.Second),
		logger:         logger,
	}, nil
}

// Fetch navigates to url in a fresh tab and returns the PDF bytes. If
// the navigation lands on a consent interstitial it accepts the terms
// and waits for the follow-up PDF response.
func (f *ChromeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	tabCtx, cancelTab := chromedp.NewContext(f.browserCtx)
	defer cancelTab()

	// Honor the caller's deadline inside the tab
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		tabCtx, cancelDeadline = context.WithDeadline(tabCtx, deadline)
		defer cancelDeadline()
	}

	var mu sync.Mutex
	var pdfRequestID network.RequestID

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok {
			return
		}
		if strings.Contains(strings.ToLower(resp.Response.MimeType), "application/pdf") {
			mu.Lock()
			pdfRequestID = resp.RequestID
			mu.Unlock()
		}
	})

	if err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.Navigate(url),
		chromedp.Sleep(f.navigationWait),
	); err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	mu.Lock()
	captured := pdfRequestID != ""
	mu.Unlock()

	if !captured {
		// Likely a consent interstitial; accept and wait for the PDF
		if err := f.acceptInterstitial(tabCtx, url); err != nil {
			return nil, err
		}
		mu.Lock()
		captured = pdfRequestID != ""
		mu.Unlock()
		if !captured {
			return nil, ErrNotPDF
		}
	}

	var body []byte
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(cdpCtx context.Context) error {
		mu.Lock()
		id := pdfRequestID
		mu.Unlock()
		var bodyErr error
		body, bodyErr = network.GetResponseBody(id).Do(cdpCtx)
		return bodyErr
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}

// acceptInterstitial tries the known consent selectors, then falls back
// to submitting the page's first form.
func (f *ChromeFetcher) acceptInterstitial(tabCtx context.Context, url string) error {
	clicked := false
	for _, sel := range consentSelectors {
		clickCtx, cancel := context.WithTimeout(tabCtx, 2*time.Second)
		err := chromedp.Run(clickCtx, chromedp.Click(sel, chromedp.ByQuery))
		cancel()
		if err == nil {
			f.logger.Debug().Str("selector", sel).Str("url", url).Msg("Consent interstitial accepted")
			clicked = true
			break
		}
	}

	if !clicked {
		var submitted bool
		err := chromedp.Run(tabCtx, chromedp.Evaluate(
			`(() => { const form = document.querySelector('form'); if (form) { form.submit(); return true; } return false; })()`,
			&submitted,
		))
		if err != nil || !submitted {
			return ErrNotPDF
		}
		f.logger.Debug().Str("url", url).Msg("Consent form submitted")
	}

	return chromedp.Run(tabCtx, chromedp.Sleep(f.navigationWait))
}

// Close shuts down the shared browser process.
func (f *ChromeFetcher) Close() error {
	f.browserCancel()
	f.allocCancel()
	return nil
}
