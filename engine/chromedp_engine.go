package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/stealth"
	"github.com/use-agent/pagecapture/config"
	"github.com/use-agent/pagecapture/models"
)

func init() {
	Register("chromedp", NewChromedpBrowser)
}

// ChromedpBrowser drives a single tab through chromedp.
type ChromedpBrowser struct {
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// NewChromedpBrowser launches a local browser, or attaches to cfg.RemoteURL
// when set, and allocates one tab.
func NewChromedpBrowser(ctx context.Context, cfg config.BrowserConfig) (Browser, error) {
	var (
		allocCtx    context.Context
		cancelAlloc context.CancelFunc
	)

	remote := cfg.RemoteURL != ""
	if remote {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL, chromedp.NoModifyURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
		)
		if cfg.IgnoreCertErrors {
			opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
		}
		if cfg.NoSandbox {
			opts = append(opts, chromedp.NoSandbox)
		}
		if cfg.BrowserBin != "" {
			opts = append(opts, chromedp.ExecPath(cfg.BrowserBin))
		}
		if cfg.Proxy != "" {
			opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		slog.Debug(fmt.Sprintf(format, args...), "driver", "chromedp")
	}))

	b := &ChromedpBrowser{
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}

	if err := b.allocate(ctx); err != nil {
		return nil, models.NewCaptureError(
			models.ErrCodeBrowserCrash,
			"failed to start chromedp browser",
			err,
		)
	}
	slog.Info("browser ready", "driver", "chromedp", "remote", remote)

	if cfg.Stealth {
		err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealth.JS).Do(ctx)
			return err
		}))
		if err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", err,
			)
		}
	}

	return b, nil
}

// allocate performs the first Run, which starts or connects to the browser
// and opens the tab. chromedp binds the browser process, the websocket and
// the tab's event loop to the context of that first Run, so it must be the
// tab context itself. ctx only bounds startup: if it ends first, the tab and
// allocator are torn down.
func (b *ChromedpBrowser) allocate(ctx context.Context) error {
	teardown := context.AfterFunc(ctx, func() {
		b.cancelTab()
		b.cancelAlloc()
	})

	err := chromedp.Run(b.tabCtx)
	if !teardown() {
		// Startup deadline hit; the tab is already being torn down.
		if err == nil {
			err = ctx.Err()
		}
		return err
	}
	if err != nil {
		b.cancelTab()
		b.cancelAlloc()
		return err
	}
	return nil
}

// run executes actions on the already allocated tab while honouring ctx's
// deadline and cancellation. chromedp requires contexts derived from the tab
// context, so ctx is bridged onto a child of it.
func (b *ChromedpBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(b.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

func (b *ChromedpBrowser) Name() string { return "chromedp" }

func (b *ChromedpBrowser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (b *ChromedpBrowser) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := b.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (b *ChromedpBrowser) HTML(ctx context.Context) (string, error) {
	var html string
	if err := b.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (b *ChromedpBrowser) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	var buf []byte

	if opts.FullPage {
		// FullScreenshot encodes png at quality 100 and jpeg otherwise.
		quality := 100
		if opts.Format == "jpeg" {
			quality = min(opts.Quality, 99)
		}
		if err := b.run(ctx, chromedp.FullScreenshot(&buf, quality)); err != nil {
			return nil, err
		}
		return buf, nil
	}

	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		capture := page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng)
		if opts.Format == "jpeg" {
			capture = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatJpeg).
				WithQuality(int64(opts.Quality))
		}
		var err error
		buf, err = capture.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (b *ChromedpBrowser) SubscribeResponses(ctx context.Context, fn func(models.ResponseRecord)) (func(), error) {
	if err := b.run(ctx, network.Enable()); err != nil {
		return nil, err
	}

	// chromedp drops a listener lazily, on the first event after its context
	// is done, so unsubscribe gates delivery itself and waits out a call
	// that is already running.
	var (
		mu       sync.Mutex
		stopped  bool
		inflight sync.WaitGroup
	)
	subCtx, cancel := context.WithCancel(b.tabCtx)
	chromedp.ListenTarget(subCtx, func(ev any) {
		e, ok := ev.(*network.EventResponseReceived)
		if !ok {
			return
		}
		mu.Lock()
		if stopped {
			mu.Unlock()
			return
		}
		inflight.Add(1)
		mu.Unlock()
		defer inflight.Done()

		fn(chromedpRecord(e, time.Now()))
	})

	return func() {
		mu.Lock()
		stopped = true
		mu.Unlock()
		cancel()
		inflight.Wait()
	}, nil
}

func (b *ChromedpBrowser) IsDocumentResponse(rec models.ResponseRecord) bool {
	return documentByTypeOrMIME(rec)
}

// Close closes the tab chromedp opened and kills a launched browser. A
// remote browser keeps running; only its DevTools connection is dropped.
func (b *ChromedpBrowser) Close() error {
	b.cancelTab()
	b.cancelAlloc()
	return nil
}

func chromedpRecord(e *network.EventResponseReceived, observedAt time.Time) models.ResponseRecord {
	rec := models.ResponseRecord{
		ResourceType: models.ResourceTypeOther,
		ObservedAt:   observedAt,
	}
	switch e.Type {
	case network.ResourceTypeDocument:
		rec.ResourceType = models.ResourceTypeDocument
	case "":
		rec.ResourceType = models.ResourceTypeUnknown
	}
	if e.Response == nil {
		return rec
	}

	rec.URL = e.Response.URL
	rec.Status = int(e.Response.Status)
	rec.MIMEType = e.Response.MimeType
	rec.Headers = make(map[string]string, len(e.Response.Headers))
	for k, v := range e.Response.Headers {
		rec.Headers[k] = fmt.Sprintf("%v", v)
	}
	return rec
}
