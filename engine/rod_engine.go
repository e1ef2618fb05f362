package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/pagecapture/config"
	"github.com/use-agent/pagecapture/models"
	"github.com/ysmood/gson"
)

func init() {
	Register("rod", NewRodBrowser)
}

// RodBrowser drives a single tab through go-rod.
type RodBrowser struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher // nil when attached to a remote browser
	ownsPage bool
}

// NewRodBrowser launches a local browser, or attaches to cfg.RemoteURL when
// set, and prepares one tab for navigation.
func NewRodBrowser(ctx context.Context, cfg config.BrowserConfig) (Browser, error) {
	if cfg.RemoteURL != "" {
		return attachRod(ctx, cfg)
	}

	l := launcher.New().
		Context(ctx).
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}
	if cfg.IgnoreCertErrors {
		l.Set(flags.Flag("ignore-certificate-errors"))
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewCaptureError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "driver", "rod", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		abortLaunch(l)
		return nil, models.NewCaptureError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Cleanup()
		return nil, models.NewCaptureError(
			models.ErrCodeBrowserCrash,
			"failed to create page",
			err,
		)
	}

	rb := &RodBrowser{browser: browser, page: page, launcher: l, ownsPage: true}
	if cfg.Stealth {
		rb.injectStealth()
	}
	return rb, nil
}

// launchedProcess is the part of *launcher.Launcher needed to undo a launch.
type launchedProcess interface {
	Kill()
	Cleanup()
}

// abortLaunch kills a browser that was launched but could not be used and
// removes its temporary user-data directory. Cleanup waits for the process
// to exit, so Kill must come first.
func abortLaunch(l launchedProcess) {
	l.Kill()
	l.Cleanup()
}

// attachRod connects to a browser someone else started and reuses its first
// tab, creating one only when it has none.
func attachRod(ctx context.Context, cfg config.BrowserConfig) (Browser, error) {
	browser := rod.New().Context(ctx).ControlURL(cfg.RemoteURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewCaptureError(
			models.ErrCodeBrowserCrash,
			"failed to connect to remote browser",
			err,
		)
	}
	// Detach the connection from the setup context so later calls carry
	// their own deadlines.
	browser = browser.Context(context.Background())
	slog.Info("attached to remote browser", "driver", "rod", "url", cfg.RemoteURL)

	if cfg.IgnoreCertErrors {
		if err := browser.IgnoreCertErrors(true); err != nil {
			slog.Warn("failed to ignore certificate errors on remote browser", "error", err)
		}
	}

	rb := &RodBrowser{browser: browser}

	pages, err := browser.Pages()
	if err == nil && len(pages) > 0 {
		rb.page = pages.First()
	} else {
		page, err := browser.Page(proto.TargetCreateTarget{})
		if err != nil {
			return nil, models.NewCaptureError(
				models.ErrCodeBrowserCrash,
				"failed to create page on remote browser",
				err,
			)
		}
		rb.page = page
		rb.ownsPage = true
	}

	if cfg.Stealth {
		rb.injectStealth()
	}
	return rb, nil
}

func (b *RodBrowser) injectStealth() {
	if _, err := b.page.EvalOnNewDocument(stealth.JS); err != nil {
		slog.Warn("stealth injection failed, proceeding without stealth",
			"error", err,
		)
	}
}

func (b *RodBrowser) Name() string { return "rod" }

// Navigate registers the DOMContentLoaded waiter before navigating so the
// event cannot be missed.
func (b *RodBrowser) Navigate(ctx context.Context, url string) error {
	p := b.page.Context(ctx)
	waitReady := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(url); err != nil {
		return err
	}
	waitReady()
	return ctx.Err()
}

func (b *RodBrowser) CurrentURL(ctx context.Context) (string, error) {
	info, err := b.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (b *RodBrowser) HTML(ctx context.Context) (string, error) {
	return b.page.Context(ctx).HTML()
}

func (b *RodBrowser) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	req := &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}
	if opts.Format == "jpeg" {
		req.Format = proto.PageCaptureScreenshotFormatJpeg
		req.Quality = gson.Int(opts.Quality)
	}
	return b.page.Context(ctx).Screenshot(opts.FullPage, req)
}

func (b *RodBrowser) SubscribeResponses(ctx context.Context, fn func(models.ResponseRecord)) (func(), error) {
	if err := (proto.NetworkEnable{}).Call(b.page.Context(ctx)); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	// EachEvent subscribes immediately; only the returned wait func runs
	// in the background.
	wait := b.page.Context(subCtx).EachEvent(func(e *proto.NetworkResponseReceived) {
		fn(rodRecord(e, time.Now()))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		wait()
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

func (b *RodBrowser) IsDocumentResponse(rec models.ResponseRecord) bool {
	return documentByTypeOrMIME(rec)
}

func (b *RodBrowser) Close() error {
	if b.launcher == nil {
		// Remote browser: leave it running, drop only a tab we opened.
		if b.ownsPage {
			return b.page.Close()
		}
		return nil
	}
	err := b.browser.Close()
	b.launcher.Cleanup()
	return err
}

// rodRecord converts a CDP response event into a ResponseRecord. Header
// values are copied as the browser reported them.
func rodRecord(e *proto.NetworkResponseReceived, observedAt time.Time) models.ResponseRecord {
	rec := models.ResponseRecord{
		ResourceType: models.ResourceTypeOther,
		ObservedAt:   observedAt,
	}
	switch e.Type {
	case proto.NetworkResourceTypeDocument:
		rec.ResourceType = models.ResourceTypeDocument
	case "":
		rec.ResourceType = models.ResourceTypeUnknown
	}
	if e.Response == nil {
		return rec
	}

	rec.URL = e.Response.URL
	rec.Status = e.Response.Status
	rec.MIMEType = e.Response.MIMEType
	rec.Headers = make(map[string]string, len(e.Response.Headers))
	for k, v := range e.Response.Headers {
		rec.Headers[k] = v.Str()
	}
	return rec
}
