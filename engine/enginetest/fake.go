// Package enginetest provides a scripted engine.Browser for tests that must
// not depend on a real browser.
package enginetest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/pagecapture/engine"
	"github.com/use-agent/pagecapture/models"
)

// Browser is a fake engine.Browser. Navigate emits Events to the active
// subscriber from a separate goroutine, the way CDP drivers deliver them,
// and then reports FinalURL as the current location.
type Browser struct {
	// FinalURL is what CurrentURL returns after Navigate. Empty means the
	// requested URL.
	FinalURL string

	// Events are delivered in order during Navigate.
	Events []models.ResponseRecord

	// LateEvents are delivered after Navigate returns, before unsubscribe.
	LateEvents []models.ResponseRecord

	// NavigateDelay blocks Navigate, honouring ctx, to simulate slow pages.
	NavigateDelay time.Duration

	NavigateErr   error
	SubscribeErr  error
	HTMLErr       error
	ScreenshotErr error

	PageHTML  string
	PageImage []byte

	// Classifier overrides IsDocumentResponse when set.
	Classifier func(models.ResponseRecord) bool

	mu         sync.Mutex
	subscriber func(models.ResponseRecord)
	delivery   sync.WaitGroup
	navigated  string
	closed     bool
	calls      []string
}

var _ engine.Browser = (*Browser)(nil)

func (b *Browser) Name() string { return "fake" }

func (b *Browser) record(call string) {
	b.mu.Lock()
	b.calls = append(b.calls, call)
	b.mu.Unlock()
}

// Calls returns the method names invoked so far, in order.
func (b *Browser) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	copy(out, b.calls)
	return out
}

// Closed reports whether Close was called.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Browser) Navigate(ctx context.Context, url string) error {
	b.record("Navigate")
	b.mu.Lock()
	b.navigated = url
	fn := b.subscriber
	b.mu.Unlock()

	if fn != nil && len(b.Events) > 0 {
		b.deliver(fn, b.Events)
	}

	if b.NavigateDelay > 0 {
		select {
		case <-time.After(b.NavigateDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if b.NavigateErr != nil {
		return b.NavigateErr
	}

	// Events fired during navigation must be visible before ready.
	b.delivery.Wait()
	if fn != nil && len(b.LateEvents) > 0 {
		b.deliver(fn, b.LateEvents)
	}
	return ctx.Err()
}

func (b *Browser) deliver(fn func(models.ResponseRecord), events []models.ResponseRecord) {
	b.delivery.Add(1)
	go func() {
		defer b.delivery.Done()
		for _, ev := range events {
			fn(ev)
		}
	}()
}

func (b *Browser) CurrentURL(ctx context.Context) (string, error) {
	b.record("CurrentURL")
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if b.FinalURL != "" {
		return b.FinalURL, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.navigated, nil
}

func (b *Browser) HTML(ctx context.Context) (string, error) {
	b.record("HTML")
	if b.HTMLErr != nil {
		return "", b.HTMLErr
	}
	if b.PageHTML == "" {
		return "<html><head><title>fake</title></head><body></body></html>", nil
	}
	return b.PageHTML, nil
}

func (b *Browser) Screenshot(ctx context.Context, opts engine.ScreenshotOptions) ([]byte, error) {
	b.record("Screenshot")
	if b.ScreenshotErr != nil {
		return nil, b.ScreenshotErr
	}
	if b.PageImage == nil {
		return []byte("\x89PNG\r\n\x1a\n"), nil
	}
	return b.PageImage, nil
}

func (b *Browser) SubscribeResponses(ctx context.Context, fn func(models.ResponseRecord)) (func(), error) {
	b.record("SubscribeResponses")
	if b.SubscribeErr != nil {
		return nil, b.SubscribeErr
	}
	b.mu.Lock()
	if b.subscriber != nil {
		b.mu.Unlock()
		return nil, errors.New("enginetest: already subscribed")
	}
	b.subscriber = fn
	b.mu.Unlock()

	return func() {
		b.record("Unsubscribe")
		b.delivery.Wait()
		b.mu.Lock()
		b.subscriber = nil
		b.mu.Unlock()
	}, nil
}

func (b *Browser) IsDocumentResponse(rec models.ResponseRecord) bool {
	if b.Classifier != nil {
		return b.Classifier(rec)
	}
	if rec.ResourceType != models.ResourceTypeUnknown {
		return rec.ResourceType == models.ResourceTypeDocument
	}
	return strings.HasPrefix(rec.MIMEType, "text/html")
}

func (b *Browser) Close() error {
	b.record("Close")
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}
