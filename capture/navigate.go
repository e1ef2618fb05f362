package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/pagecapture/engine"
	"github.com/use-agent/pagecapture/models"
)

const (
	// DefaultNavigationTimeout bounds navigation until DOM content is ready.
	DefaultNavigationTimeout = 60 * time.Second

	// DefaultSettleDelay lets late network events arrive after DOM ready.
	DefaultSettleDelay = 3 * time.Second
)

// Navigator drives one navigation to DOM-ready and reports where the
// browser ended up.
type Navigator struct {
	Timeout time.Duration
	Settle  time.Duration
}

// Navigate loads url, waits for DOM content, sleeps the settle delay and
// then re-reads the browser's location, which differs from url after
// redirects. Exceeding the timeout is fatal and reported as
// ErrCodeNavigationTimeout.
func (n Navigator) Navigate(ctx context.Context, b engine.Browser, url string) (string, error) {
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = DefaultNavigationTimeout
	}

	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := b.Navigate(navCtx, url); err != nil {
		return "", categorizeError(navCtx, err, fmt.Sprintf("navigation to %s failed", url))
	}
	if err := navCtx.Err(); err != nil {
		return "", categorizeError(navCtx, err, fmt.Sprintf("navigation to %s did not become ready", url))
	}

	if n.Settle > 0 {
		select {
		case <-time.After(n.Settle):
		case <-ctx.Done():
			return "", categorizeError(ctx, ctx.Err(), "interrupted while settling")
		}
	}

	finalURL, err := b.CurrentURL(ctx)
	if err != nil {
		return "", models.NewCaptureError(models.ErrCodeExtraction, "failed to read current URL", err)
	}
	if finalURL == "" {
		slog.Debug("browser reported empty location, using requested URL", "url", url)
		finalURL = url
	}
	return finalURL, nil
}

// categorizeError wraps raw driver errors into typed CaptureErrors. ctx is
// the context the failed call ran under; its deadline firing is what makes
// an error a timeout, whatever the driver wrapped it in.
func categorizeError(ctx context.Context, err error, msg string) *models.CaptureError {
	var ce *models.CaptureError
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return models.NewCaptureError(models.ErrCodeNavigationTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewCaptureError(models.ErrCodeNavigation, "navigation canceled", err)
	default:
		return models.NewCaptureError(models.ErrCodeNavigation, msg, err)
	}
}
