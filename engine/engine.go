package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/use-agent/pagecapture/config"
	"github.com/use-agent/pagecapture/models"
)

// Browser is a live, controllable browser tab. It is the only surface the
// capture pipeline needs from a driver.
type Browser interface {
	// Name returns the driver identifier (e.g. "rod", "chromedp").
	Name() string

	// Navigate loads url and returns once DOM content is ready.
	Navigate(ctx context.Context, url string) error

	// CurrentURL returns the tab's location, which reflects redirects.
	CurrentURL(ctx context.Context) (string, error)

	// HTML returns the rendered outer HTML of the document.
	HTML(ctx context.Context) (string, error)

	// Screenshot captures the tab as an encoded image.
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)

	// SubscribeResponses calls fn for every response-received event until
	// the returned unsubscribe func is called. fn may run on a driver
	// goroutine. unsubscribe blocks until no further calls to fn are made
	// by the delivery goroutine it started.
	SubscribeResponses(ctx context.Context, fn func(models.ResponseRecord)) (func(), error)

	// IsDocumentResponse reports whether rec looks like a top-level
	// document response for this driver's event shape.
	IsDocumentResponse(rec models.ResponseRecord) bool

	// Close releases the tab. Launched browsers are killed; attached remote
	// browsers are left running.
	Close() error
}

// ScreenshotOptions controls image encoding.
type ScreenshotOptions struct {
	Format   string // "png" or "jpeg"
	Quality  int    // jpeg only
	FullPage bool
}

// Constructor launches or attaches to a browser for the given config.
type Constructor func(ctx context.Context, cfg config.BrowserConfig) (Browser, error)

var (
	mu      sync.RWMutex
	drivers = map[string]Constructor{}
)

// Register registers a named driver constructor. Name is lower-cased
// internally. Registering the same name twice overwrites the previous
// constructor.
func Register(name string, ctor Constructor) {
	if name == "" || ctor == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	drivers[strings.ToLower(name)] = ctor
}

// Open constructs the browser for cfg.Driver ("rod" when empty).
func Open(ctx context.Context, cfg config.BrowserConfig) (Browser, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if name == "" {
		name = "rod"
	}

	mu.RLock()
	ctor, ok := drivers[name]
	mu.RUnlock()
	if !ok {
		return nil, models.NewCaptureError(
			models.ErrCodeInvalidInput,
			fmt.Sprintf("browser driver %q not registered: available drivers=%v", name, Drivers()),
			nil,
		)
	}

	b, err := ctor(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, models.NewCaptureError(models.ErrCodeBrowserCrash, "driver constructor returned nil", nil)
	}
	return b, nil
}

// Drivers returns the sorted list of registered driver names.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(drivers))
	for k := range drivers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// documentByTypeOrMIME is the classifier shared by the CDP-based drivers:
// both report a resource type, and the MIME type covers records where it
// is missing.
func documentByTypeOrMIME(rec models.ResponseRecord) bool {
	if rec.ResourceType != models.ResourceTypeUnknown {
		return rec.ResourceType == models.ResourceTypeDocument
	}
	return strings.HasPrefix(strings.ToLower(rec.MIMEType), "text/html")
}
