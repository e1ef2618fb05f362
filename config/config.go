package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/pagecapture/models"
)

// Config holds all application configuration.
type Config struct {
	Browser BrowserConfig
	Capture CaptureConfig
	Output  OutputConfig
	Log     LogConfig
}

// BrowserConfig controls how the browser is launched or attached to.
type BrowserConfig struct {
	// Driver selects the automation backend: "rod" or "chromedp".
	Driver string // default: "rod"

	// Headless controls whether a launched browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is passed to a launched browser as --proxy-server.
	Proxy string

	// RemoteURL is a DevTools WebSocket URL. When set, the existing browser
	// is attached to instead of launching one, and it is left running.
	RemoteURL string

	// IgnoreCertErrors accepts invalid TLS certificates.
	IgnoreCertErrors bool // default: true

	// Stealth injects the anti-detection script before navigation.
	Stealth bool // default: false
}

// CaptureConfig controls the navigation itself.
type CaptureConfig struct {
	// URL is the page to capture. Required.
	URL string

	// Timeout bounds navigation until DOM content is ready.
	Timeout time.Duration // default: 60s

	// Settle is waited after DOM ready so late network events arrive.
	Settle time.Duration // default: 3s
}

// OutputConfig controls where and how artifacts are written.
type OutputConfig struct {
	Dir    string // default: "./output"
	Prefix string // default: "capture"

	// ScreenshotFormat is "png" or "jpeg".
	ScreenshotFormat string // default: "png"

	// ScreenshotQuality applies to jpeg only (1-100).
	ScreenshotQuality int // default: 90

	// FullPage captures the whole scrollable page instead of the viewport.
	FullPage bool // default: true
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Browser: BrowserConfig{
			Driver:           envOr("PAGECAPTURE_DRIVER", "rod"),
			Headless:         envBoolOr("PAGECAPTURE_HEADLESS", true),
			NoSandbox:        envBoolOr("PAGECAPTURE_NO_SANDBOX", false),
			BrowserBin:       os.Getenv("PAGECAPTURE_BROWSER_BIN"),
			Proxy:            os.Getenv("PAGECAPTURE_PROXY"),
			RemoteURL:        os.Getenv("PAGECAPTURE_WS_BROWSER"),
			IgnoreCertErrors: envBoolOr("PAGECAPTURE_IGNORE_CERT_ERRORS", true),
			Stealth:          envBoolOr("PAGECAPTURE_STEALTH", false),
		},
		Capture: CaptureConfig{
			URL:     os.Getenv("PAGECAPTURE_URL"),
			Timeout: envDurationOr("PAGECAPTURE_TIMEOUT", 60*time.Second),
			Settle:  envDurationOr("PAGECAPTURE_SETTLE", 3*time.Second),
		},
		Output: OutputConfig{
			Dir:               envOr("PAGECAPTURE_OUTPUT_DIR", "./output"),
			Prefix:            envOr("PAGECAPTURE_FILE_PREFIX", "capture"),
			ScreenshotFormat:  strings.ToLower(envOr("PAGECAPTURE_SCREENSHOT_FORMAT", "png")),
			ScreenshotQuality: envIntOr("PAGECAPTURE_SCREENSHOT_QUALITY", 90),
			FullPage:          envBoolOr("PAGECAPTURE_FULL_PAGE", true),
		},
		Log: LogConfig{
			Level:  envOr("PAGECAPTURE_LOG_LEVEL", "info"),
			Format: envOr("PAGECAPTURE_LOG_FORMAT", "text"),
		},
	}
}

// Validate checks the fields a run cannot proceed without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Capture.URL) == "" {
		return invalid("url is required")
	}
	if c.Capture.Timeout <= 0 {
		return invalid("timeout must be positive, got %s", c.Capture.Timeout)
	}
	if c.Capture.Settle < 0 {
		return invalid("settle delay must not be negative, got %s", c.Capture.Settle)
	}
	switch c.Output.ScreenshotFormat {
	case "png", "jpeg":
	default:
		return invalid("screenshot format must be png or jpeg, got %q", c.Output.ScreenshotFormat)
	}
	if c.Output.ScreenshotQuality < 1 || c.Output.ScreenshotQuality > 100 {
		return invalid("screenshot quality must be within 1-100, got %d", c.Output.ScreenshotQuality)
	}
	if c.Output.Prefix == "" {
		return invalid("file prefix must not be empty")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return models.NewCaptureError(models.ErrCodeInvalidInput, fmt.Sprintf(format, args...), nil)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
