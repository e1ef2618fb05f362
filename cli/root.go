// Package cli wires configuration, the browser engine, the capture pipeline
// and the artifact writer into the pagecapture command.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/use-agent/pagecapture/capture"
	"github.com/use-agent/pagecapture/config"
	"github.com/use-agent/pagecapture/engine"
	"github.com/use-agent/pagecapture/models"
	"github.com/use-agent/pagecapture/output"
)

// NewRootCmd creates the pagecapture command. Flag defaults come from the
// PAGECAPTURE_* environment, so flags override env.
func NewRootCmd() *cobra.Command {
	cfg := config.Load()

	cmd := &cobra.Command{
		Use:   "pagecapture",
		Short: "Capture a screenshot, HTML and response headers of a web page",
		Long: `pagecapture navigates a headless (or remote) Chromium to a URL, waits for
the page to settle and writes three files to the output directory:

  <prefix>_screenshot.png   rendered page
  <prefix>_page.html        serialized DOM
  <prefix>_headers.json     status and headers of the response that
                            produced the final URL

When no network response can be matched to the final URL the headers file
still gets written, with status 0 and a note explaining why.`,
		Example: `  pagecapture --url=https://example.com
  pagecapture --url=https://example.com --file-prefix=example --output-dir=/tmp/shots
  pagecapture --url=https://example.com --ws-browser=ws://127.0.0.1:9222/devtools/browser/abc
  pagecapture --url=https://example.com --driver=chromedp --proxy-ip=10.0.0.2:3128`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Capture.URL == "" {
				return models.NewCaptureError(models.ErrCodeInvalidInput, "--url is required", nil)
			}
			cfg.Output.ScreenshotFormat = normalizeFormat(cfg.Output.ScreenshotFormat)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := output.ValidatePrefix(cfg.Output.Prefix); err != nil {
				return err
			}

			initLogger(cfg.Log, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dir, err := run(ctx, cfg)
			if err != nil {
				slog.Error("capture failed", "url", cfg.Capture.URL, "error", err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Completed! Files saved to: %s\n", dir)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Capture.URL, "url", cfg.Capture.URL, "URL to capture (required)")
	f.StringVar(&cfg.Output.Prefix, "file-prefix", cfg.Output.Prefix, "file name prefix for the three artifacts")
	f.StringVar(&cfg.Browser.RemoteURL, "ws-browser", cfg.Browser.RemoteURL, "DevTools websocket URL of a running browser; launches a local one when empty")
	f.StringVar(&cfg.Browser.Proxy, "proxy-ip", cfg.Browser.Proxy, "proxy server for a locally launched browser")
	f.StringVar(&cfg.Output.Dir, "output-dir", cfg.Output.Dir, "directory the artifacts are written to")
	f.DurationVar(&cfg.Capture.Timeout, "timeout", cfg.Capture.Timeout, "navigation timeout")
	f.DurationVar(&cfg.Capture.Settle, "settle", cfg.Capture.Settle, "delay after DOM ready before reading the final URL")
	f.StringVar(&cfg.Browser.Driver, "driver", cfg.Browser.Driver, "browser driver: "+strings.Join(engine.Drivers(), ", "))
	f.BoolVar(&cfg.Browser.Headless, "headless", cfg.Browser.Headless, "run a locally launched browser headless")
	f.BoolVar(&cfg.Browser.Stealth, "stealth", cfg.Browser.Stealth, "inject anti-bot-detection scripts")
	f.StringVar(&cfg.Output.ScreenshotFormat, "screenshot-format", cfg.Output.ScreenshotFormat, "png or jpeg")
	f.IntVar(&cfg.Output.ScreenshotQuality, "screenshot-quality", cfg.Output.ScreenshotQuality, "jpeg quality, 1-100")
	f.BoolVar(&cfg.Output.FullPage, "full-page", cfg.Output.FullPage, "capture the full scrollable page instead of the viewport")
	f.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	f.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "text or json")

	return cmd
}

// run performs one capture and returns the directory the files went to.
func run(ctx context.Context, cfg *config.Config) (string, error) {
	slog.Info("pagecapture starting",
		"url", cfg.Capture.URL,
		"driver", cfg.Browser.Driver,
		"remote", cfg.Browser.RemoteURL != "",
		"timeout", cfg.Capture.Timeout,
	)

	b, err := engine.Open(ctx, cfg.Browser)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := b.Close(); err != nil {
			slog.Warn("failed to close browser", "driver", b.Name(), "error", err)
		}
	}()

	c := &capture.Capturer{
		Navigator: capture.Navigator{
			Timeout: cfg.Capture.Timeout,
			Settle:  cfg.Capture.Settle,
		},
		Screenshot: engine.ScreenshotOptions{
			Format:   cfg.Output.ScreenshotFormat,
			Quality:  cfg.Output.ScreenshotQuality,
			FullPage: cfg.Output.FullPage,
		},
	}
	res, err := c.Run(ctx, b, cfg.Capture.URL)
	if err != nil {
		return "", err
	}

	w := output.Writer{Dir: cfg.Output.Dir, Prefix: cfg.Output.Prefix}
	files, err := w.Write(res.Artifacts)
	if err != nil {
		return "", err
	}

	slog.Info("capture complete",
		"finalURL", res.Page.FinalURL,
		"title", res.Title,
		"status", res.Headers.Status,
		"placeholder", res.Headers.IsPlaceholder(),
		"responses", res.Responses,
		"navigationMs", res.Timing.NavigationMs,
		"totalMs", res.Timing.TotalMs,
		"files", files,
	)
	return cfg.Output.Dir, nil
}

func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "jpg" {
		return "jpeg"
	}
	return format
}
