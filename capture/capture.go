package capture

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/pagecapture/engine"
	"github.com/use-agent/pagecapture/models"
)

// Result is everything one run produced.
type Result struct {
	Artifacts *Artifacts
	Page      models.NavigationResult
	Headers   models.CapturedHeaders

	// Title is the document title, empty when the page has none.
	Title string

	// Responses is how many response events were recorded.
	Responses int

	Timing models.TimingInfo
}

// Capturer runs the record → navigate → correlate → package pipeline for
// a single URL.
type Capturer struct {
	Navigator  Navigator
	Screenshot engine.ScreenshotOptions

	// Now stamps placeholder headers; defaults to time.Now.
	Now func() time.Time
}

// Run captures url in b. Order matters:
//
//  1. Attach recorder  – before Navigate, or early redirect hops are lost
//  2. Navigate         – DOM ready, settle delay, read final URL
//  3. Detach recorder  – after settle, so late events are kept
//  4. Extract          – HTML and screenshot
//  5. Correlate        – pure ladder over the recorded log
//  6. Package          – one shared timestamp for the headers artifact
//
// Any error returned is fatal and means no artifacts were produced. A
// correlation miss is not an error: the result carries placeholder headers.
func (c *Capturer) Run(ctx context.Context, b engine.Browser, url string) (*Result, error) {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	start := time.Now()

	// ── 1. Attach recorder ────────────────────────────────────────────
	rec := NewRecorder()
	if err := rec.Attach(ctx, b); err != nil {
		return nil, err
	}
	defer rec.Detach()

	// ── 2. Navigate ───────────────────────────────────────────────────
	finalURL, err := c.Navigator.Navigate(ctx, b, url)
	if err != nil {
		return nil, err
	}
	navDone := time.Now()

	// ── 3. Detach ─────────────────────────────────────────────────────
	rec.Detach()
	log := rec.Records()
	slog.Debug("navigation complete",
		"url", url,
		"finalURL", finalURL,
		"responses", len(log),
	)

	// ── 4. Extract ────────────────────────────────────────────────────
	html, err := b.HTML(ctx)
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeExtraction, "failed to extract page HTML", err)
	}
	shot, err := b.Screenshot(ctx, c.Screenshot)
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeExtraction, "failed to take screenshot", err)
	}
	extractDone := time.Now()

	page := models.NavigationResult{
		RequestedURL:     url,
		FinalURL:         finalURL,
		HTML:             html,
		Screenshot:       shot,
		ScreenshotFormat: c.Screenshot.Format,
	}

	// ── 5. Correlate ──────────────────────────────────────────────────
	headers := Resolve(log, finalURL, b.IsDocumentResponse)
	if headers.IsPlaceholder() {
		slog.Warn("could not find network response for final URL, writing placeholder headers",
			"finalURL", finalURL,
			"responses", len(log),
			"note", headers.Note,
		)
	} else {
		slog.Info("response correlated",
			"finalURL", finalURL,
			"matchedURL", headers.URL,
			"rule", headers.Rule,
			"status", headers.Status,
		)
	}

	// ── 6. Package ────────────────────────────────────────────────────
	artifacts, err := Package(page, headers, now())
	if err != nil {
		return nil, err
	}

	return &Result{
		Artifacts: artifacts,
		Page:      page,
		Headers:   headers,
		Title:     pageTitle(html),
		Responses: len(log),
		Timing: models.TimingInfo{
			NavigationMs: navDone.Sub(start).Milliseconds(),
			ExtractionMs: extractDone.Sub(navDone).Milliseconds(),
			TotalMs:      time.Since(start).Milliseconds(),
		},
	}, nil
}

// pageTitle returns the trimmed <title> text, or "" when there is none.
func pageTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
