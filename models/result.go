package models

// NavigationResult is what the browser produced for one run: the URL it ended
// up on plus the rendered page.
type NavigationResult struct {
	// RequestedURL is the URL passed on the command line.
	RequestedURL string

	// FinalURL is the browser's location after redirects settled.
	FinalURL string

	// HTML is the outer HTML of the document element.
	HTML string

	// Screenshot holds the encoded image bytes.
	Screenshot []byte

	// ScreenshotFormat is "png" or "jpeg".
	ScreenshotFormat string
}

// TimingInfo breaks down the time spent in each phase of a run.
type TimingInfo struct {
	// NavigationMs covers navigate, DOM ready and the settle delay.
	NavigationMs int64 `json:"navigation_ms"`

	// ExtractionMs covers reading HTML and taking the screenshot.
	ExtractionMs int64 `json:"extraction_ms"`

	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`
}
