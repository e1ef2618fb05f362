package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/use-agent/pagecapture/models"
)

// Artifacts are the three in-memory outputs of a run.
type Artifacts struct {
	Screenshot  []byte
	HTML        []byte
	HeadersJSON []byte

	// Headers is the single entry serialized into HeadersJSON.
	Headers models.HeadersEntry

	// ScreenshotExt is the file extension matching the image encoding.
	ScreenshotExt string
}

// Package assembles the artifacts for one run. The headers timestamp is the
// correlated record's arrival time when there is one, else packagedAt.
func Package(nav models.NavigationResult, headers models.CapturedHeaders, packagedAt time.Time) (*Artifacts, error) {
	entry := headers.Entry(packagedAt)

	headersJSON, err := marshalHeaders([]models.HeadersEntry{entry})
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeEncodeFailed, "failed to encode headers", err)
	}

	return &Artifacts{
		Screenshot:    nav.Screenshot,
		HTML:          []byte(nav.HTML),
		HeadersJSON:   headersJSON,
		Headers:       entry,
		ScreenshotExt: screenshotExt(nav.ScreenshotFormat),
	}, nil
}

// marshalHeaders pretty-prints entries with two-space indentation. HTML
// escaping is off so values such as Link: <...> survive byte for byte.
func marshalHeaders(entries []models.HeadersEntry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return nil, fmt.Errorf("encode headers: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func screenshotExt(format string) string {
	switch format {
	case "jpeg", "jpg":
		return "jpg"
	default:
		return "png"
	}
}
