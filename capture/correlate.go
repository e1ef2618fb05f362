package capture

import (
	"strings"

	"github.com/use-agent/pagecapture/models"
)

// Classifier reports whether a record is a top-level document response.
// Drivers supply their own through engine.Browser.IsDocumentResponse.
type Classifier func(models.ResponseRecord) bool

// DefaultClassifier trusts the resource type and falls back to the MIME type
// for records whose driver could not classify them.
func DefaultClassifier(rec models.ResponseRecord) bool {
	if rec.ResourceType != models.ResourceTypeUnknown {
		return rec.ResourceType == models.ResourceTypeDocument
	}
	return strings.HasPrefix(strings.ToLower(rec.MIMEType), "text/html")
}

// Resolve picks the record that best describes the document at finalURL.
// Rules, first match wins:
//
//  1. exact URL match, last inserted wins
//  2. finalURL with its trailing slash added or removed, last inserted wins;
//     the emitted URL is the record's own
//  3. the last record isDoc accepts
//  4. placeholder with status 0 and an explanatory note
//
// Resolve never fails and does not modify log.
func Resolve(log []models.ResponseRecord, finalURL string, isDoc Classifier) models.CapturedHeaders {
	if isDoc == nil {
		isDoc = DefaultClassifier
	}

	if rec, ok := lastMatching(log, func(r models.ResponseRecord) bool { return r.URL == finalURL }); ok {
		return models.Resolved(rec, finalURL, models.MatchExact)
	}

	alt := slashCounterpart(finalURL)
	if alt != "" {
		if rec, ok := lastMatching(log, func(r models.ResponseRecord) bool { return r.URL == alt }); ok {
			return models.Resolved(rec, rec.URL, models.MatchTrailingSlash)
		}
	}

	if rec, ok := lastMatching(log, isDoc); ok {
		return models.Resolved(rec, finalURL, models.MatchDocument)
	}

	note := "no network response could be correlated with the final URL"
	if len(log) == 0 {
		note = "no network responses were observed during navigation"
	}
	return models.Placeholder(finalURL, note)
}

// slashCounterpart returns finalURL with a trailing slash removed when it
// has one and added when it does not.
func slashCounterpart(finalURL string) string {
	if finalURL == "" {
		return ""
	}
	if strings.HasSuffix(finalURL, "/") {
		return strings.TrimSuffix(finalURL, "/")
	}
	return finalURL + "/"
}

func lastMatching(log []models.ResponseRecord, match func(models.ResponseRecord) bool) (models.ResponseRecord, bool) {
	for i := len(log) - 1; i >= 0; i-- {
		if match(log[i]) {
			return log[i], true
		}
	}
	return models.ResponseRecord{}, false
}
