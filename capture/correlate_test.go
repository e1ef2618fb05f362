package capture

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/use-agent/pagecapture/models"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func rec(url string, status int, rt models.ResourceType, at int) models.ResponseRecord {
	return models.ResponseRecord{
		URL:          url,
		Status:       status,
		Headers:      map[string]string{"x-seq": url},
		ResourceType: rt,
		ObservedAt:   t0.Add(time.Duration(at) * time.Second),
	}
}

func TestResolve(t *testing.T) {
	const (
		doc   = models.ResourceTypeDocument
		other = models.ResourceTypeOther
	)

	tests := []struct {
		name       string
		log        []models.ResponseRecord
		finalURL   string
		wantRule   models.MatchRule
		wantURL    string
		wantStatus int
		wantAt     int
	}{
		{
			name:       "exact match",
			log:        []models.ResponseRecord{rec("https://x/a", 200, doc, 1)},
			finalURL:   "https://x/a",
			wantRule:   models.MatchExact,
			wantURL:    "https://x/a",
			wantStatus: 200,
			wantAt:     1,
		},
		{
			name: "exact match last inserted wins",
			log: []models.ResponseRecord{
				rec("https://x/a", 302, doc, 1),
				rec("https://x/b", 200, other, 2),
				rec("https://x/a", 200, doc, 3),
			},
			finalURL:   "https://x/a",
			wantRule:   models.MatchExact,
			wantURL:    "https://x/a",
			wantStatus: 200,
			wantAt:     3,
		},
		{
			name:       "exact match ignores resource type",
			log:        []models.ResponseRecord{rec("https://x/a", 200, other, 1), rec("https://x/", 200, doc, 2)},
			finalURL:   "https://x/a",
			wantRule:   models.MatchExact,
			wantURL:    "https://x/a",
			wantStatus: 200,
			wantAt:     1,
		},
		{
			name:       "slash added",
			log:        []models.ResponseRecord{rec("https://x/a/", 200, doc, 1)},
			finalURL:   "https://x/a",
			wantRule:   models.MatchTrailingSlash,
			wantURL:    "https://x/a/",
			wantStatus: 200,
			wantAt:     1,
		},
		{
			name:       "slash removed",
			log:        []models.ResponseRecord{rec("https://x/a", 200, doc, 1)},
			finalURL:   "https://x/a/",
			wantRule:   models.MatchTrailingSlash,
			wantURL:    "https://x/a",
			wantStatus: 200,
			wantAt:     1,
		},
		{
			name: "slash match last inserted wins",
			log: []models.ResponseRecord{
				rec("https://x/a/", 301, doc, 1),
				rec("https://x/a/", 200, doc, 2),
			},
			finalURL:   "https://x/a",
			wantRule:   models.MatchTrailingSlash,
			wantURL:    "https://x/a/",
			wantStatus: 200,
			wantAt:     2,
		},
		{
			name: "slash equivalence beats newer document",
			log: []models.ResponseRecord{
				rec("https://x/a/", 200, doc, 1),
				rec("https://x/other", 500, doc, 2),
			},
			finalURL:   "https://x/a",
			wantRule:   models.MatchTrailingSlash,
			wantURL:    "https://x/a/",
			wantStatus: 200,
			wantAt:     1,
		},
		{
			name:       "only one slash is toggled",
			log:        []models.ResponseRecord{rec("https://x/a", 200, other, 1)},
			finalURL:   "https://x/a//",
			wantRule:   models.MatchNone,
			wantURL:    "https://x/a//",
			wantStatus: 0,
		},
		{
			name: "document fallback picks most recent document",
			log: []models.ResponseRecord{
				rec("https://x/start", 302, doc, 1),
				rec("https://x/landing", 200, doc, 2),
				rec("https://x/app.js", 200, other, 3),
			},
			finalURL:   "https://x/landing#section",
			wantRule:   models.MatchDocument,
			wantURL:    "https://x/landing#section",
			wantStatus: 200,
			wantAt:     2,
		},
		{
			name:       "no document falls through to placeholder",
			log:        []models.ResponseRecord{rec("https://x/app.js", 200, other, 1)},
			finalURL:   "https://x/a",
			wantRule:   models.MatchNone,
			wantURL:    "https://x/a",
			wantStatus: 0,
		},
		{
			name:       "empty log",
			log:        nil,
			finalURL:   "https://x/a",
			wantRule:   models.MatchNone,
			wantURL:    "https://x/a",
			wantStatus: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.log, tt.finalURL, nil)

			if got.Rule != tt.wantRule {
				t.Errorf("rule = %q, want %q", got.Rule, tt.wantRule)
			}
			if got.URL != tt.wantURL {
				t.Errorf("url = %q, want %q", got.URL, tt.wantURL)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("status = %d, want %d", got.Status, tt.wantStatus)
			}
			if tt.wantRule == models.MatchNone {
				if !got.IsPlaceholder() {
					t.Fatal("expected placeholder")
				}
				if got.Note == "" {
					t.Error("placeholder must carry a note")
				}
				if len(got.Headers) != 0 {
					t.Errorf("placeholder headers = %v, want empty", got.Headers)
				}
				return
			}
			if got.IsPlaceholder() {
				t.Fatal("expected resolved headers")
			}
			if want := t0.Add(time.Duration(tt.wantAt) * time.Second); !got.ObservedAt.Equal(want) {
				t.Errorf("observedAt = %s, want %s", got.ObservedAt, want)
			}
		})
	}
}

func TestResolve_Idempotent(t *testing.T) {
	log := []models.ResponseRecord{
		rec("http://example.com", 301, models.ResourceTypeDocument, 1),
		rec("http://example.com/", 200, models.ResourceTypeDocument, 2),
	}

	first := Resolve(log, "http://example.com/", nil)
	second := Resolve(log, "http://example.com/", nil)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Resolve is not idempotent (-first +second):\n%s", diff)
	}
}

func TestResolve_DoesNotMutateLog(t *testing.T) {
	log := []models.ResponseRecord{rec("https://x/a", 200, models.ResourceTypeDocument, 1)}
	snapshot := []models.ResponseRecord{rec("https://x/a", 200, models.ResourceTypeDocument, 1)}

	got := Resolve(log, "https://x/a", nil)
	got.Headers["injected"] = "1"

	if diff := cmp.Diff(snapshot, log); diff != "" {
		t.Errorf("log mutated (-want +got):\n%s", diff)
	}
}

func TestResolve_EmptyLogNote(t *testing.T) {
	got := Resolve(nil, "https://x/", nil)
	if got.Note != "no network responses were observed during navigation" {
		t.Errorf("note = %q", got.Note)
	}
	if got.Outcome != models.OutcomePlaceholder {
		t.Errorf("outcome = %s, want placeholder", got.Outcome)
	}
}

func TestResolve_CustomClassifier(t *testing.T) {
	log := []models.ResponseRecord{
		{URL: "https://x/feed", Status: 200, MIMEType: "application/xhtml+xml"},
		{URL: "https://x/data", Status: 200, MIMEType: "application/json"},
	}
	xhtml := func(r models.ResponseRecord) bool { return r.MIMEType == "application/xhtml+xml" }

	got := Resolve(log, "https://x/page", xhtml)
	if got.Rule != models.MatchDocument || got.Status != 200 {
		t.Fatalf("got %+v, want document match", got)
	}
	if got.Headers == nil {
		t.Error("resolved headers should be non-nil")
	}
}

func TestDefaultClassifier_MIMEFallback(t *testing.T) {
	log := []models.ResponseRecord{
		{URL: "https://x/page.html", Status: 203, MIMEType: "text/html; charset=utf-8"},
		{URL: "https://x/style.css", Status: 200, MIMEType: "text/css"},
	}
	got := Resolve(log, "https://x/elsewhere", nil)
	if got.Rule != models.MatchDocument || got.Status != 203 {
		t.Fatalf("got rule %q status %d, want document 203", got.Rule, got.Status)
	}
}

func TestSlashCounterpart(t *testing.T) {
	tests := map[string]string{
		"https://x/a":  "https://x/a/",
		"https://x/a/": "https://x/a",
		"/":            "",
		"":             "",
	}
	for in, want := range tests {
		if got := slashCounterpart(in); got != want {
			t.Errorf("slashCounterpart(%q) = %q, want %q", in, got, want)
		}
	}
}
