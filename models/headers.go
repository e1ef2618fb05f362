package models

import "time"

// Outcome discriminates the two CapturedHeaders variants.
type Outcome int

const (
	// OutcomeResolved means a recorded response was correlated with the
	// final URL.
	OutcomeResolved Outcome = iota + 1
	// OutcomePlaceholder means no response could be correlated. Status is 0
	// and Note explains why; it is never a real HTTP status.
	OutcomePlaceholder
)

func (o Outcome) String() string {
	switch o {
	case OutcomeResolved:
		return "resolved"
	case OutcomePlaceholder:
		return "placeholder"
	default:
		return "unknown"
	}
}

// MatchRule names the correlation rule that produced a resolved value.
type MatchRule string

const (
	MatchExact         MatchRule = "exact"
	MatchTrailingSlash MatchRule = "trailing-slash"
	MatchDocument      MatchRule = "document"
	MatchNone          MatchRule = "none"
)

// DefaultPlaceholderNote is used when a placeholder is built without a note.
const DefaultPlaceholderNote = "no network response could be correlated with the final URL"

// CapturedHeaders is the correlator's single output per run. Build values with
// Resolved or Placeholder; the zero value is not meaningful.
type CapturedHeaders struct {
	Outcome Outcome
	Rule    MatchRule

	URL     string
	Status  int
	Headers map[string]string

	// ObservedAt is the record's arrival time. Zero for placeholders, which
	// take the packaging time instead.
	ObservedAt time.Time

	// Note is set only on placeholders.
	Note string
}

// Resolved builds the resolved variant from rec. url is the URL to emit,
// which is finalURL for every rule except the trailing-slash one.
func Resolved(rec ResponseRecord, url string, rule MatchRule) CapturedHeaders {
	headers := make(map[string]string, len(rec.Headers))
	for k, v := range rec.Headers {
		headers[k] = v
	}
	return CapturedHeaders{
		Outcome:    OutcomeResolved,
		Rule:       rule,
		URL:        url,
		Status:     rec.Status,
		Headers:    headers,
		ObservedAt: rec.ObservedAt,
	}
}

// Placeholder builds the placeholder variant for finalURL.
func Placeholder(finalURL, note string) CapturedHeaders {
	if note == "" {
		note = DefaultPlaceholderNote
	}
	return CapturedHeaders{
		Outcome: OutcomePlaceholder,
		Rule:    MatchNone,
		URL:     finalURL,
		Status:  0,
		Headers: map[string]string{},
		Note:    note,
	}
}

// IsPlaceholder reports whether no response was correlated.
func (c CapturedHeaders) IsPlaceholder() bool {
	return c.Outcome != OutcomeResolved
}

// Timestamp returns the record's own observation time when there is one,
// else fallback.
func (c CapturedHeaders) Timestamp(fallback time.Time) time.Time {
	if c.Outcome == OutcomeResolved && !c.ObservedAt.IsZero() {
		return c.ObservedAt
	}
	return fallback
}

// Entry converts c to its wire shape, stamping fallback when c carries no
// observation time of its own.
func (c CapturedHeaders) Entry(fallback time.Time) HeadersEntry {
	headers := c.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	e := HeadersEntry{
		URL:       c.URL,
		Status:    c.Status,
		Headers:   headers,
		Timestamp: c.Timestamp(fallback).Format(time.RFC3339),
	}
	if c.IsPlaceholder() {
		e.Status = 0
		e.Note = c.Note
		if e.Note == "" {
			e.Note = DefaultPlaceholderNote
		}
	}
	return e
}

// HeadersEntry is one element of the headers artifact.
type HeadersEntry struct {
	URL       string            `json:"url"`
	Status    int               `json:"status"`
	Headers   map[string]string `json:"headers"`
	Timestamp string            `json:"timestamp"`
	Note      string            `json:"note,omitempty"`
}
