package models

import "time"

// ResourceType classifies a network response the way the browser reported it.
type ResourceType string

const (
	ResourceTypeDocument ResourceType = "Document"
	ResourceTypeOther    ResourceType = "Other"
	// ResourceTypeUnknown is used by drivers that cannot classify a response.
	// Classifiers fall back to the MIME type for these records.
	ResourceTypeUnknown ResourceType = ""
)

// ResponseRecord is one response-received event observed during a navigation.
// Records are never modified after the recorder appends them.
type ResponseRecord struct {
	URL          string
	Status       int
	Headers      map[string]string
	MIMEType     string
	ResourceType ResourceType
	ObservedAt   time.Time
}
