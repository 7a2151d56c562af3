package models

import (
	"strings"
	"time"
)

// RecordKind identifies what a log record describes
type RecordKind string

// Log record kinds. A duration record is the follow-up of an earlier page
// view and is joined to it at aggregation time.
const (
	KindPageView    RecordKind = "page_view"
	KindDuration    RecordKind = "duration"
	KindInteraction RecordKind = "interaction"
)

// InteractionType is the fixed taxonomy of visitor interactions
type InteractionType string

const (
	InteractionFormSubmission InteractionType = "form_submission"
	InteractionButtonClick    InteractionType = "button_click"
	InteractionDownload       InteractionType = "download"
	InteractionExternalLink   InteractionType = "external_link"
	InteractionCustomEvent    InteractionType = "custom_event"
)

// MinDurationSeconds is the shortest on-page duration that is ever recorded
const MinDurationSeconds = 1

// ParseInteractionType maps a submitted type onto the taxonomy.
// Unknown or empty values become custom events rather than being rejected.
func ParseInteractionType(s string) InteractionType {
	switch t := InteractionType(strings.ToLower(strings.TrimSpace(s))); t {
	case InteractionFormSubmission, InteractionButtonClick, InteractionDownload,
		InteractionExternalLink, InteractionCustomEvent:
		return t
	default:
		return InteractionCustomEvent
	}
}

// LogRecord is a single append-only entry of the event log
type LogRecord struct {
	ID              string          `json:"id"`
	Kind            RecordKind      `json:"kind"`
	SessionID       string          `json:"sessionId"`
	Path            string          `json:"path"`
	Referer         *string         `json:"referer,omitempty"`
	DurationSeconds *int64          `json:"durationSeconds,omitempty"`
	InteractionType InteractionType `json:"interactionType,omitempty"`
	Element         *string         `json:"element,omitempty"`
	Value           *string         `json:"value,omitempty"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
	UserAgent       string          `json:"userAgent,omitempty"`
	Location        string          `json:"location,omitempty"`
	Timestamp       time.Time       `json:"timestamp"` // server receipt time
}

// TrackPageViewRequest is the body of POST /analytics/track-page-view.
// A request carrying Duration is a duration follow-up for an earlier view.
type TrackPageViewRequest struct {
	Path      string   `json:"path"`
	SessionID string   `json:"sessionId"`
	Referer   *string  `json:"referer,omitempty"`
	Duration  *float64 `json:"duration,omitempty"` // seconds
}

// TrackInteractionRequest is the body of POST /analytics/track-interaction
type TrackInteractionRequest struct {
	Type      string         `json:"type"`
	Element   *string        `json:"element,omitempty"`
	Value     *string        `json:"value,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	SessionID string         `json:"sessionId"`
	Path      string         `json:"path"`
}

// RequestMeta carries what the ingestion boundary learns from the transport
type RequestMeta struct {
	UserAgent string
	Location  string
}
