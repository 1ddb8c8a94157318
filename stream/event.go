// Package stream provides a real-time event broker for translation
// lifecycle events. It bridges the ext.Extension system to connected
// clients via topic-based pub/sub, so UIs can render progress bars and
// dashboards can watch a fleet of translations.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventTranslationStarted   EventType = "translation.started"
	EventStageEntered         EventType = "translation.stage"
	EventCacheHit             EventType = "translation.cache_hit"
	EventProgress             EventType = "translation.progress"
	EventTranslationCompleted EventType = "translation.completed"
	EventTranslationFailed    EventType = "translation.failed"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the channel this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// TranslationEventData is the payload for translation lifecycle events.
type TranslationEventData struct {
	JobID     string `json:"job_id"`
	URL       string `json:"url,omitempty"`
	CacheKey  string `json:"cache_key,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Loaded    int64  `json:"loaded,omitempty"`
	Total     int64  `json:"total,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}
