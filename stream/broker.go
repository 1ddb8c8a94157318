package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexelab/translate/ext"
)

// Compile-time interface checks.
var (
	_ ext.Extension            = (*Broker)(nil)
	_ ext.TranslationStarted   = (*Broker)(nil)
	_ ext.StageEntered         = (*Broker)(nil)
	_ ext.CacheHit             = (*Broker)(nil)
	_ ext.ProgressReported     = (*Broker)(nil)
	_ ext.TranslationCompleted = (*Broker)(nil)
	_ ext.TranslationFailed    = (*Broker)(nil)
	_ ext.Shutdown             = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker is the real-time stream broker. It implements the
// ext.Extension interface to receive lifecycle events and fans them out
// to subscribers via topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Metrics.
	totalPublished atomic.Int64

	// Config.
	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry for external use.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics. Dropped counts come from the
// subscribers themselves, so they include drops recorded before a
// subscriber was removed only while it is still registered.
func (b *Broker) Stats() BrokerStats {
	count := 0
	var dropped int64
	b.subscribers.Range(func(_, value any) bool {
		count++
		dropped += value.(*Subscriber).Dropped() //nolint:errcheck // sync.Map always stores *Subscriber
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    dropped,
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// publish creates an event and broadcasts it to all matching topics.
func (b *Broker) publish(evt *Event) {
	topics := resolveTopics(evt)
	delivered := b.topics.Broadcast(topics, evt)
	b.totalPublished.Add(int64(delivered))
}

// mustMarshal marshals data to JSON, panicking on error (programming
// error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// ── Translation lifecycle hooks ─────────────────────

func (b *Broker) OnTranslationStarted(_ context.Context, info ext.JobInfo) error {
	b.publish(&Event{
		Type:      EventTranslationStarted,
		Timestamp: time.Now().UTC(),
		Topic:     TranslationTopic(info.ID.String()),
		Data: mustMarshal(TranslationEventData{
			JobID:    info.ID.String(),
			URL:      info.URL,
			CacheKey: info.CacheKey,
			Total:    info.InputSize,
		}),
	})
	return nil
}

func (b *Broker) OnStageEntered(_ context.Context, info ext.JobInfo, stage string) error {
	b.publish(&Event{
		Type:      EventStageEntered,
		Timestamp: time.Now().UTC(),
		Topic:     TranslationTopic(info.ID.String()),
		Data: mustMarshal(TranslationEventData{
			JobID: info.ID.String(),
			URL:   info.URL,
			Stage: stage,
		}),
	})
	return nil
}

func (b *Broker) OnCacheHit(_ context.Context, info ext.JobInfo) error {
	b.publish(&Event{
		Type:      EventCacheHit,
		Timestamp: time.Now().UTC(),
		Topic:     TranslationTopic(info.ID.String()),
		Data: mustMarshal(TranslationEventData{
			JobID:    info.ID.String(),
			URL:      info.URL,
			CacheKey: info.CacheKey,
		}),
	})
	return nil
}

func (b *Broker) OnProgressReported(_ context.Context, info ext.JobInfo, loaded, total int64) error {
	b.publish(&Event{
		Type:      EventProgress,
		Timestamp: time.Now().UTC(),
		Topic:     TranslationTopic(info.ID.String()),
		Data: mustMarshal(TranslationEventData{
			JobID:  info.ID.String(),
			URL:    info.URL,
			Loaded: loaded,
			Total:  total,
		}),
	})
	return nil
}

func (b *Broker) OnTranslationCompleted(_ context.Context, info ext.JobInfo, elapsed time.Duration) error {
	b.publish(&Event{
		Type:      EventTranslationCompleted,
		Timestamp: time.Now().UTC(),
		Topic:     TranslationTopic(info.ID.String()),
		Data: mustMarshal(TranslationEventData{
			JobID:     info.ID.String(),
			URL:       info.URL,
			ElapsedMs: elapsed.Milliseconds(),
		}),
	})
	return nil
}

func (b *Broker) OnTranslationFailed(_ context.Context, info ext.JobInfo, jobErr error) error {
	b.publish(&Event{
		Type:      EventTranslationFailed,
		Timestamp: time.Now().UTC(),
		Topic:     TranslationTopic(info.ID.String()),
		Data: mustMarshal(TranslationEventData{
			JobID: info.ID.String(),
			URL:   info.URL,
			Error: jobErr.Error(),
		}),
	})
	return nil
}

// ── Shutdown ────────────────────────────────────────

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
