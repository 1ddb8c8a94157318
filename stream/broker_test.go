package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/nexelab/translate/ext"
	"github.com/nexelab/translate/id"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBrokerSubscribeAndPublish(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	sub := b.Subscribe("sub-1", TopicTranslations)

	evt := &Event{
		Type:      EventTranslationStarted,
		Timestamp: time.Now().UTC(),
		Topic:     TranslationTopic("txj-123"),
		Data:      json.RawMessage(`{"job_id":"txj-123"}`),
	}
	b.publish(evt)

	// Event should arrive on the subscriber channel.
	select {
	case received := <-sub.C():
		if received.Type != EventTranslationStarted {
			t.Errorf("Type = %q, want %q", received.Type, EventTranslationStarted)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBrokerMultipleTopics(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	// Subscribe to firehose — should get everything.
	firehose := b.Subscribe("firehose-sub", TopicFirehose)

	// Subscribe to just translations.
	transSub := b.Subscribe("trans-sub", TopicTranslations)

	evt := &Event{
		Type:      EventTranslationCompleted,
		Timestamp: time.Now().UTC(),
		Topic:     TranslationTopic("txj-456"),
		Data:      json.RawMessage(`{}`),
	}
	b.publish(evt)

	// Both should receive the event.
	for _, sub := range []*Subscriber{firehose, transSub} {
		select {
		case <-sub.C():
			// ok
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s timed out", sub.ID())
		}
	}
}

func TestBrokerPerJobTopics(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	// Subscribe to a specific job.
	sub := b.Subscribe("job-sub", TranslationTopic("txj-abc"))

	// Publish event for that job.
	evt := &Event{
		Type:      EventStageEntered,
		Timestamp: time.Now().UTC(),
		Topic:     TranslationTopic("txj-abc"),
		Data:      json.RawMessage(`{"stage":"run_translation"}`),
	}
	b.publish(evt)

	select {
	case received := <-sub.C():
		if received.Type != EventStageEntered {
			t.Errorf("Type = %q, want %q", received.Type, EventStageEntered)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stage event")
	}

	// Publish event for a different job — should NOT arrive.
	evt2 := &Event{
		Type:      EventTranslationStarted,
		Timestamp: time.Now().UTC(),
		Topic:     TranslationTopic("txj-other"),
		Data:      json.RawMessage(`{}`),
	}
	b.publish(evt2)

	select {
	case <-sub.C():
		t.Fatal("should not receive event for different job")
	case <-time.After(50 * time.Millisecond):
		// ok — no event
	}
}

func TestBrokerLifecycleHooks(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	sub := b.Subscribe("hook-sub", TopicTranslations)

	ctx := context.Background()
	info := ext.JobInfo{ID: id.NewJobID(), URL: "prog.pexe", CacheKey: "k", InputSize: 2048}

	if err := b.OnTranslationStarted(ctx, info); err != nil {
		t.Fatalf("OnTranslationStarted: %v", err)
	}
	if err := b.OnStageEntered(ctx, info, "link"); err != nil {
		t.Fatalf("OnStageEntered: %v", err)
	}
	if err := b.OnCacheHit(ctx, info); err != nil {
		t.Fatalf("OnCacheHit: %v", err)
	}
	if err := b.OnProgressReported(ctx, info, 1024, 2048); err != nil {
		t.Fatalf("OnProgressReported: %v", err)
	}
	if err := b.OnTranslationCompleted(ctx, info, time.Second); err != nil {
		t.Fatalf("OnTranslationCompleted: %v", err)
	}
	if err := b.OnTranslationFailed(ctx, info, errors.New("boom")); err != nil {
		t.Fatalf("OnTranslationFailed: %v", err)
	}

	expected := []EventType{
		EventTranslationStarted, EventStageEntered, EventCacheHit,
		EventProgress, EventTranslationCompleted, EventTranslationFailed,
	}
	for _, want := range expected {
		select {
		case received := <-sub.C():
			if received.Type != want {
				t.Errorf("Type = %q, want %q", received.Type, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	sub := b.Subscribe("sub-rm", TopicFirehose)

	// Remove subscriber.
	b.RemoveSubscriber("sub-rm")

	evt := &Event{
		Type:      EventTranslationStarted,
		Timestamp: time.Now().UTC(),
		Topic:     TranslationTopic("j1"),
		Data:      json.RawMessage(`{}`),
	}
	b.publish(evt)

	// Channel should be closed.
	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("channel should be closed after RemoveSubscriber")
		}
	case <-time.After(100 * time.Millisecond):
		// ok
	}
}

func TestBrokerStats(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	_ = b.Subscribe("s1", TopicTranslations)
	starved := b.Subscribe("s2", TopicFirehose)

	stats := b.Stats()
	if stats.SubscriberCount != 2 {
		t.Errorf("SubscriberCount = %d, want 2", stats.SubscriberCount)
	}
	if stats.TopicCount < 2 {
		t.Errorf("TopicCount = %d, want >= 2", stats.TopicCount)
	}

	// Starve one subscriber; its drops show up in the broker stats.
	starved.AddCredits(-DefaultCredits)
	b.publish(&Event{
		Type:      EventProgress,
		Timestamp: time.Now().UTC(),
		Topic:     TranslationTopic("txj-stats"),
		Data:      json.RawMessage(`{}`),
	})
	if got := b.Stats().TotalDropped; got != 1 {
		t.Errorf("TotalDropped = %d, want 1", got)
	}
}

func TestSubscriberCredits(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("credit-sub", 10, 2)

	evt := &Event{Type: EventProgress, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}

	// Should accept 2 events (initial credits).
	if !sub.send(evt) {
		t.Fatal("first send should succeed")
	}
	if !sub.send(evt) {
		t.Fatal("second send should succeed")
	}

	// Third should fail — no credits — and count as a drop.
	if sub.send(evt) {
		t.Fatal("third send should fail (no credits)")
	}
	if sub.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", sub.Dropped())
	}

	// Replenish credits.
	sub.AddCredits(5)
	if sub.Credits() != 5 {
		t.Errorf("Credits = %d, want 5", sub.Credits())
	}

	if !sub.send(evt) {
		t.Fatal("send after credit replenishment should succeed")
	}
}

func TestSubscriberOnly(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("only-sub", 10, 100)
	sub.Only(EventProgress, EventTranslationFailed)

	// Outside the allowlist: skipped, not a drop.
	if sub.send(&Event{Type: EventTranslationCompleted, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}) {
		t.Fatal("completed event should be skipped")
	}
	if sub.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0 (type skip is not a drop)", sub.Dropped())
	}

	// In the allowlist: delivered.
	if !sub.send(&Event{Type: EventProgress, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}) {
		t.Fatal("progress event should be delivered")
	}
	if !sub.send(&Event{Type: EventTranslationFailed, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}) {
		t.Fatal("failed event should be delivered")
	}

	// Clearing the restriction delivers everything again.
	sub.Only()
	if !sub.send(&Event{Type: EventTranslationCompleted, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}) {
		t.Fatal("completed event should be delivered after Only()")
	}
}

func TestSubscriberBufferFullRestoresCredit(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("full-sub", 1, 100)
	evt := &Event{Type: EventProgress, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}

	if !sub.send(evt) {
		t.Fatal("first send should fill the buffer")
	}
	if sub.send(evt) {
		t.Fatal("second send should fail (buffer full)")
	}
	if sub.Credits() != 99 {
		t.Errorf("Credits = %d, want 99 (credit restored on full buffer)", sub.Credits())
	}
	if sub.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", sub.Dropped())
	}
}

func TestTopicValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		topic string
		valid bool
	}{
		{TopicTranslations, true},
		{TopicFirehose, true},
		{"translation:txj-123", true},
		{"invalid", false},
		{"unknown:entity", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			err := ValidateTopic(tt.topic)
			if tt.valid && err != nil {
				t.Errorf("ValidateTopic(%q) returned error: %v", tt.topic, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("ValidateTopic(%q) should return error", tt.topic)
			}
		})
	}
}

func TestTopicRegistry(t *testing.T) {
	t.Parallel()

	tr := NewTopicRegistry()

	sub1 := NewSubscriber("s1", 10, 100)
	sub2 := NewSubscriber("s2", 10, 100)

	tr.Subscribe("topic-a", sub1)
	tr.Subscribe("topic-a", sub2)
	tr.Subscribe("topic-b", sub1)

	if tr.TopicCount() != 2 {
		t.Errorf("TopicCount = %d, want 2", tr.TopicCount())
	}
	if tr.SubscriberCount("topic-a") != 2 {
		t.Errorf("SubscriberCount(topic-a) = %d, want 2", tr.SubscriberCount("topic-a"))
	}

	// Unsubscribe s2 from topic-a.
	tr.Unsubscribe("topic-a", "s2")
	if tr.SubscriberCount("topic-a") != 1 {
		t.Errorf("SubscriberCount(topic-a) = %d, want 1", tr.SubscriberCount("topic-a"))
	}

	// UnsubscribeAll for s1.
	tr.UnsubscribeAll("s1")
	if tr.TopicCount() != 0 {
		t.Errorf("TopicCount after UnsubscribeAll = %d, want 0", tr.TopicCount())
	}
}

func TestBroadcastDeduplication(t *testing.T) {
	t.Parallel()

	tr := NewTopicRegistry()
	sub := NewSubscriber("dedup-sub", 10, 100)

	// Subscribe to multiple topics.
	tr.Subscribe("topic-x", sub)
	tr.Subscribe("topic-y", sub)

	evt := &Event{Type: EventProgress, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}

	delivered := tr.Broadcast([]string{"topic-x", "topic-y"}, evt)
	if delivered != 1 {
		t.Errorf("Broadcast delivered to %d subscribers, want 1 (deduplicated)", delivered)
	}
}

func TestResolveTopics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		evt      *Event
		expected []string
	}{
		{
			evt:      &Event{Type: EventTranslationStarted, Topic: "translation:j1"},
			expected: []string{TopicFirehose, TopicTranslations, "translation:j1"},
		},
		{
			evt:      &Event{Type: EventProgress, Topic: ""},
			expected: []string{TopicFirehose, TopicTranslations},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.evt.Type), func(t *testing.T) {
			topics := resolveTopics(tt.evt)
			if len(topics) != len(tt.expected) {
				t.Errorf("got %d topics, want %d: %v", len(topics), len(tt.expected), topics)
				return
			}
			for i, topic := range topics {
				if topic != tt.expected[i] {
					t.Errorf("topic[%d] = %q, want %q", i, topic, tt.expected[i])
				}
			}
		})
	}
}
