package stream

import (
	"sync"
	"sync/atomic"
)

// Subscriber is one consumer of translation events, typically a page
// streaming progress for a job it started. Delivery is credit-based:
// the consumer grants credits for the events it is prepared to handle
// and the broker drops once they run out, so a slow progress reader
// never stalls the pipeline's completion loop.
type Subscriber struct {
	id     string
	events chan *Event

	mu      sync.Mutex
	credits int64
	topics  map[string]struct{}
	only    map[EventType]struct{}

	dropped atomic.Int64
	closed  atomic.Bool
}

// NewSubscriber creates a subscriber with the given event buffer size
// and initial credit grant.
func NewSubscriber(id string, bufferSize int, initialCredits int64) *Subscriber {
	return &Subscriber{
		id:      id,
		events:  make(chan *Event, bufferSize),
		credits: initialCredits,
		topics:  make(map[string]struct{}),
	}
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the read-only event channel.
func (s *Subscriber) C() <-chan *Event { return s.events }

// AddCredits grants the consumer capacity for n more events.
func (s *Subscriber) AddCredits(n int64) {
	s.mu.Lock()
	s.credits += n
	s.mu.Unlock()
}

// Credits returns the remaining credit count.
func (s *Subscriber) Credits() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credits
}

// Only restricts delivery to the given event types. A progress consumer
// usually wants EventProgress and the two terminal events, not every
// stage transition. Passing no types removes the restriction.
func (s *Subscriber) Only(types ...EventType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(types) == 0 {
		s.only = nil
		return
	}
	s.only = make(map[EventType]struct{}, len(types))
	for _, t := range types {
		s.only[t] = struct{}{}
	}
}

// Dropped returns how many events were dropped for this subscriber
// because its credits ran out or its buffer was full.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// addTopic records that this subscriber is on the given topic.
func (s *Subscriber) addTopic(topic string) {
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
}

// removeTopic removes a topic from the subscriber's tracked set.
func (s *Subscriber) removeTopic(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// Topics returns a copy of all subscribed topic names.
func (s *Subscriber) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// send delivers an event without ever blocking, reporting whether it
// was handed to the consumer. An event type outside the Only set is
// skipped silently; an exhausted credit grant or a full buffer counts
// as a drop.
func (s *Subscriber) send(evt *Event) bool {
	if s.closed.Load() {
		return false
	}

	s.mu.Lock()
	if s.only != nil {
		if _, ok := s.only[evt.Type]; !ok {
			s.mu.Unlock()
			return false
		}
	}
	if s.credits <= 0 {
		s.mu.Unlock()
		s.dropped.Add(1)
		return false
	}
	s.credits--
	s.mu.Unlock()

	select {
	case s.events <- evt:
		return true
	default:
		// Buffer full: the event never reached the consumer, so the
		// credit goes back.
		s.mu.Lock()
		s.credits++
		s.mu.Unlock()
		s.dropped.Add(1)
		return false
	}
}

// Close closes the subscriber channel. Safe to call multiple times.
func (s *Subscriber) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.events)
	}
}
