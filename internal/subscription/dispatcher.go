// Package subscription implements topic-based event fan-out for mutation
// events. Delivery is at-most-once with no replay: each subscriber owns a
// bounded buffer, sends never block the publisher, and a subscriber that
// falls behind is disconnected rather than slowing anyone else down.
package subscription

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"
)

// DefaultBufferSize is the per-subscriber channel capacity when the
// dispatcher is created with a non-positive size.
const DefaultBufferSize = 16

// Event is one delivered subscription event.
type Event struct {
	// ID is a ULID, unique per published event and ordered by publish time.
	ID      string         `json:"id"`
	Topic   string         `json:"topic"`
	Payload map[string]any `json:"payload"`
}

// Subscription is one subscriber's handle. Events arrives on C, which is
// closed when the subscription ends, either by Close or by overflow.
type Subscription struct {
	C <-chan Event

	id         uint64
	topic      string
	filters    map[string]any
	ch         chan Event
	dispatcher *Dispatcher
	closeOnce  sync.Once
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.dispatcher.remove(s)
}

// Dispatcher routes published events to matching subscribers.
type Dispatcher struct {
	mu     sync.RWMutex
	topics map[string]map[uint64]*Subscription
	nextID uint64
	buffer int
	logger *slog.Logger
	onDrop func(topic string)
}

// New creates a dispatcher with the given per-subscriber buffer size.
func New(bufferSize int, logger *slog.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		topics: map[string]map[uint64]*Subscription{},
		buffer: bufferSize,
		logger: logger,
	}
}

// OnDrop registers a callback invoked once per overflow disconnect, for
// metrics. Must be set before the dispatcher is used.
func (d *Dispatcher) OnDrop(fn func(topic string)) {
	d.onDrop = fn
}

// Subscribe attaches a subscriber to a topic. Filters are matched exactly
// against event payload fields: an event is delivered only when every filter
// key is present in the payload with an equal value.
func (d *Dispatcher) Subscribe(topic string, filters map[string]any) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	ch := make(chan Event, d.buffer)
	sub := &Subscription{
		C:          ch,
		id:         d.nextID,
		topic:      topic,
		filters:    filters,
		ch:         ch,
		dispatcher: d,
	}
	if d.topics[topic] == nil {
		d.topics[topic] = map[uint64]*Subscription{}
	}
	d.topics[topic][sub.id] = sub
	return sub
}

// Publish delivers an event to every matching subscriber of the topic.
// Fire and forget: publishing never blocks, and a full subscriber buffer
// disconnects that subscriber.
func (d *Dispatcher) Publish(topic string, payload map[string]any) {
	event := Event{
		ID:      ulid.Make().String(),
		Topic:   topic,
		Payload: payload,
	}

	d.mu.RLock()
	subs := make([]*Subscription, 0, len(d.topics[topic]))
	for _, sub := range d.topics[topic] {
		subs = append(subs, sub)
	}
	d.mu.RUnlock()

	for _, sub := range subs {
		if !matches(sub.filters, payload) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			d.logger.Warn("subscriber buffer full, disconnecting",
				slog.String("topic", topic))
			if d.onDrop != nil {
				d.onDrop(topic)
			}
			d.remove(sub)
		}
	}
}

// SubscriberCount reports the number of active subscribers on a topic.
func (d *Dispatcher) SubscriberCount(topic string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.topics[topic])
}

func (d *Dispatcher) remove(sub *Subscription) {
	d.mu.Lock()
	if subs := d.topics[sub.topic]; subs != nil {
		if _, present := subs[sub.id]; present {
			delete(subs, sub.id)
			if len(subs) == 0 {
				delete(d.topics, sub.topic)
			}
		}
	}
	d.mu.Unlock()
	sub.closeOnce.Do(func() { close(sub.ch) })
}

// matches applies exact-match filter semantics. Values are compared by
// canonical string form so JSON numeric representations compare equal.
func matches(filters, payload map[string]any) bool {
	for key, want := range filters {
		got, ok := payload[key]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
