package query

import (
	"context"
	"sync"
	"time"

	"github.com/lspecian/vexfs-sub008/internal/errs"
	"github.com/lspecian/vexfs-sub008/internal/event"
	"github.com/lspecian/vexfs-sub008/internal/obs"
)

// MessageType is the §6 stream message enum.
type MessageType int

const (
	MessageSubscribe MessageType = iota
	MessageUnsubscribe
	MessageEvent
	MessagePing
	MessagePong
	MessageError
)

// Message is one frame of the stream protocol, per spec.md §6's
// "Query/stream interface" message set.
type Message struct {
	Type         MessageType
	Event        *event.Event
	SequenceNum  uint64
	ErrorCode    string
	ErrorMessage string
}

// SubscriptionID uniquely identifies a live subscription.
type SubscriptionID uint64

// Subscription is a filter plus a buffer, per spec.md §4.9 "Stream": "A
// subscription is a filter plus a buffer size and an optional historical
// prefix." Delivery is in global-sequence order with a per-subscription
// sequence number.
type Subscription struct {
	ID       SubscriptionID
	Messages <-chan Message
	Durable  bool

	hub      *Hub
	filter   Filter
	messages chan Message
	seq      uint64
	mu       sync.Mutex
	closed   bool
}

// send delivers msg if the subscriber's buffer has room; otherwise it
// drops the message and reports StreamDropped, per spec.md §5
// "back-pressure is per-subscriber."
func (s *Subscription) send(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if msg.Type == MessageEvent {
		s.seq++
		msg.SequenceNum = s.seq
	}
	select {
	case s.messages <- msg:
	default:
		if s.hub.metrics != nil {
			s.hub.metrics.StreamDropped.Inc()
		}
	}
}

// Close unsubscribes and releases the subscription's buffer.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s.ID)
}

// Hub fans committed events out to subscribers, grounded on the
// broadcast-channel shape of original_source's MonitoringDashboard
// (tokio::sync::broadcast), re-expressed as one buffered Go channel per
// subscriber since spec.md §4.9 requires per-subscriber back-pressure
// rather than a single shared broadcast channel.
type Hub struct {
	planner *Planner
	metrics *obs.Metrics

	mu       sync.RWMutex
	nextID   SubscriptionID
	subs     map[SubscriptionID]*Subscription
	gracePeriod time.Duration
}

// NewHub builds a Hub. gracePeriod is stored and reported by GracePeriod;
// the Hub itself never drops a subscription or its buffered events when
// the period elapses.
func NewHub(planner *Planner, metrics *obs.Metrics, gracePeriod time.Duration) *Hub {
	return &Hub{planner: planner, metrics: metrics, subs: make(map[SubscriptionID]*Subscription), gracePeriod: gracePeriod}
}

// Subscribe opens a new subscription. If historicalPrefix is true, a
// snapshot-as-of-now result set is replayed through the subscription
// channel ahead of live events, per spec.md §4.9's "optional historical
// prefix."
func (h *Hub) Subscribe(filter Filter, bufferSize int, historicalPrefix bool, durable bool) (*Subscription, error) {
	if bufferSize <= 0 {
		return nil, errs.Wrap(errs.ErrInvalidArgument, "query", "subscribe-nonpositive-buffer")
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	ch := make(chan Message, bufferSize)
	sub := &Subscription{ID: id, Messages: ch, Durable: durable, hub: h, filter: filter, messages: ch}
	h.subs[id] = sub
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.StreamSubscribers.Inc()
	}

	if historicalPrefix {
		result, err := h.planner.Plan(context.Background(), filter, 0, 0, SortBySequence, Ascending)
		if err == nil {
			for _, e := range result.Events {
				sub.send(Message{Type: MessageEvent, Event: e})
			}
		}
	}

	return sub, nil
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(id SubscriptionID) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	sub.mu.Lock()
	sub.closed = true
	close(sub.messages)
	sub.mu.Unlock()
	if h.metrics != nil {
		h.metrics.StreamSubscribers.Dec()
	}
}

// Publish delivers e to every subscriber whose filter matches it, in the
// global-sequence order the journal hands events to Publish in.
func (h *Hub) Publish(e *event.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.filter.Matches(e) {
			sub.send(Message{Type: MessageEvent, Event: e})
		}
	}
}

// Ping sends a keepalive to every subscriber.
func (h *Hub) Ping() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		sub.send(Message{Type: MessagePong})
	}
}

// SubscriberCount reports the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// GracePeriod reports how long a disconnected non-durable subscription's
// buffered events are retained before a transport-layer disconnect
// handler should call Unsubscribe.
func (h *Hub) GracePeriod() time.Duration {
	return h.gracePeriod
}
