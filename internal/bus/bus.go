package bus

import (
	"sync"
)

// Well-known topics.
const (
	TopicOutbound = "outbound"
	TopicAlerts   = "alerts"
	TopicSystem   = "system"
)

// Message is one published event. ConversationID scopes delivery for
// subscribers that filter by conversation.
type Message struct {
	Topic          string
	ConversationID string
	Payload        any
}

// Subscription is one receiver on a topic. Read from C; call Cancel when done.
type Subscription struct {
	C      <-chan Message
	cancel func()
	once   sync.Once
}

func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Bus is an in-process publish/subscribe fan-out. Publish never blocks: a
// subscriber that cannot keep up loses messages and the drop is counted, so
// one stalled operator socket cannot back-pressure the conversation loop.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan Message
	nextID int
	buffer int
	onDrop func(topic string)
}

func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[string]map[int]chan Message),
		buffer: buffer,
	}
}

// SetDropHook installs a callback invoked once per dropped message.
func (b *Bus) SetDropHook(fn func(topic string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDrop = fn
}

// Subscribe registers a buffered receiver on topic. Messages published to the
// same conversation arrive in publish order as long as the publisher
// serializes per conversation, which the engine does.
func (b *Bus) Subscribe(topic string) *Subscription {
	ch := make(chan Message, b.buffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan Message)
	}
	b.subs[topic][id] = ch
	b.mu.Unlock()

	return &Subscription{
		C: ch,
		cancel: func() {
			b.mu.Lock()
			if set, ok := b.subs[topic]; ok {
				if _, ok := set[id]; ok {
					delete(set, id)
					close(ch)
				}
			}
			b.mu.Unlock()
		},
	}
}

// Publish delivers msg to every subscriber of its topic without blocking.
func (b *Bus) Publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[msg.Topic] {
		select {
		case ch <- msg:
		default:
			if b.onDrop != nil {
				b.onDrop(msg.Topic)
			}
		}
	}
}

// SubscriberCount reports the number of live subscriptions on topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
