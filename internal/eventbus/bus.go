// Package eventbus fans a stream of named topic events out to any number
// of subscribers, the same publish/subscribe shape httpapi's WebSocket
// handler needs to broadcast `data`, `boss_hp_update`, `data_cleared` and
// `new_fight_started` to every connected client without blocking the
// combat engine's own goroutine on a slow reader.
package eventbus

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Message is one fanned-out event: a topic name plus its JSON-encodable
// payload, matching spec §6's websocket envelope shape.
type Message struct {
	Topic   string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// subscriberQueueSize bounds how far a slow subscriber can lag before its
// messages are dropped, so one stalled client can never back up the
// engine's publish calls.
const subscriberQueueSize = 64

// Bus is a fan-out publisher. The zero value is not usable; use New.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Message
	next int
	log  *zap.Logger
}

// New returns a ready-to-use Bus.
func New(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}

	return &Bus{
		subs: make(map[int]chan Message),
		log:  log.Named("eventbus"),
	}
}

// Subscribe registers a new subscriber and returns its channel and an id
// to later Unsubscribe with.
func (b *Bus) Subscribe() (<-chan Message, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++

	ch := make(chan Message, subscriberQueueSize)
	b.subs[id] = ch

	return ch, id
}

// Unsubscribe removes and closes the subscriber identified by id.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}

// Publish implements engine.Publisher. It never blocks: a subscriber
// whose queue is full has the message dropped for it, logged at debug
// level, rather than stalling the caller.
func (b *Bus) Publish(topic string, payload interface{}) {
	msg := Message{Topic: topic, Payload: payload}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			b.log.Debug("dropping event for slow subscriber", zap.Int("subscriber", id), zap.String("topic", topic))
		}
	}
}

// Marshal is a convenience used by httpapi to encode a Message for a
// websocket text frame.
func Marshal(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
