package eventbus

import (
	"sync"
	"time"
)

// Event is a small in-memory signal that lets services observe each
// other without importing each other. Producers define their own
// payload types (see dispatch.DeliveryEvent) and publish under dotted
// type names like "delivery.sent".
//
// Publish never blocks: subscriber channels are buffered, and a full
// buffer drops the event for that subscriber only. Keep payloads small
// and JSON-friendly so they can be surfaced over the API.
type Event struct {
	Type    string
	Time    time.Time
	Payload any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (<-chan Event, func())
}

// New returns an in-memory fanout bus. The bus owns no goroutines;
// delivery happens inline on the publisher's stack.
func New() Bus {
	return &fanout{subs: map[uint64]chan Event{}}
}

type fanout struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]chan Event
}

// Publish sends under the read lock. drop closes under the write lock,
// so a send can never hit a closed channel.
func (b *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Full buffer: this subscriber misses the event.
		}
	}
}

// Subscribe registers a buffered listener and returns it with its
// unsubscribe func. Calling the func twice is fine.
func (b *fanout) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() { b.drop(id, ch) }
}

// drop is idempotent: only the call that still finds id registered
// closes the channel.
func (b *fanout) drop(id uint64, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return
	}
	delete(b.subs, id)
	close(ch)
}
