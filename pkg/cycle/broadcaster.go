package cycle

import (
	"sync"

	"github.com/hadcinema-ops/giveaway/pkg/metrics"
)

// Event is pushed to connected event-stream subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Broadcaster fans events out to subscribers. Slow subscribers are not waited
// on; an event that does not fit their buffer is dropped.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called when the subscriber goes away.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	metrics.EventSubscribers.Set(float64(len(b.subs)))
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		metrics.EventSubscribers.Set(float64(len(b.subs)))
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber that can take it.
func (b *Broadcaster) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
