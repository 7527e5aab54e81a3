package event

import (
	"sync"
	"sync/atomic"
	"time"
)

// Notifier fans playback events out to subscribers
//
// Delivery:
//   - Per-channel FIFO: events for one channel arrive in generation order
//   - Bounded queues: a slow subscriber loses its oldest events, never
//     blocks a publisher
//   - Explicit unsubscribe via the returned cancel func
type Notifier struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	seq    map[string]uint64

	dropped atomic.Uint64
	closed  bool
}

// NewNotifier creates an empty notifier
func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[int]chan Event),
		seq:  make(map[string]uint64),
	}
}

// Subscribe registers a listener with the given queue depth. The cancel
// func closes the returned channel and releases the slot; calling it
// twice is safe.
func (n *Notifier) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	ch := make(chan Event, buffer)
	if n.closed {
		close(ch)
		return ch, func() {}
	}
	n.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if c, ok := n.subs[id]; ok {
				delete(n.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Publish stamps e with a per-channel sequence number and timestamp,
// then delivers it to all subscribers
func (n *Notifier) Publish(e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}

	n.seq[e.Channel]++
	e.Seq = n.seq[e.Channel]
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	for _, ch := range n.subs {
		select {
		case ch <- e:
		default:
			// Full queue: drop the oldest, keep the newest
			select {
			case <-ch:
				n.dropped.Add(1)
			default:
			}
			select {
			case ch <- e:
			default:
				n.dropped.Add(1)
			}
		}
	}
}

// Dropped returns the count of events lost to full subscriber queues
func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}

// Close unsubscribes everyone and rejects further publishes
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}
