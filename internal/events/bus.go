package events

import (
	"sync"
)

// Bus fans events out to subscribers. The zero value is not usable; call NewBus.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*mailbox
	nextID uint64
	closed bool
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*mailbox)}
}

// Subscribe registers h and returns a function that removes it. Events
// already queued for h are still delivered after unsubscribe.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}

	id := b.nextID
	b.nextID++
	mb := newMailbox(h)
	b.subs[id] = mb

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			mb.close()
		})
	}
}

// Publish queues e for every subscriber. It never blocks on a handler.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, mb := range b.subs {
		mb.push(e)
	}
}

// Close stops accepting events and waits until every queued event was handled.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = map[uint64]*mailbox{}
	b.mu.Unlock()

	for _, mb := range subs {
		mb.close()
	}
	for _, mb := range subs {
		<-mb.done
	}
}

// mailbox is an unbounded FIFO with a single delivery goroutine.
type mailbox struct {
	mu      sync.Mutex
	queue   []Event
	closed  bool
	signal  chan struct{}
	done    chan struct{}
	handler Handler
}

func newMailbox(h Handler) *mailbox {
	mb := &mailbox{
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		handler: h,
	}
	go mb.run()
	return mb
}

func (mb *mailbox) push(e Event) {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return
	}
	mb.queue = append(mb.queue, e)
	mb.mu.Unlock()
	mb.wake()
}

func (mb *mailbox) close() {
	mb.mu.Lock()
	mb.closed = true
	mb.mu.Unlock()
	mb.wake()
}

func (mb *mailbox) wake() {
	select {
	case mb.signal <- struct{}{}:
	default:
	}
}

func (mb *mailbox) run() {
	defer close(mb.done)
	for range mb.signal {
		for {
			mb.mu.Lock()
			if len(mb.queue) == 0 {
				closed := mb.closed
				mb.mu.Unlock()
				if closed {
					return
				}
				break
			}
			batch := mb.queue
			mb.queue = nil
			mb.mu.Unlock()

			for _, e := range batch {
				mb.deliver(e)
			}
		}
	}
}

// deliver isolates the bus from a panicking handler.
func (mb *mailbox) deliver(e Event) {
	defer func() { _ = recover() }()
	mb.handler.HandleEvent(e)
}
