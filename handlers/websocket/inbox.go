package websocket

import (
	"sync"
)

// inbox runs queued work one item at a time, in the order it was pushed.
// A drain goroutine exists only while work is pending.
type inbox struct {
	mu      sync.Mutex
	items   []func()
	running bool
	closed  bool
}

// push queues fn. It reports false once the inbox is closed.
func (b *inbox) push(fn func()) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.items = append(b.items, fn)
	start := !b.running
	b.running = true
	b.mu.Unlock()

	if start {
		go b.drain()
	}
	return true
}

// close refuses further pushes. Work already queued still runs.
func (b *inbox) close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

func (b *inbox) drain() {
	for {
		b.mu.Lock()
		if len(b.items) == 0 {
			b.running = false
			b.mu.Unlock()
			return
		}
		fn := b.items[0]
		b.items[0] = nil
		b.items = b.items[1:]
		b.mu.Unlock()

		fn()
	}
}
