// Package pubsub provides a single-slot publish/subscribe channel: the most
// recently set value is retained, and every subscriber receives each value
// synchronously, in subscription order.
package pubsub

import (
	"log/slog"
	"sync"
)

// Channel holds the latest value of type T and fans it out to subscribers.
//
// A subscriber registered before the first Set receives no initial callback;
// delivery starts with the next Set. A subscriber registered after at least
// one Set is immediately invoked once with the retained value.
//
// Set snapshots the subscriber list before invoking callbacks, so a callback
// may unsubscribe (itself or others) without corrupting delivery. A panic in
// one callback is logged and does not prevent delivery to the rest.
type Channel[T any] struct {
	mu    sync.Mutex
	value T
	set   bool
	subs  map[int]func(T)
	next  int
}

// New returns a channel with no value set.
func New[T any]() *Channel[T] {
	return &Channel[T]{subs: make(map[int]func(T))}
}

// Set stores v and synchronously invokes every current subscriber with it.
func (c *Channel[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	c.set = true
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	// Subscription order == id order.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.subs[id])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		invoke(fn, v)
	}
}

// Subscribe registers fn for future Set calls and, if a value has already
// been set, invokes fn once with it. The returned func removes exactly this
// registration and is safe to call more than once.
func (c *Channel[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = fn
	replay, ok := c.value, c.set
	c.mu.Unlock()

	if ok {
		invoke(fn, replay)
	}
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Latest returns the retained value and whether any value has been set.
func (c *Channel[T]) Latest() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.set
}

func invoke[T any](fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pubsub subscriber panicked", slog.Any("panic", r))
		}
	}()
	fn(v)
}
