// Package queue provides a minimal singly-linked FIFO used as the engine's
// pending-message buffer. It is not safe for concurrent use; the sync engine
// serializes all access behind its own mutex.
package queue

type node[T any] struct {
	value T
	next  *node[T]
}

// Queue is an unbounded FIFO. The zero value is ready to use.
type Queue[T any] struct {
	head *node[T]
	tail *node[T]
	size int
}

// New returns an empty queue.
func New[T any]() *Queue[T] { return &Queue[T]{} }

// Push appends v in O(1).
func (q *Queue[T]) Push(v T) {
	n := &node[T]{value: v}
	if q.tail == nil {
		q.head = n
	} else {
		q.tail.next = n
	}
	q.tail = n
	q.size++
}

// Pop removes and returns the oldest item. The second return is false when
// the queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	if q.head == nil {
		var zero T
		return zero, false
	}
	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.size--
	return n.value, true
}

// Front returns the oldest item without removing it. The second return is
// false when the queue is empty.
func (q *Queue[T]) Front() (T, bool) {
	if q.head == nil {
		var zero T
		return zero, false
	}
	return q.head.value, true
}

// Clear discards all items in O(1). The chain is not walked; dropped nodes
// are left to the garbage collector.
func (q *Queue[T]) Clear() {
	q.head = nil
	q.tail = nil
	q.size = 0
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int { return q.size }
