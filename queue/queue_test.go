package queue

import "testing"

func TestPushPopOrder(t *testing.T) {
	q := New[int]()
	for i := 1; i <= 5; i++ {
		q.Push(i)
	}
	if q.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", q.Len())
	}
	for i := 1; i <= 5; i++ {
		v, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop() empty at i=%d", i)
		}
		if v != i {
			t.Errorf("Pop() = %d, want %d", v, i)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Errorf("Pop() on drained queue reported ok")
	}
}

func TestFrontDoesNotRemove(t *testing.T) {
	q := New[string]()
	if _, ok := q.Front(); ok {
		t.Fatalf("Front() on empty queue reported ok")
	}
	q.Push("a")
	q.Push("b")
	v, ok := q.Front()
	if !ok || v != "a" {
		t.Fatalf("Front() = %q, %v; want \"a\", true", v, ok)
	}
	if q.Len() != 2 {
		t.Errorf("Front() changed length to %d", q.Len())
	}
}

func TestClear(t *testing.T) {
	q := New[int]()
	for i := 0; i < 10; i++ {
		q.Push(i)
	}
	q.Clear()
	if q.Len() != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", q.Len())
	}
	if _, ok := q.Pop(); ok {
		t.Errorf("Pop() after Clear reported ok")
	}
	// Queue stays usable after Clear.
	q.Push(42)
	if v, ok := q.Pop(); !ok || v != 42 {
		t.Errorf("Pop() after reuse = %d, %v; want 42, true", v, ok)
	}
}
