package sequence

// Queue is a FIFO that holds each value at most once while it is pending.
// A value becomes eligible for Enqueue again after it has been dequeued.
type Queue[T comparable] struct {
	items   []T
	head    int
	pending map[T]struct{}
}

func NewQueue[T comparable]() *Queue[T] {
	return &Queue[T]{
		items:   make([]T, 0, 16),
		pending: make(map[T]struct{}),
	}
}

// Enqueue appends value to the tail. It reports false and leaves the queue
// untouched when value is already pending.
func (q *Queue[T]) Enqueue(value T) bool {
	if _, exists := q.pending[value]; exists {
		return false
	}
	q.pending[value] = struct{}{}
	q.items = append(q.items, value)
	return true
}

func (q *Queue[T]) Dequeue() (T, bool) {
	if q.head == len(q.items) {
		var zero T
		return zero, false
	}
	value := q.items[q.head]
	var zero T
	q.items[q.head] = zero // avoid memory leak
	q.head++
	delete(q.pending, value)

	// Reclaim the consumed prefix once the queue drains or it dominates the slice.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
	return value, true
}

func (q *Queue[T]) Peek() (T, bool) {
	if q.head == len(q.items) {
		var zero T
		return zero, false
	}
	return q.items[q.head], true
}

// Contains reports whether value is pending.
func (q *Queue[T]) Contains(value T) bool {
	_, exists := q.pending[value]
	return exists
}

func (q *Queue[T]) Len() int {
	return len(q.items) - q.head
}

func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}
