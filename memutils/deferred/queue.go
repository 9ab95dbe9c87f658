// Package deferred provides a FIFO of items that may only be reclaimed once the GPU has
// passed a fence (or frame) value. Descriptor pages, buffer allocators and the render
// context all use it to return memory to their pools after the consumer is done with it.
package deferred

type entry[T any] struct {
	fence uint64
	item  T
}

// Queue holds items tagged with the fence value that must complete before they can be
// reclaimed. Tags are expected to be non-decreasing: Release pops a prefix of the queue,
// so an item pushed with a smaller tag than its predecessor simply waits for the
// predecessor. Queue is not safe for concurrent use; owners guard it with their own lock.
type Queue[T any] struct {
	entries   []entry[T]
	head      int
	lastFence uint64
}

// Push enqueues item, to be released once fence has completed
func (q *Queue[T]) Push(fence uint64, item T) {
	if fence > q.lastFence {
		q.lastFence = fence
	}
	q.entries = append(q.entries, entry[T]{fence: fence, item: item})
}

// Release pops every item at the front of the queue whose fence is less than or equal to
// completedFence, calling reclaim for each in FIFO order. It returns the number of items
// released.
func (q *Queue[T]) Release(completedFence uint64, reclaim func(item T)) int {
	released := 0
	for q.head < len(q.entries) && q.entries[q.head].fence <= completedFence {
		item := q.entries[q.head].item
		var zero entry[T]
		q.entries[q.head] = zero
		q.head++
		released++

		reclaim(item)
	}

	q.compact()
	return released
}

// Drain releases every item regardless of its fence
func (q *Queue[T]) Drain(reclaim func(item T)) int {
	return q.Release(^uint64(0), reclaim)
}

// Len returns the number of items still waiting on their fence
func (q *Queue[T]) Len() int {
	return len(q.entries) - q.head
}

// LastFence returns the largest fence value ever pushed
func (q *Queue[T]) LastFence() uint64 {
	return q.lastFence
}

// Visit calls visitor for every pending item in FIFO order
func (q *Queue[T]) Visit(visitor func(fence uint64, item T)) {
	for i := q.head; i < len(q.entries); i++ {
		visitor(q.entries[i].fence, q.entries[i].item)
	}
}

func (q *Queue[T]) compact() {
	if q.head == len(q.entries) {
		q.entries = q.entries[:0]
		q.head = 0
		return
	}

	// Reclaim the consumed prefix once it dominates the backing array
	if q.head > 32 && q.head*2 > len(q.entries) {
		n := copy(q.entries, q.entries[q.head:])
		q.entries = q.entries[:n]
		q.head = 0
	}
}
