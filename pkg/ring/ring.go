// Package ring provides a bounded, concurrency-safe FIFO log.
package ring

import "sync"

// Buffer keeps the most recent Cap items. Pushing onto a full buffer evicts the oldest.
type Buffer[T any] struct {
	mu    sync.RWMutex
	items []T
	start int
	size  int
	total uint64
}

// New creates a buffer holding at most capacity items. Capacity below 1 is treated as 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest item when full.
func (b *Buffer[T]) Push(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := (b.start + b.size) % len(b.items)
	b.items[idx] = v
	if b.size < len(b.items) {
		b.size++
	} else {
		b.start = (b.start + 1) % len(b.items)
	}
	b.total++
}

// Last returns up to n most recent items, oldest first. n <= 0 returns everything retained.
func (b *Buffer[T]) Last(n int) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || n > b.size {
		n = b.size
	}
	out := make([]T, n)
	offset := b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.items[(b.start+offset+i)%len(b.items)]
	}
	return out
}

// Len returns the number of retained items.
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the buffer capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

// Total returns how many items were ever pushed, including evicted ones.
func (b *Buffer[T]) Total() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}

// Filter returns retained items matching keep, oldest first.
func (b *Buffer[T]) Filter(keep func(T) bool) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []T
	for i := 0; i < b.size; i++ {
		v := b.items[(b.start+i)%len(b.items)]
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
