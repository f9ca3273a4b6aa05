// Package ringlog provides a fixed-capacity, insertion-ordered log. Once full,
// every push evicts the oldest entry.
package ringlog

import "encoding/json"

type Ring[T any] struct {
	buf   []T
	start int
	size  int
}

func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// FromItems builds a ring holding the newest capacity entries of items.
func FromItems[T any](capacity int, items []T) *Ring[T] {
	r := New[T](capacity)
	if len(items) > len(r.buf) {
		items = items[len(items)-len(r.buf):]
	}
	for _, it := range items {
		r.Push(it)
	}
	return r
}

// Push appends v and reports whether the oldest entry was evicted to make room.
func (r *Ring[T]) Push(v T) bool {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return false
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
	return true
}

func (r *Ring[T]) Len() int {
	if r == nil {
		return 0
	}
	return r.size
}

func (r *Ring[T]) Cap() int { return len(r.buf) }

// At returns the i-th entry, 0 being the oldest. It panics when i is out of range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.size {
		panic("ringlog: index out of range")
	}
	return r.buf[(r.start+i)%len(r.buf)]
}

// Set replaces the i-th entry in place.
func (r *Ring[T]) Set(i int, v T) {
	if i < 0 || i >= r.size {
		panic("ringlog: index out of range")
	}
	r.buf[(r.start+i)%len(r.buf)] = v
}

// Items returns a copy of the entries, oldest first.
func (r *Ring[T]) Items() []T {
	if r == nil {
		return nil
	}
	out := make([]T, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

func (r *Ring[T]) MarshalJSON() ([]byte, error) {
	items := r.Items()
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

// UnmarshalJSON keeps the receiver's capacity when it has one; a zero-value
// ring is sized to the decoded entries.
func (r *Ring[T]) UnmarshalJSON(b []byte) error {
	var items []T
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	capacity := len(r.buf)
	if capacity == 0 {
		capacity = len(items)
	}
	*r = *FromItems(capacity, items)
	return nil
}
