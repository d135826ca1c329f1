// Package buffer provides a fixed-capacity ring that keeps the newest items.
// Ring is not safe for concurrent use; callers hold their own lock.
package buffer

type Ring[T any] struct {
	entries []T
	start   int
	count   int
}

func NewRing[T any](size int) *Ring[T] {
	if size <= 0 {
		size = 1
	}
	return &Ring[T]{
		entries: make([]T, size),
	}
}

// Add appends entry, overwriting the oldest item once the ring is full.
func (r *Ring[T]) Add(entry T) {
	if r == nil || len(r.entries) == 0 {
		return
	}

	if r.count < len(r.entries) {
		r.entries[(r.start+r.count)%len(r.entries)] = entry
		r.count++
		return
	}

	r.entries[r.start] = entry
	r.start = (r.start + 1) % len(r.entries)
}

func (r *Ring[T]) Len() int {
	if r == nil {
		return 0
	}
	return r.count
}

func (r *Ring[T]) Cap() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// List returns a copy of the items, oldest first.
func (r *Ring[T]) List() []T {
	if r == nil || r.count == 0 {
		return nil
	}
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.at(i)
	}
	return out
}

// Tail returns up to limit of the newest items accepted by keep, oldest
// first. A limit of zero or less means no limit; a nil keep accepts all.
func (r *Ring[T]) Tail(limit int, keep func(T) bool) []T {
	if r == nil || r.count == 0 {
		return nil
	}
	var reversed []T
	for i := r.count - 1; i >= 0; i-- {
		item := r.at(i)
		if keep != nil && !keep(item) {
			continue
		}
		reversed = append(reversed, item)
		if limit > 0 && len(reversed) == limit {
			break
		}
	}
	out := make([]T, len(reversed))
	for i, item := range reversed {
		out[len(reversed)-1-i] = item
	}
	return out
}

func (r *Ring[T]) at(offset int) T {
	return r.entries[(r.start+offset)%len(r.entries)]
}
