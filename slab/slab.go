// Package slab implements a pinned, segmented slab: a container whose
// occupied slots never change memory address for as long as they remain
// present, even as the container grows.
//
// The segment size matches the scheduler's waker page width so that a slab
// index and a (page, bit) pair describe the same slot under two different
// views of the same index space.
package slab

// SegmentSize is the number of slots per segment. It intentionally matches
// waker.W so slab index i always lands on waker page i/SegmentSize, bit
// i%SegmentSize.
const SegmentSize = 64

// Slab is a generic pinned slab of T. The zero value is ready to use.
//
// Growth only appends new segments to the segments slice; an existing
// segment, once allocated, is never reallocated or copied, which is what
// gives inserted values a stable address for as long as they remain present.
type Slab[T any] struct {
	segments []*[SegmentSize]entry[T]
	free     []int
	len      int
	nextIdx  int
}

type entry[T any] struct {
	value    T
	occupied bool
}

// Insert stores value in the next available slot (reusing a freed slot if
// one exists, otherwise appending) and returns its index.
func (s *Slab[T]) Insert(value T) int {
	if n := len(s.free); n > 0 {
		idx := s.free[n-1]
		s.free = s.free[:n-1]
		seg, off := idx/SegmentSize, idx%SegmentSize
		s.segments[seg][off] = entry[T]{value: value, occupied: true}
		s.len++
		return idx
	}

	idx := s.nextIdx
	s.nextIdx++
	seg, off := idx/SegmentSize, idx%SegmentSize
	for seg >= len(s.segments) {
		s.segments = append(s.segments, new([SegmentSize]entry[T]))
	}
	s.segments[seg][off] = entry[T]{value: value, occupied: true}
	s.len++
	return idx
}

// Contains reports whether index refers to a currently occupied slot.
func (s *Slab[T]) Contains(index int) bool {
	e, ok := s.entryAt(index)
	return ok && e.occupied
}

func (s *Slab[T]) entryAt(index int) (*entry[T], bool) {
	if index < 0 {
		return nil, false
	}
	seg, off := index/SegmentSize, index%SegmentSize
	if seg < 0 || seg >= len(s.segments) {
		return nil, false
	}
	return &s.segments[seg][off], true
}

// Get returns a pointer to the value at index, which remains valid (same
// address) until the slot is removed, regardless of further slab growth.
// Returns nil, false if index is not occupied.
func (s *Slab[T]) Get(index int) (*T, bool) {
	e, ok := s.entryAt(index)
	if !ok || !e.occupied {
		return nil, false
	}
	return &e.value, true
}

// GetPinMut is an alias for Get, named to match the pinned-slab contract's
// get_pin_mut: access without invalidating addresses of other slots.
func (s *Slab[T]) GetPinMut(index int) (*T, bool) {
	return s.Get(index)
}

// Remove clears the slot at index and marks it free for reuse. Reports
// whether a slot was actually occupied.
func (s *Slab[T]) Remove(index int) bool {
	e, ok := s.entryAt(index)
	if !ok || !e.occupied {
		return false
	}
	var zero T
	e.value = zero
	e.occupied = false
	s.len--
	s.free = append(s.free, index)
	return true
}

// RemoveUnpin removes the slot at index and returns its value by move,
// matching the pinned-slab contract's remove_unpin.
func (s *Slab[T]) RemoveUnpin(index int) (T, bool) {
	e, ok := s.entryAt(index)
	if !ok || !e.occupied {
		var zero T
		return zero, false
	}
	value := e.value
	var zero T
	e.value = zero
	e.occupied = false
	s.len--
	s.free = append(s.free, index)
	return value, true
}

// Len returns the number of currently occupied slots.
func (s *Slab[T]) Len() int {
	return s.len
}
