package waker

import "sync/atomic"

// Handle is an opaque, clonable, thread-safe wake token bound to one slot of
// one page. Invoking it sets the slot's notified bit; dropping it (Release)
// decrements the page's refcount. Handles are the only thing a Transport
// implementation needs to hold onto in order to wake a suspended task from
// an arbitrary goroutine.
type Handle struct {
	page     *Page
	offset   uint
	released atomic.Bool
}

// Wake sets the notified bit for this handle's slot. Safe to call from any
// goroutine, any number of times, including after the owning task has
// completed (in which case the wake is simply ignored on the next tick).
func (h *Handle) Wake() {
	h.page.Wake(h.offset)
}

// Clone returns a new Handle referencing the same slot, incrementing the
// page's refcount. Equivalent to the design notes' "waker clone" operation.
func (h *Handle) Clone() *Handle {
	h.page.Retain()
	return &Handle{page: h.page, offset: h.offset}
}

// Release decrements the page's refcount. Idempotent: releasing the same
// Handle twice only decrements once.
func (h *Handle) Release() {
	if h.released.CompareAndSwap(false, true) {
		h.page.Release()
	}
}
