// Package waker implements bit-packed, word-sized wake notification pages.
//
// A Page packs per-slot notified/completed/dropped bits into three atomic
// bitmasks of fixed width W. Pages are the lowest layer of the scheduler:
// they let the scheduler discover which of up to W tasks want polling with
// a single atomic read, and let external threads (a kernel completion
// thread, a timer goroutine) wake a task without touching scheduler state.
package waker

import "sync/atomic"

// W is the fixed page width: the number of slots packed into one page.
// It is a compile-time constant so that (page, bit) arithmetic stays
// shift/mask based throughout the scheduler.
const W = 64

// Page holds three independent atomic bitmasks over its W slots: notified,
// completed and dropped. A slot is valid only once one of the three bits
// has been set for it since the page's last full clear.
//
// All operations are safe for concurrent use from multiple goroutines;
// that is the entire point of a waker page, since wake is typically invoked
// from a thread unrelated to the scheduler's.
type Page struct {
	_         [64]byte
	notified  atomic.Uint64
	_         [56]byte
	completed atomic.Uint64
	_         [56]byte
	dropped   atomic.Uint64
	_         [56]byte
	refcount  atomic.Int64
}

// Initialize clears all three bits at offset, then sets the notified bit.
// A freshly inserted task must be eligible for its first poll without
// anyone explicitly waking it.
func (p *Page) Initialize(offset uint) {
	bit := uint64(1) << offset
	clearBit(&p.completed, bit)
	clearBit(&p.dropped, bit)
	setBit(&p.notified, bit)
}

// Wake sets the notified bit for offset.
func (p *Page) Wake(offset uint) {
	setBit(&p.notified, uint64(1)<<offset)
}

// TakeNotified atomically reads and zeroes the notified mask, returning the
// prior value. The returned mask identifies which slots should be polled.
func (p *Page) TakeNotified() uint64 {
	return p.notified.Swap(0)
}

// TakeDropped atomically reads and zeroes the dropped mask, returning the
// prior value.
func (p *Page) TakeDropped() uint64 {
	return p.dropped.Swap(0)
}

// MarkCompleted sets the completed bit and clears the notified bit for
// offset.
func (p *Page) MarkCompleted(offset uint) {
	bit := uint64(1) << offset
	setBit(&p.completed, bit)
	clearBit(&p.notified, bit)
}

// MarkDropped sets the dropped bit for offset, marking the slot as
// cancelled externally rather than completed. scheduler.Group.Remove clears
// the bit again in the same call, so it is not observable after Remove
// returns.
func (p *Page) MarkDropped(offset uint) {
	setBit(&p.dropped, uint64(1)<<offset)
}

// Clear clears all three bits for offset.
func (p *Page) Clear(offset uint) {
	bit := uint64(1) << offset
	clearBit(&p.notified, bit)
	clearBit(&p.completed, bit)
	clearBit(&p.dropped, bit)
}

// HasCompleted reads the completed bit for offset.
func (p *Page) HasCompleted(offset uint) bool {
	return p.completed.Load()&(uint64(1)<<offset) != 0
}

// HasDropped reads the dropped bit for offset.
func (p *Page) HasDropped(offset uint) bool {
	return p.dropped.Load()&(uint64(1)<<offset) != 0
}

// Retain increments the page's external refcount. The scheduler holds one
// implicit count for as long as the page exists in its page vector; every
// outstanding Handle holds one more.
func (p *Page) Retain() {
	p.refcount.Add(1)
}

// Release decrements the page's external refcount and reports whether it
// reached zero. The scheduler never frees pages on its own (they are
// addressed by index and reused), so a zero return is informational only;
// it matters for implementations that additionally want to free a fully
// drained tail of the page vector.
func (p *Page) Release() bool {
	return p.refcount.Add(-1) == 0
}

// IntoRawWakerRef produces an opaque, reference-counted Handle that, when
// invoked from any thread, calls Wake(offset) on this page.
func (p *Page) IntoRawWakerRef(offset uint) *Handle {
	p.Retain()
	return &Handle{page: p, offset: offset}
}

func setBit(mask *atomic.Uint64, bit uint64) {
	for {
		old := mask.Load()
		if old&bit != 0 {
			return
		}
		if mask.CompareAndSwap(old, old|bit) {
			return
		}
	}
}

func clearBit(mask *atomic.Uint64, bit uint64) {
	for {
		old := mask.Load()
		if old&bit == 0 {
			return
		}
		if mask.CompareAndSwap(old, old&^bit) {
			return
		}
	}
}
