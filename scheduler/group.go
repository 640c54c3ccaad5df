// Package scheduler implements the cooperative task scheduler: a Group
// owns a pinned slab of tasks and a vector of waker pages, assigns
// randomized task ids, and drives ready tasks to completion one tick at a
// time on a single goroutine.
package scheduler

import (
	"context"
	"fmt"
	"math/bits"
	"math/rand/v2"
	"time"

	"github.com/sourmi12k/demikernel/ioqerr"
	"github.com/sourmi12k/demikernel/slab"
	"github.com/sourmi12k/demikernel/waker"
)

type taskSlot struct {
	id     uint64
	task   Task
	page   *waker.Page
	offset uint
	handle *waker.Handle

	resultSet bool
	result    any
}

// Group is the task group / scheduler of the core: it owns the pinned
// slab, the waker pages grown on demand, and the bidirectional id↔slot
// map. Its methods are not safe for concurrent use from multiple
// goroutines simultaneously; the scheduling model is single-threaded by
// design. Only waker Handles may be invoked from other goroutines.
type Group struct {
	slab   slab.Slab[taskSlot]
	pages  []*waker.Page
	ids    map[uint64]int
	rng    *rand.Rand
	logger Logger
}

// New constructs an empty Group.
func New(opts ...Option) *Group {
	o := resolveGroupOptions(opts)
	g := &Group{
		ids:    make(map[uint64]int),
		rng:    o.rng,
		logger: o.logger,
	}
	for i := 0; i < o.initialPages; i++ {
		g.ensurePage(i)
	}
	return g
}

func (g *Group) log(level Level, category string, taskID uint64, message string, err error) {
	if !g.logger.IsEnabled(level) {
		return
	}
	g.logger.Log(Entry{
		Level:     level,
		Category:  category,
		TaskID:    taskID,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	})
}

func (g *Group) ensurePage(pageIdx int) *waker.Page {
	for pageIdx >= len(g.pages) {
		page := &waker.Page{}
		page.Retain() // the Group's own count, held for the page's lifetime
		g.pages = append(g.pages, page)
	}
	return g.pages[pageIdx]
}

// freshID draws a random, non-zero, currently-unused id, retrying on
// collision. Zero is reserved as the "no id" sentinel.
func (g *Group) freshID() uint64 {
	for {
		id := g.rng.Uint64()
		if id == 0 {
			continue
		}
		if _, exists := g.ids[id]; exists {
			continue
		}
		return id
	}
}

// Insert allocates a slab slot for task, ensures a waker page exists for
// it, initializes its waker bits (notified=1 so it is polled at least
// once), assigns a fresh random id, and returns that id.
func (g *Group) Insert(task Task) uint64 {
	idx := g.slab.Insert(taskSlot{})
	pageIdx, offset := idx/waker.W, uint(idx%waker.W)
	page := g.ensurePage(pageIdx)
	page.Initialize(offset)

	id := g.freshID()
	task.SetID(id)

	s, _ := g.slab.Get(idx)
	*s = taskSlot{
		id:     id,
		task:   task,
		page:   page,
		offset: offset,
		handle: page.IntoRawWakerRef(offset),
	}
	g.ids[id] = idx

	g.log(LevelDebug, "insert", id, fmt.Sprintf("task %q inserted at slot %d", task.Name(), idx), nil)
	return id
}

// Remove looks up id's slot, marks it dropped then clears all three waker
// bits in the same call (the spec's baseline cancellation contract; see
// DESIGN.md for why this tree does not extend it to a cross-thread-
// observable dropped signal), and unpins and returns the task. Liveness of
// id itself is tracked by the ids map, not by the waker bits. Reports
// false if id is unknown.
func (g *Group) Remove(id uint64) (Task, bool) {
	idx, ok := g.ids[id]
	if !ok {
		return nil, false
	}
	s, ok := g.slab.Get(idx)
	if !ok {
		delete(g.ids, id)
		return nil, false
	}

	s.page.MarkDropped(s.offset)
	s.page.Clear(s.offset)
	s.handle.Release()

	task := s.task
	delete(g.ids, id)
	g.slab.Remove(idx)

	g.log(LevelDebug, "remove", id, fmt.Sprintf("task %q removed from slot %d", task.Name(), idx), nil)
	return task, true
}

// HasCompleted reads the completed bit for id. The second return value is
// false if id is unknown (the scheduler is infallible at the API surface:
// an unknown id yields an absent-result indication, not an error).
func (g *Group) HasCompleted(id uint64) (completed bool, known bool) {
	idx, ok := g.ids[id]
	if !ok {
		return false, false
	}
	s, ok := g.slab.Get(idx)
	if !ok {
		return false, false
	}
	return s.page.HasCompleted(s.offset), true
}

// GetReadySlots takes-and-clears the notified mask of every page, in page
// index order, and expands the set bits to slot indices in increasing bit
// offset order.
func (g *Group) GetReadySlots() []int {
	var ready []int
	for pageIdx, page := range g.pages {
		mask := page.TakeNotified()
		for mask != 0 {
			bit := bits.TrailingZeros64(mask)
			ready = append(ready, pageIdx*waker.W+bit)
			mask &= mask - 1
		}
	}
	return ready
}

// PollSlot polls the task at slot once, with a Context bound to that
// slot's waker. If the task panics, the panic is contained: it is logged
// and the slot is treated as completed, with a Fatal-kind *ioqerr.Error
// (EIO) as its result. A task that has already completed is not polled
// again; a wake delivered to it is ignored. Returns (wasReady, known).
func (g *Group) PollSlot(slotIdx int) (ready bool, known bool) {
	s, ok := g.slab.Get(slotIdx)
	if !ok || s.task == nil {
		return false, false
	}
	if s.page.HasCompleted(s.offset) {
		return false, true
	}

	ctx := &Context{ctx: context.Background(), waker: s.handle}

	ready, completedNow := g.pollOnce(s, ctx)
	if completedNow {
		s.page.MarkCompleted(s.offset)
	}
	return ready, true
}

func (g *Group) pollOnce(s *taskSlot, ctx *Context) (ready bool, completed bool) {
	defer func() {
		if r := recover(); r != nil {
			g.log(LevelWarn, "poll-panic", s.id, fmt.Sprintf("task %q panicked: %v", s.task.Name(), r), nil)
			s.resultSet = true
			s.result = ioqerr.New(ioqerr.EIO, fmt.Sprintf("task %q panicked: %v", s.task.Name(), r))
			ready = true
			completed = true
		}
	}()

	value, isReady := s.task.Poll(ctx)
	if !isReady {
		return false, false
	}
	s.resultSet = true
	s.result = value
	return true, true
}

// TakeResult extracts the completed result of id exactly once. Subsequent
// calls (or calls before completion) return false.
func (g *Group) TakeResult(id uint64) (any, bool) {
	idx, ok := g.ids[id]
	if !ok {
		return nil, false
	}
	s, ok := g.slab.Get(idx)
	if !ok || !s.resultSet {
		return nil, false
	}
	value := s.result
	s.resultSet = false
	s.result = nil
	return value, true
}

// Tick runs exactly one scheduler tick: poll every currently-ready slot
// once, per the polling discipline. A task that wakes itself synchronously
// during its poll reappears in the next tick, not this one, because
// GetReadySlots already took and cleared the notified mask before polling
// began.
func Tick(g *Group) {
	for _, slotIdx := range g.GetReadySlots() {
		g.PollSlot(slotIdx)
	}
}
