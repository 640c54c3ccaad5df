package scheduler

import (
	"context"

	"github.com/sourmi12k/demikernel/waker"
)

// Context is passed to a Task's Poll method. It carries the waker that, if
// invoked, causes the scheduler to re-poll this task, plus a standard
// context.Context for deadline/cancellation propagation into blocking
// transport calls (idiomatic Go ambient, not named in the distilled spec).
type Context struct {
	ctx   context.Context
	waker *waker.Handle
}

// Waker returns the handle bound to this poll. Transport implementations
// that cannot complete synchronously should retain (Clone) this handle and
// invoke Wake once the underlying resource becomes ready.
func (c *Context) Waker() *waker.Handle {
	return c.waker
}

// Context returns the standard library context associated with this poll,
// for deadline-aware transport calls.
func (c *Context) Context() context.Context {
	return c.ctx
}

// WithContext returns a shallow copy of c carrying a different
// context.Context, for tasks that wrap a caller-supplied deadline.
func (c *Context) WithContext(ctx context.Context) *Context {
	cp := *c
	cp.ctx = ctx
	return &cp
}
