package sockqueue

import (
	"github.com/sourmi12k/demikernel/ioqerr"
	"github.com/sourmi12k/demikernel/scheduler"
	"github.com/sourmi12k/demikernel/transport"
)

// AcceptResult is the value produced by an Accept coroutine on completion.
type AcceptResult struct {
	Queue *Queue
	Err   error
}

type acceptTask struct {
	scheduler.Base
	queue *Queue
}

// Poll is the accept_body coroutine: re-check MayAccept, call
// transport.Accept (which may suspend), and on success construct a new
// queue in the Connected state with the returned peer address.
func (t *acceptTask) Poll(ctx *scheduler.Context) (any, bool) {
	if !t.queue.sm.MayAccept() {
		return AcceptResult{Err: ioqerr.New(ioqerr.EBADF, "queue is no longer listening")}, true
	}

	newFd, peer, err := t.queue.tr.Accept(t.queue.descriptor, ctx)
	if err != nil {
		if isTransient(err) {
			return nil, false
		}
		return AcceptResult{Err: err}, true
	}

	peerAddr := peer
	newQueue := &Queue{
		typ:        t.queue.typ,
		descriptor: newFd,
		tr:         t.queue.tr,
		group:      t.queue.group,
		remote:     &peerAddr,
	}
	newQueue.sm = StateMachine{current: Connected}
	return AcceptResult{Queue: newQueue}, true
}

// ConnectResult is the value produced by a Connect coroutine on completion.
type ConnectResult struct {
	Err error
}

type connectTask struct {
	scheduler.Base
	queue  *Queue
	remote transport.Addr
}

// Poll is the connect_body coroutine: re-check MayConnect, call
// transport.Connect, and on success prepare Established then commit and
// record remote; on failure prepare Closed then commit.
func (t *connectTask) Poll(ctx *scheduler.Context) (any, bool) {
	if !t.queue.sm.MayConnect() {
		return ConnectResult{Err: ioqerr.New(ioqerr.EOPNOTSUPP, "queue is no longer eligible to connect")}, true
	}

	err := t.queue.tr.Connect(t.queue.descriptor, t.remote, ctx)
	if err != nil {
		if isTransient(err) {
			return nil, false
		}
		if perr := t.queue.sm.Prepare(OpClosed); perr == nil {
			t.queue.sm.Commit()
		}
		return ConnectResult{Err: err}, true
	}

	if perr := t.queue.sm.Prepare(OpEstablished); perr == nil {
		t.queue.sm.Commit()
	}
	remote := t.remote
	t.queue.remote = &remote
	return ConnectResult{}, true
}

// PushResult is the value produced by a Push coroutine on completion.
type PushResult struct {
	Err error
}

type pushTask struct {
	scheduler.Base
	queue  *Queue
	buffer transport.Buffer
	addr   *transport.Addr
}

// Poll is the push_body coroutine: re-check MayPush, call transport.Push;
// on success the buffer is fully consumed (length-zero on return).
func (t *pushTask) Poll(ctx *scheduler.Context) (any, bool) {
	if !t.queue.sm.MayPush() {
		return PushResult{Err: ioqerr.New(ioqerr.EBADF, "queue is no longer connected")}, true
	}

	err := t.queue.tr.Push(t.queue.descriptor, &t.buffer, t.addr, ctx)
	if err != nil {
		if isTransient(err) {
			return nil, false
		}
		return PushResult{Err: err}, true
	}
	return PushResult{}, true
}

// PopResult is the value produced by a Pop coroutine on completion.
type PopResult struct {
	Addr   *transport.Addr
	Buffer transport.Buffer
	Err    error
}

type popTask struct {
	scheduler.Base
	queue   *Queue
	maxSize int
	buffer  transport.Buffer
}

// Poll is the pop_body coroutine: re-check MayPop, allocate a buffer of
// maxSize (lazily, on first poll), and call transport.Pop.
func (t *popTask) Poll(ctx *scheduler.Context) (any, bool) {
	if !t.queue.sm.MayPop() {
		return PopResult{Err: ioqerr.New(ioqerr.EBADF, "queue is no longer connected")}, true
	}
	if t.buffer == nil {
		size := t.maxSize
		if size <= 0 {
			size = defaultPopBufferSize
		}
		t.buffer = make(transport.Buffer, size)
	}

	addr, err := t.queue.tr.Pop(t.queue.descriptor, &t.buffer, ctx)
	if err != nil {
		if isTransient(err) {
			return nil, false
		}
		return PopResult{Err: err}, true
	}
	return PopResult{Addr: addr, Buffer: t.buffer}, true
}

// defaultPopBufferSize is the implementation-defined default cap named by
// pop_body when the caller passes a non-positive maxSize.
const defaultPopBufferSize = 4096

// CloseResult is the value produced by a Close coroutine on completion.
type CloseResult struct {
	Err error
}

type closeTask struct {
	scheduler.Base
	queue *Queue
}

// Poll is the close_body coroutine: call transport.Close; on success
// prepare Closed and commit.
func (t *closeTask) Poll(ctx *scheduler.Context) (any, bool) {
	err := t.queue.tr.Close(t.queue.descriptor, ctx)
	if err != nil {
		if isTransient(err) {
			return nil, false
		}
		return CloseResult{Err: err}, true
	}
	if perr := t.queue.sm.Prepare(OpClosed); perr == nil {
		t.queue.sm.Commit()
	}
	return CloseResult{}, true
}
