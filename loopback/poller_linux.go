//go:build linux

package loopback

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	ErrFDAlreadyRegistered = errors.New("loopback: fd already registered")
	ErrFDNotRegistered     = errors.New("loopback: fd not registered")
	ErrPollerClosed        = errors.New("loopback: poller closed")
)

// Interest names the one readiness condition a registration waits for.
// transport_linux.go never needs to wait on both directions for the same
// fd at once (a connect waits on write, an accept or read waits on read),
// so unlike a general-purpose poller this has no bitmask of conditions to
// combine.
type Interest int

const (
	InterestRead Interest = iota
	InterestWrite
)

func (i Interest) epollMask() uint32 {
	if i == InterestWrite {
		return unix.EPOLLOUT | unix.EPOLLONESHOT
	}
	return unix.EPOLLIN | unix.EPOLLONESHOT
}

// wakeFunc is invoked, inline on the poller's goroutine, the first time a
// registered fd satisfies its Interest. Callers re-arm (via RegisterFD or
// ModifyFD) if they need to wait again; the poller does not auto-repeat.
type wakeFunc func()

type registration struct {
	interest Interest
	wake     wakeFunc
}

// poller is a single epoll instance dedicated to waking suspended queue
// coroutines. It is driven by exactly one goroutine calling PollIO in a
// loop (Transport.pollLoop); RegisterFD/ModifyFD/UnregisterFD are called
// from whichever goroutine is driving a queue operation and only ever
// touch the registration map under mu, so there is no hot concurrent path
// here to justify cache-line padding or lock-free bookkeeping the way the
// host event loop's own poller needs for its run-thread-vs-many-wakers
// contention.
type poller struct {
	epfd int

	mu     sync.Mutex
	regs   map[int]*registration
	closed bool

	eventBuf [64]unix.EpollEvent
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &poller{epfd: epfd, regs: make(map[int]*registration)}, nil
}

func (p *poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.epfd)
}

// RegisterFD arms fd for interest, invoking wake once it is satisfied.
func (p *poller) RegisterFD(fd int, interest Interest, wake wakeFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPollerClosed
	}
	if _, ok := p.regs[fd]; ok {
		return ErrFDAlreadyRegistered
	}

	ev := &unix.EpollEvent{Events: interest.epollMask(), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return err
	}
	p.regs[fd] = &registration{interest: interest, wake: wake}
	return nil
}

// ModifyFD re-arms an already-registered fd for a (possibly different)
// interest.
func (p *poller) ModifyFD(fd int, interest Interest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	reg, ok := p.regs[fd]
	if !ok {
		return ErrFDNotRegistered
	}

	ev := &unix.EpollEvent{Events: interest.epollMask(), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return err
	}
	reg.interest = interest
	return nil
}

func (p *poller) UnregisterFD(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.regs[fd]; !ok {
		return ErrFDNotRegistered
	}
	delete(p.regs, fd)
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// PollIO waits up to timeoutMs for readiness and fires wake callbacks
// inline for every fd that fired, regardless of which of EPOLLIN/EPOLLOUT/
// EPOLLERR/EPOLLHUP was actually reported: the caller re-issues its
// syscall on wake and discovers the real outcome (success, EAGAIN again,
// or an error) from that, so the poller itself never needs to interpret
// the condition beyond "something happened."
func (p *poller) PollIO(timeoutMs int) (int, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, ErrPollerClosed
	}

	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		p.mu.Lock()
		reg := p.regs[fd]
		p.mu.Unlock()
		if reg != nil && reg.wake != nil {
			reg.wake()
		}
	}
	return n, nil
}
