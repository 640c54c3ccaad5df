//go:build linux

// Package loopback provides a real, Linux epoll-backed implementation of
// transport.Transport over loopback (127.0.0.1) stream and datagram
// sockets. It exists to drive the end-to-end scenario tests against a
// real transport, and is usable standalone as a reference backend.
package loopback

import (
	"sync"

	"github.com/sourmi12k/demikernel/ioqerr"
	"github.com/sourmi12k/demikernel/transport"
	"golang.org/x/sys/unix"
)

// Transport implements transport.Transport over real non-blocking POSIX
// sockets, with a background goroutine driving an epoll poller that wakes
// suspended queue coroutines when their descriptor becomes ready.
type Transport struct {
	poller *poller

	mu    sync.Mutex
	fds   map[int]*fdState
	done  chan struct{}
	doneO sync.Once
}

type fdState struct {
	sockType       transport.SockType
	registered     bool
	connectStarted bool
}

var _ transport.Transport = (*Transport)(nil)

// New creates a Transport and starts its background poller goroutine.
func New() (*Transport, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	tr := &Transport{
		poller: p,
		fds:    make(map[int]*fdState),
		done:   make(chan struct{}),
	}
	go tr.pollLoop()
	return tr, nil
}

// Close stops the background poller goroutine and releases the epoll fd.
// It does not close any still-open socket descriptors; callers are
// expected to HardClose every queue before closing the Transport.
func (tr *Transport) Close() error {
	tr.doneO.Do(func() { close(tr.done) })
	return tr.poller.Close()
}

func (tr *Transport) pollLoop() {
	for {
		select {
		case <-tr.done:
			return
		default:
		}
		// 50ms timeout bounds how long Close takes to observe done.
		_, _ = tr.poller.PollIO(50)
	}
}

func (tr *Transport) stateFor(fd int) *fdState {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	st, ok := tr.fds[fd]
	if !ok {
		st = &fdState{}
		tr.fds[fd] = st
	}
	return st
}

// Socket allocates a new non-blocking loopback socket.
func (tr *Transport) Socket(domain transport.Domain, typ transport.SockType) (transport.Descriptor, error) {
	sockType := unix.SOCK_STREAM
	if typ == transport.Datagram {
		sockType = unix.SOCK_DGRAM
	}
	fd, err := unix.Socket(unix.AF_INET, sockType|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return transport.Invalid, ioqerr.Wrap(ioqerr.EBADF, "socket", err)
	}

	tr.mu.Lock()
	tr.fds[fd] = &fdState{sockType: typ}
	tr.mu.Unlock()

	return transport.Descriptor(fd), nil
}

func toSockaddr(addr transport.Addr) *unix.SockaddrInet4 {
	sa := &unix.SockaddrInet4{Port: int(addr.Port)}
	copy(sa.Addr[:], addr.IP[:])
	return sa
}

func fromSockaddr(sa unix.Sockaddr) transport.Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		var a transport.Addr
		a.IP = v.Addr
		a.Port = uint16(v.Port)
		return a
	default:
		return transport.Addr{}
	}
}

// Bind assigns addr to descriptor. Non-yielding.
func (tr *Transport) Bind(descriptor transport.Descriptor, addr transport.Addr) error {
	if err := unix.Bind(int(descriptor), toSockaddr(addr)); err != nil {
		return ioqerr.Wrap(ioqerr.EINVAL, "bind", err)
	}
	return nil
}

// Listen marks descriptor eligible for Accept. Non-yielding.
func (tr *Transport) Listen(descriptor transport.Descriptor, backlog int) error {
	if err := unix.Listen(int(descriptor), backlog); err != nil {
		return ioqerr.Wrap(ioqerr.EINVAL, "listen", err)
	}
	return nil
}

// Accept yields (via EAGAIN) until a peer connection is available.
func (tr *Transport) Accept(descriptor transport.Descriptor, suspension transport.Suspension) (transport.Descriptor, transport.Addr, error) {
	fd := int(descriptor)
	newFd, sa, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err == nil {
		tr.mu.Lock()
		tr.fds[newFd] = &fdState{sockType: transport.Stream}
		tr.mu.Unlock()
		return transport.Descriptor(newFd), fromSockaddr(sa), nil
	}
	if err == unix.EAGAIN {
		tr.ensureRegistered(fd, InterestRead, suspension)
		return transport.Invalid, transport.Addr{}, ioqerr.New(ioqerr.EAGAIN, "accept: no pending connection")
	}
	return transport.Invalid, transport.Addr{}, ioqerr.Wrap(ioqerr.EIO, "accept", err)
}

// Connect yields until the connection attempt resolves.
func (tr *Transport) Connect(descriptor transport.Descriptor, addr transport.Addr, suspension transport.Suspension) error {
	fd := int(descriptor)
	st := tr.stateFor(fd)

	if !st.connectStarted {
		err := unix.Connect(fd, toSockaddr(addr))
		if err == nil {
			return nil
		}
		if err == unix.EINPROGRESS {
			st.connectStarted = true
			tr.ensureRegistered(fd, InterestWrite, suspension)
			return ioqerr.New(ioqerr.EAGAIN, "connect in progress")
		}
		if err == unix.ECONNREFUSED {
			return ioqerr.New(ioqerr.ECONNREFUSED, "connection refused")
		}
		return ioqerr.Wrap(ioqerr.EIO, "connect", err)
	}

	errno, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if gerr != nil {
		return ioqerr.Wrap(ioqerr.EIO, "getsockopt(SO_ERROR)", gerr)
	}
	switch errno {
	case 0:
		tr.unregister(fd)
		return nil
	case int(unix.ECONNREFUSED):
		tr.unregister(fd)
		return ioqerr.New(ioqerr.ECONNREFUSED, "connection refused")
	case int(unix.EINPROGRESS):
		return ioqerr.New(ioqerr.EAGAIN, "connect in progress")
	default:
		tr.unregister(fd)
		return ioqerr.Wrap(ioqerr.EIO, "connect", unix.Errno(errno))
	}
}

// Push yields until buffer can be written; on success buffer is emptied.
func (tr *Transport) Push(descriptor transport.Descriptor, buffer *transport.Buffer, addr *transport.Addr, suspension transport.Suspension) error {
	fd := int(descriptor)
	buf := *buffer
	if len(buf) == 0 {
		return nil
	}

	var n int
	var err error
	if addr != nil {
		err = unix.Sendto(fd, buf, 0, toSockaddr(*addr))
		if err == nil {
			n = len(buf)
		}
	} else {
		n, err = unix.Write(fd, buf)
	}

	if err != nil {
		if err == unix.EAGAIN {
			tr.ensureRegistered(fd, InterestWrite, suspension)
			return ioqerr.New(ioqerr.EAGAIN, "push: would block")
		}
		if err == unix.ECONNRESET || err == unix.EPIPE {
			return ioqerr.New(ioqerr.ECONNRESET, "push: connection reset")
		}
		return ioqerr.Wrap(ioqerr.EIO, "push", err)
	}

	*buffer = buf[n:]
	if len(*buffer) != 0 {
		// Partial write: remain pending so the caller's next poll retries
		// the remainder.
		tr.ensureRegistered(fd, InterestWrite, suspension)
		return ioqerr.New(ioqerr.EAGAIN, "push: partial write")
	}
	tr.unregister(fd)
	return nil
}

// Pop yields until at least one byte is available.
func (tr *Transport) Pop(descriptor transport.Descriptor, buffer *transport.Buffer, suspension transport.Suspension) (*transport.Addr, error) {
	fd := int(descriptor)
	buf := *buffer

	st := tr.stateFor(fd)
	if st.sockType == transport.Datagram {
		n, from, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			if err == unix.EAGAIN {
				tr.ensureRegistered(fd, InterestRead, suspension)
				return nil, ioqerr.New(ioqerr.EAGAIN, "pop: no data")
			}
			return nil, ioqerr.Wrap(ioqerr.EIO, "pop", err)
		}
		tr.unregister(fd)
		*buffer = buf[:n]
		addr := fromSockaddr(from)
		return &addr, nil
	}

	n, err := unix.Read(fd, buf)
	if err != nil {
		if err == unix.EAGAIN {
			tr.ensureRegistered(fd, InterestRead, suspension)
			return nil, ioqerr.New(ioqerr.EAGAIN, "pop: no data")
		}
		if err == unix.ECONNRESET {
			return nil, ioqerr.New(ioqerr.ECONNRESET, "pop: connection reset")
		}
		return nil, ioqerr.Wrap(ioqerr.EIO, "pop", err)
	}
	if n == 0 {
		return nil, ioqerr.New(ioqerr.ECONNRESET, "pop: peer closed")
	}
	tr.unregister(fd)
	*buffer = buf[:n]
	return nil, nil
}

// Close yields until shutdown completes (loopback sockets shut down
// immediately, so this never actually suspends).
func (tr *Transport) Close(descriptor transport.Descriptor, suspension transport.Suspension) error {
	_ = unix.Shutdown(int(descriptor), unix.SHUT_RDWR)
	return nil
}

// HardClose synchronously releases descriptor.
func (tr *Transport) HardClose(descriptor transport.Descriptor) error {
	fd := int(descriptor)
	tr.unregister(fd)
	tr.mu.Lock()
	delete(tr.fds, fd)
	tr.mu.Unlock()
	if err := unix.Close(fd); err != nil {
		return ioqerr.Wrap(ioqerr.EBADF, "hard_close", err)
	}
	return nil
}

func (tr *Transport) ensureRegistered(fd int, interest Interest, suspension transport.Suspension) {
	st := tr.stateFor(fd)
	tr.mu.Lock()
	alreadyRegistered := st.registered
	st.registered = true
	tr.mu.Unlock()

	// Re-register rather than only re-arm, so the wake callback belongs to
	// the suspension of this call, not to an earlier task on the same fd.
	if alreadyRegistered {
		_ = tr.poller.UnregisterFD(fd)
	}
	_ = tr.poller.RegisterFD(fd, interest, suspension.Waker().Wake)
}

func (tr *Transport) unregister(fd int) {
	st := tr.stateFor(fd)
	tr.mu.Lock()
	wasRegistered := st.registered
	st.registered = false
	tr.mu.Unlock()
	if wasRegistered {
		_ = tr.poller.UnregisterFD(fd)
	}
}
