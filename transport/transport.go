// Package transport defines the abstract, non-blocking socket contract the
// network queue consumes. Concrete backends (kernel sockets, a raw NIC
// stack, a shared-memory transport) live outside this core; package
// loopback provides a real Linux implementation used for end-to-end tests.
package transport

import (
	"fmt"

	"github.com/sourmi12k/demikernel/waker"
)

// Descriptor is a transport-opaque socket handle. The network queue is the
// exclusive owner of one Descriptor for its lifetime.
type Descriptor int32

// Invalid is the zero-value-adjacent sentinel for "no descriptor", returned
// alongside an error by operations that produce no descriptor.
const Invalid Descriptor = -1

// Domain names the address family a socket was created for.
type Domain int

const (
	IPv4 Domain = iota
	IPv6
)

// SockType names the socket semantics: Stream (connection-oriented) or
// Datagram (connectionless).
type SockType int

const (
	Stream SockType = iota
	Datagram
)

// Addr is a minimal IP-style address: enough for the loopback transport and
// for callers constructing bind/connect targets, without pulling the full
// net.Addr implementation surface into the core contract.
type Addr struct {
	IP   [4]byte
	Port uint16
}

func (a Addr) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", a.IP[0], a.IP[1], a.IP[2], a.IP[3], a.Port)
}

// Buffer is the minimal buffer contract push/pop operate on: a byte slice.
// Allocation policy beyond this is out of scope for the core.
type Buffer = []byte

// Suspension is the minimal capability a yielding transport call needs from
// the caller's poll context: a waker it can retain and invoke once the
// operation becomes ready. scheduler.Context satisfies this interface,
// without transport needing to import the scheduler package.
type Suspension interface {
	Waker() *waker.Handle
}

// Transport is the abstract collaborator the network queue uses for all
// non-blocking socket I/O. Every method is either synchronous and
// non-yielding (Socket, Bind, Listen, HardClose) or yielding: it either
// completes immediately or returns a Transient error, having arranged for
// suspension's waker to be invoked once the operation can make progress.
type Transport interface {
	// Socket allocates a new descriptor for the given domain/type.
	Socket(domain Domain, typ SockType) (Descriptor, error)
	// Bind assigns a local address to descriptor. Non-yielding.
	Bind(descriptor Descriptor, addr Addr) error
	// Listen marks descriptor eligible for Accept. Non-yielding.
	Listen(descriptor Descriptor, backlog int) error
	// Accept yields until a peer connection is available, then returns a
	// new descriptor and the peer's address.
	Accept(descriptor Descriptor, suspension Suspension) (Descriptor, Addr, error)
	// Connect yields until the connection attempt resolves (success or a
	// Peer-kind failure).
	Connect(descriptor Descriptor, addr Addr, suspension Suspension) error
	// Push yields until buffer can be (partially or fully) written;
	// implementations must fully consume buffer on success, per the
	// contract (buffer is empty on return only on success).
	Push(descriptor Descriptor, buffer *Buffer, addr *Addr, suspension Suspension) error
	// Pop yields until at least one byte is available, filling buffer (up
	// to its capacity) and, for datagram sockets, returning the source
	// address.
	Pop(descriptor Descriptor, buffer *Buffer, suspension Suspension) (*Addr, error)
	// Close yields until a graceful shutdown completes.
	Close(descriptor Descriptor, suspension Suspension) error
	// HardClose synchronously and unconditionally releases descriptor and
	// any resources it owns.
	HardClose(descriptor Descriptor) error
}
