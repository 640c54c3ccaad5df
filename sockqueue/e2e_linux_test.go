//go:build linux

package sockqueue_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sourmi12k/demikernel/internal/waitutil"
	"github.com/sourmi12k/demikernel/ioqerr"
	"github.com/sourmi12k/demikernel/loopback"
	"github.com/sourmi12k/demikernel/scheduler"
	"github.com/sourmi12k/demikernel/sockqueue"
	"github.com/sourmi12k/demikernel/transport"
	"github.com/stretchr/testify/require"
)

// closedPort finds a TCP port on 127.0.0.1 that nothing is listening on,
// by briefly binding then releasing it.
func closedPort(t *testing.T) uint16 {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(l.Addr().(*net.TCPAddr).Port)
	require.NoError(t, l.Close())
	return port
}

func loopbackAddr(port uint16) transport.Addr {
	return transport.Addr{IP: [4]byte{127, 0, 0, 1}, Port: port}
}

func errnoOf(t *testing.T, err error) ioqerr.Errno {
	t.Helper()
	ioErr, ok := err.(*ioqerr.Error)
	require.True(t, ok, "expected *ioqerr.Error, got %T: %v", err, err)
	return ioErr.Errno
}

func newHarness(t *testing.T) (*scheduler.Group, *loopback.Transport) {
	t.Helper()
	tr, err := loopback.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return scheduler.New(), tr
}

// S1: connect on an invalid/closed queue fails with EBADF.
func TestE2E_S1_ConnectInvalidQueue(t *testing.T) {
	group, tr := newHarness(t)
	q, err := sockqueue.New(sockqueue.Stream, tr, group)
	require.NoError(t, err)
	require.NoError(t, q.HardClose())

	_, err = q.Connect(loopbackAddr(closedPort(t)))
	require.Error(t, err)
	require.Equal(t, ioqerr.EBADF, errnoOf(t, err))
}

// S2: connect on a freshly unbound queue, waited with an already-expired
// deadline, reports ETIMEDOUT; the queue can still be closed afterward.
func TestE2E_S2_ConnectUnboundTimesOut(t *testing.T) {
	group, tr := newHarness(t)
	q, err := sockqueue.New(sockqueue.Stream, tr, group)
	require.NoError(t, err)

	id, err := q.Connect(loopbackAddr(closedPort(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_, err = waitutil.Wait(ctx, group, id, nil)
	require.Error(t, err)
	require.Equal(t, ioqerr.ETIMEDOUT, errnoOf(t, err))

	require.NoError(t, q.HardClose())
}

// S3: connect to an address nothing listens on eventually reports
// ECONNREFUSED.
func TestE2E_S3_ConnectBadRemoteRefused(t *testing.T) {
	group, tr := newHarness(t)
	q, err := sockqueue.New(sockqueue.Stream, tr, group)
	require.NoError(t, err)

	id, err := q.Connect(loopbackAddr(closedPort(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := waitutil.Wait(ctx, group, id, nil)
	require.NoError(t, err)
	connectResult := result.(sockqueue.ConnectResult)
	require.Error(t, connectResult.Err)
	require.Equal(t, ioqerr.ECONNREFUSED, errnoOf(t, connectResult.Err))

	require.NoError(t, q.HardClose())
}

// S4: connect on a listening queue fails synchronously with EOPNOTSUPP.
func TestE2E_S4_ConnectOnListeningQueue(t *testing.T) {
	group, tr := newHarness(t)
	q, err := sockqueue.New(sockqueue.Stream, tr, group)
	require.NoError(t, err)

	require.NoError(t, q.Bind(loopbackAddr(0)))
	require.NoError(t, q.Listen(16))

	_, err = q.Connect(loopbackAddr(closedPort(t)))
	require.Error(t, err)
	require.Equal(t, ioqerr.EOPNOTSUPP, errnoOf(t, err))

	require.NoError(t, q.HardClose())
}

// S5: a second connect while the first is still in flight fails with
// EINPROGRESS.
func TestE2E_S5_ConnectWhileConnecting(t *testing.T) {
	group, tr := newHarness(t)
	q, err := sockqueue.New(sockqueue.Stream, tr, group)
	require.NoError(t, err)

	firstID, err := q.Connect(loopbackAddr(closedPort(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_, _ = waitutil.Wait(ctx, group, firstID, nil) // expect ETIMEDOUT, already covered by S2

	_, err = q.Connect(loopbackAddr(closedPort(t)))
	require.Error(t, err)
	require.Equal(t, ioqerr.EINPROGRESS, errnoOf(t, err))

	require.NoError(t, q.HardClose())
}

// S6: connect on a listening (accepting) queue fails with EOPNOTSUPP.
func TestE2E_S6_ConnectWhileAccepting(t *testing.T) {
	group, tr := newHarness(t)
	q, err := sockqueue.New(sockqueue.Stream, tr, group)
	require.NoError(t, err)

	require.NoError(t, q.Bind(loopbackAddr(0)))
	require.NoError(t, q.Listen(16))
	_, err = q.Accept()
	require.NoError(t, err)

	scheduler.Tick(group)

	_, err = q.Connect(loopbackAddr(closedPort(t)))
	require.Error(t, err)
	require.Equal(t, ioqerr.EOPNOTSUPP, errnoOf(t, err))

	require.NoError(t, q.HardClose())
}

// S7: connect on a gracefully closed queue fails with EBADF.
func TestE2E_S7_ConnectAfterClose(t *testing.T) {
	group, tr := newHarness(t)
	q, err := sockqueue.New(sockqueue.Stream, tr, group)
	require.NoError(t, err)

	closeID, err := q.Close()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = waitutil.Wait(ctx, group, closeID, nil)
	require.NoError(t, err)
	require.Equal(t, sockqueue.Closed, q.State())

	_, err = q.Connect(loopbackAddr(closedPort(t)))
	require.Error(t, err)
	require.Equal(t, ioqerr.EBADF, errnoOf(t, err))
}
