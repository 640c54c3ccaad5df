package sockqueue

import (
	"testing"

	"github.com/sourmi12k/demikernel/ioqerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_IllegalOpFailsAndLeavesStateUnchanged(t *testing.T) {
	var sm StateMachine // Unbound

	err := sm.Prepare(OpListen)
	require.Error(t, err)

	ioErr, ok := err.(*ioqerr.Error)
	require.True(t, ok)
	assert.Equal(t, ioqerr.PreconditionViolation, ioErr.Kind)
	assert.Equal(t, Unbound, sm.Current())
}

func TestStateMachine_PrepareAbortIsNoOp(t *testing.T) {
	var sm StateMachine
	require.NoError(t, sm.Prepare(OpBind))
	sm.Abort()
	assert.Equal(t, Unbound, sm.Current())

	// Prepare should be usable again immediately after an abort.
	require.NoError(t, sm.Prepare(OpBind))
	sm.Commit()
	assert.Equal(t, Bound, sm.Current())
}

func TestStateMachine_PrepareCommitReachesCanonicalState(t *testing.T) {
	var sm StateMachine

	require.NoError(t, sm.Prepare(OpBind))
	sm.Commit()
	assert.Equal(t, Bound, sm.Current())

	require.NoError(t, sm.Prepare(OpListen))
	sm.Commit()
	assert.Equal(t, Listening, sm.Current())
}

func TestStateMachine_SelfLoopOpsDoNotChangeState(t *testing.T) {
	var sm StateMachine
	require.NoError(t, sm.Prepare(OpBind))
	sm.Commit()
	require.NoError(t, sm.Prepare(OpListen))
	sm.Commit()
	require.Equal(t, Listening, sm.Current())

	require.NoError(t, sm.Prepare(OpAccept))
	sm.Commit()
	assert.Equal(t, Listening, sm.Current())
}

func TestStateMachine_ConnectFromListeningIsOpNotSupp(t *testing.T) {
	var sm StateMachine
	require.NoError(t, sm.Prepare(OpBind))
	sm.Commit()
	require.NoError(t, sm.Prepare(OpListen))
	sm.Commit()

	err := sm.Prepare(OpConnect)
	require.Error(t, err)
	ioErr := err.(*ioqerr.Error)
	assert.Equal(t, ioqerr.EOPNOTSUPP, ioErr.Errno)
}

func TestStateMachine_ConnectWhileConnectingIsInProgress(t *testing.T) {
	var sm StateMachine
	require.NoError(t, sm.Prepare(OpConnect))
	sm.Commit()
	require.Equal(t, Connecting, sm.Current())

	err := sm.Prepare(OpConnect)
	require.Error(t, err)
	ioErr := err.(*ioqerr.Error)
	assert.Equal(t, ioqerr.EINPROGRESS, ioErr.Errno)
}

func TestStateMachine_OpOnClosedIsBadFD(t *testing.T) {
	var sm StateMachine
	require.NoError(t, sm.Prepare(OpClose))
	sm.Commit()
	require.NoError(t, sm.Prepare(OpClosed))
	sm.Commit()
	require.Equal(t, Closed, sm.Current())

	err := sm.Prepare(OpConnect)
	require.Error(t, err)
	ioErr := err.(*ioqerr.Error)
	assert.Equal(t, ioqerr.EBADF, ioErr.Errno)
}

func TestStateMachine_MayPredicates(t *testing.T) {
	var sm StateMachine
	assert.False(t, sm.MayAccept())
	assert.False(t, sm.MayConnect())

	require.NoError(t, sm.Prepare(OpConnect))
	sm.Commit()
	assert.True(t, sm.MayConnect())

	sm2 := StateMachine{}
	require.NoError(t, sm2.Prepare(OpBind))
	sm2.Commit()
	require.NoError(t, sm2.Prepare(OpListen))
	sm2.Commit()
	assert.True(t, sm2.MayAccept())
	assert.False(t, sm2.MayPush())
}
