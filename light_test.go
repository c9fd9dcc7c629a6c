package sage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLightExecutiveFiresInTriKeyOrder(t *testing.T) {
	l := NewLightExecutive()
	var order []int
	l.RequestEvent(func(*EventContext) { order = append(order, 1) }, 5, nil, false)
	l.RequestEvent(func(*EventContext) { order = append(order, 2) }, 1, nil, false)
	l.RequestEvent(func(*EventContext) { order = append(order, 3) }, 5, nil, false)

	require.NoError(t, l.Start(context.Background()))
	require.Equal(t, []int{2, 1, 3}, order)
	require.Equal(t, Tick(5), l.Now())
	require.Equal(t, StateFinished, l.State())
}

func TestLightExecutiveUnRequestEvent(t *testing.T) {
	l := NewLightExecutive()
	fired := false
	key := l.RequestEvent(func(*EventContext) { fired = true }, 1, nil, false)
	require.True(t, l.UnRequestEvent(key))
	require.False(t, l.UnRequestEvent(key))

	require.NoError(t, l.Start(context.Background()))
	require.False(t, fired)
}

func TestLightExecutiveDaemonOnlyEndsRun(t *testing.T) {
	l := NewLightExecutive()
	ran := false
	l.RequestEvent(func(*EventContext) { ran = true }, 100, nil, true)

	require.NoError(t, l.Start(context.Background()))
	require.False(t, ran)
	require.Equal(t, Tick(0), l.Now())
}

func TestLightExecutivePropagatesPanicAsRuntimeError(t *testing.T) {
	l := NewLightExecutive()
	l.RequestEvent(func(*EventContext) { panic("boom") }, 1, nil, false)

	err := l.Start(context.Background())
	require.Error(t, err)
	var rerr *ExecutiveRuntimeError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, "boom", rerr.Value)
}

func TestLightExecutiveResetAllowsRestart(t *testing.T) {
	l := NewLightExecutive()
	l.RequestEvent(func(*EventContext) {}, 1, nil, false)
	require.NoError(t, l.Start(context.Background()))
	require.NoError(t, l.Reset())
	require.Equal(t, StateStopped, l.State())
	require.Equal(t, Tick(0), l.Now())

	fired := false
	l.RequestEvent(func(*EventContext) { fired = true }, 1, nil, false)
	require.NoError(t, l.Start(context.Background()))
	require.True(t, fired)
}

func TestLightExecutiveRollbackDropsFutureSubmissions(t *testing.T) {
	l := NewLightExecutive(WithExecutiveKind(ExecutiveLightWithRollback))
	l.tNow = 10

	keptFired, droppedFired := false, false
	kept := l.RequestEvent(func(*EventContext) { keptFired = true }, 20, nil, false)
	l.queue.items[len(l.queue.items)-1].submittedAt = 5

	dropped := l.RequestEvent(func(*EventContext) { droppedFired = true }, 20, nil, false)
	l.queue.items[len(l.queue.items)-1].submittedAt = 15

	require.NoError(t, l.Rollback(8))
	require.Equal(t, Tick(8), l.Now())

	require.NoError(t, l.Start(context.Background()))
	require.True(t, keptFired)
	require.False(t, droppedFired)
	_ = kept
	_ = dropped
}

func TestLightExecutiveRollbackRequiresKind(t *testing.T) {
	l := NewLightExecutive()
	require.ErrorIs(t, l.Rollback(0), ErrRollbackNotSupported)
}

func TestLightExecutiveRollbackRejectsForwardTarget(t *testing.T) {
	l := NewLightExecutive(WithExecutiveKind(ExecutiveLightWithRollback))
	l.tNow = 5
	require.ErrorIs(t, l.Rollback(10), ErrRollbackForward)
}
