package sage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecutiveTriKeyOrdering(t *testing.T) {
	exec := NewExecutive()
	var order []int
	exec.RequestEvent(func(*EventContext) { order = append(order, 1) }, 5, 0, nil, Synchronous)
	exec.RequestEvent(func(*EventContext) { order = append(order, 2) }, 1, 0, nil, Synchronous)
	exec.RequestEvent(func(*EventContext) { order = append(order, 3) }, 5, 10, nil, Synchronous)

	require.NoError(t, exec.Start(context.Background()))
	require.Equal(t, []int{2, 3, 1}, order)
}

func TestExecutiveCausalityClampByDefault(t *testing.T) {
	exec := NewExecutive()
	require.NoError(t, exec.SetStartTime(10))

	var got Tick
	_, err := exec.RequestEvent(func(ctx *EventContext) { got = ctx.Now() }, 5, 0, nil, Synchronous)
	require.NoError(t, err)
	require.NoError(t, exec.Start(context.Background()))
	require.Equal(t, Tick(10), got)
}

func TestExecutiveCausalityRaise(t *testing.T) {
	exec := NewExecutive(WithCausalityPolicy(CausalityRaise))
	require.NoError(t, exec.SetStartTime(10))

	_, err := exec.RequestEvent(func(*EventContext) {}, 5, 0, nil, Synchronous)
	require.Error(t, err)
	var cerr *CausalityError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, Tick(5), cerr.FireTime)
	require.Equal(t, Tick(10), cerr.Now)
}

func TestExecutiveDetachableSuspendFor(t *testing.T) {
	exec := NewExecutive()
	var resumedAt Tick
	_, err := exec.RequestEvent(func(ctx *EventContext) {
		ctx.Controller().SuspendFor(5)
		resumedAt = ctx.Now()
	}, 1, 0, nil, Detachable)
	require.NoError(t, err)

	require.NoError(t, exec.Start(context.Background()))
	require.Equal(t, Tick(6), resumedAt)
}

func TestExecutiveJoinReturnsImmediatelyForCompletedEvent(t *testing.T) {
	exec := NewExecutive()
	var firstDone bool
	k1, err := exec.RequestEvent(func(*EventContext) { firstDone = true }, 1, 0, nil, Synchronous)
	require.NoError(t, err)

	var joinSawFirstDone bool
	_, err = exec.RequestEvent(func(ctx *EventContext) {
		ctx.Controller().Join(k1)
		joinSawFirstDone = firstDone
	}, 2, 0, nil, Detachable)
	require.NoError(t, err)

	require.NoError(t, exec.Start(context.Background()))
	require.True(t, joinSawFirstDone)
}

func TestExecutiveJoinBlocksUntilLaterEventCompletes(t *testing.T) {
	exec := NewExecutive()
	var secondRan, joinSawSecondRan bool

	k2, err := exec.RequestEvent(func(*EventContext) { secondRan = true }, 5, 0, nil, Synchronous)
	require.NoError(t, err)

	_, err = exec.RequestEvent(func(ctx *EventContext) {
		ctx.Controller().Join(k2)
		joinSawSecondRan = secondRan
	}, 1, 0, nil, Detachable)
	require.NoError(t, err)

	require.NoError(t, exec.Start(context.Background()))
	require.True(t, joinSawSecondRan)
}

func TestExecutivePauseResume(t *testing.T) {
	exec := NewExecutive()
	paused := make(chan struct{})
	resumed := make(chan struct{})

	_, err := exec.RequestEvent(func(*EventContext) {
		require.NoError(t, exec.Pause())
		close(paused)
	}, 1, 0, nil, Synchronous)
	require.NoError(t, err)
	_, err = exec.RequestEvent(func(*EventContext) { close(resumed) }, 2, 0, nil, Synchronous)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- exec.Start(context.Background()) }()

	<-paused
	require.Equal(t, StatePaused, exec.State())
	require.NoError(t, exec.Resume())
	<-resumed
	require.NoError(t, <-done)
}

func TestExecutiveAbortTerminatesSuspendedDetachable(t *testing.T) {
	exec := NewExecutive()
	started := make(chan struct{})
	proceed := make(chan struct{})
	var abortedFlag bool

	_, err := exec.RequestEvent(func(ctx *EventContext) {
		c := ctx.Controller()
		c.SetAbortHandler(func(any) { abortedFlag = true }, nil)
		close(started)
		<-proceed
		c.SuspendUntil(1_000_000)
	}, 1, 0, nil, Detachable)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- exec.Start(context.Background()) }()

	<-started
	exec.Abort()
	close(proceed)

	require.NoError(t, <-done)
	require.True(t, abortedFlag)
	require.Equal(t, StateFinished, exec.State())
}

func TestExecutiveUnRequestEventsByTarget(t *testing.T) {
	exec := NewExecutive()
	type token struct{ id int }
	keep := &token{1}
	drop := &token{2}
	fired := map[int]bool{}

	exec.RequestEvent(func(ctx *EventContext) { fired[ctx.Payload.(*token).id] = true }, 1, 0, keep, Synchronous)
	exec.RequestEvent(func(ctx *EventContext) { fired[ctx.Payload.(*token).id] = true }, 2, 0, drop, Synchronous)

	n := exec.UnRequestEventsByTarget(drop)
	require.Equal(t, 1, n)

	require.NoError(t, exec.Start(context.Background()))
	require.True(t, fired[1])
	require.False(t, fired[2])
}

func TestExecutiveAsynchronousDoesNotBlockDispatch(t *testing.T) {
	exec := NewExecutive()
	asyncRan := make(chan struct{})
	_, err := exec.RequestEvent(func(*EventContext) { close(asyncRan) }, 1, 0, nil, Asynchronous)
	require.NoError(t, err)

	require.NoError(t, exec.Start(context.Background()))
	<-asyncRan
}
