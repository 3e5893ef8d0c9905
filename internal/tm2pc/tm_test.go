package tm2pc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopCallbacks() (Callback, OrderCallback) {
	return func(ctx context.Context, ttid Ttid, status TaskStatus, receipt string) {},
		func(ctx context.Context, toid Toid, status OrderStatus) {}
}

func pushParticipant(t *testing.T, ctx context.Context, tm *TM, toid Toid, callee string) Ttid {
	t.Helper()
	taskCb, commitCb := noopCallbacks()
	ttid, err := tm.Push(ctx, toid,
		Task{Callee: callee, CallType: "prepare"},
		Task{Callee: callee, CallType: "commit"},
		&Task{Callee: callee, CallType: "compensate"},
		taskCb, commitCb)
	require.NoError(t, err)
	return ttid
}

func TestHappyPath(t *testing.T) {
	ctx := context.Background()
	act := newFakeActuator()

	var orderDone OrderStatus
	done := make(chan struct{}, 1)
	tm := New(act, nil, func(ctx context.Context, toid Toid, status OrderStatus) {
		orderDone = status
		done <- struct{}{}
	})
	defer tm.Stop()

	toid, err := tm.Create(ctx, nil)
	require.NoError(t, err)

	a := pushParticipant(t, ctx, tm, toid, "svc-a")
	b := pushParticipant(t, ctx, tm, toid, "svc-b")

	require.NoError(t, tm.Finish(ctx, toid))
	require.NoError(t, tm.Run(ctx, toid))

	status, err := tm.Status(ctx, toid)
	require.NoError(t, err)
	assert.Equal(t, OrderPreparing, status)

	act.complete(ctx, a, StatusDone, "ok-a")
	act.complete(ctx, b, StatusDone, "ok-b")

	status, err = tm.Status(ctx, toid)
	require.NoError(t, err)
	assert.Equal(t, OrderCommitting, status)

	o, err := tm.GetOrder(ctx, toid)
	require.NoError(t, err)
	require.Len(t, o.Commits, 2)

	for _, c := range o.Commits {
		act.complete(ctx, c.Ttid, StatusDone, "committed")
	}

	<-done
	status, err = tm.Status(ctx, toid)
	require.NoError(t, err)
	assert.Equal(t, OrderDone, status)
	assert.Equal(t, OrderDone, orderDone)

	completed, err := tm.IsCompleted(ctx, toid)
	require.NoError(t, err)
	assert.True(t, completed)
}

func TestPrepareFailsOnlyDoneTasksCompensate(t *testing.T) {
	ctx := context.Background()
	act := newFakeActuator()

	done := make(chan OrderStatus, 1)
	tm := New(act, nil, func(ctx context.Context, toid Toid, status OrderStatus) {
		done <- status
	})
	defer tm.Stop()

	toid, err := tm.Create(ctx, nil)
	require.NoError(t, err)

	a := pushParticipant(t, ctx, tm, toid, "svc-a")
	b := pushParticipant(t, ctx, tm, toid, "svc-b")

	require.NoError(t, tm.Finish(ctx, toid))
	require.NoError(t, tm.Run(ctx, toid))

	act.complete(ctx, a, StatusDone, "ok-a")
	act.complete(ctx, b, StatusError, "boom")

	status, err := tm.Status(ctx, toid)
	require.NoError(t, err)
	assert.Equal(t, OrderCompensating, status)

	o, err := tm.GetOrder(ctx, toid)
	require.NoError(t, err)
	require.Len(t, o.Comps, 1, "only the participant whose prepare succeeded gets compensated")
	assert.Equal(t, a, o.Comps[0].ForTtid)

	act.complete(ctx, o.Comps[0].Tcid, StatusDone, "undone")

	assert.Equal(t, OrderAborted, <-done)
	status, err = tm.Status(ctx, toid)
	require.NoError(t, err)
	assert.Equal(t, OrderAborted, status)
}

func TestCommitFailureBlocksThenRecovers(t *testing.T) {
	ctx := context.Background()
	act := newFakeActuator()
	tm := New(act, nil, nil)
	defer tm.Stop()

	toid, err := tm.Create(ctx, nil)
	require.NoError(t, err)

	a := pushParticipant(t, ctx, tm, toid, "svc-a")
	b := pushParticipant(t, ctx, tm, toid, "svc-b")

	require.NoError(t, tm.Finish(ctx, toid))
	require.NoError(t, tm.Run(ctx, toid))

	act.complete(ctx, a, StatusDone, "ok-a")
	act.complete(ctx, b, StatusDone, "ok-b")

	o, err := tm.GetOrder(ctx, toid)
	require.NoError(t, err)
	require.Len(t, o.Commits, 2)

	// One commit fails permanently: the order gets stuck Blocking rather
	// than silently terminalizing in an inconsistent state.
	act.complete(ctx, o.Commits[0].Ttid, StatusError, "unreachable")
	act.complete(ctx, o.Commits[1].Ttid, StatusDone, "committed")

	status, err := tm.Status(ctx, toid)
	require.NoError(t, err)
	assert.Equal(t, OrderBlocking, status)

	// Operator supplies a compensation for the failed commit and forces
	// the order closed; complete only succeeds once the targeted phase
	// has actually resolved Yes.
	forTtid := o.Commits[0].PrepareTtid
	tcid, err := tm.AppendComp(ctx, toid, forTtid, Task{Callee: "svc-a", CallType: "compensate"}, nil)
	require.NoError(t, err)

	ok, err := tm.Complete(ctx, toid, OrderAborted)
	require.NoError(t, err)
	assert.False(t, ok, "compensation hasn't completed yet")

	act.complete(ctx, tcid, StatusDone, "undone")

	ok, err = tm.Complete(ctx, toid, OrderAborted)
	require.NoError(t, err)
	assert.True(t, ok)

	status, err = tm.Status(ctx, toid)
	require.NoError(t, err)
	assert.Equal(t, OrderAborted, status)
}

func TestGovernanceRequiresOpenGate(t *testing.T) {
	ctx := context.Background()
	act := newFakeActuator()
	tm := New(act, nil, nil)
	defer tm.Stop()

	toid, err := tm.Create(ctx, nil)
	require.NoError(t, err)

	ttid := pushParticipant(t, ctx, tm, toid, "svc-a")
	require.NoError(t, tm.Finish(ctx, toid))

	_, err = tm.Push(ctx, toid, Task{Callee: "svc-b"}, Task{Callee: "svc-b"}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNotOpening)

	_, err = tm.Update(ctx, toid, ttid, Task{Callee: "svc-a2"}, Task{Callee: "svc-a2"}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNotOpening)

	require.NoError(t, tm.Open(ctx, toid))
	newTtid, err := tm.Update(ctx, toid, ttid, Task{Callee: "svc-a2"}, Task{Callee: "svc-a2"}, nil, nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, ttid, newTtid)
}

func TestRemoveRejectsCompletedTask(t *testing.T) {
	ctx := context.Background()
	act := newFakeActuator()
	tm := New(act, nil, nil)
	defer tm.Stop()

	toid, err := tm.Create(ctx, nil)
	require.NoError(t, err)
	ttid := pushParticipant(t, ctx, tm, toid, "svc-a")

	act.complete(ctx, ttid, StatusDone, "ok")

	ok, err := tm.Remove(ctx, toid, ttid)
	require.NoError(t, err)
	assert.False(t, ok, "a completed participant cannot be removed")
}

func TestGetOrdersPagination(t *testing.T) {
	ctx := context.Background()
	act := newFakeActuator()
	tm := New(act, nil, nil)
	defer tm.Stop()

	for i := 0; i < 5; i++ {
		_, err := tm.Create(ctx, nil)
		require.NoError(t, err)
	}

	page1, total, totalPages, err := tm.GetOrders(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 3, totalPages)
	assert.Len(t, page1, 2)
	assert.Equal(t, Toid(1), page1[0].Toid)

	page3, _, _, err := tm.GetOrders(ctx, 3, 2)
	require.NoError(t, err)
	assert.Len(t, page3, 1)
	assert.Equal(t, Toid(5), page3[0].Toid)
}

func TestRemovedParticipantExcludedFromAggregation(t *testing.T) {
	ctx := context.Background()
	act := newFakeActuator()
	tm := New(act, nil, nil)
	defer tm.Stop()

	toid, err := tm.Create(ctx, nil)
	require.NoError(t, err)

	p1 := pushParticipant(t, ctx, tm, toid, "svc-1")
	p2 := pushParticipant(t, ctx, tm, toid, "svc-2")
	p3 := pushParticipant(t, ctx, tm, toid, "svc-3")

	ok, err := tm.Remove(ctx, toid, p2)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, tm.Finish(ctx, toid))
	require.NoError(t, tm.Run(ctx, toid))

	o, err := tm.GetOrder(ctx, toid)
	require.NoError(t, err)
	require.Len(t, o.Tasks, 2, "the removed participant must not reappear")

	act.complete(ctx, p1, StatusDone, "ok-1")
	act.complete(ctx, p3, StatusDone, "ok-3")

	status, err := tm.Status(ctx, toid)
	require.NoError(t, err)
	assert.Equal(t, OrderCommitting, status, "aggregation over the remaining two participants resolves Yes")
}

func TestRetentionGCSweepsExpiredTerminalOrders(t *testing.T) {
	ctx := context.Background()
	act := newFakeActuator()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	tm := New(act, nil, nil, WithNow(clock))
	defer tm.Stop()

	toid, err := tm.Create(ctx, nil)
	require.NoError(t, err)
	ttid := pushParticipant(t, ctx, tm, toid, "svc-a")
	require.NoError(t, tm.Finish(ctx, toid))
	require.NoError(t, tm.Run(ctx, toid))
	act.complete(ctx, ttid, StatusDone, "ok")

	o, err := tm.GetOrder(ctx, toid)
	require.NoError(t, err)
	require.Len(t, o.Commits, 1)
	act.complete(ctx, o.Commits[0].Ttid, StatusDone, "committed")

	status, err := tm.Status(ctx, toid)
	require.NoError(t, err)
	require.Equal(t, OrderDone, status)

	now = now.Add(DefaultAutoClearTimeout + time.Hour)
	require.NoError(t, tm.Clear(ctx, false))

	o, err = tm.GetOrder(ctx, toid)
	require.NoError(t, err)
	assert.Nil(t, o, "getOrder returns nothing once swept")
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	act := newFakeActuator()
	tm := New(act, nil, nil)
	defer tm.Stop()

	toid, err := tm.Create(ctx, nil)
	require.NoError(t, err)
	pushParticipant(t, ctx, tm, toid, "svc-a")

	snap, err := tm.GetData(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Orders, 1)

	restored := New(newFakeActuator(), nil, nil)
	defer restored.Stop()

	require.NoError(t, restored.SetData(ctx, snap))

	o, err := restored.GetOrder(ctx, toid)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Len(t, o.Tasks, 1)
}
