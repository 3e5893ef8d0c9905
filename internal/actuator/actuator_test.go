package actuator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tm2pc/txmanager/internal/tm2pc"
	"github.com/tm2pc/txmanager/pkg/resilience"
)

func newTestActuator() (*Actuator, *resilience.CircuitBreakerRegistry, *CalleeRegistry) {
	registry := NewCalleeRegistry()
	breakers := resilience.NewCircuitBreakerRegistry(resilience.DefaultCircuitBreakerConfig("test"))
	act := New(registry, breakers, NewFixedStrategy(time.Millisecond), nil)
	return act, breakers, registry
}

func waitForCompletion(t *testing.T, completions chan tm2pc.TaskCompletion) tm2pc.TaskCompletion {
	t.Helper()
	select {
	case c := <-completions:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task completion")
		return tm2pc.TaskCompletion{}
	}
}

func TestPushAndRunSucceeds(t *testing.T) {
	act, _, registry := newTestActuator()
	completions := make(chan tm2pc.TaskCompletion, 4)
	act.SetTaskProxy(func(ctx context.Context, c tm2pc.TaskCompletion) { completions <- c })

	registry.Register("svc-a", CallerFunc(func(ctx context.Context, task tm2pc.Task) (string, error) {
		return "receipt-a", nil
	}))

	ttid, err := act.Push(context.Background(), tm2pc.Task{Callee: "svc-a", CallType: "prepare", AttemptsMax: 3})
	require.NoError(t, err)

	n, err := act.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c := waitForCompletion(t, completions)
	assert.Equal(t, ttid, c.Ttid)
	assert.Equal(t, tm2pc.StatusDone, c.Status)
	assert.Equal(t, "receipt-a", c.Receipt)
	assert.True(t, act.IsCompleted(ttid))
}

func TestRetriesThenFails(t *testing.T) {
	act, _, registry := newTestActuator()
	completions := make(chan tm2pc.TaskCompletion, 1)
	act.SetTaskProxy(func(ctx context.Context, c tm2pc.TaskCompletion) { completions <- c })

	var calls int32
	registry.Register("svc-flaky", CallerFunc(func(ctx context.Context, task tm2pc.Task) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errors.New("unreachable")
	}))

	ttid, err := act.Push(context.Background(), tm2pc.Task{Callee: "svc-flaky", CallType: "prepare", AttemptsMax: 3})
	require.NoError(t, err)

	// All three attempts fail and the third exhausts AttemptsMax (recall
	// interval ~0, fixed 1ms strategy); keep calling Run until the task is
	// finished.
	deadline := time.After(2 * time.Second)
	for {
		act.Run(context.Background())
		select {
		case c := <-completions:
			assert.Equal(t, ttid, c.Ttid)
			assert.Equal(t, tm2pc.StatusError, c.Status)
			assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
			return
		case <-deadline:
			t.Fatal("task never reached a terminal status")
		default:
			time.Sleep(2 * time.Millisecond)
		}
	}
}

func TestPrerequisitesGateExecution(t *testing.T) {
	act, _, registry := newTestActuator()
	completions := make(chan tm2pc.TaskCompletion, 2)
	act.SetTaskProxy(func(ctx context.Context, c tm2pc.TaskCompletion) { completions <- c })

	var mu sync.Mutex
	var order []string
	registry.Register("svc-a", CallerFunc(func(ctx context.Context, task tm2pc.Task) (string, error) {
		mu.Lock()
		order = append(order, "a")
		mu.Unlock()
		return "a", nil
	}))
	registry.Register("svc-b", CallerFunc(func(ctx context.Context, task tm2pc.Task) (string, error) {
		mu.Lock()
		order = append(order, "b")
		mu.Unlock()
		return "b", nil
	}))

	a, err := act.Push(context.Background(), tm2pc.Task{Callee: "svc-a", CallType: "prepare", AttemptsMax: 1})
	require.NoError(t, err)
	b, err := act.Push(context.Background(), tm2pc.Task{Callee: "svc-b", CallType: "prepare", AttemptsMax: 1, Prereqs: []tm2pc.Ttid{a}})
	require.NoError(t, err)

	// b isn't ready yet: only a should run.
	n, err := act.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	waitForCompletion(t, completions)

	n, err = act.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	waitForCompletion(t, completions)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"a", "b"}, order)
	_ = b
}

func TestUnregisteredCalleeErrorsImmediately(t *testing.T) {
	act, _, _ := newTestActuator()
	completions := make(chan tm2pc.TaskCompletion, 1)
	act.SetTaskProxy(func(ctx context.Context, c tm2pc.TaskCompletion) { completions <- c })

	ttid, err := act.Push(context.Background(), tm2pc.Task{Callee: "ghost", CallType: "prepare"})
	require.NoError(t, err)

	act.Run(context.Background())
	c := waitForCompletion(t, completions)
	assert.Equal(t, ttid, c.Ttid)
	assert.Equal(t, tm2pc.StatusError, c.Status)
}

func TestRemoveByOidDropsAllOfOrder(t *testing.T) {
	act, _, registry := newTestActuator()
	registry.Register("svc-a", CallerFunc(func(ctx context.Context, task tm2pc.Task) (string, error) {
		return "ok", nil
	}))

	t1, err := act.Push(context.Background(), tm2pc.Task{Toid: 1, Callee: "svc-a"})
	require.NoError(t, err)
	t2, err := act.Push(context.Background(), tm2pc.Task{Toid: 1, Callee: "svc-a"})
	require.NoError(t, err)
	t3, err := act.Push(context.Background(), tm2pc.Task{Toid: 2, Callee: "svc-a"})
	require.NoError(t, err)

	act.RemoveByOid(context.Background(), 1)

	_, removed := act.Remove(context.Background(), t1)
	assert.False(t, removed)
	_, removed = act.Remove(context.Background(), t2)
	assert.False(t, removed)
	_, removed = act.Remove(context.Background(), t3)
	assert.True(t, removed)
}

func TestSnapshotRoundTrip(t *testing.T) {
	act, breakers, registry := newTestActuator()
	registry.Register("svc-a", CallerFunc(func(ctx context.Context, task tm2pc.Task) (string, error) {
		return "ok", nil
	}))

	_, err := act.Push(context.Background(), tm2pc.Task{Toid: 1, Callee: "svc-a"})
	require.NoError(t, err)

	snap := act.GetData()

	restored := New(registry, breakers, NewFixedStrategy(time.Millisecond), nil)
	require.NoError(t, restored.SetData(snap))

	completions := make(chan tm2pc.TaskCompletion, 1)
	restored.SetTaskProxy(func(ctx context.Context, c tm2pc.TaskCompletion) { completions <- c })
	restored.Run(context.Background())
	c := waitForCompletion(t, completions)
	assert.Equal(t, tm2pc.StatusDone, c.Status)
}
