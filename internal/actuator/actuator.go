package actuator

import (
	"context"
	"sync"
	"time"

	"github.com/tm2pc/txmanager/internal/tm2pc"
	"github.com/tm2pc/txmanager/pkg/resilience"
)

// Logger is the narrow logging surface this package needs.
type Logger interface {
	Warn(msg string, fields ...interface{})
}

// runningTask is the actuator's own bookkeeping for one pushed task,
// independent of whatever order or phase it serves.
type runningTask struct {
	ttid     tm2pc.Ttid
	task     tm2pc.Task
	attempts int
	nextAt   time.Time
	status   tm2pc.TaskStatus
}

// Actuator is the retrying dispatcher behind tm2pc.TM: it drives each
// pushed task to completion against its callee, respecting prerequisite
// edges, a per-callee circuit breaker, and a pluggable backoff Strategy.
type Actuator struct {
	mu       sync.Mutex
	registry *CalleeRegistry
	breakers *resilience.CircuitBreakerRegistry
	strategy Strategy
	logger   Logger

	nextTtid     tm2pc.Ttid
	tasks        map[tm2pc.Ttid]*runningTask
	events       map[tm2pc.Ttid]tm2pc.TaskEvent
	backpressure float64

	proxy tm2pc.TaskProxy
}

// New constructs an Actuator. A nil strategy defaults to exponential
// backoff from 100ms capped at 10s, matching pkg/resilience's own default.
func New(registry *CalleeRegistry, breakers *resilience.CircuitBreakerRegistry, strategy Strategy, logger Logger) *Actuator {
	if strategy == nil {
		strategy = NewExponentialStrategy(100*time.Millisecond, 10*time.Second)
	}
	return &Actuator{
		registry:     registry,
		breakers:     breakers,
		strategy:     strategy,
		logger:       logger,
		tasks:        make(map[tm2pc.Ttid]*runningTask),
		events:       make(map[tm2pc.Ttid]tm2pc.TaskEvent),
		backpressure: 1.0,
	}
}

// SetBackpressure scales every subsequent retry delay by factor (>= 1.0
// slows retries down, stretching the recall interval under host load; <
// 1.0 is clamped to 1.0, since backpressure only ever widens the delay).
// internal/capacity's sampler calls this as host CPU/memory cross their
// configured thresholds.
func (a *Actuator) SetBackpressure(factor float64) {
	if factor < 1.0 {
		factor = 1.0
	}
	a.mu.Lock()
	a.backpressure = factor
	a.mu.Unlock()
}

func (a *Actuator) SetTaskProxy(proxy tm2pc.TaskProxy) { a.proxy = proxy }

func (a *Actuator) Push(ctx context.Context, task tm2pc.Task) (tm2pc.Ttid, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextTtid++
	ttid := a.nextTtid
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	a.tasks[ttid] = &runningTask{ttid: ttid, task: task, status: tm2pc.StatusTodo}
	return ttid, nil
}

func (a *Actuator) Update(ctx context.Context, ttid tm2pc.Ttid, task tm2pc.Task) (tm2pc.Ttid, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tasks, ttid)
	a.nextTtid++
	newTtid := a.nextTtid
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	a.tasks[newTtid] = &runningTask{ttid: newTtid, task: task, status: tm2pc.StatusTodo}
	return newTtid, nil
}

func (a *Actuator) Remove(ctx context.Context, ttid tm2pc.Ttid) (tm2pc.Ttid, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.tasks[ttid]; !ok {
		return 0, false
	}
	delete(a.tasks, ttid)
	return ttid, true
}

func (a *Actuator) RemoveByOid(ctx context.Context, toid tm2pc.Toid) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for ttid, rt := range a.tasks {
		if rt.task.Toid == toid {
			delete(a.tasks, ttid)
		}
	}
}

// Run attempts every task whose prerequisites are satisfied and whose
// retry clock has elapsed, dispatching through the callee registry and
// that callee's circuit breaker. It returns the number of tasks attempted
// this call; it does not wait out retry delays, only the calls it makes.
func (a *Actuator) Run(ctx context.Context) (int, error) {
	ready := a.collectReady()
	for _, rt := range ready {
		a.attempt(ctx, rt)
	}
	return len(ready), nil
}

func (a *Actuator) collectReady() []*runningTask {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	var ready []*runningTask
	for _, rt := range a.tasks {
		if rt.status != tm2pc.StatusTodo {
			continue
		}
		if now.Before(rt.nextAt) {
			continue
		}
		if !a.prereqsDoneLocked(rt.task.Prereqs) {
			continue
		}
		rt.status = tm2pc.StatusDoing
		ready = append(ready, rt)
	}
	return ready
}

func (a *Actuator) prereqsDoneLocked(prereqs []tm2pc.Ttid) bool {
	for _, p := range prereqs {
		if rt, ok := a.tasks[p]; ok {
			if rt.status != tm2pc.StatusDone {
				return false
			}
			continue
		}
		if _, ok := a.events[p]; !ok {
			return false
		}
	}
	return true
}

func (a *Actuator) attempt(ctx context.Context, rt *runningTask) {
	caller, ok := a.registry.Resolve(rt.task.Callee)
	if !ok {
		if a.logger != nil {
			a.logger.Warn("actuator: no caller registered", "callee", rt.task.Callee)
		}
		a.finish(ctx, rt, tm2pc.StatusError, "")
		return
	}

	breaker := a.breakers.Get(rt.task.Callee)
	result, err := breaker.ExecuteWithContext(ctx, func(ctx context.Context) (interface{}, error) {
		return caller.Call(ctx, rt.task)
	})

	a.mu.Lock()
	rt.attempts++
	attempts := rt.attempts
	a.mu.Unlock()

	if err == nil {
		receipt, _ := result.(string)
		a.finish(ctx, rt, tm2pc.StatusDone, receipt)
		return
	}

	max := rt.task.AttemptsMax
	if max <= 0 {
		max = 1
	}
	if attempts >= max {
		a.finish(ctx, rt, tm2pc.StatusError, "")
		return
	}

	a.mu.Lock()
	delay := rt.task.RecallInterval
	if delay <= 0 {
		delay = a.strategy.NextDelay(attempts)
	}
	delay = time.Duration(float64(delay) * a.backpressure)
	rt.nextAt = time.Now().Add(delay)
	rt.status = tm2pc.StatusTodo
	a.mu.Unlock()
}

func (a *Actuator) finish(ctx context.Context, rt *runningTask, status tm2pc.TaskStatus, receipt string) {
	a.mu.Lock()
	rt.status = status
	a.events[rt.ttid] = tm2pc.TaskEvent{
		Ttid:    rt.ttid,
		Toid:    rt.task.Toid,
		Kind:    rt.task.CallType,
		Status:  status,
		Attempt: rt.attempts,
		At:      time.Now(),
		Receipt: receipt,
	}
	task := rt.task
	a.mu.Unlock()

	if a.proxy != nil {
		a.proxy(ctx, tm2pc.TaskCompletion{Ttid: rt.ttid, Task: task, Status: status, Receipt: receipt})
	}
}

func (a *Actuator) IsCompleted(ttid tm2pc.Ttid) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rt, ok := a.tasks[ttid]; ok {
		return rt.status == tm2pc.StatusDone || rt.status == tm2pc.StatusError
	}
	_, ok := a.events[ttid]
	return ok
}

func (a *Actuator) GetTaskEvent(ttid tm2pc.Ttid) (tm2pc.TaskEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.events[ttid]
	return e, ok
}

// Clear drops finished tasks; delExc additionally drops in-flight ones,
// mirroring the order store's own clear(delExc) semantics.
func (a *Actuator) Clear(delExc bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for ttid, rt := range a.tasks {
		if delExc || rt.status == tm2pc.StatusDone || rt.status == tm2pc.StatusError {
			delete(a.tasks, ttid)
		}
	}
}
