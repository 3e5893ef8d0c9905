package tm2pc

import (
	"context"
	"sync"
)

// fakeActuator is a minimal in-memory Actuator for exercising the
// orchestrator without any real retry/transport machinery. Completion is
// driven explicitly by tests via complete, which invokes the registered
// proxy the same way internal/actuator would after a successful call.
type fakeActuator struct {
	mu        sync.Mutex
	nextTtid  Ttid
	tasks     map[Ttid]Task
	completed map[Ttid]bool
	events    map[Ttid]TaskEvent
	proxy     TaskProxy
	pushErr   error
}

func newFakeActuator() *fakeActuator {
	return &fakeActuator{
		tasks:     make(map[Ttid]Task),
		completed: make(map[Ttid]bool),
		events:    make(map[Ttid]TaskEvent),
	}
}

func (f *fakeActuator) SetTaskProxy(p TaskProxy) { f.proxy = p }

func (f *fakeActuator) Push(ctx context.Context, task Task) (Ttid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return 0, f.pushErr
	}
	f.nextTtid++
	ttid := f.nextTtid
	f.tasks[ttid] = task
	return ttid, nil
}

func (f *fakeActuator) Update(ctx context.Context, ttid Ttid, task Task) (Ttid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, ttid)
	f.nextTtid++
	newTtid := f.nextTtid
	f.tasks[newTtid] = task
	return newTtid, nil
}

func (f *fakeActuator) Remove(ctx context.Context, ttid Ttid) (Ttid, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[ttid]; !ok {
		return 0, false
	}
	delete(f.tasks, ttid)
	return ttid, true
}

func (f *fakeActuator) RemoveByOid(ctx context.Context, toid Toid) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ttid, t := range f.tasks {
		if t.Toid == toid {
			delete(f.tasks, ttid)
		}
	}
}

func (f *fakeActuator) Run(ctx context.Context) (int, error) { return 0, nil }

func (f *fakeActuator) IsCompleted(ttid Ttid) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed[ttid]
}

func (f *fakeActuator) GetTaskEvent(ttid Ttid) (TaskEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[ttid]
	return e, ok
}

func (f *fakeActuator) Clear(delExc bool) {}

func (f *fakeActuator) GetData() any { return nil }

func (f *fakeActuator) SetData(data any) error { return nil }

// complete marks ttid done with status and synchronously drives it through
// the TM's proxy, exactly as a real actuator would on task completion.
// Because the proxy only enqueues onto the command queue, any submit call
// a test makes afterward is guaranteed to observe the effects: both travel
// through the same single-consumer channel in FIFO order.
func (f *fakeActuator) complete(ctx context.Context, ttid Ttid, status TaskStatus, receipt string) {
	f.mu.Lock()
	task := f.tasks[ttid]
	f.completed[ttid] = true
	f.events[ttid] = TaskEvent{Ttid: ttid, Toid: task.Toid, Status: status, Receipt: receipt}
	f.mu.Unlock()
	f.proxy(ctx, TaskCompletion{Ttid: ttid, Task: task, Status: status, Receipt: receipt})
}
