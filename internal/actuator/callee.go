package actuator

import (
	"context"
	"sync"

	"github.com/tm2pc/txmanager/internal/tm2pc"
)

// Caller is the single method every dispatch target satisfies, whether the
// call resolves in-process or over the wire. A successful call returns an
// opaque receipt the TM records on the task's completion.
type Caller interface {
	Call(ctx context.Context, task tm2pc.Task) (receipt string, err error)
}

// CallerFunc adapts a plain function to Caller.
type CallerFunc func(ctx context.Context, task tm2pc.Task) (string, error)

func (f CallerFunc) Call(ctx context.Context, task tm2pc.Task) (string, error) {
	return f(ctx, task)
}

// LocalCall dispatches to an in-process handler, for callees that live in
// the same binary as the TM (no retry/transport concerns beyond the
// actuator's own).
type LocalCall struct {
	handler CallerFunc
}

func NewLocalCall(handler CallerFunc) *LocalCall {
	return &LocalCall{handler: handler}
}

func (c *LocalCall) Call(ctx context.Context, task tm2pc.Task) (string, error) {
	return c.handler(ctx, task)
}

// CalleeRegistry maps a task's Callee name to the Caller that dispatches
// it, whether LocalCall or RemoteCall.
type CalleeRegistry struct {
	mu      sync.RWMutex
	callers map[string]Caller
}

func NewCalleeRegistry() *CalleeRegistry {
	return &CalleeRegistry{callers: make(map[string]Caller)}
}

func (r *CalleeRegistry) Register(callee string, c Caller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callers[callee] = c
}

func (r *CalleeRegistry) Resolve(callee string) (Caller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.callers[callee]
	return c, ok
}
