package tm2pc

import "context"

// Actuator is the contract the orchestrator depends on: a retrying
// dispatcher of individual remote calls. The concrete implementation
// (internal/actuator) is injected at construction time; the core never
// imports it directly, matching the port/adapter seams used throughout
// the rest of this module.
type Actuator interface {
	// SetTaskProxy registers the single completion callback the actuator
	// invokes for every task it finishes, across all orders.
	SetTaskProxy(proxy TaskProxy)
	Push(ctx context.Context, task Task) (Ttid, error)
	Update(ctx context.Context, ttid Ttid, task Task) (Ttid, error)
	Remove(ctx context.Context, ttid Ttid) (Ttid, bool)
	RemoveByOid(ctx context.Context, toid Toid)
	Run(ctx context.Context) (int, error)
	IsCompleted(ttid Ttid) bool
	GetTaskEvent(ttid Ttid) (TaskEvent, bool)
	Clear(delExc bool)
	GetData() any
	SetData(data any) error
}

// TaskCompletion is what the actuator hands back to the TM-supplied proxy
// on each task completion.
type TaskCompletion struct {
	Ttid    Ttid
	Task    Task
	Status  TaskStatus
	Receipt string
}

// TaskProxy is the callback the actuator invokes on every completion; the
// orchestrator registers exactly one, at construction.
type TaskProxy func(ctx context.Context, completion TaskCompletion)

// Callback fires once when a single task completes.
type Callback func(ctx context.Context, ttid Ttid, status TaskStatus, receipt string)

// OrderCallback fires once when an order reaches a terminal status.
type OrderCallback func(ctx context.Context, toid Toid, status OrderStatus)
