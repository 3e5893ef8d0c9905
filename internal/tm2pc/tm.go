package tm2pc

import (
	"context"
	"encoding/json"
	"time"
)

// transitionPublisher is the narrow event-bus seam the orchestrator needs;
// satisfied by internal/eventlog's bridge onto pkg/events.EventBus. Its
// methods are exported so a type outside this package can implement the
// (unexported) interface: Go method-set matching on an unexported method
// name is scoped to the package that declares it, so an adapter living in
// another package could never satisfy an all-lowercase interface here.
type transitionPublisher interface {
	PublishTransition(ctx context.Context, o *Order, from OrderStatus) error
	PublishGovernance(ctx context.Context, toid Toid, op string, principal string) error
	PublishTaskPushed(ctx context.Context, ttid Ttid, toid Toid, callee string, phase Phase) error
}

// cacheInvalidator is the narrow cache seam; satisfied by pkg/cache-backed
// adapters. A nil invalidator is a valid, fully functional TM (no cache).
type cacheInvalidator interface {
	InvalidateOrder(ctx context.Context, toid Toid)
}

// tracer is the narrow span seam so this package never imports
// go.opentelemetry.io directly; satisfied by internal/adminserver's
// otel-backed adapter.
type tracer interface {
	StartSpan(ctx context.Context, name string, toid Toid) (context.Context, func())
}

type tmLogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// TM is the Two-Phase Commit Transaction Manager. All public methods
// serialize through a single command queue goroutine, reproducing the
// single-threaded cooperative core on top of Go's threaded runtime.
type TM struct {
	store     *orderStore
	callbacks *callbackRouter
	actuator  Actuator
	queue     *commandQueue

	events transitionPublisher
	cache  cacheInvalidator
	tracer tracer
	logger tmLogger

	cacheExpiration time.Duration
}

// Option configures a TM at construction.
type Option func(*TM)

func WithEvents(p transitionPublisher) Option { return func(tm *TM) { tm.events = p } }
func WithCache(c cacheInvalidator) Option      { return func(tm *TM) { tm.cache = c } }
func WithTracer(t tracer) Option               { return func(tm *TM) { tm.tracer = t } }
func WithLogger(l tmLogger) Option             { return func(tm *TM) { tm.logger = l } }
func WithNow(now func() time.Time) Option {
	return func(tm *TM) { tm.store.now = now }
}

// New constructs a TM around the given actuator, with the given process-
// wide default callbacks as fallback when no per-id hook is registered.
func New(actuator Actuator, defaultTask Callback, defaultOrder OrderCallback, opts ...Option) *TM {
	tm := &TM{
		store:           newOrderStore(time.Now),
		actuator:        actuator,
		queue:           newCommandQueue(256),
		cacheExpiration: 5 * time.Minute,
	}
	tm.callbacks = newCallbackRouter(defaultTask, defaultOrder, tm.loggerOrNop())
	for _, opt := range opts {
		opt(tm)
	}
	actuator.SetTaskProxy(tm.taskProxy)
	return tm
}

func (tm *TM) loggerOrNop() callbackLogger {
	return loggerAdapter{tm}
}

// loggerAdapter defers the logger lookup so construction order (logger
// option applied after callbacks router is built) doesn't matter.
type loggerAdapter struct{ tm *TM }

func (a loggerAdapter) Warn(msg string, fields ...interface{}) {
	if a.tm.logger != nil {
		a.tm.logger.Warn(msg, fields...)
	}
}

// taskProxy is what gets registered with the actuator; it re-enters the
// command queue so task completions are serialized exactly like public
// calls, per the concurrency model's suspension-point rule.
func (tm *TM) taskProxy(ctx context.Context, c TaskCompletion) {
	tm.queue.commands <- func() { tm.onTaskCompletion(ctx, c) }
}

// Stop drains and stops the command queue. Intended for graceful shutdown.
func (tm *TM) Stop() { tm.queue.stop() }

// Create allocates a new order in Todo/Opening.
func (tm *TM) Create(ctx context.Context, data json.RawMessage) (Toid, error) {
	return submit(ctx, tm.queue, func() Toid {
		o := tm.store.create(data)
		return o.Toid
	})
}

// pushResult bundles Push's return so submit's single generic result works.
type pushResult struct {
	ttid Ttid
	err  error
}

// Push adds a participant to toid: registers its prepare task with the
// actuator and records the triplet. Only valid while the order is Opening
// and non-terminal.
func (tm *TM) Push(ctx context.Context, toid Toid, prepare, commit Task, comp *Task, taskCb, commitCb Callback) (Ttid, error) {
	r, err := submit(ctx, tm.queue, func() pushResult {
		o, ok := tm.store.get(toid)
		if !ok {
			return pushResult{err: ErrOrderNotFound}
		}
		if o.AllowPushing != GateOpening || o.Status.IsTerminal() {
			return pushResult{err: ErrNotOpening}
		}

		prepare.Toid = toid
		ttid, perr := tm.actuator.Push(ctx, prepare)
		if perr != nil {
			return pushResult{err: perr}
		}

		o.Tasks = append(o.Tasks, &TPCTask{
			Ttid:    ttid,
			Prepare: prepare,
			Commit:  commit,
			Comp:    comp,
			Status:  StatusTodo,
		})
		tm.store.markAlive(toid)
		tm.callbacks.setTaskCallback(ttid, taskCb)
		tm.callbacks.parkCommitCallback(ttid, commitCb)

		return pushResult{ttid: ttid}
	})
	if err != nil {
		return 0, err
	}
	if r.err == nil {
		tm.invalidateCache(ctx, toid)
		if tm.events != nil {
			tm.events.PublishTaskPushed(ctx, r.ttid, toid, prepare.Callee, PhasePrepare)
		}
	}
	return r.ttid, r.err
}

// Open flips the gate back to Opening.
func (tm *TM) Open(ctx context.Context, toid Toid) error {
	_, err := submit(ctx, tm.queue, func() error {
		o, ok := tm.store.get(toid)
		if !ok {
			return ErrOrderNotFound
		}
		o.AllowPushing = GateOpening
		return nil
	})
	if err == nil {
		tm.invalidateCache(ctx, toid)
		tm.emitGovernance(ctx, toid, "open")
	}
	return err
}

// Finish flips the gate to Closed; idempotent.
func (tm *TM) Finish(ctx context.Context, toid Toid) error {
	_, err := submit(ctx, tm.queue, func() error {
		o, ok := tm.store.get(toid)
		if !ok {
			return ErrOrderNotFound
		}
		o.AllowPushing = GateClosed
		return nil
	})
	if err == nil {
		tm.invalidateCache(ctx, toid)
		tm.emitGovernance(ctx, toid, "finish")
	}
	return err
}

// Run transitions Todo->Preparing and drives the actuator one step.
func (tm *TM) Run(ctx context.Context, toid Toid) error {
	_, err := submit(ctx, tm.queue, func() error {
		return tm.onRun(ctx, toid)
	})
	if err == nil {
		tm.invalidateCache(ctx, toid)
	}
	return err
}

// Count returns the number of orders currently stored (including
// terminal ones not yet garbage collected).
func (tm *TM) Count(ctx context.Context) (int, error) {
	return submit(ctx, tm.queue, func() int {
		return len(tm.store.orders)
	})
}

// Status returns the current status of toid.
func (tm *TM) Status(ctx context.Context, toid Toid) (OrderStatus, error) {
	var notFound bool
	status, err := submit(ctx, tm.queue, func() OrderStatus {
		o, ok := tm.store.get(toid)
		if !ok {
			notFound = true
			return ""
		}
		return o.Status
	})
	if err != nil {
		return "", err
	}
	if notFound {
		return "", ErrOrderNotFound
	}
	return status, nil
}

// IsCompleted reports whether toid is in a terminal status.
func (tm *TM) IsCompleted(ctx context.Context, toid Toid) (bool, error) {
	return submit(ctx, tm.queue, func() bool {
		o, ok := tm.store.get(toid)
		return ok && o.Status.IsTerminal()
	})
}

// IsTaskCompleted delegates to the actuator for a specific ttid.
func (tm *TM) IsTaskCompleted(ctx context.Context, ttid Ttid) (bool, error) {
	return submit(ctx, tm.queue, func() bool {
		return tm.actuator.IsCompleted(ttid)
	})
}

// GetOrder returns a snapshot of the order. Read-path caching, when
// wanted, is layered outside the core by wrapping TM rather than by this
// method reaching into pkg/cache directly.
func (tm *TM) GetOrder(ctx context.Context, toid Toid) (*Order, error) {
	return submit(ctx, tm.queue, func() *Order {
		o, ok := tm.store.get(toid)
		if !ok {
			return nil
		}
		return o
	})
}

// GetOrders returns a 1-indexed page of orders over the live range.
func (tm *TM) GetOrders(ctx context.Context, page, size int) ([]*Order, int, int, error) {
	type result struct {
		data       []*Order
		total      int
		totalPages int
	}
	r, err := submit(ctx, tm.queue, func() result {
		data, total, totalPages := tm.store.page(page, size)
		return result{data, total, totalPages}
	})
	return r.data, r.total, r.totalPages, err
}

func (tm *TM) GetAliveOrders(ctx context.Context) ([]*Order, error) {
	return submit(ctx, tm.queue, func() []*Order {
		return tm.store.getAliveOrders()
	})
}

func (tm *TM) GetTaskEvents(ctx context.Context, toid Toid) ([]Ttid, error) {
	return submit(ctx, tm.queue, func() []Ttid {
		return tm.store.getTaskEvents(toid)
	})
}

func (tm *TM) GetActuator() Actuator {
	return tm.actuator
}

func (tm *TM) SetCacheExpiration(ctx context.Context, d time.Duration) error {
	_, err := submit(ctx, tm.queue, func() error {
		tm.cacheExpiration = d
		return nil
	})
	return err
}

// Clear sweeps the order store and the actuator's own GC companion.
func (tm *TM) Clear(ctx context.Context, delExc bool) error {
	_, err := submit(ctx, tm.queue, func() error {
		tm.store.clear(delExc)
		tm.actuator.Clear(delExc)
		return nil
	})
	return err
}

// invalidateCache is also called by orchestrator.go on every orchestrator-
// driven status transition (advance, terminalize), not just governance
// calls, since both mutate the order a cached read would return.
func (tm *TM) invalidateCache(ctx context.Context, toid Toid) {
	if tm.cache == nil {
		return
	}
	tm.cache.InvalidateOrder(ctx, toid)
}
