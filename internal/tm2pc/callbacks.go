package tm2pc

import "context"

// callbackRouter owns the three maps described by the Callback Router:
// per-task hooks fired once and deleted, commit hooks parked at push
// time under the prepare's ttid until commit fan-out re-keys them, and
// per-order hooks fired once on terminalization. Defaults fire when no
// per-id entry is registered and are never deleted.
type callbackRouter struct {
	taskCallback       map[Ttid]Callback
	commitCallbackTemp map[Ttid]Callback
	orderCallback      map[Toid]OrderCallback

	defaultTask  Callback
	defaultOrder OrderCallback

	logger callbackLogger
}

// callbackLogger is the narrow logging surface callbacks.go needs; kept
// separate from pkg/logger.Logger so this file has no import of it.
type callbackLogger interface {
	Warn(msg string, fields ...interface{})
}

func newCallbackRouter(defaultTask Callback, defaultOrder OrderCallback, logger callbackLogger) *callbackRouter {
	return &callbackRouter{
		taskCallback:       make(map[Ttid]Callback),
		commitCallbackTemp: make(map[Ttid]Callback),
		orderCallback:      make(map[Toid]OrderCallback),
		defaultTask:        defaultTask,
		defaultOrder:       defaultOrder,
		logger:             logger,
	}
}

func (r *callbackRouter) setTaskCallback(ttid Ttid, cb Callback) {
	if cb == nil {
		return
	}
	r.taskCallback[ttid] = cb
}

// parkCommitCallback stashes a commit callback under the prepare's ttid at
// push time; commit fan-out re-keys it once the commit's own ttid exists.
func (r *callbackRouter) parkCommitCallback(prepareTtid Ttid, cb Callback) {
	if cb == nil {
		return
	}
	r.commitCallbackTemp[prepareTtid] = cb
}

func (r *callbackRouter) promoteCommitCallback(prepareTtid, commitTtid Ttid) {
	cb, ok := r.commitCallbackTemp[prepareTtid]
	if !ok {
		return
	}
	delete(r.commitCallbackTemp, prepareTtid)
	r.taskCallback[commitTtid] = cb
}

func (r *callbackRouter) clearTaskCallback(ttid Ttid) {
	delete(r.taskCallback, ttid)
	delete(r.commitCallbackTemp, ttid)
}

func (r *callbackRouter) setOrderCallback(toid Toid, cb OrderCallback) {
	if cb == nil {
		return
	}
	r.orderCallback[toid] = cb
}

// fireTask runs (and unregisters) the per-ttid hook, or the default if
// none is registered. Panics inside the callback are caught and swallowed;
// task progression must never stop because a host callback misbehaved.
func (r *callbackRouter) fireTask(ctx context.Context, ttid Ttid, status TaskStatus, receipt string) {
	cb, ok := r.taskCallback[ttid]
	if ok {
		delete(r.taskCallback, ttid)
	} else {
		cb = r.defaultTask
	}
	if cb == nil {
		return
	}
	r.safeInvokeTask(ctx, cb, ttid, status, receipt)
}

func (r *callbackRouter) safeInvokeTask(ctx context.Context, cb Callback, ttid Ttid, status TaskStatus, receipt string) {
	defer func() {
		if rec := recover(); rec != nil && r.logger != nil {
			r.logger.Warn("tm2pc: task callback panicked", "ttid", ttid, "recover", rec)
		}
	}()
	cb(ctx, ttid, status, receipt)
}

// fireOrder runs the per-order hook (or default) and returns the
// callbackStatus to record on the order: Done on success, Error if the
// callback panicked.
func (r *callbackRouter) fireOrder(ctx context.Context, toid Toid, status OrderStatus) TaskStatus {
	cb, ok := r.orderCallback[toid]
	if ok {
		delete(r.orderCallback, toid)
	} else {
		cb = r.defaultOrder
	}
	if cb == nil {
		return StatusDone
	}
	return r.safeInvokeOrder(ctx, cb, toid, status)
}

func (r *callbackRouter) safeInvokeOrder(ctx context.Context, cb OrderCallback, toid Toid, status OrderStatus) (result TaskStatus) {
	result = StatusDone
	defer func() {
		if rec := recover(); rec != nil {
			if r.logger != nil {
				r.logger.Warn("tm2pc: order callback panicked", "toid", toid, "recover", rec)
			}
			result = StatusError
		}
	}()
	cb(ctx, toid, status)
	return
}
