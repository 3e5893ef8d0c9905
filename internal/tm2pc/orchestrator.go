package tm2pc

import "context"

// onRun drives Todo -> Preparing and kicks the actuator once. Called only
// from inside the command queue's single goroutine.
func (tm *TM) onRun(ctx context.Context, toid Toid) error {
	ctx, end := tm.startSpan(ctx, "tm2pc.run", toid)
	defer end()

	o, ok := tm.store.get(toid)
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status == OrderTodo {
		o.Status = OrderPreparing
		tm.emitTransition(ctx, o, OrderTodo)
	}
	_, err := tm.actuator.Run(ctx)
	return err
}

// startSpan is a nil-safe wrapper around the tracer seam so orchestrator
// code doesn't need a nil check at every call site.
func (tm *TM) startSpan(ctx context.Context, name string, toid Toid) (context.Context, func()) {
	if tm.tracer == nil {
		return ctx, func() {}
	}
	return tm.tracer.StartSpan(ctx, name, toid)
}

// onTaskCompletion is registered once with the actuator as the TM-supplied
// proxy (spec §4.2, "_taskCallbackProxy"). It must run inside the command
// queue goroutine; callers reach it only via tm.taskProxy below.
func (tm *TM) onTaskCompletion(ctx context.Context, c TaskCompletion) {
	o, ok := tm.store.get(c.Task.Toid)
	if !ok {
		// Missing order: no-op bookkeeping update, nothing created.
		return
	}

	ctx, end := tm.startSpan(ctx, "tm2pc.taskCompletion", o.Toid)
	defer end()

	// Snapshot gate/status before mutation; subsequent decisions in this
	// invocation use these, not whatever a callback might change them to.
	gate := o.AllowPushing
	statusBefore := o.Status

	tm.applyCompletion(o, c)
	tm.routeTaskCallback(ctx, o, c)
	tm.store.appendTaskEvent(o.Toid, c.Ttid)

	if gate != GateClosed {
		return
	}

	tm.advance(ctx, o, statusBefore)
}

// applyCompletion writes status onto whichever of TPCTask, TPCCommit or
// TPCCompensate owns ttid; id spaces are disjoint across orders so the
// first structural match wins.
func (tm *TM) applyCompletion(o *Order, c TaskCompletion) {
	if t := o.findTask(c.Ttid); t != nil {
		t.Status = c.Status
		return
	}
	if commit := o.findCommit(c.Ttid); commit != nil {
		commit.Status = c.Status
		return
	}
	if comp := o.findCompensate(c.Ttid); comp != nil {
		comp.Status = c.Status
		return
	}
}

func (tm *TM) routeTaskCallback(ctx context.Context, o *Order, c TaskCompletion) {
	tm.callbacks.fireTask(ctx, c.Ttid, c.Status, c.Receipt)
	_ = o
}

// advance applies the order-level transition table. statusBefore is the
// snapshotted pre-mutation status: the table is keyed on "From", which
// must not itself have moved mid-invocation.
func (tm *TM) advance(ctx context.Context, o *Order, statusBefore OrderStatus) {
	switch statusBefore {
	case OrderPreparing:
		switch Aggregate(o, PhasePrepare) {
		case ResultYes:
			o.Status = OrderCommitting
			tm.emitTransition(ctx, o, statusBefore)
			tm.commitFanOut(ctx, o)
		case ResultNo:
			o.Status = OrderCompensating
			tm.emitTransition(ctx, o, statusBefore)
			tm.compensateFanOut(ctx, o)
		default:
			return
		}
	case OrderCommitting:
		switch Aggregate(o, PhaseCommit) {
		case ResultYes:
			tm.terminalize(ctx, o, OrderDone)
		case ResultNo:
			o.Status = OrderBlocking
			tm.emitTransition(ctx, o, statusBefore)
		default:
			return
		}
	case OrderCompensating:
		switch Aggregate(o, PhaseCompensate) {
		case ResultYes:
			tm.terminalize(ctx, o, OrderAborted)
		case ResultNo:
			o.Status = OrderBlocking
			tm.emitTransition(ctx, o, statusBefore)
		default:
			return
		}
	default:
		return
	}
	tm.invalidateCache(ctx, o.Toid)
}

// commitFanOut pushes every participant's commit task (spec "_commit").
// Performed without an intervening suspension point once Prepare is Yes.
func (tm *TM) commitFanOut(ctx context.Context, o *Order) {
	ctx, end := tm.startSpan(ctx, "tm2pc.commitFanOut", o.Toid)
	defer end()
	for _, t := range o.Tasks {
		commitTask := t.Commit
		commitTask.Toid = o.Toid
		prepareTtid := t.Ttid
		commitTask.ForTtid = &prepareTtid

		ttid, err := tm.actuator.Push(ctx, commitTask)
		if err != nil {
			continue
		}

		o.Commits = append(o.Commits, &TPCCommit{
			Ttid:        ttid,
			Commit:      commitTask,
			PrepareTtid: prepareTtid,
			Status:      StatusTodo,
		})
		tm.callbacks.promoteCommitCallback(prepareTtid, ttid)
	}
}

// compensateFanOut pushes a compensation for every participant whose
// prepare succeeded (spec "_compensate"). Tasks that never reached Done
// have nothing to undo.
func (tm *TM) compensateFanOut(ctx context.Context, o *Order) {
	ctx, end := tm.startSpan(ctx, "tm2pc.compensateFanOut", o.Toid)
	defer end()
	for _, t := range o.Tasks {
		if t.Status != StatusDone || t.Comp == nil {
			continue
		}

		compTask := *t.Comp
		compTask.Toid = o.Toid
		forTtid := t.Ttid
		compTask.ForTtid = &forTtid

		tcid, err := tm.actuator.Push(ctx, compTask)
		if err != nil {
			continue
		}

		o.Comps = append(o.Comps, &TPCCompensate{
			ForTtid: forTtid,
			Tcid:    tcid,
			Comp:    compTask,
			Status:  StatusTodo,
		})
	}
}

// terminalize applies order-complete bookkeeping: set status, drop
// outstanding actuator tasks, invoke the order callback, publish the
// lifecycle event, and remove the order from the alive set.
func (tm *TM) terminalize(ctx context.Context, o *Order, status OrderStatus) {
	from := o.Status
	o.Status = status
	tm.actuator.RemoveByOid(ctx, o.Toid)

	cbStatus := tm.callbacks.fireOrder(ctx, o.Toid, status)
	o.CallbackStatus = &cbStatus

	tm.store.markTerminal(o.Toid)
	tm.emitTransition(ctx, o, from)
}

// emitTransition publishes the domain event for a transition, after it has
// already been applied. Event-bus failures are logged and swallowed; they
// can never affect order status.
func (tm *TM) emitTransition(ctx context.Context, o *Order, from OrderStatus) {
	if tm.events == nil {
		return
	}
	if err := tm.events.PublishTransition(ctx, o, from); err != nil && tm.logger != nil {
		tm.logger.Warn("tm2pc: failed to publish transition event", "toid", o.Toid, "error", err)
	}
}

// emitGovernance publishes an operator-initiated governance event (open,
// finish, update, remove, append, appendComp, complete). Like
// emitTransition, failures are logged and swallowed.
func (tm *TM) emitGovernance(ctx context.Context, toid Toid, op string) {
	if tm.events == nil {
		return
	}
	principal, _ := ctx.Value(principalContextKey{}).(string)
	if err := tm.events.PublishGovernance(ctx, toid, op, principal); err != nil && tm.logger != nil {
		tm.logger.Warn("tm2pc: failed to publish governance event", "toid", toid, "op", op, "error", err)
	}
}

// principalContextKey is the context key a host can set (via
// context.WithValue) to attribute a governance call to an operator
// identity; tm2pc never requires it.
type principalContextKey struct{}

// WithPrincipal returns a context carrying the given principal, picked up
// by emitGovernance for the duration of one governance call.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}
