package tm2pc

import "context"

// Governance operations. All assert the order exists, is gated Opening,
// and is not terminal, except complete (which operates on Blocking) and
// appendComp (also usable while Blocking to recover a stuck order).

func (tm *TM) assertMutable(o *Order) error {
	if o.AllowPushing != GateOpening {
		return ErrNotOpening
	}
	if o.Status.IsTerminal() {
		return ErrOrderTerminal
	}
	return nil
}

// Update replaces a participant's triplet before it has completed; the
// actuator reassigns the prepare a new ttid. Old per-ttid callbacks are
// cleared.
func (tm *TM) Update(ctx context.Context, toid Toid, ttid Ttid, prepare, commit Task, comp *Task, taskCb, commitCb Callback) (Ttid, error) {
	r, err := submit(ctx, tm.queue, func() pushResult {
		o, ok := tm.store.get(toid)
		if !ok {
			return pushResult{err: ErrOrderNotFound}
		}
		if err := tm.assertMutable(o); err != nil {
			return pushResult{err: err}
		}

		t := o.findTask(ttid)
		if t == nil {
			return pushResult{err: ErrTaskNotFound}
		}
		if tm.actuator.IsCompleted(ttid) {
			return pushResult{err: ErrTaskCompleted}
		}

		prepare.Toid = toid
		newTtid, uerr := tm.actuator.Update(ctx, ttid, prepare)
		if uerr != nil {
			return pushResult{err: uerr}
		}

		tm.callbacks.clearTaskCallback(ttid)

		t.Ttid = newTtid
		t.Prepare = prepare
		t.Commit = commit
		t.Comp = comp
		t.Status = StatusTodo

		tm.callbacks.setTaskCallback(newTtid, taskCb)
		tm.callbacks.parkCommitCallback(newTtid, commitCb)

		return pushResult{ttid: newTtid}
	})
	if err != nil {
		return 0, err
	}
	if r.err == nil {
		tm.invalidateCache(ctx, toid)
		tm.emitGovernance(ctx, toid, "update")
	}
	return r.ttid, r.err
}

// Remove cancels a not-yet-completed participant, dropping it from both
// the order and the actuator.
func (tm *TM) Remove(ctx context.Context, toid Toid, ttid Ttid) (bool, error) {
	ok, err := submit(ctx, tm.queue, func() bool {
		o, exists := tm.store.get(toid)
		if !exists {
			return false
		}
		if tm.assertMutable(o) != nil {
			return false
		}

		idx := -1
		for i, t := range o.Tasks {
			if t.Ttid == ttid {
				idx = i
				break
			}
		}
		if idx == -1 {
			return false
		}
		if tm.actuator.IsCompleted(ttid) {
			return false
		}

		if _, removed := tm.actuator.Remove(ctx, ttid); !removed {
			return false
		}

		o.Tasks = append(o.Tasks[:idx], o.Tasks[idx+1:]...)
		tm.callbacks.clearTaskCallback(ttid)
		return true
	})
	if err != nil {
		return false, err
	}
	if ok {
		tm.invalidateCache(ctx, toid)
		tm.emitGovernance(ctx, toid, "remove")
	}
	return ok, nil
}

// Append adds a participant to an in-flight order; only while Opening.
func (tm *TM) Append(ctx context.Context, toid Toid, prepare, commit Task, comp *Task, taskCb, commitCb Callback) (Ttid, error) {
	return tm.Push(ctx, toid, prepare, commit, comp, taskCb, commitCb)
}

// AppendComp injects a compensation for a specific prepare, used to
// recover a Blocking order by supplying the missing undo.
func (tm *TM) AppendComp(ctx context.Context, toid Toid, forTtid Ttid, comp Task, cb Callback) (Tcid, error) {
	r, err := submit(ctx, tm.queue, func() pushResult {
		o, ok := tm.store.get(toid)
		if !ok {
			return pushResult{err: ErrOrderNotFound}
		}
		// Unlike the other governance operations, appendComp's primary use
		// is recovering a Blocking order after finish has already closed
		// the gate, so it is not gated on AllowPushing; it only refuses a
		// terminal order, which has nothing left to recover.
		if o.Status.IsTerminal() {
			return pushResult{err: ErrOrderTerminal}
		}

		t := o.findTask(forTtid)
		if t == nil {
			return pushResult{err: ErrTaskNotFound}
		}

		comp.Toid = toid
		comp.ForTtid = &forTtid
		tcid, perr := tm.actuator.Push(ctx, comp)
		if perr != nil {
			return pushResult{err: perr}
		}

		t.Comp = &comp
		o.Comps = append(o.Comps, &TPCCompensate{
			ForTtid: forTtid,
			Tcid:    tcid,
			Comp:    comp,
			Status:  StatusTodo,
		})
		tm.callbacks.setTaskCallback(tcid, cb)

		return pushResult{ttid: tcid}
	})
	if err != nil {
		return 0, err
	}
	if r.err == nil {
		tm.invalidateCache(ctx, toid)
		tm.emitGovernance(ctx, toid, "appendComp")
	}
	return r.ttid, r.err
}

// Complete forces a Blocking order to a terminal status; succeeds only if
// the corresponding phase has resolved Yes.
func (tm *TM) Complete(ctx context.Context, toid Toid, target OrderStatus) (bool, error) {
	ok, err := submit(ctx, tm.queue, func() bool {
		o, exists := tm.store.get(toid)
		if !exists {
			return false
		}
		if target != OrderDone && target != OrderAborted {
			return false
		}
		if o.Status != OrderBlocking {
			return false
		}
		if o.AllowPushing != GateClosed {
			return false
		}

		var phase Phase
		if target == OrderDone {
			phase = PhaseCommit
		} else {
			phase = PhaseCompensate
		}
		if Aggregate(o, phase) != ResultYes {
			return false
		}

		tm.terminalize(ctx, o, target)
		return true
	})
	if err != nil {
		return false, err
	}
	if ok {
		tm.invalidateCache(ctx, toid)
		tm.emitGovernance(ctx, toid, "complete")
	}
	return ok, nil
}
