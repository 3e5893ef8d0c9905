package actuator

import (
	"encoding/json"

	"github.com/tm2pc/txmanager/internal/tm2pc"
)

// snapshotData is the actuator's own contribution to tm2pc.TM's overall
// snapshot (see tm2pc.Data.ActuatorData). The callee registry and circuit
// breakers are not included: they are host-configured wiring, not state.
type snapshotData struct {
	NextTtid tm2pc.Ttid
	Tasks    []taskEntry
	Events   []tm2pc.TaskEvent
}

type taskEntry struct {
	Ttid     tm2pc.Ttid
	Task     tm2pc.Task
	Attempts int
	Status   tm2pc.TaskStatus
}

func (a *Actuator) GetData() any {
	a.mu.Lock()
	defer a.mu.Unlock()

	tasks := make([]taskEntry, 0, len(a.tasks))
	for _, rt := range a.tasks {
		tasks = append(tasks, taskEntry{Ttid: rt.ttid, Task: rt.task, Attempts: rt.attempts, Status: rt.status})
	}
	events := make([]tm2pc.TaskEvent, 0, len(a.events))
	for _, e := range a.events {
		events = append(events, e)
	}

	return snapshotData{NextTtid: a.nextTtid, Tasks: tasks, Events: events}
}

// SetData restores from a snapshot produced by GetData. Tasks come back
// with a reset retry clock: nextAt is not part of the snapshot, so a
// restored task is immediately eligible for its next attempt.
func (a *Actuator) SetData(data any) error {
	if data == nil {
		return nil
	}
	snap, ok := data.(snapshotData)
	if !ok {
		// A snapshot read back from a JSON store arrives as a generic map.
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &snap); err != nil {
			return err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextTtid = snap.NextTtid
	a.tasks = make(map[tm2pc.Ttid]*runningTask, len(snap.Tasks))
	for _, te := range snap.Tasks {
		a.tasks[te.Ttid] = &runningTask{ttid: te.Ttid, task: te.Task, attempts: te.Attempts, status: te.Status}
	}
	a.events = make(map[tm2pc.Ttid]tm2pc.TaskEvent, len(snap.Events))
	for _, e := range snap.Events {
		a.events[e.Ttid] = e
	}
	return nil
}
