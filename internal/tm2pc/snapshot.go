package tm2pc

import (
	"context"
	"time"
)

// orderEntry and eventsEntry give getData a deterministic, serializable
// sequence-of-pairs shape instead of a bare Go map (map iteration order
// is not stable and must never leak into a snapshot).
type orderEntry struct {
	Toid  Toid   `json:"toid"`
	Order *Order `json:"order"`
}

type eventsEntry struct {
	Toid  Toid   `json:"toid"`
	Ttids []Ttid `json:"ttids"`
}

// Data is the deterministic snapshot shape described in spec §4.6. Per-task
// and per-order callback maps are intentionally excluded: they reference
// host-side closures that cannot be serialized, so after restore only the
// process-wide defaults fire until the host re-registers callbacks via
// governance calls.
type Data struct {
	AutoClearTimeout time.Duration `json:"autoClearTimeout"`
	Index            Toid          `json:"index"`
	FirstIndex       Toid          `json:"firstIndex"`
	Orders           []orderEntry  `json:"orders"`
	Alive            []Toid        `json:"alive"`
	TaskEvents       []eventsEntry `json:"taskEvents"`
	ActuatorData     any           `json:"actuatorData"`
}

// GetData returns a deterministic snapshot of all in-memory state,
// including the actuator's own snapshot.
func (tm *TM) GetData(ctx context.Context) (Data, error) {
	return submit(ctx, tm.queue, func() Data {
		orders := make([]orderEntry, 0, len(tm.store.orders))
		ids := make([]Toid, 0, len(tm.store.orders))
		for toid := range tm.store.orders {
			ids = append(ids, toid)
		}
		sortToids(ids)
		for _, toid := range ids {
			orders = append(orders, orderEntry{Toid: toid, Order: tm.store.orders[toid]})
		}

		alive := make([]Toid, 0, len(tm.store.alive))
		for toid := range tm.store.alive {
			alive = append(alive, toid)
		}
		sortToids(alive)

		events := make([]eventsEntry, 0, len(tm.store.taskEvents))
		evIDs := make([]Toid, 0, len(tm.store.taskEvents))
		for toid := range tm.store.taskEvents {
			evIDs = append(evIDs, toid)
		}
		sortToids(evIDs)
		for _, toid := range evIDs {
			events = append(events, eventsEntry{Toid: toid, Ttids: tm.store.taskEvents[toid]})
		}

		return Data{
			AutoClearTimeout: tm.store.autoClearTimeout,
			Index:            tm.store.index,
			FirstIndex:       tm.store.firstIndex,
			Orders:           orders,
			Alive:            alive,
			TaskEvents:       events,
			ActuatorData:     tm.actuator.GetData(),
		}
	})
}

// SetData replaces all state atomically. Callback maps are not restored;
// only the process-wide defaults will fire until re-registered.
func (tm *TM) SetData(ctx context.Context, data Data) error {
	_, err := submit(ctx, tm.queue, func() error {
		orders := make(map[Toid]*Order, len(data.Orders))
		for _, e := range data.Orders {
			orders[e.Toid] = e.Order
		}

		alive := make(map[Toid]struct{}, len(data.Alive))
		for _, toid := range data.Alive {
			alive[toid] = struct{}{}
		}

		events := make(map[Toid][]Ttid, len(data.TaskEvents))
		for _, e := range data.TaskEvents {
			events[e.Toid] = e.Ttids
		}

		tm.store.orders = orders
		tm.store.alive = alive
		tm.store.taskEvents = events
		tm.store.index = data.Index
		tm.store.firstIndex = data.FirstIndex
		tm.store.autoClearTimeout = data.AutoClearTimeout

		tm.callbacks.taskCallback = make(map[Ttid]Callback)
		tm.callbacks.commitCallbackTemp = make(map[Ttid]Callback)
		tm.callbacks.orderCallback = make(map[Toid]OrderCallback)

		return tm.actuator.SetData(data.ActuatorData)
	})
	return err
}

func sortToids(ids []Toid) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
