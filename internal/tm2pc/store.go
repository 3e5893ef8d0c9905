package tm2pc

import (
	"encoding/json"
	"time"
)

// DefaultAutoClearTimeout is "three months" per the retention rule: orders
// are kept around after terminalizing for inspection, then swept by clear.
const DefaultAutoClearTimeout = 90 * 24 * time.Hour

// orderStore is the in-memory mapping from Toid to Order, plus the
// monotonic id allocator, the sliding firstIndex GC pointer, and the set
// of non-terminal orders with at least one task (the alive set).
type orderStore struct {
	orders           map[Toid]*Order
	index            Toid
	firstIndex       Toid
	alive            map[Toid]struct{}
	taskEvents       map[Toid][]Ttid
	autoClearTimeout time.Duration
	now              func() time.Time
}

func newOrderStore(now func() time.Time) *orderStore {
	if now == nil {
		now = time.Now
	}
	return &orderStore{
		orders:           make(map[Toid]*Order),
		index:            1,
		firstIndex:       1,
		alive:            make(map[Toid]struct{}),
		taskEvents:       make(map[Toid][]Ttid),
		autoClearTimeout: DefaultAutoClearTimeout,
		now:              now,
	}
}

// create allocates the next Toid and stores a fresh order.
func (s *orderStore) create(data json.RawMessage) *Order {
	toid := s.index
	s.index++

	order := &Order{
		Toid:         toid,
		Tasks:        nil,
		Commits:      nil,
		Comps:        nil,
		AllowPushing: GateOpening,
		Status:       OrderTodo,
		Time:         s.now(),
		Data:         data,
	}
	s.orders[toid] = order
	return order
}

func (s *orderStore) get(toid Toid) (*Order, bool) {
	o, ok := s.orders[toid]
	return o, ok
}

// markAlive/markTerminal maintain invariant 7: the alive set holds exactly
// the non-terminal orders that have at least one task.
func (s *orderStore) markAlive(toid Toid) {
	o, ok := s.orders[toid]
	if !ok || o.Status.IsTerminal() || len(o.Tasks) == 0 {
		return
	}
	s.alive[toid] = struct{}{}
}

func (s *orderStore) markTerminal(toid Toid) {
	delete(s.alive, toid)
}

func (s *orderStore) appendTaskEvent(toid Toid, ttid Ttid) {
	s.taskEvents[toid] = append(s.taskEvents[toid], ttid)
}

func (s *orderStore) getTaskEvents(toid Toid) []Ttid {
	return s.taskEvents[toid]
}

func (s *orderStore) getAliveOrders() []*Order {
	out := make([]*Order, 0, len(s.alive))
	for toid := range s.alive {
		if o, ok := s.orders[toid]; ok {
			out = append(out, o)
		}
	}
	return out
}

// page returns a 1-indexed slice of live orders in id order, honoring the
// public pagination contract: {data, totalPage, total}.
func (s *orderStore) page(pageNum, size int) (data []*Order, total int, totalPages int) {
	if pageNum < 1 {
		pageNum = 1
	}
	if size < 1 {
		size = 1
	}

	ids := make([]Toid, 0, len(s.orders))
	for toid := range s.orders {
		if toid >= s.firstIndex {
			ids = append(ids, toid)
		}
	}
	// simple insertion sort; order counts are small relative to the
	// system resources this TM is meant to run inside of
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}

	total = len(ids)
	totalPages = total / size
	if total%size > 0 {
		totalPages++
	}

	start := (pageNum - 1) * size
	if start >= total {
		return nil, total, totalPages
	}
	end := start + size
	if end > total {
		end = total
	}

	data = make([]*Order, 0, end-start)
	for _, id := range ids[start:end] {
		data = append(data, s.orders[id])
	}
	return data, total, totalPages
}

// clear sweeps from firstIndex upward, deleting empty and expired slots,
// and stops advancing firstIndex at the first order it cannot remove.
// This preserves invariant 8: firstIndex <= smallest live order id.
func (s *orderStore) clear(delExc bool) {
	for {
		toid := s.firstIndex
		if toid >= s.index {
			return
		}

		o, ok := s.orders[toid]
		if !ok {
			s.firstIndex++
			continue
		}

		expired := s.now().After(o.Time.Add(s.autoClearTimeout))
		deletable := expired && (delExc || o.Status == OrderDone || o.Status == OrderAborted)
		if !deletable {
			return
		}

		delete(s.orders, toid)
		delete(s.taskEvents, toid)
		delete(s.alive, toid)
		s.firstIndex++
	}
}
