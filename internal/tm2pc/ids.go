package tm2pc

// Toid identifies an order. Ttid identifies a task pushed to the actuator;
// Tcid is the same id space used for compensation tasks. All three are
// monotonic natural numbers, never reused, assigned by their respective
// allocators (the order store for Toid, the actuator for Ttid/Tcid).
type Toid uint64

type Ttid uint64

type Tcid = Ttid

// NoTtid is the zero value, used where a ttid reference is optional
// (e.g. an order with no commits yet recorded).
const NoTtid Ttid = 0

// NoToid is the zero value; Toid allocation starts at 1.
const NoToid Toid = 0
