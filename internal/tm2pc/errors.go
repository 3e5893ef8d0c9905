package tm2pc

import "errors"

// Governance and contract errors. Per the error handling design, these
// abort the calling operation loudly; no partial mutation is made.
var (
	ErrOrderNotFound = errors.New("tm2pc: order not found")
	ErrNotOpening    = errors.New("tm2pc: order gate is not Opening")
	ErrOrderTerminal = errors.New("tm2pc: order is already terminal")
	ErrTaskNotFound  = errors.New("tm2pc: task not found in order")
	ErrTaskCompleted = errors.New("tm2pc: task has already completed")
)
