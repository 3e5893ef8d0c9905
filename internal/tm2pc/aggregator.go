package tm2pc

// Aggregate is the pure phase aggregator: it reduces an order's
// per-participant task statuses for one phase down to a single result.
// No dominates Doing dominates Yes; an empty list is vacuously Yes.
func Aggregate(order *Order, phase Phase) PhaseResult {
	if order == nil {
		return ResultNone
	}

	statuses := phaseStatuses(order, phase)

	sawDoing := false
	for _, s := range statuses {
		switch s {
		case StatusError, StatusUnknown:
			return ResultNo
		case StatusTodo, StatusDoing:
			sawDoing = true
		}
	}

	if sawDoing {
		return ResultDoing
	}
	return ResultYes
}

func phaseStatuses(order *Order, phase Phase) []TaskStatus {
	switch phase {
	case PhasePrepare:
		statuses := make([]TaskStatus, len(order.Tasks))
		for i, t := range order.Tasks {
			statuses[i] = t.Status
		}
		return statuses
	case PhaseCommit:
		statuses := make([]TaskStatus, len(order.Commits))
		for i, c := range order.Commits {
			statuses[i] = c.Status
		}
		return statuses
	case PhaseCompensate:
		statuses := make([]TaskStatus, len(order.Comps))
		for i, c := range order.Comps {
			statuses[i] = c.Status
		}
		return statuses
	default:
		return nil
	}
}
