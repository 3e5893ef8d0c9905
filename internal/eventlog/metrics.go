package eventlog

import (
	"context"

	"github.com/tm2pc/txmanager/pkg/events"
	"github.com/tm2pc/txmanager/pkg/metrics"
)

// orderEventTypes are the topics SubscribeMetrics listens to; they mirror
// the order lifecycle constants in pkg/events.
var orderEventTypes = []string{
	events.OrderOpened,
	events.OrderPreparing,
	events.OrderCommitting,
	events.OrderCompensating,
	events.OrderDone,
	events.OrderAborted,
	events.OrderBlocking,
}

// taskEventTypes covers only the task events the bridge actually emits
// today (TaskPushed, from TM.Push); TaskCompleted/TaskRemoved remain
// reserved constants in pkg/events for a future actuator-side publisher.
var taskEventTypes = []string{
	events.TaskPushed,
}

var governanceEventTypes = []string{
	events.GovernanceFinished,
	events.GovernanceComplete,
}

// SubscribeMetrics wires a bus's order, task and governance topics into the
// Prometheus counters in pkg/metrics, keeping internal/tm2pc free of a
// direct Prometheus import: the TM core only knows about the
// transitionPublisher seam, and this subscriber listens on the same bus
// that seam publishes to.
func SubscribeMetrics(bus events.EventBus) error {
	for _, t := range orderEventTypes {
		eventType := t
		if err := bus.Subscribe(eventType, func(_ context.Context, e events.Event) error {
			metrics.EventsConsumed.WithLabelValues(e.Type, "metrics").Inc()
			metrics.RecordOrderTransition(statusFromEventType(e.Type))
			return nil
		}); err != nil {
			return err
		}
	}

	for _, t := range taskEventTypes {
		eventType := t
		if err := bus.Subscribe(eventType, func(_ context.Context, e events.Event) error {
			metrics.EventsConsumed.WithLabelValues(e.Type, "metrics").Inc()
			if eventType == events.TaskPushed {
				callee, _ := e.Payload["callee"].(string)
				phase, _ := e.Payload["phase"].(string)
				metrics.RecordTaskDispatch(callee, phase)
			}
			return nil
		}); err != nil {
			return err
		}
	}

	for _, t := range governanceEventTypes {
		eventType := t
		// This subscriber only tracks consumption of the event itself;
		// per-role governance call counts (metrics.RecordGovernanceCall) are
		// not recorded anywhere in this module.
		if err := bus.Subscribe(eventType, func(_ context.Context, e events.Event) error {
			metrics.EventsConsumed.WithLabelValues(e.Type, "metrics").Inc()
			return nil
		}); err != nil {
			return err
		}
	}

	return nil
}

func statusFromEventType(eventType string) string {
	switch eventType {
	case events.OrderOpened:
		return "Todo"
	case events.OrderPreparing:
		return "Preparing"
	case events.OrderCommitting:
		return "Committing"
	case events.OrderCompensating:
		return "Compensating"
	case events.OrderDone:
		return "Done"
	case events.OrderAborted:
		return "Aborted"
	case events.OrderBlocking:
		return "Blocking"
	default:
		return "unknown"
	}
}
