package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tm2pc/txmanager/internal/tm2pc"
	"github.com/tm2pc/txmanager/pkg/events"
)

// Bridge satisfies tm2pc's unexported transitionPublisher seam on top of
// pkg/events.EventBus, translating order transitions and governance calls
// into events.Event and publishing them to a fixed topic.
type Bridge struct {
	bus   events.EventBus
	topic string
}

func NewBridge(bus events.EventBus, topic string) *Bridge {
	if topic == "" {
		topic = "tm2pc.orders"
	}
	return &Bridge{bus: bus, topic: topic}
}

func (b *Bridge) PublishTransition(ctx context.Context, o *tm2pc.Order, from tm2pc.OrderStatus) error {
	event := events.NewEventBuilder(transitionEventType(o.Status)).
		WithAggregateID(fmt.Sprintf("%d", o.Toid)).
		WithAggregateType("order").
		WithPayload("toid", o.Toid).
		WithPayload("from", string(from)).
		WithPayload("to", string(o.Status)).
		Build()
	return b.bus.Publish(ctx, event)
}

func (b *Bridge) PublishGovernance(ctx context.Context, toid tm2pc.Toid, op string, principal string) error {
	eventType := events.GovernanceFinished
	if op == "complete" {
		eventType = events.GovernanceComplete
	}
	event := events.NewEventBuilder(eventType).
		WithAggregateID(fmt.Sprintf("%d", toid)).
		WithAggregateType("order").
		WithUserID(principal).
		WithPayload("toid", toid).
		WithPayload("op", op).
		Build()
	return b.bus.Publish(ctx, event)
}

func (b *Bridge) PublishTaskPushed(ctx context.Context, ttid tm2pc.Ttid, toid tm2pc.Toid, callee string, phase tm2pc.Phase) error {
	event := events.NewEventBuilder(events.TaskPushed).
		WithAggregateID(fmt.Sprintf("%d", toid)).
		WithAggregateType("order").
		WithPayload("ttid", ttid).
		WithPayload("toid", toid).
		WithPayload("callee", callee).
		WithPayload("phase", string(phase)).
		Build()
	return b.bus.Publish(ctx, event)
}

func transitionEventType(status tm2pc.OrderStatus) string {
	switch status {
	case tm2pc.OrderPreparing:
		return events.OrderPreparing
	case tm2pc.OrderCommitting:
		return events.OrderCommitting
	case tm2pc.OrderCompensating:
		return events.OrderCompensating
	case tm2pc.OrderBlocking:
		return events.OrderBlocking
	case tm2pc.OrderDone:
		return events.OrderDone
	case tm2pc.OrderAborted:
		return events.OrderAborted
	default:
		return events.OrderOpened
	}
}

// InProcessBus is a minimal events.EventBus that dispatches synchronously
// to in-memory subscribers, for tests and for single-process deployments
// that don't need Kafka. It fills in ID/Timestamp the same way
// events.KafkaEventBus.Publish does.
type InProcessBus struct {
	handlers map[string][]events.EventHandler
}

func NewInProcessBus() *InProcessBus {
	return &InProcessBus{handlers: make(map[string][]events.EventHandler)}
}

func (b *InProcessBus) Publish(ctx context.Context, event events.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	for _, h := range b.handlers[event.Type] {
		if err := h(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (b *InProcessBus) Subscribe(topic string, handler events.EventHandler) error {
	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

func (b *InProcessBus) Close() error { return nil }
