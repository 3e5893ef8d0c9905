package eventlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tm2pc/txmanager/internal/tm2pc"
	"github.com/tm2pc/txmanager/pkg/events"
)

func TestBridgePublishTransitionDispatchesByStatus(t *testing.T) {
	bus := NewInProcessBus()
	bridge := NewBridge(bus, "")

	var got events.Event
	require.NoError(t, bus.Subscribe(events.OrderDone, func(ctx context.Context, e events.Event) error {
		got = e
		return nil
	}))

	order := &tm2pc.Order{Toid: 7, Status: tm2pc.OrderDone}
	require.NoError(t, bridge.PublishTransition(context.Background(), order, tm2pc.OrderCommitting))

	assert.Equal(t, "7", got.AggregateID)
	assert.Equal(t, "order", got.AggregateType)
	assert.Equal(t, "Committing", got.Payload["from"])
	assert.Equal(t, "Done", got.Payload["to"])
}

func TestBridgePublishGovernanceCarriesPrincipal(t *testing.T) {
	bus := NewInProcessBus()
	bridge := NewBridge(bus, "")

	var got events.Event
	require.NoError(t, bus.Subscribe(events.GovernanceComplete, func(ctx context.Context, e events.Event) error {
		got = e
		return nil
	}))

	require.NoError(t, bridge.PublishGovernance(context.Background(), 9, "complete", "operator-1"))

	assert.Equal(t, "9", got.AggregateID)
	assert.Equal(t, "operator-1", got.UserID)
	assert.Equal(t, "complete", got.Payload["op"])
}

func TestBridgePublishTaskPushedCarriesCalleeAndPhase(t *testing.T) {
	bus := NewInProcessBus()
	bridge := NewBridge(bus, "")

	var got events.Event
	require.NoError(t, bus.Subscribe(events.TaskPushed, func(ctx context.Context, e events.Event) error {
		got = e
		return nil
	}))

	require.NoError(t, bridge.PublishTaskPushed(context.Background(), 3, 7, "inventory-svc", tm2pc.PhasePrepare))

	assert.Equal(t, "7", got.AggregateID)
	assert.Equal(t, "inventory-svc", got.Payload["callee"])
	assert.Equal(t, "Prepare", got.Payload["phase"])
}

func TestInProcessBusFanOutToMultipleHandlers(t *testing.T) {
	bus := NewInProcessBus()
	var calls int
	require.NoError(t, bus.Subscribe("topic.a", func(ctx context.Context, e events.Event) error {
		calls++
		return nil
	}))
	require.NoError(t, bus.Subscribe("topic.a", func(ctx context.Context, e events.Event) error {
		calls++
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), events.Event{Type: "topic.a"}))
	assert.Equal(t, 2, calls)
}
