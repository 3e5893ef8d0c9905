package adminserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tm2pc/txmanager/pkg/telemetry"
)

func TestTracerAdapterStartSpanEndsCleanly(t *testing.T) {
	adapter := NewTracerAdapter(telemetry.NewNop())

	ctx, end := adapter.StartSpan(context.Background(), "tm2pc.run", 42)
	assert.NotNil(t, ctx)
	assert.NotPanics(t, end)
}
