package adminserver

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/tm2pc/txmanager/internal/tm2pc"
	"github.com/tm2pc/txmanager/pkg/telemetry"
)

// TracerAdapter satisfies tm2pc's tracer seam on top of pkg/telemetry, so
// the core package never imports go.opentelemetry.io directly.
type TracerAdapter struct {
	telemetry *telemetry.Telemetry
}

func NewTracerAdapter(t *telemetry.Telemetry) *TracerAdapter {
	return &TracerAdapter{telemetry: t}
}

func (a *TracerAdapter) StartSpan(ctx context.Context, name string, toid tm2pc.Toid) (context.Context, func()) {
	ctx, span := a.telemetry.StartSpan(ctx, name, trace.WithAttributes(
		telemetry.ToidAttribute(uint64(toid)),
	))
	return ctx, func() { span.End() }
}
