package viz

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/nodemap/internal/schedule"
	"github.com/signalsfoundry/nodemap/internal/surface"
	"github.com/signalsfoundry/nodemap/model"
)

var renderEpoch = time.Unix(0, 0).UTC()

// RenderSVG draws nodes once, with every marker at its settled radius, and
// writes the SVG document to w. It runs a private engine on a simulated clock
// so no animation task outlives the call. Invalid records are skipped and
// logged by the engine; the returned error reports only configuration or
// write failures.
func RenderSVG(ctx context.Context, w io.Writer, cfg Config, nodes []model.NodeRecord, opts ...Option) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "viz.RenderSVG",
		trace.WithAttributes(
			attribute.String("engine.variant", string(cfg.Variant)),
			attribute.Int("nodes.input", len(nodes)),
		))
	defer span.End()

	sched := schedule.NewFakeEventScheduler(renderEpoch)
	e, err := New(cfg, sched, opts...)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer e.Close()

	_ = e.Update(ctx, nodes)
	sched.Advance(e.anim.Config().EnterDuration)
	e.Tick()

	if err := e.Draw(surface.NewSVG(w)); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
