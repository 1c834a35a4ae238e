// Package viz is the node-visualisation engine: it projects NodeRecords onto
// a flat map or a rotatable globe, spreads overlapping markers, animates
// them, and answers pointer input with hover tooltips and globe rotation.
//
// An Engine is owned by a single goroutine (the host's frame loop). It holds
// no package-level state, so any number of engines can coexist.
package viz

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/nodemap/core"
	"github.com/signalsfoundry/nodemap/internal/backdrop"
	"github.com/signalsfoundry/nodemap/internal/logging"
	"github.com/signalsfoundry/nodemap/internal/schedule"
	"github.com/signalsfoundry/nodemap/internal/surface"
	"github.com/signalsfoundry/nodemap/model"
)

const tracerName = "github.com/signalsfoundry/nodemap/internal/viz"

// ErrInvalidConfig is returned by New for unusable sizes or variants.
var ErrInvalidConfig = errors.New("invalid engine config")

// Variant selects the projection.
type Variant string

const (
	VariantFlat  Variant = "flat"
	VariantGlobe Variant = "globe"
)

// ParseVariant accepts "flat" or "globe".
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case VariantFlat, VariantGlobe:
		return Variant(s), nil
	}
	return "", fmt.Errorf("%w: unknown variant %q", ErrInvalidConfig, s)
}

// Config describes one visualisation.
type Config struct {
	Variant   Variant
	Width     float64
	Height    float64
	Rotation  core.Rotation // initial globe rotation; ignored for flat maps
	Animation AnimationConfig
}

// MetricsRecorder receives engine counters. observability.VizCollector
// implements it.
type MetricsRecorder interface {
	RecordsRejected(reason string, n int)
	ProjectionRejected(variant string, n int)
	MarkerStateDelta(variant, state string, delta int)
	InteractionEvent(kind string)
}

// RenderedMarker is a marker as drawn in the current frame.
type RenderedMarker struct {
	ID        string      `json:"id"`
	ScreenPos core.Point  `json:"screen_pos"`
	Radius    float64     `json:"radius"`
	Color     string      `json:"color"`
	Visible   bool        `json:"visible"`
	State     MarkerState `json:"state"`
}

type layoutPos struct {
	pos core.Point
	ok  bool
}

// Engine is one flat-map or globe visualisation.
type Engine struct {
	id    string
	cfg   Config
	sched schedule.EventScheduler
	anim  *Animator
	proj  core.Projection
	globe *core.GlobeProjection

	order   []string                    // z-order, bottom first
	records map[string]model.NodeRecord // current and exiting markers
	live    map[string]bool             // ids present in the latest update
	layout  map[string]layoutPos

	interaction *Interaction
	subs        subscribers
	backdrop    *backdrop.Tracker

	stateCounts map[MarkerState]int

	log     logging.Logger
	metrics MetricsRecorder
	rng     *rand.Rand
	closed  bool
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRand sets the random source for pulse phases.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// WithBackdrop sets the backdrop tracker drawn behind the markers.
func WithBackdrop(t *backdrop.Tracker) Option {
	return func(e *Engine) { e.backdrop = t }
}

// New builds an engine that animates on sched.
func New(cfg Config, sched schedule.EventScheduler, opts ...Option) (*Engine, error) {
	if sched == nil {
		return nil, fmt.Errorf("%w: nil scheduler", ErrInvalidConfig)
	}
	if !(cfg.Width > 0) || !(cfg.Height > 0) || math.IsInf(cfg.Width, 0) || math.IsInf(cfg.Height, 0) {
		return nil, fmt.Errorf("%w: surface %vx%v", ErrInvalidConfig, cfg.Width, cfg.Height)
	}
	if _, err := ParseVariant(string(cfg.Variant)); err != nil {
		return nil, err
	}

	e := &Engine{
		id:          uuid.NewString(),
		cfg:         cfg,
		sched:       sched,
		records:     make(map[string]model.NodeRecord),
		live:        make(map[string]bool),
		layout:      make(map[string]layoutPos),
		stateCounts: make(map[MarkerState]int),
		log:         logging.Noop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(logging.String("engine_id", e.id), logging.String("variant", string(cfg.Variant)))

	switch cfg.Variant {
	case VariantGlobe:
		e.globe = core.NewGlobeProjection(cfg.Width, cfg.Height, cfg.Rotation)
		e.proj = e.globe
	default:
		e.proj = core.NewFlatProjection(cfg.Width, cfg.Height)
	}

	e.anim = NewAnimator(cfg.Animation, sched, e.rng)
	e.anim.OnRemove(e.forget)
	e.interaction = newInteraction(e)
	return e, nil
}

// ID returns the engine's unique id.
func (e *Engine) ID() string { return e.id }

// Variant returns the projection variant.
func (e *Engine) Variant() Variant { return e.cfg.Variant }

// Update replaces the node set. Invalid records are skipped and reported in
// the returned error (an errors.Join of *model.ValidationError); valid
// records are applied regardless. When an id appears more than once the
// last record wins and keeps the z-order slot of the first occurrence.
// Markers whose id is absent from nodes exit. nodes is not modified.
func (e *Engine) Update(ctx context.Context, nodes []model.NodeRecord) error {
	if e.closed {
		return nil
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "viz.Engine.Update",
		trace.WithAttributes(
			attribute.String("engine.variant", string(e.cfg.Variant)),
			attribute.Int("nodes.input", len(nodes)),
		))
	defer span.End()

	var errs []error
	next := make([]model.NodeRecord, 0, len(nodes))
	slot := make(map[string]int, len(nodes))
	for _, rec := range nodes {
		if err := rec.Validate(); err != nil {
			errs = append(errs, err)
			e.log.Warn(ctx, "rejecting node record", logging.String("id", rec.ID), logging.Err(err))
			e.recordRejected(err)
			continue
		}
		if i, dup := slot[rec.ID]; dup {
			e.log.Warn(ctx, "duplicate node id; last record wins", logging.String("id", rec.ID))
			if e.metrics != nil {
				e.metrics.RecordsRejected("duplicate_id", 1)
			}
			next[i] = rec
			continue
		}
		slot[rec.ID] = len(next)
		next = append(next, rec)
	}

	for _, id := range append([]string(nil), e.order...) {
		if _, keep := slot[id]; !keep && e.live[id] {
			delete(e.live, id)
			e.anim.Remove(id)
		}
	}

	var exiting []string
	for _, id := range e.order {
		if _, keep := slot[id]; !keep {
			if _, still := e.records[id]; still {
				exiting = append(exiting, id)
			}
		}
	}
	order := exiting
	for _, rec := range next {
		e.anim.Apply(rec)
		e.records[rec.ID] = rec
		e.live[rec.ID] = true
		order = append(order, rec.ID)
	}
	e.order = order

	e.relayout()
	e.interaction.refresh()
	e.syncStateMetrics()

	span.SetAttributes(
		attribute.Int("nodes.accepted", len(next)),
		attribute.Int("nodes.rejected", len(errs)),
	)
	if len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		return err
	}
	return nil
}

// Tick runs due animation tasks. Hosts call it once per frame.
func (e *Engine) Tick() {
	if e.closed {
		return
	}
	e.sched.RunDue()
	e.syncStateMetrics()
}

// Markers returns every marker in z-order with its current appearance.
func (e *Engine) Markers() []RenderedMarker {
	if e.closed {
		return nil
	}
	now := e.sched.Now()
	out := make([]RenderedMarker, 0, len(e.order))
	for _, id := range e.order {
		s, ok := e.anim.Sample(id, now)
		if !ok {
			continue
		}
		lp := e.layout[id]
		out = append(out, RenderedMarker{
			ID:        id,
			ScreenPos: lp.pos,
			Radius:    s.Radius,
			Color:     s.Color,
			Visible:   lp.ok,
			State:     s.State,
		})
	}
	return out
}

// MarkerState returns the lifecycle stage of id.
func (e *Engine) MarkerState(id string) MarkerState { return e.anim.State(id) }

// Rotation returns the globe rotation; flat maps report the zero rotation.
func (e *Engine) Rotation() core.Rotation {
	if e.globe == nil {
		return core.Rotation{}
	}
	return e.globe.Rotation()
}

// SetRotation points the globe. It is a no-op for flat maps.
func (e *Engine) SetRotation(r core.Rotation) {
	if e.closed || e.globe == nil {
		return
	}
	e.globe.SetRotation(r)
	e.relayout()
	e.interaction.refresh()
	e.emit(Event{Kind: EventRotationChanged, Rotation: e.globe.Rotation()})
}

// Interaction exposes the pointer state machine.
func (e *Engine) Interaction() *Interaction { return e.interaction }

// PointerMove forwards pointer motion.
func (e *Engine) PointerMove(p core.Point) {
	if !e.closed {
		e.interaction.PointerMove(p)
	}
}

// PointerDown forwards a button press.
func (e *Engine) PointerDown(p core.Point) {
	if !e.closed {
		e.interaction.PointerDown(p)
	}
}

// PointerUp forwards a button release.
func (e *Engine) PointerUp(p core.Point) {
	if !e.closed {
		e.interaction.PointerUp(p)
	}
}

// PointerLeave forwards the pointer leaving the surface.
func (e *Engine) PointerLeave() {
	if !e.closed {
		e.interaction.PointerLeave()
	}
}

// Subscribe registers fn for interaction events and returns a function that
// removes it.
func (e *Engine) Subscribe(fn func(Event)) (unsubscribe func()) {
	if e.closed || fn == nil {
		return func() {}
	}
	return e.subs.add(fn)
}

// Close cancels every pending animation task and drops subscribers. No
// callback fires after Close returns.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.anim.Close()
	e.subs.clear()
	for state, n := range e.stateCounts {
		if n != 0 && e.metrics != nil {
			e.metrics.MarkerStateDelta(string(e.cfg.Variant), state.String(), -n)
		}
	}
	e.stateCounts = map[MarkerState]int{}
	e.order, e.layout = nil, map[string]layoutPos{}
	e.closed = true
}

// PendingTasks reports outstanding animation tasks.
func (e *Engine) PendingTasks() int { return e.anim.PendingTasks() }

// relayout projects every marker and spreads overlapping ones.
func (e *Engine) relayout() {
	w, _ := e.proj.Size()
	layout := make(map[string]layoutPos, len(e.order))
	items := make([]core.JitterItem, 0, len(e.order))
	rejected := 0
	for _, id := range e.order {
		rec, ok := e.records[id]
		if !ok {
			continue
		}
		pos, ok := e.proj.Project(rec.Location)
		if !ok {
			rejected++
			layout[id] = layoutPos{}
			continue
		}
		layout[id] = layoutPos{pos: pos, ok: true}
		items = append(items, core.JitterItem{ID: id, Pos: pos})
	}
	for id, off := range core.Jitter(items, w) {
		lp := layout[id]
		lp.pos = e.keepOnSurface(lp.pos.Add(off))
		layout[id] = lp
	}
	e.layout = layout
	if rejected > 0 && e.metrics != nil {
		e.metrics.ProjectionRejected(string(e.cfg.Variant), rejected)
	}
}

// keepOnSurface pulls a jittered point back inside the drawable area: the
// surface rectangle for flat maps, the globe disc otherwise.
func (e *Engine) keepOnSurface(p core.Point) core.Point {
	if e.globe != nil {
		c, r := e.globe.Center, e.globe.Scale
		if d := p.DistanceTo(c); d > r {
			k := r / d
			return core.Point{X: c.X + (p.X-c.X)*k, Y: c.Y + (p.Y-c.Y)*k}
		}
		return p
	}
	w, h := e.proj.Size()
	return core.Point{X: math.Max(0, math.Min(w, p.X)), Y: math.Max(0, math.Min(h, p.Y))}
}

// forget runs once the animator has fully removed a marker.
func (e *Engine) forget(id string) {
	if e.live[id] {
		return
	}
	delete(e.records, id)
	delete(e.layout, id)
	for i, oid := range e.order {
		if oid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.interaction.refresh()
}

func (e *Engine) syncStateMetrics() {
	counts := make(map[MarkerState]int, len(e.stateCounts))
	for _, id := range e.order {
		if st := e.anim.State(id); st != StateAbsent {
			counts[st]++
		}
	}
	if e.metrics != nil {
		for _, st := range []MarkerState{StateEntering, StateSteady, StatePulsing, StateExiting} {
			if d := counts[st] - e.stateCounts[st]; d != 0 {
				e.metrics.MarkerStateDelta(string(e.cfg.Variant), st.String(), d)
			}
		}
	}
	e.stateCounts = counts
}

func (e *Engine) recordRejected(err error) {
	if e.metrics == nil {
		return
	}
	reason := "invalid"
	switch {
	case errors.Is(err, model.ErrMissingID):
		reason = "missing_id"
	case errors.Is(err, model.ErrInvalidCoordinate):
		reason = "invalid_coordinate"
	case errors.Is(err, model.ErrInvalidCount):
		reason = "invalid_count"
	case errors.Is(err, model.ErrInvalidStatus):
		reason = "invalid_status"
	}
	e.metrics.RecordsRejected(reason, 1)
}

// interactionHost implementation.

func (e *Engine) renderedMarkers() []RenderedMarker { return e.Markers() }

func (e *Engine) record(id string) (model.NodeRecord, bool) {
	if !e.live[id] {
		return model.NodeRecord{}, false
	}
	rec, ok := e.records[id]
	return rec, ok
}

func (e *Engine) setHovered(id string, hovered bool) { e.anim.SetHovered(id, hovered) }

func (e *Engine) canDrag() bool { return e.globe != nil }

func (e *Engine) drag(dx, dy float64) (core.Rotation, bool) {
	if e.globe == nil {
		return core.Rotation{}, false
	}
	r := e.globe.Drag(dx, dy)
	e.relayout()
	return r, true
}

func (e *Engine) size() (float64, float64) { return e.proj.Size() }

func (e *Engine) emit(ev Event) {
	if e.metrics != nil {
		e.metrics.InteractionEvent(string(ev.Kind))
	}
	e.subs.emit(ev)
}

// Draw paints the current frame onto s: the globe disc, the backdrop (or a
// placeholder while it is unavailable), the visible markers in z-order, and
// the tooltip.
func (e *Engine) Draw(s surface.Surface) error {
	w, h := e.proj.Size()
	s.Begin(w, h)

	if e.globe != nil {
		s.Circle("", e.globe.Center, e.globe.Scale, surface.Style{Fill: "#0f172a", Stroke: "#334155", StrokeWidth: 1})
	}
	e.drawBackdrop(s, w, h)

	if !e.closed {
		for _, m := range e.Markers() {
			if !m.Visible || m.Radius <= 0 {
				continue
			}
			style := surface.Style{Fill: m.Color, Stroke: "#ffffff", StrokeWidth: 0.5, Class: "marker " + m.State.String()}
			if m.State == StatePulsing {
				style.Opacity = 0.9
			}
			s.Circle("marker-"+m.ID, m.ScreenPos, m.Radius, style)
		}
		if tip, ok := e.interaction.Tooltip(); ok {
			s.Rect(tip.Box, surface.Style{Fill: "#111827", Stroke: "#374151", StrokeWidth: 1, Class: "tooltip"})
			for i, line := range tip.Lines() {
				at := core.Point{X: tip.Box.X + tooltipPadding, Y: tip.Box.Y + tooltipPadding + float64(i+1)*tooltipLineHeight - 4}
				s.Text(at, line, surface.Style{Fill: "#f9fafb", FontSize: 12})
			}
		}
	}
	return s.End()
}

// Placeholder texts shown when the backdrop is unavailable.
const (
	PlaceholderLoading = "Loading map…"
	PlaceholderFailed  = "Map unavailable"
)

func (e *Engine) drawBackdrop(s surface.Surface, w, h float64) {
	state, ds := backdrop.StateLoading, (*backdrop.Dataset)(nil)
	if e.backdrop != nil {
		state, ds = e.backdrop.Current()
	}
	if state != backdrop.StateReady || ds == nil {
		text := PlaceholderLoading
		if state == backdrop.StateFailed {
			text = PlaceholderFailed
		}
		s.Text(core.Point{X: w / 2, Y: h / 2}, text, surface.Style{Fill: "#94a3b8", FontSize: 14, Class: "placeholder"})
		return
	}

	style := surface.Style{Fill: "#1e293b", Stroke: "#475569", StrokeWidth: 0.5, Class: "land"}
	outline := surface.Style{Stroke: "#475569", StrokeWidth: 0.5, Class: "land"}
	for _, ring := range ds.Rings {
		runs, whole := e.projectRing(ring, w)
		for _, run := range runs {
			if whole {
				s.Polyline(run, true, style)
			} else {
				s.Polyline(run, false, outline)
			}
		}
	}
}

// projectRing projects a boundary ring, splitting it wherever a vertex is
// not representable or, on flat maps, where it crosses the antimeridian.
// whole is true when the ring survived as a single closed run.
func (e *Engine) projectRing(ring []model.GeoCoordinate, width float64) (runs [][]core.Point, whole bool) {
	var run []core.Point
	whole = true
	flush := func() {
		if len(run) >= 2 {
			runs = append(runs, run)
		}
		run = nil
	}
	for _, c := range ring {
		p, ok := e.proj.Project(c)
		if !ok {
			whole = false
			flush()
			continue
		}
		if e.globe == nil && len(run) > 0 && math.Abs(p.X-run[len(run)-1].X) > width/2 {
			whole = false
			flush()
		}
		run = append(run, p)
	}
	flush()
	return runs, whole && len(runs) == 1
}
