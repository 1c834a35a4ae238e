package viz

import (
	"math"

	"github.com/signalsfoundry/nodemap/core"
	"github.com/signalsfoundry/nodemap/model"
)

// InteractionState is the pointer state machine.
type InteractionState int

const (
	Idle InteractionState = iota
	Hovering
	Dragging
)

func (s InteractionState) String() string {
	switch s {
	case Hovering:
		return "hovering"
	case Dragging:
		return "dragging"
	default:
		return "idle"
	}
}

// interactionHost is the slice of the engine the controller needs.
type interactionHost interface {
	renderedMarkers() []RenderedMarker
	record(id string) (model.NodeRecord, bool)
	setHovered(id string, hovered bool)
	// drag applies a pointer delta to the rotation; false when the view
	// cannot rotate.
	drag(dx, dy float64) (core.Rotation, bool)
	canDrag() bool
	size() (width, height float64)
	emit(Event)
}

// Interaction turns pointer input into hover and rotation changes. States:
// Idle -> Hovering(id) on a hit, Hovering -> Idle on a miss, Idle/Hovering
// -> Dragging on pointer-down over a rotatable view, Dragging -> Idle on
// pointer-up or leave. Hover hit-testing is suspended while dragging.
type Interaction struct {
	host    interactionHost
	state   InteractionState
	hoverID string
	tooltip *Tooltip
	last    core.Point // drag anchor

	// pointer is the last position seen over the surface; refresh
	// re-hit-tests it after the markers move.
	pointer   core.Point
	onSurface bool
}

func newInteraction(host interactionHost) *Interaction {
	return &Interaction{host: host}
}

// State returns the current state.
func (in *Interaction) State() InteractionState { return in.state }

// HoveredID returns the hovered marker id, or "".
func (in *Interaction) HoveredID() string { return in.hoverID }

// Tooltip returns the visible tooltip, if any.
func (in *Interaction) Tooltip() (Tooltip, bool) {
	if in.tooltip == nil {
		return Tooltip{}, false
	}
	return *in.tooltip, true
}

// PointerMove handles pointer motion.
func (in *Interaction) PointerMove(p core.Point) {
	if !validPoint(p) {
		return
	}
	if in.state == Dragging {
		dx, dy := p.X-in.last.X, p.Y-in.last.Y
		in.last = p
		in.pointer, in.onSurface = p, true
		if dx == 0 && dy == 0 {
			return
		}
		if r, ok := in.host.drag(dx, dy); ok {
			in.host.emit(Event{Kind: EventRotationChanged, Rotation: r})
		}
		return
	}
	in.hover(p)
}

// PointerDown starts a drag on rotatable views.
func (in *Interaction) PointerDown(p core.Point) {
	if !validPoint(p) || in.state == Dragging || !in.host.canDrag() {
		return
	}
	in.leave()
	in.state = Dragging
	in.last = p
	in.pointer, in.onSurface = p, true
}

// PointerUp ends a drag and resumes hover at the release point.
func (in *Interaction) PointerUp(p core.Point) {
	if in.state != Dragging {
		return
	}
	in.state = Idle
	if validPoint(p) {
		in.hover(p)
	}
}

// PointerLeave ends any drag and hides the tooltip.
func (in *Interaction) PointerLeave() {
	in.leave()
	in.state = Idle
	in.onSurface = false
}

// refresh re-hit-tests the last pointer position after markers moved,
// records changed or markers started exiting. The tooltip is rebuilt and
// re-placed for the current record.
func (in *Interaction) refresh() {
	if in.state != Hovering {
		return
	}
	if !in.onSurface {
		in.leave()
		in.state = Idle
		return
	}
	in.hover(in.pointer)
}

func (in *Interaction) hover(p core.Point) {
	in.pointer, in.onSurface = p, true
	id, ok := HitTest(in.liveMarkers(), p)
	if !ok {
		in.leave()
		in.state = Idle
		return
	}
	rec, _ := in.host.record(id)

	tip := newTooltip(rec)
	w, h := in.host.size()
	tip.Box = placeTooltip(tip.Lines(), p, w, h)

	if id == in.hoverID {
		in.tooltip = &tip
		return
	}
	in.leave()
	in.state = Hovering
	in.hoverID = id
	in.tooltip = &tip
	in.host.setHovered(id, true)
	card := tip
	in.host.emit(Event{Kind: EventHoverEnter, MarkerID: id, Tooltip: &card})
}

// liveMarkers drops markers whose record has left the input, such as those
// still playing an exit animation.
func (in *Interaction) liveMarkers() []RenderedMarker {
	markers := in.host.renderedMarkers()
	live := markers[:0]
	for _, m := range markers {
		if _, ok := in.host.record(m.ID); ok {
			live = append(live, m)
		}
	}
	return live
}

func (in *Interaction) leave() {
	if in.hoverID == "" {
		return
	}
	id := in.hoverID
	in.hoverID = ""
	in.tooltip = nil
	in.host.setHovered(id, false)
	in.host.emit(Event{Kind: EventHoverLeave, MarkerID: id})
}

// HitTest returns the id of the visible marker under p. The nearest marker
// whose rendered radius contains p wins; equal distances go to the marker
// drawn last (highest z-order).
func HitTest(markers []RenderedMarker, p core.Point) (string, bool) {
	best := ""
	bestDist := math.Inf(1)
	for _, m := range markers {
		if !m.Visible {
			continue
		}
		d := m.ScreenPos.DistanceTo(p)
		if d <= m.Radius && d <= bestDist {
			best, bestDist = m.ID, d
		}
	}
	return best, best != ""
}

func validPoint(p core.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
