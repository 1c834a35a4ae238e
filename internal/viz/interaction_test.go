package viz

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/signalsfoundry/nodemap/core"
	"github.com/signalsfoundry/nodemap/model"
)

func TestHitTestPrefersNearestThenTopmost(t *testing.T) {
	markers := []RenderedMarker{
		{ID: "under", ScreenPos: core.Point{X: 10, Y: 10}, Radius: 5, Visible: true},
		{ID: "over", ScreenPos: core.Point{X: 10, Y: 10}, Radius: 5, Visible: true},
		{ID: "near", ScreenPos: core.Point{X: 20, Y: 10}, Radius: 8, Visible: true},
		{ID: "hidden", ScreenPos: core.Point{X: 50, Y: 50}, Radius: 10, Visible: false},
	}

	cases := []struct {
		p      core.Point
		want   string
		wantOK bool
	}{
		{core.Point{X: 10, Y: 10}, "over", true},
		{core.Point{X: 18, Y: 10}, "near", true},
		{core.Point{X: 13, Y: 10}, "over", true},
		{core.Point{X: 50, Y: 50}, "", false},
		{core.Point{X: 100, Y: 100}, "", false},
	}
	for _, tc := range cases {
		got, ok := HitTest(markers, tc.p)
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("HitTest(%+v) = %q,%v, want %q,%v", tc.p, got, ok, tc.want, tc.wantOK)
		}
	}
	if _, ok := HitTest(nil, core.Point{}); ok {
		t.Fatalf("HitTest on no markers reported a hit")
	}
}

func TestPlaceTooltipStaysOnSurface(t *testing.T) {
	lines := newTooltip(model.NodeRecord{ID: "x", Name: "A fairly long node name", Status: model.StatusRunning, Count: 12}).Lines()
	rng := rand.New(rand.NewSource(3))
	sizes := [][2]float64{{800, 400}, {300, 200}, {120, 60}, {40, 30}}
	for _, sz := range sizes {
		for i := 0; i < 500; i++ {
			p := core.Point{X: rng.Float64() * sz[0], Y: rng.Float64() * sz[1]}
			box := placeTooltip(lines, p, sz[0], sz[1])
			if !box.Within(sz[0], sz[1]) {
				t.Fatalf("tooltip %+v for pointer %+v escapes %vx%v", box, p, sz[0], sz[1])
			}
		}
	}
}

func TestPlaceTooltipFlipsNearEdges(t *testing.T) {
	lines := []string{"node", "Chain: multi-chain"}
	box := placeTooltip(lines, core.Point{X: 100, Y: 100}, 800, 400)
	if box.X != 100+tooltipOffset || box.Y != 100+tooltipOffset {
		t.Fatalf("default placement = %+v, want below-right of the pointer", box)
	}

	box = placeTooltip(lines, core.Point{X: 790, Y: 395}, 800, 400)
	if box.X+box.Width > 790 || box.Y+box.Height > 395 {
		t.Fatalf("edge placement = %+v, want above-left of the pointer", box)
	}
}

func TestTooltipFallsBackToIDAndChainLabel(t *testing.T) {
	tip := newTooltip(model.NodeRecord{ID: "node-7", Status: model.StatusStopped, Count: 2})
	lines := tip.Lines()
	if lines[0] != "node-7" {
		t.Fatalf("title = %q, want id when name is empty", lines[0])
	}
	if lines[1] != "Chain: "+model.MultiChainLabel {
		t.Fatalf("chain line = %q", lines[1])
	}
}

func TestInteractionHoverSwitchOrdersEvents(t *testing.T) {
	e, sched := newTestEngine(t, Config{Variant: VariantFlat, Width: 800, Height: 400})
	_ = e.Update(context.Background(), []model.NodeRecord{
		at("a", -100, 0, 1, model.StatusStopped),
		at("b", 100, 0, 1, model.StatusStopped),
	})
	sched.Advance(time.Second)

	var got []Event
	e.Subscribe(func(ev Event) { got = append(got, ev) })

	a, b := markerByID(t, e, "a"), markerByID(t, e, "b")
	e.PointerMove(a.ScreenPos)
	e.PointerMove(a.ScreenPos.Add(core.Point{X: 1}))
	e.PointerMove(b.ScreenPos)

	want := []struct {
		kind EventKind
		id   string
	}{
		{EventHoverEnter, "a"},
		{EventHoverLeave, "a"},
		{EventHoverEnter, "b"},
	}
	if len(got) != len(want) {
		t.Fatalf("events = %+v, want %d", got, len(want))
	}
	for i, w := range want {
		if got[i].Kind != w.kind || got[i].MarkerID != w.id {
			t.Fatalf("event %d = %s/%s, want %s/%s", i, got[i].Kind, got[i].MarkerID, w.kind, w.id)
		}
	}
	if got[0].Tooltip == nil || got[0].Tooltip.Name != "Node a" {
		t.Fatalf("hover_enter tooltip = %+v", got[0].Tooltip)
	}

	// The hovered marker is enlarged, the other is not.
	if hb := markerByID(t, e, "b"); !approx(hb.Radius, TargetRadius(1)*DefaultAnimationConfig().HoverScale) {
		t.Fatalf("hovered radius = %v", hb.Radius)
	}
	if ha := markerByID(t, e, "a"); !approx(ha.Radius, TargetRadius(1)) {
		t.Fatalf("unhovered radius = %v", ha.Radius)
	}
}

func TestInteractionDragSuspendsHover(t *testing.T) {
	e, sched := newTestEngine(t, Config{Variant: VariantGlobe, Width: 400, Height: 400})
	_ = e.Update(context.Background(), []model.NodeRecord{at("centre", 0, 0, 1, model.StatusStopped)})
	sched.Advance(time.Second)

	centre := markerByID(t, e, "centre").ScreenPos
	e.PointerMove(centre)
	if e.Interaction().State() != Hovering {
		t.Fatalf("state = %v, want hovering", e.Interaction().State())
	}

	e.PointerDown(centre)
	if e.Interaction().State() != Dragging {
		t.Fatalf("state = %v, want dragging", e.Interaction().State())
	}
	if _, ok := e.Interaction().Tooltip(); ok {
		t.Fatalf("tooltip shown while dragging")
	}

	// A tiny drag keeps the marker under the pointer, yet no hover happens
	// until the button is released.
	e.PointerMove(centre.Add(core.Point{X: 0.5}))
	if e.Interaction().HoveredID() != "" {
		t.Fatalf("hovered %q during drag", e.Interaction().HoveredID())
	}

	e.PointerUp(markerByID(t, e, "centre").ScreenPos)
	if e.Interaction().State() != Hovering || e.Interaction().HoveredID() != "centre" {
		t.Fatalf("after release state=%v hovered=%q", e.Interaction().State(), e.Interaction().HoveredID())
	}
}

func TestInteractionLeaveEndsDrag(t *testing.T) {
	e, _ := newTestEngine(t, Config{Variant: VariantGlobe, Width: 400, Height: 400})
	e.PointerDown(core.Point{X: 200, Y: 200})
	e.PointerLeave()
	if e.Interaction().State() != Idle {
		t.Fatalf("state = %v, want idle", e.Interaction().State())
	}
	r := e.Rotation()
	e.PointerMove(core.Point{X: 300, Y: 200})
	if e.Rotation() != r {
		t.Fatalf("rotation changed after leave: %+v -> %+v", r, e.Rotation())
	}
}

func TestInteractionIgnoresNonFinitePointer(t *testing.T) {
	e, _ := newTestEngine(t, Config{Variant: VariantGlobe, Width: 400, Height: 400})
	e.PointerDown(core.Point{X: 200, Y: 200})
	e.PointerMove(core.Point{X: math.NaN(), Y: 200})
	e.PointerMove(core.Point{X: math.Inf(1), Y: 200})
	if e.Rotation() != (core.Rotation{}) {
		t.Fatalf("non-finite pointer moved the globe: %+v", e.Rotation())
	}
}

func TestInteractionDragClampsLatitude(t *testing.T) {
	e, _ := newTestEngine(t, Config{Variant: VariantGlobe, Width: 400, Height: 400})
	e.PointerDown(core.Point{X: 200, Y: 0})
	e.PointerMove(core.Point{X: 200, Y: 4000})
	if got := e.Rotation().Phi; got != -90 {
		t.Fatalf("phi = %v, want clamped to -90", got)
	}
}
