package surface

import "github.com/signalsfoundry/nodemap/core"

// OpKind identifies a recorded drawing call.
type OpKind string

const (
	OpCircle   OpKind = "circle"
	OpPolyline OpKind = "polyline"
	OpRect     OpKind = "rect"
	OpText     OpKind = "text"
)

// Op is one recorded drawing call.
type Op struct {
	Kind   OpKind
	ID     string
	Points []core.Point
	Radius float64
	Rect   Rect
	Text   string
	Closed bool
	Style  Style
}

// Recorder is an in-memory Surface that keeps the last frame's calls.
type Recorder struct {
	Width, Height float64
	Ops           []Op
	Frames        int
}

// Begin implements Surface and discards the previous frame.
func (r *Recorder) Begin(width, height float64) {
	r.Width, r.Height = width, height
	r.Ops = r.Ops[:0]
}

// Circle implements Surface.
func (r *Recorder) Circle(id string, center core.Point, radius float64, style Style) {
	r.Ops = append(r.Ops, Op{Kind: OpCircle, ID: id, Points: []core.Point{center}, Radius: radius, Style: style})
}

// Polyline implements Surface.
func (r *Recorder) Polyline(points []core.Point, closed bool, style Style) {
	r.Ops = append(r.Ops, Op{Kind: OpPolyline, Points: append([]core.Point(nil), points...), Closed: closed, Style: style})
}

// Rect implements Surface.
func (r *Recorder) Rect(box Rect, style Style) {
	r.Ops = append(r.Ops, Op{Kind: OpRect, Rect: box, Style: style})
}

// Text implements Surface.
func (r *Recorder) Text(at core.Point, text string, style Style) {
	r.Ops = append(r.Ops, Op{Kind: OpText, Points: []core.Point{at}, Text: text, Style: style})
}

// End implements Surface.
func (r *Recorder) End() error {
	r.Frames++
	return nil
}

// Find returns the ops of the given kind.
func (r *Recorder) Find(kind OpKind) []Op {
	var out []Op
	for _, op := range r.Ops {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// CircleByID returns the circle drawn with id, if any.
func (r *Recorder) CircleByID(id string) (Op, bool) {
	for _, op := range r.Ops {
		if op.Kind == OpCircle && op.ID == id {
			return op, true
		}
	}
	return Op{}, false
}
