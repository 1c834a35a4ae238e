package surface

import (
	"fmt"
	"html"
	"io"
	"math"

	svg "github.com/ajstarks/svgo"

	"github.com/signalsfoundry/nodemap/core"
)

// SVG writes frames as SVG documents. svgo works in integer units, so
// coordinates are rounded to the nearest surface unit.
type SVG struct {
	w      *errWriter
	canvas *svg.SVG
}

// NewSVG returns a Surface that writes to w.
func NewSVG(w io.Writer) *SVG {
	ew := &errWriter{w: w}
	return &SVG{w: ew, canvas: svg.New(ew)}
}

// Begin implements Surface.
func (s *SVG) Begin(width, height float64) {
	s.canvas.Start(px(width), px(height), `font-family="sans-serif"`)
}

// Circle implements Surface.
func (s *SVG) Circle(id string, center core.Point, radius float64, style Style) {
	s.canvas.Circle(px(center.X), px(center.Y), px(radius), attrs(id, style)...)
}

// Polyline implements Surface.
func (s *SVG) Polyline(points []core.Point, closed bool, style Style) {
	if len(points) < 2 {
		return
	}
	xs := make([]int, len(points))
	ys := make([]int, len(points))
	for i, p := range points {
		xs[i], ys[i] = px(p.X), px(p.Y)
	}
	if closed {
		s.canvas.Polygon(xs, ys, attrs("", style)...)
		return
	}
	s.canvas.Polyline(xs, ys, attrs("", style)...)
}

// Rect implements Surface.
func (s *SVG) Rect(r Rect, style Style) {
	s.canvas.Rect(px(r.X), px(r.Y), px(r.Width), px(r.Height), attrs("", style)...)
}

// Text implements Surface.
func (s *SVG) Text(at core.Point, text string, style Style) {
	s.canvas.Text(px(at.X), px(at.Y), text, attrs("", style)...)
}

// End closes the document and reports the first write error, if any.
func (s *SVG) End() error {
	s.canvas.End()
	if s.w.err != nil {
		return fmt.Errorf("write svg: %w", s.w.err)
	}
	return nil
}

// attrs builds svgo style arguments. svgo treats arguments containing '='
// as raw attributes and anything else as an inline style.
func attrs(id string, style Style) []string {
	var out []string
	if id != "" {
		out = append(out, fmt.Sprintf(`id="%s"`, html.EscapeString(id)))
	}
	if style.Class != "" {
		out = append(out, fmt.Sprintf(`class="%s"`, html.EscapeString(style.Class)))
	}
	if css := style.CSS(); css != "" {
		out = append(out, css)
	}
	return out
}

func px(v float64) int {
	return int(math.Round(v))
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}
