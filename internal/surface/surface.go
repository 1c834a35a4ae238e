// Package surface defines the drawing target the visualisation renders into.
// The engine only talks to the Surface interface, so the SVG writer and the
// test Recorder are interchangeable.
package surface

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/nodemap/core"
)

// Style holds the presentation attributes of a drawn shape. Zero values are
// omitted from the output.
type Style struct {
	Fill        string
	Stroke      string
	StrokeWidth float64
	Opacity     float64
	FontSize    float64
	Class       string
}

// CSS renders the style as an inline CSS declaration list.
func (s Style) CSS() string {
	var parts []string
	if s.Fill != "" {
		parts = append(parts, "fill:"+s.Fill)
	}
	if s.Stroke != "" {
		parts = append(parts, "stroke:"+s.Stroke)
	}
	if s.StrokeWidth > 0 {
		parts = append(parts, fmt.Sprintf("stroke-width:%g", s.StrokeWidth))
	}
	if s.Opacity > 0 && s.Opacity < 1 {
		parts = append(parts, fmt.Sprintf("opacity:%g", s.Opacity))
	}
	if s.FontSize > 0 {
		parts = append(parts, fmt.Sprintf("font-size:%gpx", s.FontSize))
	}
	return strings.Join(parts, ";")
}

// Rect is an axis-aligned box in surface units.
type Rect struct {
	X, Y, Width, Height float64
}

// Within reports whether the box lies fully inside a width x height
// surface.
func (r Rect) Within(width, height float64) bool {
	return r.X >= 0 && r.Y >= 0 && r.X+r.Width <= width && r.Y+r.Height <= height
}

// Surface is a vector drawing target. Calls between Begin and End describe
// one frame, painted in call order.
type Surface interface {
	Begin(width, height float64)
	// Circle draws a circle. id is empty for decorative shapes.
	Circle(id string, center core.Point, radius float64, style Style)
	// Polyline draws an open or closed run of points.
	Polyline(points []core.Point, closed bool, style Style)
	Rect(r Rect, style Style)
	Text(at core.Point, text string, style Style)
	End() error
}
