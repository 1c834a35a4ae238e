package surface

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/signalsfoundry/nodemap/core"
)

func TestSVGWritesShapes(t *testing.T) {
	var buf bytes.Buffer
	s := NewSVG(&buf)
	s.Begin(800, 400)
	s.Circle(`n"1`, core.Point{X: 10.4, Y: 20.6}, 4.1, Style{Fill: "#22c55e", Opacity: 0.8})
	s.Polyline([]core.Point{{X: 0, Y: 0}, {X: 5, Y: 5}, {X: 10, Y: 0}}, true, Style{Stroke: "#333", StrokeWidth: 0.5})
	s.Polyline([]core.Point{{X: 1, Y: 1}}, false, Style{})
	s.Text(core.Point{X: 1, Y: 2}, "a < b", Style{FontSize: 12})
	if err := s.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		`width="800"`,
		`height="400"`,
		`id="n&#34;1"`,
		`cx="10"`,
		`cy="21"`,
		`fill:#22c55e;opacity:0.8`,
		`<polygon`,
		`stroke-width:0.5`,
		`a &lt; b`,
		`</svg>`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("svg output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<polyline") {
		t.Fatalf("single-point polyline should be skipped:\n%s", out)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestSVGReportsWriteError(t *testing.T) {
	s := NewSVG(failingWriter{})
	s.Begin(10, 10)
	if err := s.End(); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("End err = %v, want disk full", err)
	}
}

func TestStyleCSSOmitsZeroValues(t *testing.T) {
	if css := (Style{}).CSS(); css != "" {
		t.Fatalf("empty style CSS = %q", css)
	}
	if css := (Style{Fill: "red", Opacity: 1}).CSS(); css != "fill:red" {
		t.Fatalf("CSS = %q, want fill:red", css)
	}
}

func TestRectWithin(t *testing.T) {
	if !(Rect{X: 0, Y: 0, Width: 10, Height: 10}).Within(10, 10) {
		t.Fatalf("exact fit should be within")
	}
	if (Rect{X: 1, Y: 0, Width: 10, Height: 10}).Within(10, 10) {
		t.Fatalf("overflowing rect reported within")
	}
}
