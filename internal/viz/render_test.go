package viz

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/signalsfoundry/nodemap/model"
)

func TestRenderSVGSettlesMarkers(t *testing.T) {
	var buf bytes.Buffer
	nodes := []model.NodeRecord{
		at("fra", 8.68, 50.11, 4, model.StatusRunning),
		at("bad", 0, 0, 0, model.StatusRunning),
		at("sgp", 103.82, 1.35, 1, model.StatusError),
	}
	if err := RenderSVG(context.Background(), &buf, Config{Variant: VariantFlat, Width: 800, Height: 400}, nodes); err != nil {
		t.Fatalf("RenderSVG: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`id="marker-fra"`, `id="marker-sgp"`, StatusColor(model.StatusError), PlaceholderLoading, "</svg>"} {
		if !strings.Contains(out, want) {
			t.Fatalf("svg missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "marker-bad") {
		t.Fatalf("invalid record rendered:\n%s", out)
	}
	// r = round(sqrt(4*4+5)) = 5 for the settled fra marker.
	if !strings.Contains(out, `r="5"`) {
		t.Fatalf("fra marker not at its settled radius:\n%s", out)
	}
}

func TestRenderSVGGlobeHidesFarSide(t *testing.T) {
	var buf bytes.Buffer
	nodes := []model.NodeRecord{at("near", 0, 0, 1, model.StatusStopped), at("far", 180, 0, 1, model.StatusStopped)}
	if err := RenderSVG(context.Background(), &buf, Config{Variant: VariantGlobe, Width: 400, Height: 400}, nodes); err != nil {
		t.Fatalf("RenderSVG: %v", err)
	}
	if !strings.Contains(buf.String(), "marker-near") || strings.Contains(buf.String(), "marker-far") {
		t.Fatalf("unexpected markers:\n%s", buf.String())
	}
}

func TestRenderSVGRejectsBadConfig(t *testing.T) {
	err := RenderSVG(context.Background(), &bytes.Buffer{}, Config{Variant: "polar", Width: 10, Height: 10}, nil)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}
