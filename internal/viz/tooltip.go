package viz

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/signalsfoundry/nodemap/core"
	"github.com/signalsfoundry/nodemap/internal/surface"
	"github.com/signalsfoundry/nodemap/model"
)

// Tooltip layout constants in surface units.
const (
	tooltipOffset     = 12.0
	tooltipCharWidth  = 7.0
	tooltipLineHeight = 16.0
	tooltipPadding    = 8.0
)

// Tooltip is the hover card for one marker.
type Tooltip struct {
	MarkerID string       `json:"marker_id"`
	Name     string       `json:"name"`
	Chain    string       `json:"chain"`
	Status   model.Status `json:"status"`
	Count    int          `json:"count"`
	Box      surface.Rect `json:"box"`
}

func newTooltip(rec model.NodeRecord) Tooltip {
	return Tooltip{
		MarkerID: rec.ID,
		Name:     rec.Name,
		Chain:    rec.ChainLabel(),
		Status:   rec.Status,
		Count:    rec.Count,
	}
}

// Lines returns the text rows of the card.
func (t Tooltip) Lines() []string {
	name := t.Name
	if name == "" {
		name = t.MarkerID
	}
	return []string{
		name,
		"Chain: " + t.Chain,
		"Status: " + string(t.Status),
		fmt.Sprintf("Nodes: %d", t.Count),
	}
}

// placeTooltip sizes the card from its text and positions it beside the
// pointer, flipping to the other side of the pointer when it would overflow
// and finally clamping it inside the width x height surface.
func placeTooltip(lines []string, pointer core.Point, width, height float64) surface.Rect {
	longest := 0
	for _, l := range lines {
		longest = max(longest, utf8.RuneCountInString(l))
	}
	box := surface.Rect{
		Width:  math.Min(float64(longest)*tooltipCharWidth+2*tooltipPadding, math.Max(0, width)),
		Height: math.Min(float64(len(lines))*tooltipLineHeight+2*tooltipPadding, math.Max(0, height)),
	}

	box.X = pointer.X + tooltipOffset
	if box.X+box.Width > width {
		box.X = pointer.X - tooltipOffset - box.Width
	}
	box.Y = pointer.Y + tooltipOffset
	if box.Y+box.Height > height {
		box.Y = pointer.Y - tooltipOffset - box.Height
	}

	box.X = clamp(box.X, 0, width-box.Width)
	box.Y = clamp(box.Y, 0, height-box.Height)
	return box
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return math.Max(lo, math.Min(hi, v))
}
