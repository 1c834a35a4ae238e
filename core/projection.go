package core

import (
	"math"

	"github.com/signalsfoundry/nodemap/model"
)

// MaxMercatorLatitude bounds the flat projection. Coordinates at or beyond
// this latitude are not representable.
const MaxMercatorLatitude = 85.0

// DragSensitivity converts a pointer drag into degrees of rotation: a drag
// the length of the globe radius turns the globe by this many degrees.
const DragSensitivity = 75.0

// Projection maps geographic coordinates onto a render surface. Project
// returns false when the coordinate has no position on the surface.
type Projection interface {
	Project(c model.GeoCoordinate) (Point, bool)
	Size() (width, height float64)
}

// mercatorY is ln(tan(π/4 + lat/2)) for lat in degrees.
func mercatorY(lat float64) float64 {
	return math.Log(math.Tan(math.Pi/4 + lat*math.Pi/360))
}

// FlatProjection is a Mercator projection that fills the surface: the full
// longitude range spans the width and the ±MaxMercatorLatitude band spans
// the height.
type FlatProjection struct {
	width, height float64

	Scale     float64
	ScaleY    float64
	Translate Point
}

// NewFlatProjection derives a flat projection from the surface size.
func NewFlatProjection(width, height float64) *FlatProjection {
	return &FlatProjection{
		width:     width,
		height:    height,
		Scale:     width,
		ScaleY:    (height / 2) / mercatorY(MaxMercatorLatitude),
		Translate: Point{X: width / 2, Y: height / 2},
	}
}

// Size returns the surface size the projection was built for.
func (p *FlatProjection) Size() (float64, float64) { return p.width, p.height }

// Project implements Projection.
func (p *FlatProjection) Project(c model.GeoCoordinate) (Point, bool) {
	if c.Validate() != nil || math.Abs(c.Latitude) >= MaxMercatorLatitude {
		return Point{}, false
	}
	x := p.Translate.X + c.Longitude*(p.Scale/360)
	y := p.Translate.Y - mercatorY(c.Latitude)*p.ScaleY
	if !finite(x) || !finite(y) {
		return Point{}, false
	}
	return Point{X: x, Y: y}, true
}

// GlobeProjection is an orthographic projection of a rotatable sphere
// centred on the surface. Only the hemisphere facing the viewer projects.
type GlobeProjection struct {
	width, height float64

	Scale    float64 // globe radius in surface units
	Center   Point
	rotation Rotation
}

// NewGlobeProjection derives a globe projection from the surface size and
// an initial rotation.
func NewGlobeProjection(width, height float64, r Rotation) *GlobeProjection {
	return &GlobeProjection{
		width:    width,
		height:   height,
		Scale:    math.Min(width, height) / 2,
		Center:   Point{X: width / 2, Y: height / 2},
		rotation: r.Normalize(),
	}
}

// Size returns the surface size the projection was built for.
func (g *GlobeProjection) Size() (float64, float64) { return g.width, g.height }

// Rotation returns the current rotation.
func (g *GlobeProjection) Rotation() Rotation { return g.rotation }

// SetRotation replaces the rotation, normalising it.
func (g *GlobeProjection) SetRotation(r Rotation) { g.rotation = r.Normalize() }

// Drag turns the globe by a pointer delta in surface units and returns the
// new rotation. Longitude wraps, latitude clamps at the poles.
func (g *GlobeProjection) Drag(dx, dy float64) Rotation {
	if !finite(dx) || !finite(dy) || g.Scale <= 0 {
		return g.rotation
	}
	k := DragSensitivity / g.Scale
	g.rotation = Rotation{
		Lambda: g.rotation.Lambda + dx*k,
		Phi:    g.rotation.Phi - dy*k,
	}.Normalize()
	return g.rotation
}

// rotate shifts c by Lambda in longitude and then tilts it by Phi about the
// Y axis, returning the rotated unit vector. After rotation the viewer looks
// down the +X axis.
func (g *GlobeProjection) rotate(c model.GeoCoordinate) Vec3 {
	v := UnitVector(model.GeoCoordinate{Longitude: c.Longitude + g.rotation.Lambda, Latitude: c.Latitude})
	phi := g.rotation.Phi * degToRad
	cosPhi, sinPhi := math.Cos(phi), math.Sin(phi)
	return Vec3{
		X: v.X*cosPhi - v.Z*sinPhi,
		Y: v.Y,
		Z: v.Z*cosPhi + v.X*sinPhi,
	}
}

// Project implements Projection.
func (g *GlobeProjection) Project(c model.GeoCoordinate) (Point, bool) {
	if !IsVisible(c, g.rotation) {
		return Point{}, false
	}
	v := g.rotate(c)
	return Point{
		X: g.Center.X + v.Y*g.Scale,
		Y: g.Center.Y - v.Z*g.Scale,
	}, true
}
