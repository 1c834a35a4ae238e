package core

import (
	"math"

	"github.com/signalsfoundry/nodemap/model"
)

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)

// Vec3 is a Cartesian vector on or inside the unit sphere. X points at
// (0°, 0°), Y at (90°E, 0°) and Z at the north pole.
type Vec3 struct {
	X, Y, Z float64
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// UnitVector converts a geographic coordinate to a point on the unit sphere.
// Poles are ordinary inputs: cos(±90°) is simply zero.
func UnitVector(c model.GeoCoordinate) Vec3 {
	lon := c.Longitude * degToRad
	lat := c.Latitude * degToRad
	cosLat := math.Cos(lat)
	return Vec3{
		X: cosLat * math.Cos(lon),
		Y: cosLat * math.Sin(lon),
		Z: math.Sin(lat),
	}
}

// Point is a position on the render surface. Y grows downwards.
type Point struct {
	X, Y float64
}

// Add returns p translated by o.
func (p Point) Add(o Point) Point { return Point{X: p.X + o.X, Y: p.Y + o.Y} }

// DistanceTo returns the straight-line distance between two surface points.
func (p Point) DistanceTo(o Point) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// NormalizeLongitude wraps a longitude into (-180, 180].
func NormalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon <= -180 {
		lon += 360
	} else if lon > 180 {
		lon -= 360
	}
	return lon
}

// ClampLatitude limits a latitude to [-90, 90]. Latitudes are never wrapped
// through the pole.
func ClampLatitude(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
