package core

import (
	"math"

	"github.com/signalsfoundry/nodemap/model"
)

// HorizonEpsilon is the minimum cosine of the angular distance from the
// facing point for a coordinate to count as visible. Points at or within
// this tolerance of the horizon are hidden so markers do not flicker there.
const HorizonEpsilon = 1e-9

// Rotation is the globe orientation in degrees. The globe faces the
// coordinate (-Lambda, -Phi).
type Rotation struct {
	Lambda float64 `json:"lambda"`
	Phi    float64 `json:"phi"`
}

// Normalize wraps Lambda into (-180, 180] and clamps Phi to [-90, 90].
func (r Rotation) Normalize() Rotation {
	if !finite(r.Lambda) {
		r.Lambda = 0
	}
	if !finite(r.Phi) {
		r.Phi = 0
	}
	return Rotation{Lambda: NormalizeLongitude(r.Lambda), Phi: ClampLatitude(r.Phi)}
}

// FacingPoint returns the coordinate at the centre of the visible hemisphere.
func FacingPoint(r Rotation) model.GeoCoordinate {
	return model.GeoCoordinate{
		Longitude: NormalizeLongitude(-r.Lambda),
		Latitude:  ClampLatitude(-r.Phi),
	}
}

// cosAngularDistance applies the spherical law of cosines.
func cosAngularDistance(a, b model.GeoCoordinate) float64 {
	lat1 := a.Latitude * degToRad
	lat2 := b.Latitude * degToRad
	dLon := (a.Longitude - b.Longitude) * degToRad
	return math.Sin(lat1)*math.Sin(lat2) + math.Cos(lat1)*math.Cos(lat2)*math.Cos(dLon)
}

// IsVisible reports whether c lies on the hemisphere currently facing the
// viewer, i.e. its angular distance from FacingPoint(r) is strictly less
// than 90°.
func IsVisible(c model.GeoCoordinate, r Rotation) bool {
	if c.Validate() != nil {
		return false
	}
	return cosAngularDistance(c, FacingPoint(r)) > HorizonEpsilon
}

// AngularDistance returns the great-circle distance between two coordinates
// in degrees using the haversine formula.
func AngularDistance(a, b model.GeoCoordinate) float64 {
	lat1 := a.Latitude * degToRad
	lat2 := b.Latitude * degToRad
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * degToRad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	h = math.Min(1, math.Max(0, h))
	return 2 * math.Asin(math.Sqrt(h)) * radToDeg
}
