// Package backdrop loads the boundary polygons drawn behind the markers.
// The engine treats a Dataset as opaque beyond "loaded or not"; loading is
// injected through a Loader so the engine never performs I/O itself.
package backdrop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	geojson "github.com/paulmach/go.geojson"

	"github.com/signalsfoundry/nodemap/model"
)

// ErrNoPolygons is returned when a GeoJSON document holds no polygon rings.
var ErrNoPolygons = errors.New("backdrop has no polygon geometry")

// Dataset is a set of closed boundary rings in geographic coordinates.
type Dataset struct {
	Rings [][]model.GeoCoordinate
}

// Loader produces a Dataset. Implementations may block on I/O.
type Loader interface {
	Load(ctx context.Context) (*Dataset, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (*Dataset, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context) (*Dataset, error) { return f(ctx) }

// FileLoader reads a GeoJSON FeatureCollection from disk.
type FileLoader struct {
	Path string
}

// Load implements Loader.
func (l FileLoader) Load(ctx context.Context) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("read backdrop %q: %w", l.Path, err)
	}
	ds, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse backdrop %q: %w", l.Path, err)
	}
	return ds, nil
}

// Parse decodes a GeoJSON FeatureCollection, keeping the outer and inner
// rings of every Polygon and MultiPolygon feature. Other geometry types are
// ignored.
func Parse(data []byte) (*Dataset, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{}
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		switch {
		case f.Geometry.IsPolygon():
			ds.addPolygon(f.Geometry.Polygon)
		case f.Geometry.IsMultiPolygon():
			for _, poly := range f.Geometry.MultiPolygon {
				ds.addPolygon(poly)
			}
		}
	}
	if len(ds.Rings) == 0 {
		return nil, ErrNoPolygons
	}
	return ds, nil
}

func (d *Dataset) addPolygon(rings [][][]float64) {
	for _, ring := range rings {
		coords := make([]model.GeoCoordinate, 0, len(ring))
		for _, pos := range ring {
			if len(pos) < 2 {
				continue
			}
			c := model.GeoCoordinate{Longitude: pos[0], Latitude: pos[1]}
			if c.Validate() != nil {
				continue
			}
			coords = append(coords, c)
		}
		if len(coords) >= 3 {
			d.Rings = append(d.Rings, coords)
		}
	}
}

// State is the load state of a backdrop.
type State int

const (
	StateLoading State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "loading"
	}
}

// Tracker holds the latest backdrop load result. It is safe for concurrent
// use: a host loads in the background while a render loop reads.
type Tracker struct {
	mu    sync.RWMutex
	state State
	ds    *Dataset
	err   error
}

// NewTracker returns a tracker in StateLoading.
func NewTracker() *Tracker { return &Tracker{} }

// Load runs loader and records the outcome. A failed reload keeps a dataset
// that was already loaded.
func (t *Tracker) Load(ctx context.Context, loader Loader) error {
	ds, err := loader.Load(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.err = err
		if t.ds == nil {
			t.state = StateFailed
		}
		return err
	}
	t.ds, t.err, t.state = ds, nil, StateReady
	return nil
}

// Current returns the state and, when ready, the dataset.
func (t *Tracker) Current() (State, *Dataset) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state, t.ds
}

// Err returns the most recent load error.
func (t *Tracker) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}
