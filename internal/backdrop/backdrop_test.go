package backdrop

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name": "square"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[10,0],[10,10],[0,10],[0,0]]]}},
    {"type": "Feature", "properties": {"name": "islands"},
     "geometry": {"type": "MultiPolygon", "coordinates": [
       [[[20,20],[21,20],[21,21],[20,20]]],
       [[[30,30],[31,30],[31,31],[30,30]]]
     ]}},
    {"type": "Feature", "properties": {"name": "city"},
     "geometry": {"type": "Point", "coordinates": [5,5]}},
    {"type": "Feature", "properties": {"name": "broken"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[500,0]]]}}
  ]
}`

func TestParseKeepsPolygonRings(t *testing.T) {
	ds, err := Parse([]byte(sampleGeoJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ds.Rings) != 3 {
		t.Fatalf("rings = %d, want 3", len(ds.Rings))
	}
	if got := ds.Rings[0][1]; got.Longitude != 10 || got.Latitude != 0 {
		t.Fatalf("ring[0][1] = %+v, want (10,0)", got)
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	_, err := Parse([]byte(`{"type":"FeatureCollection","features":[]}`))
	if !errors.Is(err, ErrNoPolygons) {
		t.Fatalf("err = %v, want ErrNoPolygons", err)
	}
	if _, err := Parse([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestFileLoaderAndTracker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "world.geojson")
	if err := os.WriteFile(path, []byte(sampleGeoJSON), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	tr := NewTracker()
	if st, ds := tr.Current(); st != StateLoading || ds != nil {
		t.Fatalf("initial state = %v, %v; want loading, nil", st, ds)
	}

	if err := tr.Load(context.Background(), FileLoader{Path: filepath.Join(dir, "missing.geojson")}); err == nil {
		t.Fatalf("expected missing file error")
	}
	if st, _ := tr.Current(); st != StateFailed {
		t.Fatalf("state after failure = %v, want failed", st)
	}

	if err := tr.Load(context.Background(), FileLoader{Path: path}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	st, ds := tr.Current()
	if st != StateReady || ds == nil || len(ds.Rings) != 3 {
		t.Fatalf("state = %v, dataset = %+v; want ready with 3 rings", st, ds)
	}

	failing := LoaderFunc(func(context.Context) (*Dataset, error) { return nil, errors.New("flaky") })
	if err := tr.Load(context.Background(), failing); err == nil {
		t.Fatalf("expected reload error")
	}
	if st, ds := tr.Current(); st != StateReady || ds == nil {
		t.Fatalf("failed reload discarded ready dataset: %v", st)
	}
	if tr.Err() == nil {
		t.Fatalf("Err() should report the failed reload")
	}
}
