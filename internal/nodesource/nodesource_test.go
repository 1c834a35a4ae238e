package nodesource

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/signalsfoundry/nodemap/model"
)

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const wrappedYAML = `
nodes:
  - id: fra-1
    name: Frankfurt
    location: {longitude: 8.68, latitude: 50.11}
    count: 4
    status: Running
    chain: mainnet
  - id: sgp-1
    location: {longitude: 103.82, latitude: 1.35}
    count: 1
    status: syncing
`

func TestLoadFileFormats(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		body string
	}{
		{"wrapped.yaml", wrappedYAML},
		{"bare.yml", `
- id: fra-1
  name: Frankfurt
  location: {longitude: 8.68, latitude: 50.11}
  count: 4
  status: RUNNING
  chain: mainnet
- id: sgp-1
  location: {longitude: 103.82, latitude: 1.35}
  count: 1
  status: syncing
`},
		{"wrapped.json", `{"nodes": [
  {"id": "fra-1", "name": "Frankfurt", "location": {"longitude": 8.68, "latitude": 50.11}, "count": 4, "status": "running", "chain": "mainnet"},
  {"id": "sgp-1", "location": {"longitude": 103.82, "latitude": 1.35}, "count": 1, "status": "Syncing"}
]}`},
		{"bare.JSON", `[
  {"id": "fra-1", "name": "Frankfurt", "location": {"longitude": 8.68, "latitude": 50.11}, "count": 4, "status": "running", "chain": "mainnet"},
  {"id": "sgp-1", "location": {"longitude": 103.82, "latitude": 1.35}, "count": 1, "status": "syncing"}
]`},
	}
	for _, tc := range cases {
		nodes, err := LoadFile(write(t, dir, tc.name, tc.body))
		if err != nil {
			t.Fatalf("%s: LoadFile: %v", tc.name, err)
		}
		if len(nodes) != 2 {
			t.Fatalf("%s: got %d nodes, want 2", tc.name, len(nodes))
		}
		fra := nodes[0]
		if fra.ID != "fra-1" || fra.Name != "Frankfurt" || fra.Count != 4 || fra.Chain != "mainnet" {
			t.Fatalf("%s: first node = %+v", tc.name, fra)
		}
		if fra.Location.Longitude != 8.68 || fra.Location.Latitude != 50.11 {
			t.Fatalf("%s: location = %+v", tc.name, fra.Location)
		}
		if fra.Status != model.StatusRunning || nodes[1].Status != model.StatusSyncing {
			t.Fatalf("%s: statuses = %q, %q", tc.name, fra.Status, nodes[1].Status)
		}
		if nodes[1].ChainLabel() != model.MultiChainLabel {
			t.Fatalf("%s: chain label = %q", tc.name, nodes[1].ChainLabel())
		}
	}
}

func TestLoadFileKeepsUnknownStatusForValidation(t *testing.T) {
	path := write(t, t.TempDir(), "n.yaml", "- id: a\n  location: {longitude: 0, latitude: 0}\n  count: 1\n  status: paused\n")
	nodes, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := nodes[0].Validate(); !errors.Is(err, model.ErrInvalidStatus) {
		t.Fatalf("Validate = %v, want ErrInvalidStatus", err)
	}
}

func TestLoadFileEmpty(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"empty.yaml", "empty.json"} {
		nodes, err := LoadFile(write(t, dir, name, "\n"))
		if err != nil || len(nodes) != 0 {
			t.Fatalf("%s: nodes=%v err=%v", name, nodes, err)
		}
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadFile(write(t, dir, "nodes.csv", "id,lon,lat")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("csv err = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := LoadFile(write(t, dir, "bad.json", "{nodes: ")); err == nil {
		t.Fatalf("expected parse error for malformed json")
	}
	if _, err := LoadFile(write(t, dir, "bad.yaml", "nodes: [")); err == nil {
		t.Fatalf("expected parse error for malformed yaml")
	}
	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file err = %v, want os.ErrNotExist", err)
	}
}
