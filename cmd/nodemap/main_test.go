package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/nodemap/internal/config"
	"github.com/signalsfoundry/nodemap/internal/logging"
)

const nodesYAML = `
- id: fra-1
  name: Frankfurt
  location: {longitude: 8.68, latitude: 50.11}
  count: 4
  status: running
- id: sgp-1
  location: {longitude: 103.82, latitude: 1.35}
  count: 1
  status: error
- id: bad
  location: {longitude: 10, latitude: 10}
  count: 0
  status: running
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRenderWritesSVGAndLegend(t *testing.T) {
	nodes := writeFile(t, "nodes.yaml", nodesYAML)
	out, errOut, err := execute(t, "render", nodes, "--width", "600", "--height", "300")
	if err != nil {
		t.Fatalf("render: %v\n%s", err, errOut)
	}
	for _, want := range []string{`width="600"`, `id="marker-fra-1"`, `id="marker-sgp-1"`, "</svg>"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stdout missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "marker-bad") {
		t.Fatalf("invalid record rendered")
	}
	for _, want := range []string{"skipped", "running", "error", "1 of 3 records skipped"} {
		if !strings.Contains(errOut, want) {
			t.Fatalf("stderr missing %q:\n%s", want, errOut)
		}
	}
}

func TestRenderToFileQuietly(t *testing.T) {
	nodes := writeFile(t, "nodes.yaml", nodesYAML)
	outPath := filepath.Join(t.TempDir(), "globe.svg")
	stdout, stderr, err := execute(t, "render", "--variant", "globe", "--lambda", "-100", "-q", "-o", outPath, nodes)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if stdout != "" || strings.Contains(stderr, "skipped") {
		t.Fatalf("quiet render wrote stdout=%q stderr=%q", stdout, stderr)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	// Facing longitude 100 east: Singapore is in view, Frankfurt (8.68E) is 91 degrees away.
	svg := string(data)
	if !strings.Contains(svg, "marker-sgp-1") || strings.Contains(svg, "marker-fra-1") {
		t.Fatalf("globe output:\n%s", svg)
	}
}

func TestRenderErrors(t *testing.T) {
	if _, _, err := execute(t, "render"); err == nil || !strings.Contains(err.Error(), "no nodes file") {
		t.Fatalf("missing nodes file error = %v", err)
	}
	nodes := writeFile(t, "nodes.yaml", nodesYAML)
	if _, _, err := execute(t, "render", "--variant", "cylinder", nodes); err == nil {
		t.Fatalf("bad variant accepted")
	}
	if _, _, err := execute(t, "render", filepath.Join(t.TempDir(), "nodes.csv")); err == nil {
		t.Fatalf("unsupported file accepted")
	}
}

func TestRenderUsesConfigFile(t *testing.T) {
	nodes := writeFile(t, "nodes.yaml", nodesYAML)
	cfgPath := writeFile(t, "nodemap.toml", "[engine]\nwidth = 320\nheight = 160\n\n[data]\nnodes_file = \""+filepath.ToSlash(nodes)+"\"\n")
	out, _, err := execute(t, "--config", cfgPath, "render", "-q")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, `width="320"`) {
		t.Fatalf("config width not applied:\n%s", out)
	}
}

func TestConfigPrintsDefaults(t *testing.T) {
	out, _, err := execute(t, "config", "--defaults")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	for _, want := range []string{"[engine]", `variant = "flat"`, `enter_duration = "500ms"`, `http_addr = ":8080"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("config output missing %q:\n%s", want, out)
		}
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Server.GRPCAddr = "127.0.0.1:0"
	cfg.Data.NodesFile = writeFile(t, "nodes.yaml", nodesYAML)
	cfg.Data.Watch = false

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg, logging.Noop()) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServe: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("runServe did not return after cancel")
	}
}
