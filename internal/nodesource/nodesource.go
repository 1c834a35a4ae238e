// Package nodesource reads node records from YAML or JSON files and keeps a
// kb.Feed in sync with them.
package nodesource

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/nodemap/model"
)

// ErrUnsupportedFormat is returned for files that are neither YAML nor JSON.
var ErrUnsupportedFormat = errors.New("unsupported node file format")

// document is the wrapped file layout: `nodes: [...]`.
type document struct {
	Nodes []model.NodeRecord `json:"nodes" yaml:"nodes"`
}

// LoadFile reads the records in path. The format follows the extension
// (.yaml, .yml or .json); the file holds either a `nodes` list or a bare
// list. Status names are normalised case-insensitively; records are
// otherwise returned as written and validated by the engine.
func LoadFile(path string) ([]model.NodeRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read nodes %s: %w", path, err)
	}
	var nodes []model.NodeRecord
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		nodes, err = parseYAML(data)
	case ".json":
		nodes, err = parseJSON(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse nodes %s: %w", path, err)
	}
	normalise(nodes)
	return nodes, nil
}

func parseYAML(data []byte) ([]model.NodeRecord, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	doc := root.Content[0]
	if doc.Kind == yaml.SequenceNode {
		var nodes []model.NodeRecord
		err := doc.Decode(&nodes)
		return nodes, err
	}
	var wrapped document
	err := doc.Decode(&wrapped)
	return wrapped.Nodes, err
}

func parseJSON(data []byte) ([]model.NodeRecord, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var nodes []model.NodeRecord
		err := json.Unmarshal(data, &nodes)
		return nodes, err
	}
	var wrapped document
	err := json.Unmarshal(data, &wrapped)
	return wrapped.Nodes, err
}

func normalise(nodes []model.NodeRecord) {
	for i := range nodes {
		if st, err := model.ParseStatus(string(nodes[i].Status)); err == nil {
			nodes[i].Status = st
		}
	}
}
