package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Validation sentinels. ValidationError wraps exactly one of these.
var (
	ErrMissingID         = errors.New("missing node id")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidCount      = errors.New("invalid node count")
	ErrInvalidStatus     = errors.New("invalid node status")
)

// MultiChainLabel is shown in place of an absent chain name.
const MultiChainLabel = "multi-chain"

// GeoCoordinate is a longitude/latitude pair in degrees.
type GeoCoordinate struct {
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
}

// Validate reports whether the coordinate is finite and within
// [-180,180] x [-90,90].
func (c GeoCoordinate) Validate() error {
	if math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) ||
		math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) {
		return fmt.Errorf("%w: non-finite value (%v, %v)", ErrInvalidCoordinate, c.Longitude, c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v outside [-180,180]", ErrInvalidCoordinate, c.Longitude)
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90,90]", ErrInvalidCoordinate, c.Latitude)
	}
	return nil
}

// Status is the health of the nodes aggregated at one point.
type Status string

const (
	StatusRunning Status = "running"
	StatusSyncing Status = "syncing"
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
)

// Statuses lists every valid Status in display order.
var Statuses = []Status{StatusRunning, StatusSyncing, StatusStopped, StatusError}

// ParseStatus converts a case-insensitive status name.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusRunning:
		return StatusRunning, nil
	case StatusSyncing:
		return StatusSyncing, nil
	case StatusStopped:
		return StatusStopped, nil
	case StatusError:
		return StatusError, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusSyncing, StatusStopped, StatusError:
		return true
	}
	return false
}

// NodeRecord is one aggregated map point handed to the visualisation by
// upstream collaborators.
type NodeRecord struct {
	ID       string        `json:"id" yaml:"id"`
	Name     string        `json:"name" yaml:"name"`
	Location GeoCoordinate `json:"location" yaml:"location"`
	Count    int           `json:"count" yaml:"count"`
	Status   Status        `json:"status" yaml:"status"`
	// Chain is the network name. Empty means multi-chain or local.
	Chain string `json:"chain,omitempty" yaml:"chain,omitempty"`
}

// ChainLabel returns Chain, or MultiChainLabel when it is empty.
func (n NodeRecord) ChainLabel() string {
	if n.Chain == "" {
		return MultiChainLabel
	}
	return n.Chain
}

// ValidationError describes why a record was rejected.
type ValidationError struct {
	ID  string
	Err error
}

func (e *ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("node record: %v", e.Err)
	}
	return fmt.Sprintf("node record %q: %v", e.ID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks the record invariants. The returned error, if any, is a
// *ValidationError.
func (n NodeRecord) Validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return &ValidationError{Err: ErrMissingID}
	}
	if err := n.Location.Validate(); err != nil {
		return &ValidationError{ID: n.ID, Err: err}
	}
	if n.Count < 1 {
		return &ValidationError{ID: n.ID, Err: fmt.Errorf("%w: %d", ErrInvalidCount, n.Count)}
	}
	if !n.Status.Valid() {
		return &ValidationError{ID: n.ID, Err: fmt.Errorf("%w: %q", ErrInvalidStatus, n.Status)}
	}
	return nil
}
