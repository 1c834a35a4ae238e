package viz

import "github.com/signalsfoundry/nodemap/core"

// EventKind identifies an interaction notification.
type EventKind string

const (
	EventHoverEnter      EventKind = "hover_enter"
	EventHoverLeave      EventKind = "hover_leave"
	EventRotationChanged EventKind = "rotation_changed"
)

// Event is delivered to subscribers after the engine state it describes has
// been applied.
type Event struct {
	Kind     EventKind     `json:"kind"`
	MarkerID string        `json:"marker_id,omitempty"`
	Tooltip  *Tooltip      `json:"tooltip,omitempty"`
	Rotation core.Rotation `json:"rotation"`
}

// subscribers is an ordered set of event callbacks keyed by a token so that
// unsubscribing one never disturbs the others.
type subscribers struct {
	next int
	fns  map[int]func(Event)
	keys []int
}

func (s *subscribers) add(fn func(Event)) func() {
	if s.fns == nil {
		s.fns = make(map[int]func(Event))
	}
	key := s.next
	s.next++
	s.fns[key] = fn
	s.keys = append(s.keys, key)
	return func() {
		if _, ok := s.fns[key]; !ok {
			return
		}
		delete(s.fns, key)
		for i, k := range s.keys {
			if k == key {
				s.keys = append(s.keys[:i], s.keys[i+1:]...)
				break
			}
		}
	}
}

func (s *subscribers) emit(ev Event) {
	for _, k := range append([]int(nil), s.keys...) {
		if fn, ok := s.fns[k]; ok {
			fn(ev)
		}
	}
}

func (s *subscribers) clear() {
	s.fns = nil
	s.keys = nil
}
