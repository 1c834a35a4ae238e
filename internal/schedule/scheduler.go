package schedule

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/nodemap/timectrl"
)

// EventScheduler runs callbacks at specific times measured on a Clock. The
// visualisation engine uses it for every timed animation step (enter
// completion, pulse cycles, exit removal) so that each started task has an
// id that can be cancelled.
//
// The host loop advances time and calls RunDue once per frame. Callbacks run
// on the goroutine that calls RunDue.
type EventScheduler interface {
	// Schedule registers a callback f to run at time 'at'.
	// It returns an opaque event ID that can be used to cancel the event.
	Schedule(at time.Time, f func()) (id string)

	// Cancel attempts to cancel a previously scheduled event.
	// It is a no-op if the ID is unknown or the event already ran.
	Cancel(id string)

	// Now returns the current time, usually delegated to the underlying Clock.
	Now() time.Time

	// RunDue executes all events whose scheduled time is <= Now().
	// It is safe to call multiple times; already-run events never run again.
	RunDue()

	// Pending returns the number of scheduled, uncancelled events.
	Pending() int
}

// scheduledEvent represents a single scheduled callback.
type scheduledEvent struct {
	id        string
	when      time.Time
	f         func()
	cancelled bool
}

// eventScheduler is the Clock-backed EventScheduler. Events are kept ordered
// by time; events with equal times run in the order they were scheduled.
type eventScheduler struct {
	clock timectrl.Clock

	mu      sync.Mutex
	counter uint64
	events  []*scheduledEvent // ordered by 'when' (earliest first)
	index   map[string]*scheduledEvent
}

// NewEventScheduler creates a new event scheduler backed by the given Clock.
func NewEventScheduler(clock timectrl.Clock) EventScheduler {
	if clock == nil {
		clock = timectrl.WallClock{}
	}
	return &eventScheduler{
		clock: clock,
		index: make(map[string]*scheduledEvent),
	}
}

// Schedule registers a callback to run at the specified time.
func (s *eventScheduler) Schedule(at time.Time, f func()) (id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id = fmt.Sprintf("ev-%d", s.counter)

	ev := &scheduledEvent{
		id:   id,
		when: at,
		f:    f,
	}
	s.addEventLocked(ev)
	s.index[id] = ev

	return id
}

// addEventLocked inserts an event after every event scheduled at the same
// time or earlier. Caller must hold s.mu lock.
func (s *eventScheduler) addEventLocked(ev *scheduledEvent) {
	idx := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].when.After(ev.when)
	})

	s.events = append(s.events, nil)
	copy(s.events[idx+1:], s.events[idx:])
	s.events[idx] = ev
}

// Cancel attempts to cancel a previously scheduled event.
func (s *eventScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.index[id]
	if !ok {
		return
	}

	ev.cancelled = true
	delete(s.index, id)
	// Removal from s.events is lazy; RunDue skips cancelled events.
}

// Now returns the current time from the underlying clock.
func (s *eventScheduler) Now() time.Time {
	return s.clock.Now()
}

// Pending returns the number of live events.
func (s *eventScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// popNextLocked removes and returns the next due, non-cancelled event, or nil.
// Caller must hold s.mu lock.
func (s *eventScheduler) popNextLocked(now time.Time) *scheduledEvent {
	for len(s.events) > 0 {
		ev := s.events[0]
		if ev.cancelled {
			s.events = s.events[1:]
			continue
		}
		if ev.when.After(now) {
			// Ordered by time, so nothing later is due either.
			return nil
		}
		s.events = s.events[1:]
		return ev
	}
	return nil
}

// RunDue executes all events whose scheduled time is <= Now(). Events
// scheduled by a callback for a time that is already due run in the same
// call.
func (s *eventScheduler) RunDue() {
	for {
		s.mu.Lock()
		ev := s.popNextLocked(s.clock.Now())
		if ev == nil {
			s.mu.Unlock()
			return
		}
		delete(s.index, ev.id)
		s.mu.Unlock()

		// Execute callback OUTSIDE the lock to allow re-entrancy.
		if ev.f != nil {
			ev.f()
		}
	}
}
