package viz

import (
	"math"
	"math/rand"
	"time"

	"github.com/signalsfoundry/nodemap/internal/schedule"
	"github.com/signalsfoundry/nodemap/model"
)

// Marker radius constants: TargetRadius(count) = sqrt(count*RadiusK1 + RadiusK2).
const (
	RadiusK1 = 4.0
	RadiusK2 = 5.0
)

// TargetRadius is the steady-state radius for a marker aggregating count
// nodes. It grows sub-linearly and is at least sqrt(RadiusK1+RadiusK2) for
// count >= 1.
func TargetRadius(count int) float64 {
	if count < 1 {
		count = 1
	}
	return math.Sqrt(float64(count)*RadiusK1 + RadiusK2)
}

// StatusColor returns the fill colour for a status.
func StatusColor(s model.Status) string {
	switch s {
	case model.StatusRunning:
		return "#22c55e"
	case model.StatusSyncing:
		return "#f59e0b"
	case model.StatusStopped:
		return "#9ca3af"
	case model.StatusError:
		return "#ef4444"
	}
	return "#6b7280"
}

// MarkerState is the animation lifecycle stage of one marker.
type MarkerState int

const (
	StateAbsent MarkerState = iota
	StateEntering
	StateSteady
	StatePulsing
	StateExiting
)

func (s MarkerState) String() string {
	switch s {
	case StateEntering:
		return "entering"
	case StateSteady:
		return "steady"
	case StatePulsing:
		return "pulsing"
	case StateExiting:
		return "exiting"
	default:
		return "absent"
	}
}

// AnimationConfig tunes marker timing. Zero fields take the defaults from
// DefaultAnimationConfig.
type AnimationConfig struct {
	EnterDuration  time.Duration
	UpdateDuration time.Duration
	// ExitDuration of zero removes markers immediately.
	ExitDuration   time.Duration
	PulsePeriod    time.Duration
	PulseAmplitude float64
	HoverScale     float64
}

// DefaultAnimationConfig returns the stock timings.
func DefaultAnimationConfig() AnimationConfig {
	return AnimationConfig{
		EnterDuration:  500 * time.Millisecond,
		UpdateDuration: 300 * time.Millisecond,
		PulsePeriod:    2 * time.Second,
		PulseAmplitude: 3,
		HoverScale:     1.4,
	}
}

func (c AnimationConfig) withDefaults() AnimationConfig {
	d := DefaultAnimationConfig()
	if c.EnterDuration <= 0 {
		c.EnterDuration = d.EnterDuration
	}
	if c.UpdateDuration <= 0 {
		c.UpdateDuration = d.UpdateDuration
	}
	if c.ExitDuration < 0 {
		c.ExitDuration = 0
	}
	if c.PulsePeriod <= 0 {
		c.PulsePeriod = d.PulsePeriod
	}
	if c.PulseAmplitude <= 0 {
		c.PulseAmplitude = d.PulseAmplitude
	}
	if c.HoverScale <= 0 {
		c.HoverScale = d.HoverScale
	}
	return c
}

// tween interpolates a radius between two values with cubic ease-out.
type tween struct {
	from, to float64
	start    time.Time
	dur      time.Duration
}

func (tw tween) at(now time.Time) float64 {
	if tw.dur <= 0 || !now.Before(tw.start.Add(tw.dur)) {
		return tw.to
	}
	if now.Before(tw.start) {
		return tw.from
	}
	p := float64(now.Sub(tw.start)) / float64(tw.dur)
	e := 1 - math.Pow(1-p, 3)
	return tw.from + (tw.to-tw.from)*e
}

func (tw tween) end() time.Time { return tw.start.Add(tw.dur) }

// markerAnim is the animator's private per-id state.
type markerAnim struct {
	state  MarkerState
	status model.Status
	count  int
	color  string
	radius tween

	// Pulse cycle currently playing; zero start means no cycle yet.
	cycleStart time.Time
	hovered    bool

	// Scheduled task ids owned by this marker.
	settleTask string
	pulseTask  string
	removeTask string
}

// MarkerSample is a marker's animated appearance at one instant.
type MarkerSample struct {
	Radius float64
	Color  string
	State  MarkerState
}

// Animator drives per-marker enter, update, pulse and exit animations on an
// EventScheduler. Every task it schedules is recorded against the marker
// that owns it and is cancelled when that marker is removed or the animator
// is closed, so no callback ever touches a removed marker.
//
// An Animator is not safe for concurrent use; it must be driven from the
// goroutine that runs its scheduler.
type Animator struct {
	cfg     AnimationConfig
	sched   schedule.EventScheduler
	rng     *rand.Rand
	markers map[string]*markerAnim
	closed  bool

	onRemove func(id string)
}

// NewAnimator builds an animator. rng seeds pulse phases; nil uses a
// time-seeded source.
func NewAnimator(cfg AnimationConfig, sched schedule.EventScheduler, rng *rand.Rand) *Animator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Animator{
		cfg:     cfg.withDefaults(),
		sched:   sched,
		rng:     rng,
		markers: make(map[string]*markerAnim),
	}
}

// OnRemove registers a callback run after a marker has been fully removed.
func (a *Animator) OnRemove(fn func(id string)) { a.onRemove = fn }

// Config returns the effective configuration.
func (a *Animator) Config() AnimationConfig { return a.cfg }

// Apply moves the marker for rec towards the record's count and status.
// Absent markers enter; existing markers are re-targeted without
// restarting their enter animation; exiting markers re-enter from their
// current radius.
func (a *Animator) Apply(rec model.NodeRecord) {
	if a.closed {
		return
	}
	now := a.sched.Now()
	target := TargetRadius(rec.Count)

	m, ok := a.markers[rec.ID]
	if !ok {
		m = &markerAnim{
			state:  StateEntering,
			status: rec.Status,
			count:  rec.Count,
			color:  StatusColor(rec.Status),
			radius: tween{from: 0, to: target, start: now, dur: a.cfg.EnterDuration},
		}
		a.markers[rec.ID] = m
		a.scheduleSettle(rec.ID, m)
		return
	}

	if m.state == StateExiting {
		a.cancel(&m.removeTask)
		current := m.radius.at(now)
		m.state = StateEntering
		m.status, m.count, m.color = rec.Status, rec.Count, StatusColor(rec.Status)
		m.radius = tween{from: current, to: target, start: now, dur: a.cfg.EnterDuration}
		a.scheduleSettle(rec.ID, m)
		return
	}

	if rec.Count != m.count || target != m.radius.to {
		m.count = rec.Count
		if m.state == StateEntering {
			m.radius.to = target
		} else {
			m.radius = tween{from: m.radius.at(now), to: target, start: now, dur: a.cfg.UpdateDuration}
		}
	}

	if rec.Status != m.status {
		m.status = rec.Status
		m.color = StatusColor(rec.Status)
		if m.state == StatePulsing && rec.Status != model.StatusRunning {
			a.stopPulse(m)
			m.state = StateSteady
		} else if m.state == StateSteady && rec.Status == model.StatusRunning {
			a.startPulse(rec.ID, m)
		}
	}
}

// Remove starts the exit of id. With a zero ExitDuration the marker and all
// of its tasks are gone when Remove returns.
func (a *Animator) Remove(id string) {
	m, ok := a.markers[id]
	if !ok || a.closed || m.state == StateExiting {
		return
	}
	a.cancelAll(m)

	if a.cfg.ExitDuration <= 0 {
		a.drop(id)
		return
	}

	now := a.sched.Now()
	m.state = StateExiting
	m.hovered = false
	m.radius = tween{from: m.radius.at(now), to: 0, start: now, dur: a.cfg.ExitDuration}
	m.removeTask = a.sched.Schedule(m.radius.end(), func() {
		m.removeTask = ""
		a.drop(id)
	})
}

// SetHovered toggles the hover enlargement for id.
func (a *Animator) SetHovered(id string, hovered bool) {
	if m, ok := a.markers[id]; ok && m.state != StateExiting {
		m.hovered = hovered
	}
}

// Sample returns the animated appearance of id at now.
func (a *Animator) Sample(id string, now time.Time) (MarkerSample, bool) {
	m, ok := a.markers[id]
	if !ok {
		return MarkerSample{}, false
	}
	r := m.radius.at(now)
	if m.state == StatePulsing && !m.cycleStart.IsZero() && !now.Before(m.cycleStart) {
		p := float64(now.Sub(m.cycleStart)) / float64(a.cfg.PulsePeriod)
		if p < 1 {
			r += a.cfg.PulseAmplitude * math.Sin(math.Pi*p)
		}
	}
	if m.hovered {
		r *= a.cfg.HoverScale
	}
	return MarkerSample{Radius: r, Color: m.color, State: m.state}, true
}

// State returns the lifecycle stage of id.
func (a *Animator) State(id string) MarkerState {
	if m, ok := a.markers[id]; ok {
		return m.state
	}
	return StateAbsent
}

// Len returns the number of markers, including exiting ones.
func (a *Animator) Len() int { return len(a.markers) }

// PendingTasks returns the number of tasks the animator has outstanding.
func (a *Animator) PendingTasks() int {
	n := 0
	for _, m := range a.markers {
		for _, id := range []string{m.settleTask, m.pulseTask, m.removeTask} {
			if id != "" {
				n++
			}
		}
	}
	return n
}

// Close cancels every outstanding task and forgets all markers. Later calls
// on the animator are no-ops.
func (a *Animator) Close() {
	if a.closed {
		return
	}
	for _, m := range a.markers {
		a.cancelAll(m)
	}
	a.markers = make(map[string]*markerAnim)
	a.closed = true
}

func (a *Animator) scheduleSettle(id string, m *markerAnim) {
	a.cancel(&m.settleTask)
	m.settleTask = a.sched.Schedule(m.radius.end(), func() {
		m.settleTask = ""
		if a.markers[id] != m || m.state != StateEntering {
			return
		}
		m.state = StateSteady
		if m.status == model.StatusRunning {
			a.startPulse(id, m)
		}
	})
}

// startPulse begins the repeating pulse task after a random phase.
func (a *Animator) startPulse(id string, m *markerAnim) {
	a.stopPulse(m)
	m.state = StatePulsing
	phase := time.Duration(a.rng.Int63n(int64(a.cfg.PulsePeriod)))
	a.schedulePulse(id, m, a.sched.Now().Add(phase))
}

func (a *Animator) schedulePulse(id string, m *markerAnim, at time.Time) {
	m.pulseTask = a.sched.Schedule(at, func() {
		m.pulseTask = ""
		if a.markers[id] != m || m.state != StatePulsing {
			return
		}
		m.cycleStart = at
		a.schedulePulse(id, m, at.Add(a.cfg.PulsePeriod))
	})
}

func (a *Animator) stopPulse(m *markerAnim) {
	a.cancel(&m.pulseTask)
	m.cycleStart = time.Time{}
}

func (a *Animator) cancelAll(m *markerAnim) {
	a.cancel(&m.settleTask)
	a.stopPulse(m)
	a.cancel(&m.removeTask)
}

func (a *Animator) cancel(task *string) {
	if *task != "" {
		a.sched.Cancel(*task)
		*task = ""
	}
}

func (a *Animator) drop(id string) {
	delete(a.markers, id)
	if a.onRemove != nil {
		a.onRemove(id)
	}
}
