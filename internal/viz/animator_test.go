package viz

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/signalsfoundry/nodemap/internal/schedule"
	"github.com/signalsfoundry/nodemap/model"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestAnimator(cfg AnimationConfig) (*Animator, *schedule.FakeEventScheduler) {
	sched := schedule.NewFakeEventScheduler(epoch)
	return NewAnimator(cfg, sched, rand.New(rand.NewSource(1))), sched
}

func node(id string, count int, status model.Status) model.NodeRecord {
	return model.NodeRecord{ID: id, Name: "Node " + id, Count: count, Status: status}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestTargetRadius(t *testing.T) {
	if got, want := TargetRadius(3), math.Sqrt(17); !approx(got, want) {
		t.Fatalf("TargetRadius(3) = %v, want %v", got, want)
	}
	prev := 0.0
	for c := 1; c < 200; c++ {
		r := TargetRadius(c)
		if r <= prev {
			t.Fatalf("TargetRadius not increasing at %d: %v <= %v", c, r, prev)
		}
		if r < math.Sqrt(RadiusK1+RadiusK2) {
			t.Fatalf("TargetRadius(%d) = %v below minimum", c, r)
		}
		prev = r
	}
	if TargetRadius(0) != TargetRadius(1) {
		t.Fatalf("count 0 should clamp to 1")
	}
}

func TestAnimatorEnterEasesToTarget(t *testing.T) {
	a, sched := newTestAnimator(AnimationConfig{})
	a.Apply(node("a", 3, model.StatusStopped))

	s, ok := a.Sample("a", sched.Now())
	if !ok || s.Radius != 0 || s.State != StateEntering {
		t.Fatalf("initial sample = %+v ok=%v, want radius 0 entering", s, ok)
	}

	sched.Advance(250 * time.Millisecond)
	mid, _ := a.Sample("a", sched.Now())
	target := TargetRadius(3)
	if mid.Radius <= target/2 || mid.Radius >= target {
		t.Fatalf("mid-enter radius = %v, want in (%v, %v) for ease-out", mid.Radius, target/2, target)
	}

	sched.Advance(250 * time.Millisecond)
	s, _ = a.Sample("a", sched.Now())
	if !approx(s.Radius, target) {
		t.Fatalf("settled radius = %v, want %v", s.Radius, target)
	}
	if s.State != StateSteady {
		t.Fatalf("state = %v, want steady", s.State)
	}
	if s.Color != StatusColor(model.StatusStopped) {
		t.Fatalf("color = %q, want %q", s.Color, StatusColor(model.StatusStopped))
	}
}

func TestAnimatorOnlyRunningPulses(t *testing.T) {
	a, sched := newTestAnimator(AnimationConfig{})
	for _, st := range model.Statuses {
		a.Apply(node(string(st), 1, st))
	}
	sched.Advance(5 * time.Second)

	for _, st := range model.Statuses {
		got := a.State(string(st))
		want := StateSteady
		if st == model.StatusRunning {
			want = StatePulsing
		}
		if got != want {
			t.Fatalf("%s state = %v, want %v", st, got, want)
		}
	}
}

func TestAnimatorPulseStaysWithinAmplitude(t *testing.T) {
	a, sched := newTestAnimator(AnimationConfig{})
	a.Apply(node("a", 2, model.StatusRunning))
	sched.Advance(500 * time.Millisecond)

	target := TargetRadius(2)
	sawPulse := false
	for i := 0; i < 200; i++ {
		sched.Advance(50 * time.Millisecond)
		s, _ := a.Sample("a", sched.Now())
		if s.Radius < target-1e-9 || s.Radius > target+a.Config().PulseAmplitude+1e-9 {
			t.Fatalf("pulse radius %v outside [%v, %v]", s.Radius, target, target+a.Config().PulseAmplitude)
		}
		if s.Radius > target+0.5 {
			sawPulse = true
		}
	}
	if !sawPulse {
		t.Fatalf("expected the pulse to enlarge the marker at some point")
	}
}

func TestAnimatorRemoveCancelsEveryTask(t *testing.T) {
	a, sched := newTestAnimator(AnimationConfig{})
	var removed []string
	a.OnRemove(func(id string) { removed = append(removed, id) })

	a.Apply(node("a", 1, model.StatusRunning))
	a.Apply(node("b", 1, model.StatusRunning))
	sched.Advance(time.Second)
	if a.PendingTasks() == 0 {
		t.Fatalf("expected pulse tasks to be pending")
	}

	a.Remove("a")
	if a.State("a") != StateAbsent {
		t.Fatalf("state after zero-duration remove = %v, want absent", a.State("a"))
	}
	if len(removed) != 1 || removed[0] != "a" {
		t.Fatalf("removed = %v, want [a]", removed)
	}

	a.Remove("b")
	if got := sched.Pending(); got != 0 {
		t.Fatalf("scheduler pending = %d after removing every marker, want 0", got)
	}
	// Time moving on must not resurrect anything.
	sched.Advance(10 * time.Second)
	if a.Len() != 0 {
		t.Fatalf("Len = %d, want 0", a.Len())
	}
}

func TestAnimatorExitShrinksThenRemoves(t *testing.T) {
	a, sched := newTestAnimator(AnimationConfig{ExitDuration: 200 * time.Millisecond})
	a.Apply(node("a", 4, model.StatusSyncing))
	sched.Advance(time.Second)

	a.Remove("a")
	if a.State("a") != StateExiting {
		t.Fatalf("state = %v, want exiting", a.State("a"))
	}
	sched.Advance(100 * time.Millisecond)
	s, ok := a.Sample("a", sched.Now())
	if !ok || s.Radius <= 0 || s.Radius >= TargetRadius(4) {
		t.Fatalf("mid-exit sample = %+v ok=%v", s, ok)
	}
	sched.Advance(100 * time.Millisecond)
	if a.State("a") != StateAbsent {
		t.Fatalf("state after exit = %v, want absent", a.State("a"))
	}
	if sched.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", sched.Pending())
	}
}

func TestAnimatorReenterWhileExiting(t *testing.T) {
	a, sched := newTestAnimator(AnimationConfig{ExitDuration: 200 * time.Millisecond})
	a.Apply(node("a", 1, model.StatusStopped))
	sched.Advance(time.Second)
	a.Remove("a")
	sched.Advance(100 * time.Millisecond)

	a.Apply(node("a", 1, model.StatusStopped))
	if a.State("a") != StateEntering {
		t.Fatalf("state = %v, want entering", a.State("a"))
	}
	sched.Advance(time.Second)
	if a.State("a") != StateSteady {
		t.Fatalf("state = %v, want steady after re-entry", a.State("a"))
	}
}

func TestAnimatorUpdateRetargetsWithoutRestart(t *testing.T) {
	a, sched := newTestAnimator(AnimationConfig{})
	a.Apply(node("a", 1, model.StatusStopped))
	sched.Advance(time.Second)

	a.Apply(node("a", 10, model.StatusStopped))
	s, _ := a.Sample("a", sched.Now())
	if !approx(s.Radius, TargetRadius(1)) {
		t.Fatalf("radius right after update = %v, want %v", s.Radius, TargetRadius(1))
	}
	if s.State != StateSteady {
		t.Fatalf("update must not restart the enter animation, state = %v", s.State)
	}
	sched.Advance(300 * time.Millisecond)
	s, _ = a.Sample("a", sched.Now())
	if !approx(s.Radius, TargetRadius(10)) {
		t.Fatalf("radius after update = %v, want %v", s.Radius, TargetRadius(10))
	}
}

func TestAnimatorStatusChangeTogglesPulse(t *testing.T) {
	a, sched := newTestAnimator(AnimationConfig{})
	a.Apply(node("a", 1, model.StatusRunning))
	sched.Advance(time.Second)
	if a.State("a") != StatePulsing {
		t.Fatalf("state = %v, want pulsing", a.State("a"))
	}

	a.Apply(node("a", 1, model.StatusError))
	if a.State("a") != StateSteady {
		t.Fatalf("state = %v, want steady once not running", a.State("a"))
	}
	if a.PendingTasks() != 0 || sched.Pending() != 0 {
		t.Fatalf("pulse task left behind: animator=%d scheduler=%d", a.PendingTasks(), sched.Pending())
	}
	s, _ := a.Sample("a", sched.Now())
	if s.Color != StatusColor(model.StatusError) {
		t.Fatalf("color = %q, want error color", s.Color)
	}

	a.Apply(node("a", 1, model.StatusRunning))
	if a.State("a") != StatePulsing {
		t.Fatalf("state = %v, want pulsing again", a.State("a"))
	}
}

func TestAnimatorHoverScalesRadius(t *testing.T) {
	a, sched := newTestAnimator(AnimationConfig{})
	a.Apply(node("a", 1, model.StatusStopped))
	sched.Advance(time.Second)

	a.SetHovered("a", true)
	s, _ := a.Sample("a", sched.Now())
	if want := TargetRadius(1) * a.Config().HoverScale; !approx(s.Radius, want) {
		t.Fatalf("hovered radius = %v, want %v", s.Radius, want)
	}
	a.SetHovered("a", false)
	s, _ = a.Sample("a", sched.Now())
	if !approx(s.Radius, TargetRadius(1)) {
		t.Fatalf("radius after unhover = %v, want %v", s.Radius, TargetRadius(1))
	}
}

func TestAnimatorCloseIsFinal(t *testing.T) {
	a, sched := newTestAnimator(AnimationConfig{})
	a.Apply(node("a", 1, model.StatusRunning))
	a.Apply(node("b", 1, model.StatusRunning))
	a.Close()

	if sched.Pending() != 0 {
		t.Fatalf("pending = %d after Close, want 0", sched.Pending())
	}
	a.Apply(node("c", 1, model.StatusRunning))
	a.Remove("a")
	a.Close()
	if a.Len() != 0 || sched.Pending() != 0 {
		t.Fatalf("animator not inert after Close: len=%d pending=%d", a.Len(), sched.Pending())
	}
}
