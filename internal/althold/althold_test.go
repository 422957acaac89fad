package althold

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/radio-control/rcpilot/internal/adapter/fake"
	"github.com/radio-control/rcpilot/internal/config"
	"github.com/radio-control/rcpilot/internal/stick"
)

type throttleRecorder struct {
	mu    sync.Mutex
	calls []int
	err   error
}

func (r *throttleRecorder) set(ctx context.Context, percent int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, percent)
	return nil
}

func (r *throttleRecorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.calls...)
}

func newTestController(t *testing.T) (*Controller, *fake.Link, *throttleRecorder) {
	t.Helper()
	link := fake.NewLink("althold")
	rec := &throttleRecorder{}
	return New(link, rec.set, config.Baseline().AltHold, nil), link, rec
}

func TestDecide(t *testing.T) {
	cfg := config.Baseline().AltHold

	tests := []struct {
		name     string
		altitude float64
		target   float64
		want     int
	}{
		{"well below", 5, 10, 14},
		{"just below band", 9.69, 10, 14},
		{"inside band low", 9.75, 10, 0},
		{"on target", 10, 10, 0},
		{"inside band high", 10.25, 10, 0},
		{"just above band", 10.31, 10, -29},
		{"well above", 20, 10, -29},
		{"ground target", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.altitude, tt.target, cfg); got != tt.want {
				t.Errorf("Decide(%v, %v) = %d, want %d", tt.altitude, tt.target, got, tt.want)
			}
		})
	}
}

func TestSetTargetValidation(t *testing.T) {
	c, _, _ := newTestController(t)

	for _, bad := range []float64{-0.1, 1000.5} {
		if err := c.SetTarget(bad); !errors.Is(err, stick.ErrInvalidRange) {
			t.Errorf("SetTarget(%v) error = %v, want INVALID_RANGE", bad, err)
		}
	}
	if _, ok := c.Target(); ok {
		t.Error("invalid target was stored")
	}

	if err := c.SetTarget(12); err != nil {
		t.Fatalf("SetTarget(12) error = %v", err)
	}
	if target, ok := c.Target(); !ok || target != 12 {
		t.Errorf("Target() = %v, %v; want 12, true", target, ok)
	}

	c.Clear()
	if _, ok := c.Target(); ok {
		t.Error("Target() still set after Clear")
	}
}

func TestSetTargetWithoutSource(t *testing.T) {
	c := New(nil, (&throttleRecorder{}).set, config.Baseline().AltHold, nil)
	if err := c.SetTarget(5); !errors.Is(err, ErrNoAltitudeSource) {
		t.Errorf("SetTarget() error = %v, want ErrNoAltitudeSource", err)
	}
}

func TestStepPushesOnlyChanges(t *testing.T) {
	c, link, rec := newTestController(t)
	ctx := context.Background()

	// Idle: nothing pushed
	if pushed, err := c.Step(ctx); pushed || err != nil {
		t.Fatalf("idle Step() = %v, %v", pushed, err)
	}

	if err := c.SetTarget(10); err != nil {
		t.Fatal(err)
	}

	link.SetAltitude(2)
	c.Step(ctx)
	c.Step(ctx) // same correction, not re-pushed

	link.SetAltitude(10.1)
	c.Step(ctx)

	link.SetAltitude(15)
	c.Step(ctx)
	c.Step(ctx)

	want := []int{14, 0, -29}
	got := rec.snapshot()
	if len(got) != len(want) {
		t.Fatalf("pushed %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("push %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestClearCentresThrottle(t *testing.T) {
	c, link, rec := newTestController(t)
	ctx := context.Background()

	link.SetAltitude(0)
	_ = c.SetTarget(5)
	c.Step(ctx)

	c.Clear()
	c.Step(ctx)
	c.Step(ctx)

	got := rec.snapshot()
	if len(got) != 2 || got[0] != 14 || got[1] != 0 {
		t.Errorf("pushed %v, want [14 0]", got)
	}
}

func TestStepRetriesAfterThrottleError(t *testing.T) {
	c, link, rec := newTestController(t)
	ctx := context.Background()

	link.SetAltitude(0)
	_ = c.SetTarget(5)

	rec.err = errors.New("queue full")
	if _, err := c.Step(ctx); err == nil {
		t.Fatal("Step() error = nil with failing throttle")
	}

	rec.err = nil
	if pushed, err := c.Step(ctx); !pushed || err != nil {
		t.Errorf("Step() after recovery = %v, %v; want pushed", pushed, err)
	}
}

func TestObserverSeesCorrections(t *testing.T) {
	c, link, _ := newTestController(t)

	var seen []int
	c.OnCorrection(func(target, altitude float64, percent int) {
		seen = append(seen, percent)
	})

	link.SetAltitude(50)
	_ = c.SetTarget(5)
	c.Step(context.Background())

	if len(seen) != 1 || seen[0] != -29 {
		t.Errorf("observed %v, want [-29]", seen)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.Baseline().AltHold
	cfg.PollInterval = 5 * time.Millisecond

	link := fake.NewLink("althold")
	rec := &throttleRecorder{}
	c := New(link, rec.set, cfg, nil)

	link.SetAltitude(0)
	_ = c.SetTarget(3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop")
	}

	if got := rec.snapshot(); len(got) != 1 || got[0] != 14 {
		t.Errorf("pushed %v, want [14]", got)
	}
}
