package fake

import (
	"context"
	"errors"
	"testing"

	"github.com/radio-control/rcpilot/internal/adapter"
	"github.com/radio-control/rcpilot/internal/adaptertest"
	"github.com/radio-control/rcpilot/internal/override"
)

func TestFakeLinkConformance(t *testing.T) {
	adaptertest.RunConformance(t, func() adapter.VehicleLink {
		return NewLink("fake-01")
	}, adaptertest.Capabilities{
		Params: true,
		Modes:  true,
	})
}

func TestFakeLinkRecordsFrames(t *testing.T) {
	link := NewLink("fake")
	ctx := context.Background()

	if _, ok := link.LastFrame(); ok {
		t.Fatal("LastFrame() reported a frame before any send")
	}

	frames := []override.Frame{{1500}, {0, 0, 1850}}
	for _, f := range frames {
		if err := link.SendOverride(ctx, f); err != nil {
			t.Fatalf("SendOverride() error = %v", err)
		}
	}

	got := link.Frames()
	if len(got) != 2 || got[0] != frames[0] || got[1] != frames[1] {
		t.Errorf("Frames() = %v, want %v", got, frames)
	}
	if last, _ := link.LastFrame(); last != frames[1] {
		t.Errorf("LastFrame() = %v, want %v", last, frames[1])
	}
}

func TestFakeLinkParamsAndModes(t *testing.T) {
	link := NewLink("fake")
	ctx := context.Background()

	v, err := link.GetParam(ctx, "FLTMODE_CH")
	if err != nil || v != 5 {
		t.Errorf("GetParam(FLTMODE_CH) = %v, %v; want 5", v, err)
	}

	link.SetParam("FLTMODE_CH", 6)
	if v, _ := link.GetParam(ctx, "FLTMODE_CH"); v != 6 {
		t.Errorf("GetParam after SetParam = %v, want 6", v)
	}

	link.DeleteParam("FLTMODE_CH")
	if _, err := link.GetParam(ctx, "FLTMODE_CH"); !errors.Is(err, adapter.ErrInvalidRange) {
		t.Errorf("GetParam(deleted) error = %v, want INVALID_RANGE", err)
	}

	if err := link.SetMode(ctx, "loiter"); err != nil {
		t.Fatalf("SetMode(loiter) error = %v", err)
	}
	if link.Mode() != "loiter" {
		t.Errorf("Mode() = %q, want loiter", link.Mode())
	}
}

func TestFakeLinkErrorSimulation(t *testing.T) {
	tests := []struct {
		name   string
		inject error
		want   error
	}{
		{"busy", errors.New("BUSY: retry later"), adapter.ErrBusy},
		{"offline", errors.New("OFFLINE"), adapter.ErrUnavailable},
		{"garbage", errors.New("something odd"), adapter.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := NewLink("fake")
			ctx := context.Background()

			link.SimulateSendError(tt.inject)
			link.SimulateParamError(tt.inject)
			link.SimulateModeError(tt.inject)

			if err := link.SendOverride(ctx, override.Frame{}); !errors.Is(err, tt.want) {
				t.Errorf("SendOverride() error = %v, want %v", err, tt.want)
			}
			if _, err := link.GetParam(ctx, "FLTMODE_CH"); !errors.Is(err, tt.want) {
				t.Errorf("GetParam() error = %v, want %v", err, tt.want)
			}
			if err := link.SetMode(ctx, "alt_hold"); !errors.Is(err, tt.want) {
				t.Errorf("SetMode() error = %v, want %v", err, tt.want)
			}
			if len(link.Frames()) != 0 {
				t.Error("failed send was recorded")
			}
		})
	}
}

func TestFakeLinkAltitude(t *testing.T) {
	link := NewLink("fake")
	var src adapter.AltitudeSource = link

	link.SetAltitude(12.5)
	alt, err := src.Altitude(context.Background())
	if err != nil || alt != 12.5 {
		t.Errorf("Altitude() = %v, %v; want 12.5", alt, err)
	}
}
