package sitl

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/radio-control/rcpilot/internal/adapter"
	"github.com/radio-control/rcpilot/internal/adaptertest"
	"github.com/radio-control/rcpilot/internal/override"
)

func TestEncodeLayout(t *testing.T) {
	frame := override.Frame{0, 0, 1850, 0, 0, 0, 0, 65535}
	got := Encode(frame)

	want := []byte{
		0x00, 0x00,
		0x00, 0x00,
		0x3a, 0x07, // 1850
		0x00, 0x00,
		0x00, 0x00,
		0x00, 0x00,
		0x00, 0x00,
		0xff, 0xff,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = % x, want % x", got, want)
	}
}

func TestDecode(t *testing.T) {
	frame := override.Frame{1100, 1200, 1300, 1400, 1500, 1600, 1700, 1800}
	got, err := Decode(Encode(frame))
	if err != nil || got != frame {
		t.Errorf("Decode(Encode()) = %v, %v; want %v", got, err, frame)
	}

	if _, err := Decode(make([]byte, FrameSize-1)); !errors.Is(err, ErrShortFrame) {
		t.Errorf("Decode(short) error = %v, want ErrShortFrame", err)
	}
}

// syncBuffer is a bytes.Buffer safe for the outbox worker and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestLinkWritesStream(t *testing.T) {
	var buf syncBuffer
	link := New(&buf, Options{})
	defer link.Close()

	frames := []override.Frame{
		{1500, 1500, 1500, 1500, 0, 0, 0, 0},
		{0, 0, 1850, 0, 0, 0, 0, 0},
	}
	for _, f := range frames {
		if err := link.SendOverride(context.Background(), f); err != nil {
			t.Fatalf("SendOverride() error = %v", err)
		}
	}

	waitFor(t, func() bool { return buf.Len() == 2*FrameSize })

	data := buf.Bytes()
	for i, want := range frames {
		got, err := Decode(data[i*FrameSize:])
		if err != nil || got != want {
			t.Errorf("frame %d = %v, %v; want %v", i, got, err, want)
		}
	}
	if link.Written() != 2 {
		t.Errorf("Written() = %d, want 2", link.Written())
	}
}

func TestLinkUnsupportedCapabilities(t *testing.T) {
	link := New(&syncBuffer{}, Options{})
	defer link.Close()

	if _, err := link.GetParam(context.Background(), "FLTMODE_CH"); !errors.Is(err, adapter.ErrUnsupported) {
		t.Errorf("GetParam() error = %v, want ErrUnsupported", err)
	}
	if err := link.SetMode(context.Background(), "alt_hold"); !errors.Is(err, adapter.ErrUnsupported) {
		t.Errorf("SetMode() error = %v, want ErrUnsupported", err)
	}
}

func TestLinkClosed(t *testing.T) {
	link := New(&syncBuffer{}, Options{})
	if err := link.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := link.SendOverride(context.Background(), override.Frame{}); !errors.Is(err, adapter.ErrUnavailable) {
		t.Errorf("SendOverride after Close error = %v, want ErrUnavailable", err)
	}
}

func TestDialAndSink(t *testing.T) {
	sink, err := ListenSink("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenSink() error = %v", err)
	}
	defer sink.Close()

	link, err := Dial(sink.Addr().String(), Options{})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer link.Close()

	want := override.Frame{0, 0, 1850, 0, 0, 0, 0, 0}
	if err := link.SendOverride(context.Background(), want); err != nil {
		t.Fatalf("SendOverride() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := sink.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if got != want {
		t.Errorf("received %v, want %v", got, want)
	}
}

func TestSinkNextCancelled(t *testing.T) {
	sink, err := ListenSink("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenSink() error = %v", err)
	}
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	if _, err := sink.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() error = %v, want deadline exceeded", err)
	}
}

func TestConformance(t *testing.T) {
	adaptertest.RunConformance(t, func() adapter.VehicleLink {
		return New(&syncBuffer{}, Options{})
	}, adaptertest.Capabilities{
		Params: false,
		Modes:  false,
	})
}
