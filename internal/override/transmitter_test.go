package override

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingSender captures every frame handed to the link.
type recordingSender struct {
	mu     sync.Mutex
	frames []Frame
	err    error
}

func (r *recordingSender) SendOverride(ctx context.Context, frame Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
	return r.err
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *recordingSender) lastFrame() Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return Frame{}
	}
	return r.frames[len(r.frames)-1]
}

func newTestTransmitter() (*Transmitter, *recordingSender) {
	sender := &recordingSender{}
	return NewTransmitter(sender, Options{Period: 10 * time.Millisecond}), sender
}

func TestNewTransmitterIdle(t *testing.T) {
	tx, sender := newTestTransmitter()

	if tx.State() != Idle {
		t.Errorf("initial state = %v, want idle", tx.State())
	}
	if tx.Table() != (Frame{}) {
		t.Errorf("initial table = %v, want zeros", tx.Table())
	}
	if tx.Tick(context.Background()) {
		t.Error("idle transmitter transmitted on tick")
	}
	if sender.count() != 0 {
		t.Errorf("frames sent = %d, want 0", sender.count())
	}
}

func TestSetChannelThenTick(t *testing.T) {
	tx, sender := newTestTransmitter()
	ctx := context.Background()

	if err := tx.SetChannel(ctx, 3, 1850); err != nil {
		t.Fatalf("SetChannel() error = %v", err)
	}
	if sender.count() != 1 {
		t.Fatalf("SetChannel should transmit immediately, got %d frames", sender.count())
	}
	if tx.State() != Active {
		t.Errorf("state = %v, want active", tx.State())
	}

	if !tx.Tick(ctx) {
		t.Fatal("tick after SetChannel did not transmit")
	}

	want := Frame{0, 0, 1850, 0, 0, 0, 0, 0}
	if got := sender.lastFrame(); got != want {
		t.Errorf("frame = %v, want %v", got, want)
	}
}

func TestSetChannelLeavesOtherChannels(t *testing.T) {
	tx, sender := newTestTransmitter()
	ctx := context.Background()

	_ = tx.SetChannel(ctx, 1, 1100)
	_ = tx.SetChannel(ctx, 8, 1900)
	_ = tx.SetChannel(ctx, 5, 1555)
	tx.Tick(ctx)

	want := Frame{1100, 0, 0, 0, 1555, 0, 0, 1900}
	if got := sender.lastFrame(); got != want {
		t.Errorf("frame = %v, want %v", got, want)
	}
}

func TestForcedResendsAfterChange(t *testing.T) {
	tx, sender := newTestTransmitter()
	ctx := context.Background()

	_ = tx.SetChannel(ctx, 2, 1400)
	base := sender.count()

	for i := 1; i <= DefaultResends; i++ {
		if !tx.Tick(ctx) {
			t.Fatalf("tick %d did not transmit", i)
		}
	}
	if got := sender.count() - base; got != DefaultResends {
		t.Errorf("forced transmissions = %d, want %d", got, DefaultResends)
	}

	if tx.Tick(ctx) {
		t.Error("tick 11 transmitted without a change")
	}
	if tx.Tick(ctx) {
		t.Error("tick 12 transmitted without a change")
	}

	// A change restarts the forced window.
	_ = tx.SetChannel(ctx, 2, 1450)
	if !tx.Tick(ctx) {
		t.Error("tick after new change did not transmit")
	}
}

func TestReleaseSentinel(t *testing.T) {
	tx, sender := newTestTransmitter()
	ctx := context.Background()

	if err := tx.SetChannel(ctx, 4, Release); err != nil {
		t.Fatalf("SetChannel(4, -1) error = %v", err)
	}
	tx.Tick(ctx)

	if got := sender.lastFrame()[3]; got != WireRelease {
		t.Errorf("channel 4 = %d, want %d", got, WireRelease)
	}
}

func TestSetAll(t *testing.T) {
	tx, sender := newTestTransmitter()
	ctx := context.Background()

	if err := tx.SetAll(ctx, 1500); err != nil {
		t.Fatalf("SetAll() error = %v", err)
	}
	if sender.count() != 1 {
		t.Fatalf("SetAll transmitted %d frames, want 1", sender.count())
	}

	want := Frame{1500, 1500, 1500, 1500, 1500, 1500, 1500, 1500}
	if got := sender.lastFrame(); got != want {
		t.Errorf("frame = %v, want %v", got, want)
	}

	_ = tx.SetAll(ctx, Release)
	for i, v := range sender.lastFrame() {
		if v != WireRelease {
			t.Errorf("channel %d = %d, want release", i+1, v)
		}
	}
}

func TestInvalidChannelNoMutation(t *testing.T) {
	tx, sender := newTestTransmitter()
	ctx := context.Background()

	_ = tx.SetChannel(ctx, 1, 1200)
	before := tx.Status()
	sent := sender.count()

	for _, ch := range []int{0, 9, -1, 100} {
		if err := tx.SetChannel(ctx, ch, 1500); !errors.Is(err, ErrInvalidChannel) {
			t.Errorf("SetChannel(%d) error = %v, want ErrInvalidChannel", ch, err)
		}
	}

	after := tx.Status()
	if after.Table != before.Table || after.Counter != before.Counter {
		t.Errorf("invalid channel mutated state: before %+v after %+v", before, after)
	}
	if sender.count() != sent {
		t.Error("invalid channel triggered a transmission")
	}
}

func TestInvalidValueNoMutation(t *testing.T) {
	tx, _ := newTestTransmitter()
	ctx := context.Background()

	for _, v := range []int{-2, 65536, 1 << 20} {
		if err := tx.SetChannel(ctx, 1, v); !errors.Is(err, ErrInvalidRange) {
			t.Errorf("SetChannel(1, %d) error = %v, want ErrInvalidRange", v, err)
		}
		if err := tx.SetAll(ctx, v); !errors.Is(err, ErrInvalidRange) {
			t.Errorf("SetAll(%d) error = %v, want ErrInvalidRange", v, err)
		}
	}
	if tx.State() != Idle {
		t.Errorf("state = %v after rejected input, want idle", tx.State())
	}
}

func TestStateReturnsToIdle(t *testing.T) {
	tx, _ := newTestTransmitter()
	ctx := context.Background()

	_ = tx.SetAll(ctx, 0)
	if tx.State() != Active {
		t.Fatal("pending resends should keep state active")
	}
	for i := 0; i < DefaultResends; i++ {
		tx.Tick(ctx)
	}
	if tx.State() != Idle {
		t.Errorf("state = %v after resends drained with zero table, want idle", tx.State())
	}
}

func TestResendWhileActive(t *testing.T) {
	sender := &recordingSender{}
	tx := NewTransmitter(sender, Options{ResendWhileActive: true})
	ctx := context.Background()

	_ = tx.SetChannel(ctx, 1, 1600)
	for i := 0; i < DefaultResends; i++ {
		tx.Tick(ctx)
	}
	if !tx.Tick(ctx) {
		t.Error("non-zero table should keep transmitting with ResendWhileActive")
	}
}

func TestSendErrorsCounted(t *testing.T) {
	sender := &recordingSender{err: errors.New("BUSY")}
	var notified []error
	tx := NewTransmitter(sender, Options{
		OnTransmit: func(_ Frame, err error) { notified = append(notified, err) },
	})

	if err := tx.SetChannel(context.Background(), 1, 1500); err != nil {
		t.Fatalf("send failure must not surface from SetChannel, got %v", err)
	}
	if st := tx.Status(); st.SendErrors != 1 || st.Sent != 0 {
		t.Errorf("status = %+v, want 1 send error", st)
	}
	if len(notified) != 1 || notified[0] == nil {
		t.Errorf("OnTransmit calls = %v, want one error", notified)
	}
}

func TestConcurrentSetAndTick(t *testing.T) {
	tx, _ := newTestTransmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = tx.Run(ctx)
		close(done)
	}()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = tx.SetChannel(ctx, (i%NumChannels)+1, 1000+w*100+i)
			}
		}(w)
	}
	wg.Wait()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestWireValue(t *testing.T) {
	tests := []struct {
		in      int
		want    uint16
		wantErr bool
	}{
		{-1, 65535, false},
		{0, 0, false},
		{1500, 1500, false},
		{65535, 65535, false},
		{-2, 0, true},
		{65536, 0, true},
	}
	for _, tt := range tests {
		got, err := WireValue(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("WireValue(%d) = %d, %v", tt.in, got, err)
		}
	}
}
