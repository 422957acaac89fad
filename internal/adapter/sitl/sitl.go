// Package sitl implements the simulated-vehicle link: override frames written
// as a raw byte stream of eight little-endian uint16 values (16 bytes).
package sitl

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/radio-control/rcpilot/internal/adapter"
	"github.com/radio-control/rcpilot/internal/override"
)

// FrameSize is the encoded size of one override frame.
const FrameSize = 2 * override.NumChannels

// ErrShortFrame is returned by Decode for fewer than FrameSize bytes.
var ErrShortFrame = errors.New("short frame")

// Encode packs a frame as eight little-endian uint16 values.
func Encode(frame override.Frame) []byte {
	buf := make([]byte, FrameSize)
	for i, v := range frame {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}
	return buf
}

// Decode unpacks the first FrameSize bytes of b.
func Decode(b []byte) (override.Frame, error) {
	var frame override.Frame
	if len(b) < FrameSize {
		return frame, fmt.Errorf("%w: %d bytes, want %d", ErrShortFrame, len(b), FrameSize)
	}
	for i := range frame {
		frame[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return frame, nil
}

// Options configures a Link.
type Options struct {
	// QueueSize bounds the number of frames waiting to be written.
	QueueSize int

	// WriteTimeout bounds each write when the stream is a net.Conn.
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Link writes override frames to a byte stream.
type Link struct {
	adapter.LinkBase

	w            io.Writer
	outbox       *adapter.Outbox
	writeTimeout time.Duration
	logger       *slog.Logger

	written  atomic.Uint64
	failures atomic.Uint64
}

// Dial opens a UDP stream to addr, the usual SITL RC input port.
func Dial(addr string, opts Options) (*Link, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, adapter.NormalizeLinkErrorWithKind(fmt.Errorf("dial %s: %w", addr, err), nil, "sitl")
	}
	l := New(conn, opts)
	l.Name = "sitl:" + addr
	return l, nil
}

// New wraps an arbitrary byte stream.
func New(w io.Writer, opts Options) *Link {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 20 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	l := &Link{
		LinkBase: adapter.LinkBase{
			Name: "sitl",
			Kind: "sitl",
		},
		w:            w,
		writeTimeout: opts.WriteTimeout,
		logger:       opts.Logger.With(slog.String("component", "sitl")),
	}
	l.outbox = adapter.NewOutbox(opts.QueueSize, l.write, nil, l.logger)
	l.SetStatus(adapter.StatusOnline)
	return l
}

// SendOverride queues a frame for writing.
func (l *Link) SendOverride(ctx context.Context, frame override.Frame) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return l.outbox.Enqueue(frame)
}

// GetParam is not available on a raw stream.
func (l *Link) GetParam(ctx context.Context, name string) (float64, error) {
	return 0, fmt.Errorf("%w: sitl stream has no parameter %s", adapter.ErrUnsupported, name)
}

// SetMode is not available on a raw stream.
func (l *Link) SetMode(ctx context.Context, mode string) error {
	return fmt.Errorf("%w: sitl stream cannot change mode to %s", adapter.ErrUnsupported, mode)
}

// Written returns the number of frames put on the wire.
func (l *Link) Written() uint64 {
	return l.written.Load()
}

// Close stops the writer and closes the stream if it is closable.
func (l *Link) Close() error {
	l.outbox.Close()
	l.SetStatus(adapter.StatusClosed)
	if c, ok := l.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (l *Link) write(frame override.Frame) error {
	if conn, ok := l.w.(net.Conn); ok {
		if err := conn.SetWriteDeadline(time.Now().Add(l.writeTimeout)); err != nil {
			return adapter.NormalizeLinkErrorWithKind(err, nil, "sitl")
		}
	}

	if _, err := l.w.Write(Encode(frame)); err != nil {
		l.failures.Add(1)
		return adapter.NormalizeLinkErrorWithKind(err, frame, "sitl")
	}
	l.written.Add(1)
	return nil
}
