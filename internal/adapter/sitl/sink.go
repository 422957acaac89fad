package sitl

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/radio-control/rcpilot/internal/override"
)

// Sink receives override frames on a UDP port, standing in for a simulator's
// RC input.
type Sink struct {
	conn net.PacketConn
}

// ListenSink binds a UDP sink on addr.
func ListenSink(addr string) (*Sink, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Sink{conn: conn}, nil
}

// Addr returns the bound address.
func (s *Sink) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Next blocks until a frame arrives or ctx is done. Datagrams shorter than
// FrameSize return ErrShortFrame.
func (s *Sink) Next(ctx context.Context) (override.Frame, error) {
	buf := make([]byte, 64)
	for {
		// Wake up periodically to observe ctx
		if err := s.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			return override.Frame{}, err
		}

		n, _, err := s.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				if ctx.Err() != nil {
					return override.Frame{}, ctx.Err()
				}
				continue
			}
			return override.Frame{}, err
		}
		return Decode(buf[:n])
	}
}

// Close releases the port.
func (s *Sink) Close() error {
	return s.conn.Close()
}
