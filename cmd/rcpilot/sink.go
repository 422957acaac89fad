package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli"

	"github.com/radio-control/rcpilot/internal/adapter/sitl"
	"github.com/radio-control/rcpilot/internal/override"
)

func sinkCommand(c *cli.Context) error {
	sink, err := sitl.ListenSink(c.String("listen"))
	if err != nil {
		return err
	}
	defer sink.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(c.App.Writer, "listening on %s\n", sink.Addr())
	return printFrames(ctx, sink, c.App.Writer)
}

// printFrames writes one line per received frame until ctx is cancelled.
func printFrames(ctx context.Context, sink *sitl.Sink, w io.Writer) error {
	for {
		frame, err := sink.Next(ctx)
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil
		case errors.Is(err, sitl.ErrShortFrame):
			fmt.Fprintf(w, "dropped: %v\n", err)
			continue
		case err != nil:
			return err
		}
		fmt.Fprintln(w, formatFrame(frame))
	}
}

func formatFrame(frame override.Frame) string {
	var b strings.Builder
	for i, v := range frame {
		if i > 0 {
			b.WriteByte(' ')
		}
		if v == override.WireRelease {
			fmt.Fprintf(&b, "ch%d=release", i+1)
		} else {
			fmt.Fprintf(&b, "ch%d=%d", i+1, v)
		}
	}
	return b.String()
}
