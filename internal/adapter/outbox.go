package adapter

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Workiva/go-datastructures/queue"

	"github.com/radio-control/rcpilot/internal/override"
)

// WriteFunc puts one frame on the wire. It is only called from the outbox
// worker, so implementations need no locking of their own.
type WriteFunc func(frame override.Frame) error

// Outbox decouples frame producers from the wire. Enqueue never blocks; a
// single worker drains the queue in order.
type Outbox struct {
	q      *queue.Queue
	limit  int64
	write  WriteFunc
	onErr  func(error)
	logger *slog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewOutbox starts the worker. limit bounds the number of queued frames.
func NewOutbox(limit int, write WriteFunc, onErr func(error), logger *slog.Logger) *Outbox {
	if limit <= 0 {
		limit = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	o := &Outbox{
		q:      queue.New(int64(limit)),
		limit:  int64(limit),
		write:  write,
		onErr:  onErr,
		logger: logger,
	}

	o.wg.Add(1)
	go o.drain()

	return o
}

// Enqueue queues a frame. It returns ErrBusy when the queue is full and
// ErrUnavailable after Close.
func (o *Outbox) Enqueue(frame override.Frame) error {
	if o.q.Disposed() {
		return fmt.Errorf("%w: outbox closed", ErrUnavailable)
	}
	if o.q.Len() >= o.limit {
		return fmt.Errorf("%w: queue full (%d frames)", ErrBusy, o.limit)
	}
	if err := o.q.Put(frame); err != nil {
		if errors.Is(err, queue.ErrDisposed) {
			return fmt.Errorf("%w: outbox closed", ErrUnavailable)
		}
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return nil
}

// Len returns the number of queued frames.
func (o *Outbox) Len() int {
	return int(o.q.Len())
}

// Close stops the worker. Queued frames are discarded.
func (o *Outbox) Close() {
	o.closeOnce.Do(func() {
		o.q.Dispose()
	})
	o.wg.Wait()
}

func (o *Outbox) drain() {
	defer o.wg.Done()

	for {
		items, err := o.q.Get(1)
		if err != nil {
			// Disposed
			return
		}

		for _, item := range items {
			frame, ok := item.(override.Frame)
			if !ok {
				continue
			}
			if err := o.write(frame); err != nil {
				o.logger.Warn("frame write failed", slog.String("error", err.Error()))
				if o.onErr != nil {
					o.onErr(err)
				}
			}
		}
	}
}
