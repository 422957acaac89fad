// Package mavlink implements the live vehicle link over MAVLink.
//
// Override frames go out as RC_CHANNELS_OVERRIDE through a non-blocking
// outbox. Parameters are read with PARAM_REQUEST_READ and cached; mode
// changes are sent as COMMAND_LONG(MAV_CMD_DO_SET_MODE) and acknowledged by
// COMMAND_ACK. Altitude is taken from VFR_HUD.
package mavlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/radio-control/rcpilot/internal/adapter"
	"github.com/radio-control/rcpilot/internal/override"
)

// Endpoint kinds accepted by Options.EndpointKind.
const (
	EndpointUDPClient = "udp-client"
	EndpointUDPServer = "udp-server"
	EndpointTCPClient = "tcp-client"
	EndpointTCPServer = "tcp-server"
)

const paramCacheSize = 128

// Options configures a Link.
type Options struct {
	EndpointKind    string
	EndpointAddress string

	// SystemID is our own MAVLink system id.
	SystemID uint8

	TargetSystem    uint8
	TargetComponent uint8

	// Vehicle selects the custom mode table: copter, plane or rover.
	Vehicle string

	QueueSize      int
	ParamTimeout   time.Duration
	CommandTimeout time.Duration

	Logger *slog.Logger
}

// Link is a MAVLink vehicle link.
type Link struct {
	adapter.LinkBase

	node   *gomavlib.Node
	opts   Options
	outbox *adapter.Outbox
	logger *slog.Logger

	params *lru.Cache[string, float32]

	mu           sync.Mutex
	paramWaiters map[string][]chan float32
	ackWaiters   map[common.MAV_CMD][]chan common.MAV_RESULT

	altitude      atomic.Uint64
	haveAltitude  atomic.Bool
	lastHeartbeat atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func endpointConf(kind, address string) (gomavlib.EndpointConf, error) {
	switch kind {
	case EndpointUDPClient:
		return gomavlib.EndpointUDPClient{Address: address}, nil
	case EndpointUDPServer:
		return gomavlib.EndpointUDPServer{Address: address}, nil
	case EndpointTCPClient:
		return gomavlib.EndpointTCPClient{Address: address}, nil
	case EndpointTCPServer:
		return gomavlib.EndpointTCPServer{Address: address}, nil
	}
	return nil, fmt.Errorf("%w: unknown endpoint kind %q", adapter.ErrInvalidRange, kind)
}

// Dial creates the MAVLink node and starts the receive loop.
func Dial(opts Options) (*Link, error) {
	if opts.SystemID == 0 {
		opts.SystemID = 255
	}
	if opts.TargetSystem == 0 {
		opts.TargetSystem = 1
	}
	if opts.TargetComponent == 0 {
		opts.TargetComponent = 1
	}
	if opts.Vehicle == "" {
		opts.Vehicle = "copter"
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	if opts.ParamTimeout <= 0 {
		opts.ParamTimeout = 2 * time.Second
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	endpoint, err := endpointConf(opts.EndpointKind, opts.EndpointAddress)
	if err != nil {
		return nil, err
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:   []gomavlib.EndpointConf{endpoint},
		Dialect:     common.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: opts.SystemID,
	})
	if err != nil {
		return nil, adapter.NormalizeLinkErrorWithKind(fmt.Errorf("create node: %w", err), nil, "mavlink")
	}

	params, err := lru.New[string, float32](paramCacheSize)
	if err != nil {
		node.Close()
		return nil, fmt.Errorf("%w: %v", adapter.ErrInternal, err)
	}

	l := &Link{
		LinkBase: adapter.LinkBase{
			Name: fmt.Sprintf("mavlink:%s:%s", opts.EndpointKind, opts.EndpointAddress),
			Kind: "mavlink",
		},
		node:         node,
		opts:         opts,
		logger:       opts.Logger.With(slog.String("component", "mavlink")),
		params:       params,
		paramWaiters: make(map[string][]chan float32),
		ackWaiters:   make(map[common.MAV_CMD][]chan common.MAV_RESULT),
		done:         make(chan struct{}),
	}
	l.outbox = adapter.NewOutbox(opts.QueueSize, l.writeOverride, nil, l.logger)
	l.SetStatus(adapter.StatusOffline)

	l.wg.Add(1)
	go l.receive()

	return l, nil
}

// SendOverride queues an RC_CHANNELS_OVERRIDE for the target system.
func (l *Link) SendOverride(ctx context.Context, frame override.Frame) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return l.outbox.Enqueue(frame)
}

// GetParam reads a parameter, serving repeated reads from the cache.
func (l *Link) GetParam(ctx context.Context, name string) (float64, error) {
	if v, ok := l.params.Get(name); ok {
		return float64(v), nil
	}

	ch := make(chan float32, 1)
	l.mu.Lock()
	l.paramWaiters[name] = append(l.paramWaiters[name], ch)
	l.mu.Unlock()
	defer l.dropParamWaiter(name, ch)

	err := l.node.WriteMessageAll(&common.MessageParamRequestRead{
		TargetSystem:    l.opts.TargetSystem,
		TargetComponent: l.opts.TargetComponent,
		ParamId:         name,
		ParamIndex:      -1,
	})
	if err != nil {
		return 0, adapter.NormalizeLinkErrorWithKind(err, name, "mavlink")
	}

	timer := time.NewTimer(l.opts.ParamTimeout)
	defer timer.Stop()

	select {
	case v := <-ch:
		return float64(v), nil
	case <-timer.C:
		return 0, fmt.Errorf("%w: param %s read timeout after %v", adapter.ErrUnavailable, name, l.opts.ParamTimeout)
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-l.done:
		return 0, fmt.Errorf("%w: link closed", adapter.ErrUnavailable)
	}
}

// SetMode switches the vehicle to a named custom mode and waits for the ack.
func (l *Link) SetMode(ctx context.Context, mode string) error {
	custom, err := CustomMode(l.opts.Vehicle, mode)
	if err != nil {
		return err
	}

	ch := make(chan common.MAV_RESULT, 1)
	l.mu.Lock()
	l.ackWaiters[common.MAV_CMD_DO_SET_MODE] = append(l.ackWaiters[common.MAV_CMD_DO_SET_MODE], ch)
	l.mu.Unlock()
	defer l.dropAckWaiter(common.MAV_CMD_DO_SET_MODE, ch)

	err = l.node.WriteMessageAll(&common.MessageCommandLong{
		TargetSystem:    l.opts.TargetSystem,
		TargetComponent: l.opts.TargetComponent,
		Command:         common.MAV_CMD_DO_SET_MODE,
		Param1:          float32(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED),
		Param2:          float32(custom),
	})
	if err != nil {
		return adapter.NormalizeLinkErrorWithKind(err, mode, "mavlink")
	}

	timer := time.NewTimer(l.opts.CommandTimeout)
	defer timer.Stop()

	select {
	case result := <-ch:
		if result == common.MAV_RESULT_ACCEPTED {
			return nil
		}
		return adapter.NormalizeLinkErrorWithKind(errors.New(result.String()), mode, "mavlink")
	case <-timer.C:
		return fmt.Errorf("%w: mode %s not acknowledged after %v", adapter.ErrUnavailable, mode, l.opts.CommandTimeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return fmt.Errorf("%w: link closed", adapter.ErrUnavailable)
	}
}

// Altitude returns the last VFR_HUD altitude.
func (l *Link) Altitude(ctx context.Context) (float64, error) {
	if !l.haveAltitude.Load() {
		return 0, fmt.Errorf("%w: no altitude received", adapter.ErrUnavailable)
	}
	return math.Float64frombits(l.altitude.Load()), nil
}

// LastHeartbeat returns when the target system last sent a heartbeat.
func (l *Link) LastHeartbeat() time.Time {
	ns := l.lastHeartbeat.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Close stops the outbox and the node.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.outbox.Close()
		close(l.done)
		l.node.Close()
		l.wg.Wait()
		l.SetStatus(adapter.StatusClosed)
	})
	return nil
}

func (l *Link) writeOverride(frame override.Frame) error {
	err := l.node.WriteMessageAll(&common.MessageRcChannelsOverride{
		TargetSystem:    l.opts.TargetSystem,
		TargetComponent: l.opts.TargetComponent,
		Chan1Raw:        frame[0],
		Chan2Raw:        frame[1],
		Chan3Raw:        frame[2],
		Chan4Raw:        frame[3],
		Chan5Raw:        frame[4],
		Chan6Raw:        frame[5],
		Chan7Raw:        frame[6],
		Chan8Raw:        frame[7],
	})
	return adapter.NormalizeLinkErrorWithKind(err, frame, "mavlink")
}

func (l *Link) receive() {
	defer l.wg.Done()

	for {
		select {
		case <-l.done:
			return
		case evt, ok := <-l.node.Events():
			if !ok {
				return
			}
			switch e := evt.(type) {
			case *gomavlib.EventChannelOpen:
				l.logger.Info("channel open", slog.String("channel", fmt.Sprint(e.Channel)))
			case *gomavlib.EventChannelClose:
				l.logger.Warn("channel closed", slog.String("channel", fmt.Sprint(e.Channel)))
				l.SetStatus(adapter.StatusOffline)
			case *gomavlib.EventFrame:
				if e.SystemID() != l.opts.TargetSystem {
					continue
				}
				l.handleMessage(e.Message())
			}
		}
	}
}

func (l *Link) handleMessage(msg interface{}) {
	switch m := msg.(type) {
	case *common.MessageHeartbeat:
		l.lastHeartbeat.Store(time.Now().UnixNano())
		if l.GetStatus() != adapter.StatusOnline {
			l.logger.Info("vehicle online", slog.Int("system", int(l.opts.TargetSystem)))
		}
		l.SetStatus(adapter.StatusOnline)

	case *common.MessageParamValue:
		l.params.Add(m.ParamId, m.ParamValue)

		l.mu.Lock()
		waiters := l.paramWaiters[m.ParamId]
		delete(l.paramWaiters, m.ParamId)
		l.mu.Unlock()

		for _, ch := range waiters {
			select {
			case ch <- m.ParamValue:
			default:
			}
		}

	case *common.MessageCommandAck:
		l.mu.Lock()
		waiters := l.ackWaiters[m.Command]
		delete(l.ackWaiters, m.Command)
		l.mu.Unlock()

		for _, ch := range waiters {
			select {
			case ch <- m.Result:
			default:
			}
		}

	case *common.MessageVfrHud:
		l.altitude.Store(math.Float64bits(float64(m.Alt)))
		l.haveAltitude.Store(true)
	}
}

func (l *Link) dropParamWaiter(name string, ch chan float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	waiters := l.paramWaiters[name]
	for i, w := range waiters {
		if w == ch {
			l.paramWaiters[name] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(l.paramWaiters[name]) == 0 {
		delete(l.paramWaiters, name)
	}
}

func (l *Link) dropAckWaiter(cmd common.MAV_CMD, ch chan common.MAV_RESULT) {
	l.mu.Lock()
	defer l.mu.Unlock()
	waiters := l.ackWaiters[cmd]
	for i, w := range waiters {
		if w == ch {
			l.ackWaiters[cmd] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(l.ackWaiters[cmd]) == 0 {
		delete(l.ackWaiters, cmd)
	}
}
