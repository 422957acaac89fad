//
//
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/radio-control/rcpilot/internal/config"
)

// Event types.
const (
	EventReady     = "ready"
	EventOverride  = "override"
	EventCommand   = "command"
	EventMode      = "mode"
	EventSpeech    = "speech"
	EventAltHold   = "althold"
	EventFault     = "fault"
	EventHeartbeat = "heartbeat"
)

// Event is a telemetry event.
type Event struct {
	ID   int64                  `json:"id,omitempty"`
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// Client is one connected subscriber.
type Client struct {
	ID     string
	Kind   string // "sse" or "ws"
	LastID int64
	Events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// SnapshotFunc supplies the state sent in the ready event.
type SnapshotFunc func() map[string]interface{}

// Hub distributes events to SSE and websocket subscribers.
//
// Lock ordering: h.mu before EventBuffer.mu. Client channels are closed once
// through Client.once.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	nextID  atomic.Int64
	seq     atomic.Int64
	buffer  *EventBuffer

	config   config.TimingConfig
	snapshot SnapshotFunc

	heartbeatStop chan struct{}

	dropped atomic.Uint64

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// EventBuffer keeps the most recent events for replay.
type EventBuffer struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

// NewHub creates a hub using the heartbeat interval and buffer size from
// timing.
func NewHub(timing config.TimingConfig) *Hub {
	if timing.EventBufferSize <= 0 {
		timing.EventBufferSize = 50
	}
	return &Hub{
		clients: make(map[string]*Client),
		buffer:  NewEventBuffer(timing.EventBufferSize),
		config:  timing,
		done:    make(chan struct{}),
	}
}

// SetSnapshot registers the state supplier for ready events.
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.mu.Lock()
	h.snapshot = fn
	h.mu.Unlock()
}

// Publish assigns an id, buffers the event and offers it to every client.
// Slow clients miss events rather than stall the publisher.
func (h *Hub) Publish(event Event) error {
	select {
	case <-h.done:
		return fmt.Errorf("telemetry hub stopped")
	default:
	}

	if event.ID == 0 {
		event.ID = h.nextID.Add(1)
	}
	if event.Data == nil {
		event.Data = map[string]interface{}{}
	}
	if _, ok := event.Data["ts"]; !ok {
		event.Data["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	}

	if event.Type != EventHeartbeat {
		h.buffer.AddEvent(event)
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case <-client.ctx.Done():
			continue
		case client.Events <- event:
		default:
			h.dropped.Add(1)
		}
	}

	return nil
}

// Dropped returns how many deliveries were skipped for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Subscribe serves one SSE client until it disconnects or the hub stops.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastEventID := int64(0)
	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if id, err := strconv.ParseInt(lastIDStr, 10, 64); err == nil {
			lastEventID = id
		}
	}

	client := h.register(ctx, "sse", lastEventID)
	defer h.unregister(client)

	var writeMu sync.Mutex
	write := func(event Event) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return writeSSE(w, event)
	}

	if err := write(h.readyEvent()); err != nil {
		return fmt.Errorf("failed to send ready event: %w", err)
	}
	if err := h.replay(client, lastEventID, write); err != nil {
		return fmt.Errorf("failed to replay events: %w", err)
	}

	return h.pump(client, write)
}

// replay sends buffered events newer than lastEventID that the client will
// not receive live.
func (h *Hub) replay(client *Client, lastEventID int64, write func(Event) error) error {
	if lastEventID <= 0 {
		return nil
	}
	for _, event := range h.buffer.GetEventsAfter(lastEventID) {
		if event.ID > client.LastID {
			break
		}
		if err := write(event); err != nil {
			return err
		}
	}
	return nil
}

// pump forwards client events through write until the client goes away.
func (h *Hub) pump(client *Client, write func(Event) error) error {
	for {
		select {
		case <-client.ctx.Done():
			return nil
		case <-h.done:
			return nil
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if event.ID != 0 && event.ID <= client.LastID && event.Type != EventHeartbeat {
				// Already delivered by replay
				continue
			}
			if err := write(event); err != nil {
				return err
			}
		}
	}
}

func (h *Hub) register(ctx context.Context, kind string, lastID int64) *Client {
	clientCtx, cancel := context.WithCancel(ctx)
	client := &Client{
		ID:     fmt.Sprintf("%s_%d", kind, h.seq.Add(1)),
		Kind:   kind,
		LastID: lastID,
		Events: make(chan Event, 100),
		ctx:    clientCtx,
		cancel: cancel,
	}

	// Replay covers everything up to now
	if latest := h.nextID.Load(); latest > client.LastID {
		client.LastID = latest
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	if len(h.clients) == 1 && h.heartbeatStop == nil {
		h.startHeartbeat()
	}
	h.mu.Unlock()

	return client
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[client.ID]; !exists {
		return
	}
	client.cancel()
	delete(h.clients, client.ID)

	if len(h.clients) == 0 && h.heartbeatStop != nil {
		close(h.heartbeatStop)
		h.heartbeatStop = nil
	}
}

func (h *Hub) readyEvent() Event {
	h.mu.RLock()
	fn := h.snapshot
	h.mu.RUnlock()

	snapshot := map[string]interface{}{}
	if fn != nil {
		snapshot = fn()
	}
	return Event{
		Type: EventReady,
		Data: map[string]interface{}{
			"snapshot": snapshot,
			"ts":       time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
}

// startHeartbeat runs the heartbeat ticker. Caller holds h.mu.
func (h *Hub) startHeartbeat() {
	interval := h.config.HeartbeatInterval
	if interval <= 0 {
		return
	}

	stop := make(chan struct{})
	h.heartbeatStop = stop

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = h.Publish(Event{Type: EventHeartbeat})
			case <-stop:
				return
			case <-h.done:
				return
			}
		}
	}()
}

// Stop disconnects every client and stops the heartbeat.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		for _, client := range h.clients {
			client.cancel()
		}
		if h.heartbeatStop != nil {
			close(h.heartbeatStop)
			h.heartbeatStop = nil
		}
		h.mu.Unlock()

		h.wg.Wait()

		h.mu.Lock()
		for id, client := range h.clients {
			client.once.Do(func() { close(client.Events) })
			delete(h.clients, id)
		}
		h.mu.Unlock()
	})
}

// writeSSE formats one event in text/event-stream framing.
func writeSSE(w http.ResponseWriter, event Event) error {
	if event.ID > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return fmt.Errorf("failed to write event type: %w", err)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event data: %w", err)
	}

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// NewEventBuffer creates a buffer holding at most capacity events.
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventBuffer{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
	}
}

// AddEvent appends an event, evicting the oldest beyond capacity.
func (b *EventBuffer) AddEvent(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)
	if len(b.events) > b.capacity {
		b.events = b.events[1:]
	}
}

// GetEventsAfter returns buffered events with an id above lastID.
func (b *EventBuffer) GetEventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for _, event := range b.events {
		if event.ID > lastID {
			result = append(result, event)
		}
	}
	return result
}

// GetCapacity returns the buffer capacity.
func (b *EventBuffer) GetCapacity() int {
	return b.capacity
}

// GetSize returns the number of buffered events.
func (b *EventBuffer) GetSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
