package telemetry

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/radio-control/rcpilot/internal/config"
)

func testTiming() config.TimingConfig {
	timing := config.Baseline().Timing
	timing.EventBufferSize = 5
	return timing
}

func newSSEServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Subscribe(r.Context(), w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type sseReader struct {
	r *bufio.Reader
}

// next returns the type and data of the next SSE frame.
func (s *sseReader) next(t *testing.T) (id, typ, data string) {
	t.Helper()
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			t.Fatalf("read SSE stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "id: "):
			id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			typ = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if typ != "" {
				return id, typ, data
			}
		}
	}
}

func openSSE(t *testing.T, url, lastEventID string) *sseReader {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q", ct)
	}
	return &sseReader{r: bufio.NewReader(resp.Body)}
}

func TestHubPublishWithoutClients(t *testing.T) {
	hub := NewHub(testTiming())
	defer hub.Stop()

	if err := hub.Publish(Event{Type: EventCommand, Data: map[string]interface{}{"line": "rc 3 1850"}}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if hub.buffer.GetSize() != 1 {
		t.Errorf("buffer size = %d, want 1", hub.buffer.GetSize())
	}
}

func TestHubPublishAfterStop(t *testing.T) {
	hub := NewHub(testTiming())
	hub.Stop()
	hub.Stop()

	if err := hub.Publish(Event{Type: EventCommand}); err == nil {
		t.Error("Publish() after Stop returned nil error")
	}
}

func TestEventBuffer(t *testing.T) {
	buffer := NewEventBuffer(5)
	if buffer.GetCapacity() != 5 {
		t.Errorf("GetCapacity() = %d, want 5", buffer.GetCapacity())
	}

	for i := int64(1); i <= 7; i++ {
		buffer.AddEvent(Event{ID: i, Type: EventOverride})
	}

	if buffer.GetSize() != 5 {
		t.Errorf("GetSize() = %d, want 5", buffer.GetSize())
	}

	events := buffer.GetEventsAfter(4)
	if len(events) != 3 || events[0].ID != 5 || events[2].ID != 7 {
		t.Errorf("GetEventsAfter(4) = %+v, want ids 5..7", events)
	}
	if len(buffer.GetEventsAfter(0)) != 5 {
		t.Error("GetEventsAfter(0) did not return the whole buffer")
	}
}

func TestSubscribeStreamsEvents(t *testing.T) {
	hub := NewHub(testTiming())
	defer hub.Stop()
	hub.SetSnapshot(func() map[string]interface{} {
		return map[string]interface{}{"state": "idle"}
	})

	srv := newSSEServer(t, hub)
	stream := openSSE(t, srv.URL, "")

	_, typ, data := stream.next(t)
	if typ != EventReady {
		t.Fatalf("first event = %q, want ready", typ)
	}
	if !strings.Contains(data, `"state":"idle"`) {
		t.Errorf("ready data = %s, want snapshot", data)
	}

	if err := hub.Publish(Event{Type: EventOverride, Data: map[string]interface{}{"channel": 3}}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	id, typ, data := stream.next(t)
	if typ != EventOverride {
		t.Errorf("event = %q, want override", typ)
	}
	if id == "" {
		t.Error("event has no id")
	}
	if !strings.Contains(data, `"channel":3`) {
		t.Errorf("data = %s", data)
	}
}

func TestSubscribeReplaysAfterLastEventID(t *testing.T) {
	hub := NewHub(testTiming())
	defer hub.Stop()

	for i := 0; i < 3; i++ {
		_ = hub.Publish(Event{Type: EventCommand, Data: map[string]interface{}{"n": i}})
	}

	srv := newSSEServer(t, hub)
	stream := openSSE(t, srv.URL, "1")

	if _, typ, _ := stream.next(t); typ != EventReady {
		t.Fatalf("first event = %q, want ready", typ)
	}
	for _, wantID := range []string{"2", "3"} {
		id, typ, _ := stream.next(t)
		if id != wantID || typ != EventCommand {
			t.Errorf("replayed event = %s/%s, want %s/command", id, typ, wantID)
		}
	}
}

func TestHeartbeat(t *testing.T) {
	timing := testTiming()
	timing.HeartbeatInterval = 20 * time.Millisecond
	hub := NewHub(timing)
	defer hub.Stop()

	srv := newSSEServer(t, hub)
	stream := openSSE(t, srv.URL, "")

	if _, typ, _ := stream.next(t); typ != EventReady {
		t.Fatalf("first event = %q, want ready", typ)
	}
	if _, typ, _ := stream.next(t); typ != EventHeartbeat {
		t.Errorf("second event = %q, want heartbeat", typ)
	}
	if hub.buffer.GetSize() != 0 {
		t.Error("heartbeat events were buffered for replay")
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub := NewHub(testTiming())
	defer hub.Stop()

	srv := newSSEServer(t, hub)

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	stream := &sseReader{r: bufio.NewReader(resp.Body)}
	stream.next(t)

	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d, want 1", hub.ClientCount())
	}

	cancel()
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after disconnect, want 0", hub.ClientCount())
	}
}

func TestServeWebSocket(t *testing.T) {
	hub := NewHub(testTiming())
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWebSocket(w, r)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ready Event
	if err := conn.ReadJSON(&ready); err != nil {
		t.Fatalf("ReadJSON(ready) error = %v", err)
	}
	if ready.Type != EventReady {
		t.Fatalf("first message type = %q, want ready", ready.Type)
	}

	_ = hub.Publish(Event{Type: EventSpeech, Data: map[string]interface{}{"text": "hover"}})

	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got.Type != EventSpeech || got.Data["text"] != "hover" {
		t.Errorf("message = %+v", got)
	}
}
