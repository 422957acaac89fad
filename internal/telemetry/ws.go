package telemetry

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServeWebSocket upgrades the request and streams events as JSON messages
// until the peer disconnects. The lastEventId query parameter resumes like
// Last-Event-ID does for SSE.
func (h *Hub) ServeWebSocket(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	lastEventID := int64(0)
	if s := r.URL.Query().Get("lastEventId"); s != "" {
		if id, err := strconv.ParseInt(s, 10, 64); err == nil {
			lastEventID = id
		}
	}

	client := h.register(r.Context(), "ws", lastEventID)
	defer h.unregister(client)

	// Reader: the stream is one-way, reads only detect the close
	go func() {
		defer client.cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var writeMu sync.Mutex
	write := func(event Event) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
			return err
		}
		return conn.WriteJSON(event)
	}

	if err := write(h.readyEvent()); err != nil {
		return err
	}
	if err := h.replay(client, lastEventID, write); err != nil {
		return err
	}

	err = h.pump(client, write)

	writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	writeMu.Unlock()

	return err
}
