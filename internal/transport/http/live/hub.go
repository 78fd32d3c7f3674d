package livehttp

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"quorum/internal/engine"
	"quorum/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Hub fans engine events out to websocket subscribers. A subscriber whose buffer is full
// misses the message instead of stalling the engine.
type Hub struct {
	mu      sync.Mutex
	subs    map[chan []byte]struct{}
	buffer  int
	closed  bool
	dropped atomic.Int64
}

var _ engine.Sink = (*Hub)(nil)

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[chan []byte]struct{}), buffer: buffer}
}

// Subscribe registers a new stream. The returned cancel func is idempotent.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, h.buffer)
	h.mu.Lock()
	if h.closed {
		close(ch)
	} else {
		h.subs[ch] = struct{}{}
	}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
}

func (h *Hub) HandleEvents(_ context.Context, events []engine.Event) error {
	msgs := make([][]byte, 0, len(events))
	for _, ev := range events {
		raw, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, raw)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		for _, msg := range msgs {
			select {
			case ch <- msg:
			default:
				h.dropped.Add(1)
			}
		}
	}
	return nil
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Close ends every stream. Later subscribers get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *Hub) serveWS(checkOrigin func(*http.Request) bool) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
	return func(c *gin.Context) { h.stream(c, &upgrader) }
}

func (h *Hub) stream(c *gin.Context, upgrader *websocket.Upgrader) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("ws upgrade failed ip=%s err=%v", c.ClientIP(), err)
		return
	}
	defer conn.Close()

	stream, cancel := h.Subscribe()
	defer cancel()

	// Drain reads so close frames from the client are noticed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case msg, ok := <-stream:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debugf("ws write failed ip=%s err=%v", c.ClientIP(), err)
				return
			}
		}
	}
}
