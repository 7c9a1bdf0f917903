package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/linchuyao6/talk-essence/internal/model"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Session owns event delivery for one job connection. The pipeline produces
// events through Emit and never blocks on the peer: events land in an
// unbounded in-order queue that a writer goroutine drains, so terminal
// events are never lost to a slow reader. A disconnected peer turns Emit
// into a no-op — the pipeline keeps running, only delivery stops.
type Session struct {
	conn *websocket.Conn
	wake chan struct{}
	done chan struct{}

	mu     sync.Mutex
	queue  [][]byte
	closed bool
}

func NewSession(conn *websocket.Conn) *Session {
	return &Session{
		conn: conn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Emit queues one event for delivery. Never blocks and never drops; safe to
// call after the peer is gone.
func (s *Session) Emit(ev *model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Failed to marshal event: %v", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, data)
	s.mu.Unlock()

	s.signal()
}

// Run relays queued events to the peer in order and sends periodic pings.
// It returns once the session is closed and the queue is drained, or when
// a write fails.
func (s *Session) Run() {
	defer close(s.done)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		if message, ok := s.pop(); ok {
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.markClosed()
				return
			}
			continue
		}

		if s.isClosed() {
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		select {
		case <-s.wake:
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.markClosed()
				return
			}
		}
	}
}

// ReadLoop consumes inbound frames until the peer disconnects, then marks
// the session closed so further emits are dropped.
func (s *Session) ReadLoop() {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			s.markClosed()
			return
		}
	}
}

// Close stops accepting events and waits for the writer to drain what was
// already queued, so terminal events reach the peer before the connection
// goes away.
func (s *Session) Close() {
	s.markClosed()
	<-s.done
}

func (s *Session) pop() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	message := s.queue[0]
	s.queue = s.queue[1:]
	return message, true
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

// signal nudges the writer without blocking; wakes coalesce.
func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
