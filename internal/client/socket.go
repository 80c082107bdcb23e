// Package client is the subscriber side of the forum: a long-lived socket that routes
// incoming events to registered listeners, and a REST client for the request routes.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ButyrinIA/forum/internal/events"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler receives the data of one event.
type Handler func(data json.RawMessage)

type listener struct {
	fn Handler
}

// Socket is one connection to the event channel. Listeners are registered per event
// name and removed with the function On returns.
type Socket struct {
	conn   *websocket.Conn
	logger *zap.Logger

	mu        sync.Mutex
	listeners map[string][]*listener

	closing atomic.Bool
	done    chan struct{}
	err     error
}

// Dial connects to the server's socket endpoint, e.g. ws://localhost:8000/socket.
func Dial(ctx context.Context, url string, logger *zap.Logger) (*Socket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	s := &Socket{
		conn:      conn,
		logger:    logger.Named("socket"),
		listeners: make(map[string][]*listener),
		done:      make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// On registers h for event. Calling the returned function removes exactly this
// registration; calling it again does nothing.
func (s *Socket) On(event string, h Handler) (off func()) {
	l := &listener{fn: h}
	s.mu.Lock()
	s.listeners[event] = append(s.listeners[event], l)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(event, l) })
	}
}

func (s *Socket) remove(event string, l *listener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ls := s.listeners[event]
	for i, x := range ls {
		if x == l {
			ls = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if len(ls) == 0 {
		delete(s.listeners, event)
		return
	}
	s.listeners[event] = ls
}

// Listeners returns how many listeners are registered for event.
func (s *Socket) Listeners(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners[event])
}

// Dispatch delivers data to every listener registered for event at the time of the
// call. Handlers run on the caller's goroutine.
func (s *Socket) Dispatch(event string, data json.RawMessage) {
	s.mu.Lock()
	ls := append([]*listener(nil), s.listeners[event]...)
	s.mu.Unlock()

	for _, l := range ls {
		l.fn(data)
	}
}

func (s *Socket) readLoop() {
	defer close(s.done)
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closing.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.err = err
			}
			return
		}
		env, err := events.Decode(raw)
		if err != nil {
			s.logger.Warn("discarding frame", zap.Error(err))
			continue
		}
		s.Dispatch(env.Event, env.Data)
	}
}

// Done is closed when the connection ends.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// Err reports why the connection ended. It is nil for a clean close and must only be
// read after Done is closed.
func (s *Socket) Err() error {
	return s.err
}

// Close ends the connection and waits for the read loop to stop.
func (s *Socket) Close() error {
	s.closing.Store(true)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	s.conn.WriteMessage(websocket.CloseMessage, msg)
	err := s.conn.Close()
	<-s.done
	return err
}
