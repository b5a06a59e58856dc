package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const defaultWriteTimeout = 5 * time.Second

// WebSocketChannel pushes messages to every open socket of a user.
type WebSocketChannel struct {
	mu             sync.RWMutex
	conns          map[string]map[*websocket.Conn]struct{}
	writeTimeout   time.Duration
	originPatterns []string
}

// NewWebSocketChannel creates a channel. originPatterns lists extra hosts
// allowed to open sockets cross-origin.
func NewWebSocketChannel(originPatterns ...string) *WebSocketChannel {
	return &WebSocketChannel{
		conns:          make(map[string]map[*websocket.Conn]struct{}),
		writeTimeout:   defaultWriteTimeout,
		originPatterns: originPatterns,
	}
}

// Accept upgrades the request and keeps the socket registered for userID
// until the client disconnects or the request context ends. initial, when
// non-nil, is written right after the upgrade.
func (w *WebSocketChannel) Accept(rw http.ResponseWriter, r *http.Request, userID string, initial *Message) error {
	c, err := websocket.Accept(rw, r, &websocket.AcceptOptions{
		OriginPatterns: w.originPatterns,
	})
	if err != nil {
		return fmt.Errorf("accept websocket: %w", err)
	}

	w.add(userID, c)
	defer w.remove(userID, c)
	slog.Debug("websocket connected", "user_id", userID)

	// Clients only listen; CloseRead handles control frames and reports disconnects.
	ctx := c.CloseRead(r.Context())

	if initial != nil {
		if err := w.write(ctx, c, *initial); err != nil {
			c.CloseNow()
			return err
		}
	}

	<-ctx.Done()
	c.Close(websocket.StatusNormalClosure, "")
	slog.Debug("websocket disconnected", "user_id", userID)
	return nil
}

func (w *WebSocketChannel) add(userID string, c *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	set, ok := w.conns[userID]
	if !ok {
		set = make(map[*websocket.Conn]struct{})
		w.conns[userID] = set
	}
	set[c] = struct{}{}
}

func (w *WebSocketChannel) remove(userID string, c *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	set := w.conns[userID]
	delete(set, c)
	if len(set) == 0 {
		delete(w.conns, userID)
	}
}

func (w *WebSocketChannel) write(ctx context.Context, c *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, w.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, msg)
}

// Send writes msg to all of the user's sockets. A user with no open socket
// is not an error.
func (w *WebSocketChannel) Send(ctx context.Context, userID string, msg Message) error {
	w.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(w.conns[userID]))
	for c := range w.conns[userID] {
		targets = append(targets, c)
	}
	w.mu.RUnlock()

	var errs []error
	for _, c := range targets {
		if err := w.write(ctx, c, msg); err != nil {
			c.CloseNow()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Connections returns the number of open sockets for userID.
func (w *WebSocketChannel) Connections(userID string) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.conns[userID])
}

// Close disconnects every socket.
func (w *WebSocketChannel) Close() error {
	w.mu.RLock()
	var all []*websocket.Conn
	for _, set := range w.conns {
		for c := range set {
			all = append(all, c)
		}
	}
	w.mu.RUnlock()

	for _, c := range all {
		c.Close(websocket.StatusGoingAway, "server shutting down")
	}
	return nil
}
