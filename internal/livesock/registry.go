// Package livesock maintains at most one outbound websocket connection per
// device, used as the low-latency command path when a controller is reachable
// on the local network.
package livesock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultPort is used when presence telemetry never reported a ws port.
const DefaultPort = 8765

// ErrNoConnection is returned by SendJSON when no live connection exists for
// the device.
var ErrNoConnection = errors.New("no live connection")

type conn struct {
	ws *websocket.Conn
	// writeMu serializes writes; gorilla allows one concurrent writer only.
	writeMu sync.Mutex
}

type Registry struct {
	dialer *websocket.Dialer

	mu    sync.RWMutex
	conns map[string]*conn
}

func NewRegistry() *Registry {
	return &Registry{
		dialer: &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		conns:  map[string]*conn{},
	}
}

// Connect dials ws://ip:port and registers the connection, replacing any
// previous one for the device. onMessage receives every inbound frame until
// the connection dies; onClose fires once when the read loop ends.
func (r *Registry) Connect(ctx context.Context, mac, ip string, port int, onMessage func(mac string, frame []byte), onClose func(mac string)) error {
	if port <= 0 {
		port = DefaultPort
	}
	url := fmt.Sprintf("ws://%s:%d", ip, port)
	ws, _, err := r.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}

	c := &conn{ws: ws}
	r.mu.Lock()
	if old, ok := r.conns[mac]; ok {
		_ = old.ws.Close()
	}
	r.conns[mac] = c
	r.mu.Unlock()
	slog.Info("live socket connected", "mac", mac, "url", url)

	go r.readLoop(mac, c, onMessage, onClose)
	return nil
}

func (r *Registry) readLoop(mac string, c *conn, onMessage func(string, []byte), onClose func(string)) {
	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			slog.Warn("live socket closed", "mac", mac, "error", err)
			break
		}
		if onMessage != nil {
			onMessage(mac, frame)
		}
	}
	r.drop(mac, c)
	if onClose != nil {
		onClose(mac)
	}
}

// Connected reports whether a live connection currently exists. The answer
// can go stale the moment it is returned; senders handle the race by
// degrading to an error, not a crash.
func (r *Registry) Connected(mac string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[mac]
	return ok
}

// SendJSON writes one structured message to the device's live connection.
// A connection that dies mid-send is dropped from the registry.
func (r *Registry) SendJSON(mac string, v any) error {
	r.mu.RLock()
	c, ok := r.conns[mac]
	r.mu.RUnlock()
	if !ok {
		return ErrNoConnection
	}
	c.writeMu.Lock()
	err := c.ws.WriteJSON(v)
	c.writeMu.Unlock()
	if err != nil {
		r.drop(mac, c)
		return fmt.Errorf("live send to %s: %w", mac, err)
	}
	return nil
}

// Close tears down the connection for one device, if any.
func (r *Registry) Close(mac string) {
	r.mu.Lock()
	c, ok := r.conns[mac]
	if ok {
		delete(r.conns, mac)
	}
	r.mu.Unlock()
	if ok {
		_ = c.ws.Close()
	}
}

// CloseAll tears down every connection, used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = map[string]*conn{}
	r.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.Close()
	}
}

// drop removes the mapping only if it still points at this connection, so a
// replacement connection registered meanwhile is left alone.
func (r *Registry) drop(mac string, c *conn) {
	r.mu.Lock()
	if cur, ok := r.conns[mac]; ok && cur == c {
		delete(r.conns, mac)
	}
	r.mu.Unlock()
	_ = c.ws.Close()
}
