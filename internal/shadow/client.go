package shadow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/dispatch"
	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/model"
)

// Snapshots is the poll-side collaborator.
type Snapshots interface {
	GetDeviceSnapshot(ctx context.Context, mac string) (model.Device, error)
}

// Commands delivers the optimistic writes to the device. Best-effort; a
// failed dispatch does not roll the local state back.
type Commands interface {
	Dispatch(mac string, cmd dispatch.Command) error
}

const (
	defaultPollInterval     = 15 * time.Second
	defaultReconnectBackoff = 5 * time.Second
	defaultWSPort           = 8765
)

// Client owns one device view: the shadow, its poll loop and its live
// channel. The live channel is dialed only once a LAN address is known from
// presence telemetry; on failure or abnormal close a single reconnect is
// scheduled after a fixed backoff.
type Client struct {
	mac      string
	snaps    Snapshots
	commands Commands
	dialer   *websocket.Dialer

	pollInterval time.Duration
	backoff      time.Duration

	shadow *Shadow

	mu         sync.Mutex
	closed     bool
	conn       *websocket.Conn
	connecting bool
	reconnect  *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(mac string, snaps Snapshots, commands Commands) *Client {
	return &Client{
		mac:          mac,
		snaps:        snaps,
		commands:     commands,
		dialer:       &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		pollInterval: defaultPollInterval,
		backoff:      defaultReconnectBackoff,
		shadow:       New(),
	}
}

// Start begins polling and live-channel management. It returns immediately;
// Close tears everything down.
func (c *Client) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.poll()
	go c.pollLoop()
}

// State returns the current merged view.
func (c *Client) State() State { return c.shadow.State() }

// SetBrightness applies an optimistic local write and dispatches the command
// best-effort.
func (c *Client) SetBrightness(brightness int) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.shadow.SetBrightnessLocal(brightness)
	c.mu.Unlock()
	if c.commands != nil {
		if err := c.commands.Dispatch(c.mac, dispatch.SetBrightness{Brightness: brightness}); err != nil {
			slog.Warn("brightness dispatch failed", "mac", c.mac, "error", err)
		}
	}
}

// SetSchedule applies an optimistic local schedule write and pushes it to
// the device best-effort.
func (c *Client) SetSchedule(spec model.LightScheduleSpec) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.shadow.SetScheduleLocal(spec)
	c.mu.Unlock()
	if c.commands != nil {
		if err := c.commands.Dispatch(c.mac, dispatch.PushLightSchedule{Schedule: spec}); err != nil {
			slog.Warn("schedule dispatch failed", "mac", c.mac, "error", err)
		}
	}
}

// Refresh fetches a full snapshot and lets it supersede stale data. It
// cancels no timers; fields mutated by a push or local write while the fetch
// was in flight keep their live values.
func (c *Client) Refresh(ctx context.Context) error {
	since := c.shadow.Seq()
	dev, err := c.snaps.GetDeviceSnapshot(ctx, c.mac)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", c.mac, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.shadow.ApplyRefresh(dev, since)
	return nil
}

// Close shuts the live channel, cancels the reconnect timer and the poll
// loop. No state update is delivered afterward.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) pollLoop() {
	t := time.NewTicker(c.pollInterval)
	defer t.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			c.poll()
		}
	}
}

// poll fetches a snapshot, gap-fills the shadow and opens the live channel
// once a LAN address is known.
func (c *Client) poll() {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	dev, err := c.snaps.GetDeviceSnapshot(ctx, c.mac)
	cancel()
	if err != nil {
		slog.Debug("snapshot poll failed", "mac", c.mac, "error", err)
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.shadow.ApplySnapshot(dev)
	c.mu.Unlock()
	c.maybeConnect()
}

// maybeConnect dials the device's live socket if one is not already open or
// being opened and the shadow knows a LAN address.
func (c *Client) maybeConnect() {
	c.mu.Lock()
	if c.closed || c.conn != nil || c.connecting || c.reconnect != nil {
		c.mu.Unlock()
		return
	}
	st := c.shadow.State()
	if st.LanIP == nil {
		c.mu.Unlock()
		return
	}
	port := defaultWSPort
	if st.LanWSPort != nil {
		port = *st.LanWSPort
	}
	c.connecting = true
	c.mu.Unlock()

	url := fmt.Sprintf("ws://%s:%d", *st.LanIP, port)
	conn, _, err := c.dialer.DialContext(c.ctx, url, nil)

	c.mu.Lock()
	c.connecting = false
	if err != nil {
		c.mu.Unlock()
		slog.Warn("live channel dial failed", "mac", c.mac, "url", url, "error", err)
		c.scheduleReconnect()
		return
	}
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()
	slog.Info("live channel open", "mac", c.mac, "url", url)
	go c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var frame StateFrame
		if err := conn.ReadJSON(&frame); err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			closed := c.closed
			c.mu.Unlock()
			_ = conn.Close()
			if !closed {
				slog.Warn("live channel lost", "mac", c.mac, "error", err)
				c.scheduleReconnect()
			}
			return
		}
		if frame.Type != "state" {
			continue
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.shadow.ApplyPush(frame)
		c.mu.Unlock()
	}
}

// scheduleReconnect arms the single backoff timer. At most one pending
// reconnect may exist at a time.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.reconnect != nil {
		return
	}
	c.reconnect = time.AfterFunc(c.backoff, func() {
		c.mu.Lock()
		c.reconnect = nil
		closed := c.closed
		c.mu.Unlock()
		if !closed {
			c.maybeConnect()
		}
	})
}
