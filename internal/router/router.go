// Package router classifies inbound bus messages by device and category and
// dispatches them to typed handlers. Telemetry loss is tolerated: anything
// unparsable or unhandled is dropped, never fatal.
package router

import (
	"context"
	"log/slog"
	"strings"
)

// Handler processes one message for a device. path holds the topic segments
// after the category. A returned error is logged and swallowed; it never
// stops the router from consuming the next message.
type Handler func(ctx context.Context, mac string, path []string, payload []byte) error

type Router struct {
	handlers map[string]Handler
}

func New() *Router {
	return &Router{handlers: map[string]Handler{}}
}

// Register installs the handler for a category, replacing any previous one.
func (r *Router) Register(category string, h Handler) {
	r.handlers[category] = h
}

// Route parses `<mac>/<category>[/...path]` and invokes the category's
// handler. Messages without a mac and category, or with an unregistered
// category, are dropped silently.
func (r *Router) Route(ctx context.Context, topic string, payload []byte) {
	segments := strings.Split(topic, "/")
	if len(segments) < 2 {
		return
	}
	mac, category := segments[0], segments[1]
	if mac == "" || category == "" {
		return
	}
	h, ok := r.handlers[category]
	if !ok {
		return
	}
	if err := h(ctx, mac, segments[2:], payload); err != nil {
		slog.Warn("telemetry handler failed", "mac", mac, "category", category, "topic", topic, "error", err)
	}
}
