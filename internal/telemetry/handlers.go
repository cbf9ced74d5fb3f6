// Package telemetry normalizes inbound device payloads and writes them
// through to the metric log and the device-state record.
package telemetry

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/model"
	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/store"
)

type MetricStore interface {
	RecordMetric(ctx context.Context, mac, name, value string, typ model.ValueType) error
}

type DeviceStateStore interface {
	UpsertDeviceState(ctx context.Context, mac string, f store.DeviceFields) error
}

type Handlers struct {
	Metrics MetricStore
	Devices DeviceStateStore

	// LanUpdated, when set, is invoked after a presence message carrying a
	// local address has been stored. The hub uses it to open the device's
	// live socket.
	LanUpdated func(ctx context.Context, mac, ip string, port int)

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// presencePayload is the optional structured part of a presence announce.
// wsPort arrives as a string from some firmware revisions and a number from
// others.
type presencePayload struct {
	LocalIP *string         `json:"localIp"`
	WSPort  json.RawMessage `json:"wsPort"`
}

// Presence marks the device online, refreshes last-seen, captures LAN
// reachability when the payload carries it, and appends a presence metric.
// Malformed JSON is tolerated: the raw text is still recorded.
func (h *Handlers) Presence(ctx context.Context, mac string, _ []string, payload []byte) error {
	now := h.now().UTC()
	online := true
	fields := store.DeviceFields{Online: &online, LastSeen: &now}

	value := string(payload)
	typ := model.TypeText

	var p presencePayload
	if json.Valid(payload) && json.Unmarshal(payload, &p) == nil {
		typ = model.TypeJSON
		if normalized, err := normalizeJSON(payload); err == nil {
			value = normalized
		}
		if p.LocalIP != nil && *p.LocalIP != "" {
			fields.LanIP = p.LocalIP
		}
		if port, ok := coercePort(p.WSPort); ok {
			fields.LanWSPort = &port
		}
	}

	if err := h.Devices.UpsertDeviceState(ctx, mac, fields); err != nil {
		return err
	}
	if h.LanUpdated != nil && fields.LanIP != nil {
		port := 0
		if fields.LanWSPort != nil {
			port = *fields.LanWSPort
		}
		h.LanUpdated(ctx, mac, *fields.LanIP, port)
	}
	return h.Metrics.RecordMetric(ctx, mac, "presence", value, typ)
}

// Status sets the online flag from a plain-text payload ("online" after
// trim/lowercase, anything else is offline), refreshes last-seen and appends
// a status metric.
func (h *Handlers) Status(ctx context.Context, mac string, _ []string, payload []byte) error {
	now := h.now().UTC()
	text := string(payload)
	online := strings.ToLower(strings.TrimSpace(text)) == "online"
	fields := store.DeviceFields{Online: &online, LastSeen: &now}

	if err := h.Devices.UpsertDeviceState(ctx, mac, fields); err != nil {
		return err
	}
	return h.Metrics.RecordMetric(ctx, mac, "status", text, model.TypeText)
}

// Sensor records a reading published under `<mac>/sensor/<...name>/state`.
// Topics not ending in "state" are ignored. Does not touch online/last-seen.
func (h *Handlers) Sensor(ctx context.Context, mac string, path []string, payload []byte) error {
	if len(path) == 0 || path[len(path)-1] != "state" {
		return nil
	}
	name := strings.Join(path[:len(path)-1], "/")
	if name == "" {
		return nil
	}
	value := string(payload)
	return h.Metrics.RecordMetric(ctx, mac, name, value, InferType(value))
}

// InferType classifies a raw sensor value: boolean, then int, then float,
// falling back to text.
func InferType(value string) model.ValueType {
	v := strings.TrimSpace(value)
	switch strings.ToLower(v) {
	case "true", "false":
		return model.TypeBoolean
	}
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return model.TypeInt
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return model.TypeFloat
	}
	return model.TypeText
}

// coercePort accepts a ws port given as a JSON number or numeric string and
// rejects anything negative or non-numeric.
func coercePort(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		if n < 0 {
			return 0, false
		}
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// normalizeJSON re-marshals a payload so the stored metric value is compact
// canonical JSON rather than whatever whitespace the device sent.
func normalizeJSON(payload []byte) (string, error) {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return "", err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
