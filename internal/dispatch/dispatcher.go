// Package dispatch delivers device commands over the best available
// transport: the live local socket when one is open, the message bus
// otherwise. Delivery is best-effort, at most one attempt per call; callers
// needing confirmation read back state instead.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

type BusPublisher interface {
	Publish(topic string, payload []byte) error
	PublishJSON(topic string, v any) error
}

type LiveSender interface {
	Connected(mac string) bool
	SendJSON(mac string, v any) error
}

type Dispatcher struct {
	Bus  BusPublisher
	Live LiveSender
}

var errUnknownCommand = errors.New("unknown command kind")

// Dispatch sends one command to the device. Commands with a socket form try
// the live connection first; a socket that dies between the connected check
// and the write degrades to a bus publish.
func (d *Dispatcher) Dispatch(mac string, cmd Command) error {
	switch c := cmd.(type) {
	case SetBrightness:
		if d.trySocket(mac, socketBrightness{Type: "setBrightness", Brightness: c.Brightness}) {
			return nil
		}
		return d.Bus.Publish(lightTopic(mac, c.SubID), []byte(strconv.Itoa(c.Brightness)))
	case SetLightState:
		payload := "OFF"
		if c.On {
			payload = "ON"
		}
		return d.Bus.Publish(lightTopic(mac, c.SubID), []byte(payload))
	case PushLightSchedule:
		if d.trySocket(mac, socketSchedule{Type: "scheduleLights", Schedule: c.Schedule}) {
			return nil
		}
		return d.Bus.PublishJSON(lightTopic(mac, "schedule"), c.Schedule)
	case TriggerIrrigation:
		secs := int(c.Duration / time.Second)
		return d.Bus.PublishJSON(commandTopic(mac), deviceCommand{Type: "triggerIrrigation", Duration: secs})
	case TriggerPump:
		return d.Bus.PublishJSON(commandTopic(mac), deviceCommand{Type: "triggerPump", Value: c.Value})
	case Generic:
		sub := c.SubID
		if sub == "" {
			sub = "1"
		}
		return d.Bus.Publish(fmt.Sprintf("%s/%s/%s/command", mac, c.Category, sub), []byte(c.Value))
	default:
		return fmt.Errorf("%w: %T", errUnknownCommand, cmd)
	}
}

// trySocket attempts the live transport. A send failure after a positive
// connected check is logged and reported as a miss so the caller falls back
// to the bus.
func (d *Dispatcher) trySocket(mac string, frame any) bool {
	if d.Live == nil || !d.Live.Connected(mac) {
		return false
	}
	if err := d.Live.SendJSON(mac, frame); err != nil {
		slog.Warn("live send failed, falling back to bus", "mac", mac, "error", err)
		return false
	}
	return true
}

func lightTopic(mac, subID string) string {
	if subID == "" {
		subID = "1"
	}
	return fmt.Sprintf("%s/light/%s/command", mac, subID)
}

func commandTopic(mac string) string {
	return "ortus/" + mac + "/command"
}

// SetBrightness satisfies the schedule engine's Commander.
func (d *Dispatcher) SetBrightness(mac string, brightness int) error {
	return d.Dispatch(mac, SetBrightness{Brightness: brightness})
}

// TriggerIrrigation satisfies the schedule engine's Commander.
func (d *Dispatcher) TriggerIrrigation(mac string, dur time.Duration) error {
	return d.Dispatch(mac, TriggerIrrigation{Duration: dur})
}
