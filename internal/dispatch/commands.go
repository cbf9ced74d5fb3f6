package dispatch

import (
	"time"

	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/model"
)

// Command is the tagged set of payloads the dispatcher can deliver.
type Command interface{ isCommand() }

// SetBrightness drives the light output, 0-100.
type SetBrightness struct {
	SubID      string // light component id on the bus, defaults to "1"
	Brightness int
}

// SetLightState switches the light fully on or off.
type SetLightState struct {
	SubID string
	On    bool
}

// PushLightSchedule hands the daily window to the device so it keeps the
// schedule even while unreachable.
type PushLightSchedule struct {
	Schedule model.LightScheduleSpec
}

// TriggerIrrigation fires one fixed-duration irrigation pulse.
type TriggerIrrigation struct {
	Duration time.Duration
}

// TriggerPump runs the dosing pump at the given value.
type TriggerPump struct {
	Value int
}

// Generic publishes a raw string command to `<mac>/<category>/<subId>/command`.
type Generic struct {
	Category string
	SubID    string
	Value    string
}

func (SetBrightness) isCommand()     {}
func (SetLightState) isCommand()     {}
func (PushLightSchedule) isCommand() {}
func (TriggerIrrigation) isCommand() {}
func (TriggerPump) isCommand()       {}
func (Generic) isCommand()           {}

// Socket frames. Only brightness and schedule commands have a live-socket
// form; everything else rides the bus.

type socketBrightness struct {
	Type       string `json:"type"`
	Brightness int    `json:"brightness"`
}

type socketSchedule struct {
	Type     string                  `json:"type"`
	Schedule model.LightScheduleSpec `json:"schedule"`
}

// deviceCommand is the generic device-addressed bus envelope published on
// `ortus/<mac>/command`.
type deviceCommand struct {
	Type     string `json:"type"`
	Value    int    `json:"value,omitempty"`
	Duration int    `json:"duration,omitempty"`
}
