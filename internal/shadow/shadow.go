// Package shadow keeps a live per-device copy of observable state, merged
// from three sources: periodic snapshot polls, pushed partial updates from
// the device's live socket, and locally issued optimistic writes.
//
// Precedence per field: an optimistic write wins immediately and is not
// clobbered by a poll already in flight; a push updates only the fields it
// carries; a snapshot fills gaps but never overwrites live knowledge.
package shadow

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/model"
)

// State is the merged view of one device. Nil means "not yet known".
type State struct {
	Brightness *int
	Schedule   *model.LightScheduleSpec
	Online     *bool
	LastSeen   *time.Time
	LanIP      *string
	LanWSPort  *int
	PlantCount *int
}

// ScheduleFrame is the partial schedule shape a push update may carry.
// Unset subfields keep their previous values.
type ScheduleFrame struct {
	Enabled    *bool `json:"enabled"`
	FromHour   *int  `json:"from_hour"`
	FromMinute *int  `json:"from_minute"`
	ToHour     *int  `json:"to_hour"`
	ToMinute   *int  `json:"to_minute"`
}

// StateFrame is the inbound live-socket message shape.
type StateFrame struct {
	Type       string         `json:"type"`
	Brightness *int           `json:"brightness,omitempty"`
	Schedule   *ScheduleFrame `json:"schedule,omitempty"`
}

// field identifiers for write tracking.
const (
	fieldBrightness = "brightness"
	fieldSchedule   = "schedule"
	fieldOnline     = "online"
	fieldLastSeen   = "last_seen"
	fieldLanIP      = "lan_ip"
	fieldLanWSPort  = "lan_ws_port"
	fieldPlantCount = "plant_count"
)

// Shadow is safe for concurrent use. Every live mutation (push or local)
// bumps a sequence counter per field so a manual refresh can tell which
// fields changed while its fetch was in flight.
type Shadow struct {
	mu      sync.Mutex
	state   State
	seq     uint64
	lastSet map[string]uint64
}

func New() *Shadow {
	return &Shadow{lastSet: map[string]uint64{}}
}

// State returns a copy; the schedule pointer is cloned so callers cannot
// mutate shared state.
func (s *Shadow) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.state
	if s.state.Schedule != nil {
		sched := *s.state.Schedule
		out.Schedule = &sched
	}
	return out
}

// ApplyPush merges a pushed partial update. Only the fields the frame
// explicitly carries are touched; everything else keeps its last known
// value.
func (s *Shadow) ApplyPush(f StateFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Brightness != nil {
		b := *f.Brightness
		s.state.Brightness = &b
		s.touch(fieldBrightness)
	}
	if f.Schedule != nil {
		sched := model.LightScheduleSpec{}
		if s.state.Schedule != nil {
			sched = *s.state.Schedule
		}
		if f.Schedule.Enabled != nil {
			sched.Enabled = *f.Schedule.Enabled
		}
		if f.Schedule.FromHour != nil {
			sched.FromHour = *f.Schedule.FromHour
		}
		if f.Schedule.FromMinute != nil {
			sched.FromMinute = *f.Schedule.FromMinute
		}
		if f.Schedule.ToHour != nil {
			sched.ToHour = *f.Schedule.ToHour
		}
		if f.Schedule.ToMinute != nil {
			sched.ToMinute = *f.Schedule.ToMinute
		}
		s.state.Schedule = &sched
		s.touch(fieldSchedule)
	}
}

// SetBrightnessLocal applies an optimistic local write.
func (s *Shadow) SetBrightnessLocal(brightness int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := brightness
	s.state.Brightness = &b
	s.touch(fieldBrightness)
}

// SetScheduleLocal applies an optimistic local schedule write.
func (s *Shadow) SetScheduleLocal(spec model.LightScheduleSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched := spec
	s.state.Schedule = &sched
	s.touch(fieldSchedule)
}

// Seq marks the start of a fetch. A later ApplyRefresh only overwrites
// fields untouched since this point.
func (s *Shadow) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// ApplySnapshot merges a polled snapshot, filling only fields that are not
// yet known. Known fields always win over the snapshot.
func (s *Shadow) ApplySnapshot(dev model.Device) {
	snap := fromDevice(dev)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merge(snap, func(field string) bool { return s.unknown(field) })
}

// ApplyRefresh merges a manual full refresh started at since: it overwrites
// every field except those mutated by a push or local write while the fetch
// was in flight.
func (s *Shadow) ApplyRefresh(dev model.Device, since uint64) {
	snap := fromDevice(dev)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merge(snap, func(field string) bool { return s.lastSet[field] <= since })
}

func (s *Shadow) merge(snap State, want func(field string) bool) {
	if snap.Brightness != nil && want(fieldBrightness) {
		s.state.Brightness = snap.Brightness
	}
	if snap.Schedule != nil && want(fieldSchedule) {
		s.state.Schedule = snap.Schedule
	}
	if snap.Online != nil && want(fieldOnline) {
		s.state.Online = snap.Online
	}
	if snap.LastSeen != nil && want(fieldLastSeen) {
		s.state.LastSeen = snap.LastSeen
	}
	if snap.LanIP != nil && want(fieldLanIP) {
		s.state.LanIP = snap.LanIP
	}
	if snap.LanWSPort != nil && want(fieldLanWSPort) {
		s.state.LanWSPort = snap.LanWSPort
	}
	if snap.PlantCount != nil && want(fieldPlantCount) {
		s.state.PlantCount = snap.PlantCount
	}
}

func (s *Shadow) unknown(field string) bool {
	switch field {
	case fieldBrightness:
		return s.state.Brightness == nil
	case fieldSchedule:
		return s.state.Schedule == nil
	case fieldOnline:
		return s.state.Online == nil
	case fieldLastSeen:
		return s.state.LastSeen == nil
	case fieldLanIP:
		return s.state.LanIP == nil
	case fieldLanWSPort:
		return s.state.LanWSPort == nil
	case fieldPlantCount:
		return s.state.PlantCount == nil
	}
	return false
}

func (s *Shadow) touch(field string) {
	s.seq++
	s.lastSet[field] = s.seq
}

// fromDevice converts a stored snapshot into shadow fields. Zero-valued LAN
// info means the device never announced an address and stays unknown.
func fromDevice(dev model.Device) State {
	out := State{}
	if dev.Brightness != nil {
		b := *dev.Brightness
		out.Brightness = &b
	}
	if len(dev.LightSchedule) > 0 {
		var spec model.LightScheduleSpec
		if err := json.Unmarshal(dev.LightSchedule, &spec); err == nil {
			out.Schedule = &spec
		}
	}
	online := dev.Online
	out.Online = &online
	if !dev.LastSeen.IsZero() {
		t := dev.LastSeen
		out.LastSeen = &t
	}
	if dev.LanIP != "" {
		ip := dev.LanIP
		out.LanIP = &ip
	}
	if dev.LanWSPort > 0 {
		p := dev.LanWSPort
		out.LanWSPort = &p
	}
	count := dev.PlantCount
	out.PlantCount = &count
	return out
}
