// Package schedule owns every recurring trigger for the device fleet: daily
// light windows and N-times-per-day irrigation pulses. All job bookkeeping
// lives in an explicit registry keyed by (device, family); callers only see
// set/pause/resume/remove.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/model"
)

// Family distinguishes the two job families a device can hold.
type Family string

const (
	FamilyLight      Family = "light"
	FamilyIrrigation Family = "irrigation"
)

// ErrInvalidSchedule is returned when schedule parameters fail validation.
// No jobs are created in that case.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Commander issues the device commands a firing job produces. Delivery is
// best-effort; errors are logged and the next firing proceeds regardless.
type Commander interface {
	SetBrightness(mac string, brightness int) error
	TriggerIrrigation(mac string, d time.Duration) error
}

// ScheduleSource yields the schedules marked active in durable storage, used
// to reseed the engine at process start.
type ScheduleSource interface {
	ActiveSchedules(ctx context.Context) ([]model.WindowSchedule, []model.PulseSchedule, error)
}

// WindowParams configures a daily on/off light window. Only the UTC
// time-of-day of On and Off is used.
type WindowParams struct {
	On      time.Time
	Off     time.Time
	Enabled bool
}

// PulseParams configures TimesPerDay equally spaced irrigation pulses of
// fixed Duration, starting at Start's UTC time-of-day.
type PulseParams struct {
	Start       time.Time
	TimesPerDay int
	Duration    time.Duration
}

type scheduleKey struct {
	mac    string
	family Family
}

// job is one recurring trigger: a cron spec plus the closure it runs. Kept
// alongside its entry ID so pause/resume can drop and re-add entries without
// losing configuration.
type job struct {
	spec string
	run  func()
	id   cron.EntryID
}

type entry struct {
	family Family
	jobs   []*job
	paused bool
}

type Engine struct {
	commander Commander
	cron      *cron.Cron

	// now is swappable for tests.
	now func() time.Time

	mu      sync.Mutex
	entries map[scheduleKey]*entry
}

func NewEngine(commander Commander) *Engine {
	return &Engine{
		commander: commander,
		cron:      cron.New(cron.WithSeconds()),
		now:       time.Now,
		entries:   map[scheduleKey]*entry{},
	}
}

func (e *Engine) Start() { e.cron.Start() }

func (e *Engine) Stop() {
	if e.cron != nil {
		e.cron.Stop()
	}
}

// SetWindow atomically replaces the device's light window. Exactly two jobs
// are registered (daily on-edge, daily off-edge), and the matching brightness
// command is issued immediately so the device does not wait for the next
// natural trigger.
func (e *Engine) SetWindow(mac string, p WindowParams) error {
	onMin := minuteOfDay(p.On)
	offMin := minuteOfDay(p.Off)

	jobs := []*job{
		{spec: cronSpecMinute(onMin), run: func() { e.issueBrightness(mac, 100) }},
		{spec: cronSpecMinute(offMin), run: func() { e.issueBrightness(mac, 0) }},
	}

	if err := e.replace(scheduleKey{mac, FamilyLight}, jobs); err != nil {
		return err
	}

	if !p.Enabled {
		e.Pause(mac, FamilyLight)
		slog.Info("light window scheduled disabled", "mac", mac, "on_minute", onMin, "off_minute", offMin)
		return nil
	}

	// Immediate correction, creation only: bring the device in line with the
	// window right now.
	nowMin := minuteOfDay(e.now())
	if insideWindow(onMin, offMin, nowMin) {
		e.issueBrightness(mac, 100)
	} else {
		e.issueBrightness(mac, 0)
	}
	slog.Info("light window scheduled", "mac", mac, "on_minute", onMin, "off_minute", offMin)
	return nil
}

// SetPulse atomically replaces the device's irrigation plan with TimesPerDay
// equally spaced pulse jobs. No catch-up pulse is issued on creation.
func (e *Engine) SetPulse(mac string, p PulseParams) error {
	if p.TimesPerDay <= 0 {
		return fmt.Errorf("%w: times per day must be positive, got %d", ErrInvalidSchedule, p.TimesPerDay)
	}
	if p.Duration <= 0 {
		return fmt.Errorf("%w: pulse duration must be positive", ErrInvalidSchedule)
	}

	offsets := pulseOffsets(p.Start, p.TimesPerDay)
	jobs := make([]*job, 0, len(offsets))
	for _, off := range offsets {
		jobs = append(jobs, &job{
			spec: cronSpecOffset(off),
			run:  func() { e.issuePulse(mac, p.Duration) },
		})
	}

	if err := e.replace(scheduleKey{mac, FamilyIrrigation}, jobs); err != nil {
		return err
	}
	slog.Info("irrigation pulses scheduled", "mac", mac, "times_per_day", p.TimesPerDay, "duration", p.Duration)
	return nil
}

// Pause suspends the jobs for (mac, family) without losing their
// configuration. No-op on an absent key.
func (e *Engine) Pause(mac string, family Family) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[scheduleKey{mac, family}]
	if !ok || ent.paused {
		return
	}
	for _, j := range ent.jobs {
		e.cron.Remove(j.id)
	}
	ent.paused = true
	slog.Info("schedule paused", "mac", mac, "family", family)
}

// Resume reactivates previously paused jobs. No-op on an absent or running
// key.
func (e *Engine) Resume(mac string, family Family) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[scheduleKey{mac, family}]
	if !ok || !ent.paused {
		return
	}
	for _, j := range ent.jobs {
		id, err := e.cron.AddFunc(j.spec, j.run)
		if err != nil {
			slog.Error("schedule resume failed", "mac", mac, "family", family, "spec", j.spec, "error", err)
			continue
		}
		j.id = id
	}
	ent.paused = false
	slog.Info("schedule resumed", "mac", mac, "family", family)
}

// Remove stops and discards all jobs for (mac, family). No-op on an absent
// key.
func (e *Engine) Remove(mac string, family Family) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := scheduleKey{mac, family}
	ent, ok := e.entries[key]
	if !ok {
		return
	}
	if !ent.paused {
		for _, j := range ent.jobs {
			e.cron.Remove(j.id)
		}
	}
	delete(e.entries, key)
	slog.Info("schedule removed", "mac", mac, "family", family)
}

// JobCount reports how many registered jobs exist for (mac, family),
// including paused ones.
func (e *Engine) JobCount(mac string, family Family) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[scheduleKey{mac, family}]
	if !ok {
		return 0
	}
	return len(ent.jobs)
}

// Bootstrap replays every schedule marked active in durable storage so
// nothing is lost across restarts. The engine itself never persists.
func (e *Engine) Bootstrap(ctx context.Context, src ScheduleSource) error {
	windows, pulses, err := src.ActiveSchedules(ctx)
	if err != nil {
		return fmt.Errorf("load active schedules: %w", err)
	}
	for _, w := range windows {
		if err := e.SetWindow(w.Mac, WindowParams{On: w.OnAt, Off: w.OffAt, Enabled: w.Enabled}); err != nil {
			slog.Error("bootstrap window schedule failed", "mac", w.Mac, "error", err)
		}
	}
	for _, p := range pulses {
		params := PulseParams{Start: p.StartAt, TimesPerDay: p.TimesPerDay, Duration: time.Duration(p.DurationSec) * time.Second}
		if err := e.SetPulse(p.Mac, params); err != nil {
			slog.Error("bootstrap pulse schedule failed", "mac", p.Mac, "error", err)
		}
	}
	slog.Info("schedule engine bootstrapped", "windows", len(windows), "pulses", len(pulses))
	return nil
}

// replace is the atomic stop-old-then-start-new swap for one key. The
// registry lock is held across the whole swap so two replacements for the
// same key can never interleave and leave both job sets firing.
func (e *Engine) replace(key scheduleKey, jobs []*job) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if old, ok := e.entries[key]; ok {
		if !old.paused {
			for _, j := range old.jobs {
				e.cron.Remove(j.id)
			}
		}
		delete(e.entries, key)
	}

	added := make([]cron.EntryID, 0, len(jobs))
	for _, j := range jobs {
		id, err := e.cron.AddFunc(j.spec, j.run)
		if err != nil {
			for _, prev := range added {
				e.cron.Remove(prev)
			}
			return fmt.Errorf("%w: bad cron spec %q: %v", ErrInvalidSchedule, j.spec, err)
		}
		j.id = id
		added = append(added, id)
	}

	e.entries[key] = &entry{family: key.family, jobs: jobs}
	return nil
}

func (e *Engine) issueBrightness(mac string, brightness int) {
	if err := e.commander.SetBrightness(mac, brightness); err != nil {
		slog.Error("scheduled brightness command failed", "mac", mac, "brightness", brightness, "error", err)
	}
}

func (e *Engine) issuePulse(mac string, d time.Duration) {
	if err := e.commander.TriggerIrrigation(mac, d); err != nil {
		slog.Error("scheduled irrigation pulse failed", "mac", mac, "duration", d, "error", err)
	}
}
