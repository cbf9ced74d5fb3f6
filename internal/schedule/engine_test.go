package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/model"
)

type issued struct {
	mac        string
	brightness int
	pulse      time.Duration
	kind       string
}

type fakeCommander struct {
	calls []issued
	fail  bool
}

func (f *fakeCommander) SetBrightness(mac string, brightness int) error {
	f.calls = append(f.calls, issued{mac: mac, brightness: brightness, kind: "brightness"})
	if f.fail {
		return errors.New("transport down")
	}
	return nil
}

func (f *fakeCommander) TriggerIrrigation(mac string, d time.Duration) error {
	f.calls = append(f.calls, issued{mac: mac, pulse: d, kind: "pulse"})
	if f.fail {
		return errors.New("transport down")
	}
	return nil
}

func newTestEngine(now time.Time) (*Engine, *fakeCommander) {
	cmd := &fakeCommander{}
	e := NewEngine(cmd)
	e.now = func() time.Time { return now }
	return e, cmd
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 6, 1, hour, minute, 0, 0, time.UTC)
}

func TestSetWindowImmediateCorrectionInside(t *testing.T) {
	// 22:00-06:00 window evaluated at 23:00: inside, full brightness.
	e, cmd := newTestEngine(at(23, 0))
	err := e.SetWindow("aa:bb:cc", WindowParams{On: at(22, 0), Off: at(6, 0), Enabled: true})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(cmd.calls) != 1 || cmd.calls[0].brightness != 100 {
		t.Fatalf("expected immediate full-brightness command, got %+v", cmd.calls)
	}
	if n := e.JobCount("aa:bb:cc", FamilyLight); n != 2 {
		t.Fatalf("expected 2 jobs, got %d", n)
	}
}

func TestSetWindowImmediateCorrectionOutside(t *testing.T) {
	// Same window at noon: outside, zero brightness.
	e, cmd := newTestEngine(at(12, 0))
	if err := e.SetWindow("aa:bb:cc", WindowParams{On: at(22, 0), Off: at(6, 0), Enabled: true}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(cmd.calls) != 1 || cmd.calls[0].brightness != 0 {
		t.Fatalf("expected immediate zero-brightness command, got %+v", cmd.calls)
	}
}

func TestSetWindowDisabledSkipsCorrection(t *testing.T) {
	e, cmd := newTestEngine(at(23, 0))
	if err := e.SetWindow("aa:bb:cc", WindowParams{On: at(22, 0), Off: at(6, 0), Enabled: false}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(cmd.calls) != 0 {
		t.Fatalf("disabled window must not issue commands, got %+v", cmd.calls)
	}
	if n := e.JobCount("aa:bb:cc", FamilyLight); n != 2 {
		t.Fatalf("disabled window keeps its configuration, got %d jobs", n)
	}
}

func TestSetPulseCreatesNJobs(t *testing.T) {
	e, _ := newTestEngine(at(9, 0))
	err := e.SetPulse("aa:bb:cc", PulseParams{Start: at(6, 0), TimesPerDay: 4, Duration: 30 * time.Second})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n := e.JobCount("aa:bb:cc", FamilyIrrigation); n != 4 {
		t.Fatalf("expected 4 jobs, got %d", n)
	}
	if entries := e.cron.Entries(); len(entries) != 4 {
		t.Fatalf("expected 4 cron entries, got %d", len(entries))
	}
}

func TestSetPulseRejectsZeroTimesPerDay(t *testing.T) {
	e, _ := newTestEngine(at(9, 0))
	err := e.SetPulse("aa:bb:cc", PulseParams{Start: at(6, 0), TimesPerDay: 0, Duration: 30 * time.Second})
	if !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
	if n := e.JobCount("aa:bb:cc", FamilyIrrigation); n != 0 {
		t.Fatalf("rejected set must create no jobs, got %d", n)
	}
	if entries := e.cron.Entries(); len(entries) != 0 {
		t.Fatalf("expected no cron entries, got %d", len(entries))
	}
}

func TestReplaceStopsOldJobs(t *testing.T) {
	e, _ := newTestEngine(at(9, 0))
	if err := e.SetPulse("aa:bb:cc", PulseParams{Start: at(6, 0), TimesPerDay: 6, Duration: 30 * time.Second}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := e.SetPulse("aa:bb:cc", PulseParams{Start: at(7, 0), TimesPerDay: 2, Duration: 30 * time.Second}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n := e.JobCount("aa:bb:cc", FamilyIrrigation); n != 2 {
		t.Fatalf("expected 2 jobs after replace, got %d", n)
	}
	// No leftover entries from the first schedule may remain registered.
	if entries := e.cron.Entries(); len(entries) != 2 {
		t.Fatalf("expected 2 cron entries after replace, got %d", len(entries))
	}
}

func TestReplaceIsPerFamily(t *testing.T) {
	e, _ := newTestEngine(at(9, 0))
	if err := e.SetWindow("aa:bb:cc", WindowParams{On: at(8, 0), Off: at(20, 0), Enabled: true}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := e.SetPulse("aa:bb:cc", PulseParams{Start: at(6, 0), TimesPerDay: 3, Duration: 30 * time.Second}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n := e.JobCount("aa:bb:cc", FamilyLight); n != 2 {
		t.Fatalf("pulse set must not disturb the light family, got %d", n)
	}
	if entries := e.cron.Entries(); len(entries) != 5 {
		t.Fatalf("expected 5 cron entries, got %d", len(entries))
	}
}

func TestRemoveThenPauseResumeIsNoop(t *testing.T) {
	e, _ := newTestEngine(at(9, 0))
	if err := e.SetPulse("aa:bb:cc", PulseParams{Start: at(6, 0), TimesPerDay: 3, Duration: 30 * time.Second}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	e.Remove("aa:bb:cc", FamilyIrrigation)
	if n := e.JobCount("aa:bb:cc", FamilyIrrigation); n != 0 {
		t.Fatalf("expected 0 jobs after remove, got %d", n)
	}
	if entries := e.cron.Entries(); len(entries) != 0 {
		t.Fatalf("expected no cron entries after remove, got %d", len(entries))
	}

	// pause/resume on the removed key must be a quiet no-op.
	e.Pause("aa:bb:cc", FamilyIrrigation)
	e.Resume("aa:bb:cc", FamilyIrrigation)
	if n := e.JobCount("aa:bb:cc", FamilyIrrigation); n != 0 {
		t.Fatalf("expected removed key to stay empty, got %d", n)
	}
}

func TestPauseResumeKeepsConfiguration(t *testing.T) {
	e, _ := newTestEngine(at(9, 0))
	if err := e.SetPulse("aa:bb:cc", PulseParams{Start: at(6, 0), TimesPerDay: 3, Duration: 30 * time.Second}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	e.Pause("aa:bb:cc", FamilyIrrigation)
	if entries := e.cron.Entries(); len(entries) != 0 {
		t.Fatalf("paused jobs must not stay registered, got %d", len(entries))
	}
	if n := e.JobCount("aa:bb:cc", FamilyIrrigation); n != 3 {
		t.Fatalf("pause must keep configuration, got %d", n)
	}

	e.Resume("aa:bb:cc", FamilyIrrigation)
	if entries := e.cron.Entries(); len(entries) != 3 {
		t.Fatalf("resume must re-register all jobs, got %d", len(entries))
	}
}

func TestCommandFailureDoesNotAffectScheduling(t *testing.T) {
	e, cmd := newTestEngine(at(23, 0))
	cmd.fail = true
	if err := e.SetWindow("aa:bb:cc", WindowParams{On: at(22, 0), Off: at(6, 0), Enabled: true}); err != nil {
		t.Fatalf("delivery failure must not fail the set: %v", err)
	}
	if n := e.JobCount("aa:bb:cc", FamilyLight); n != 2 {
		t.Fatalf("expected 2 jobs despite command failure, got %d", n)
	}
}

type fakeSource struct {
	windows []model.WindowSchedule
	pulses  []model.PulseSchedule
}

func (f *fakeSource) ActiveSchedules(context.Context) ([]model.WindowSchedule, []model.PulseSchedule, error) {
	return f.windows, f.pulses, nil
}

func TestBootstrapReplaysActiveSchedules(t *testing.T) {
	e, _ := newTestEngine(at(9, 0))
	src := &fakeSource{
		windows: []model.WindowSchedule{{Mac: "aa:bb:cc", OnAt: at(8, 0), OffAt: at(20, 0), Enabled: true}},
		pulses:  []model.PulseSchedule{{Mac: "dd:ee:ff", StartAt: at(6, 0), TimesPerDay: 2, DurationSec: 45}},
	}
	if err := e.Bootstrap(context.Background(), src); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n := e.JobCount("aa:bb:cc", FamilyLight); n != 2 {
		t.Fatalf("expected window jobs after bootstrap, got %d", n)
	}
	if n := e.JobCount("dd:ee:ff", FamilyIrrigation); n != 2 {
		t.Fatalf("expected pulse jobs after bootstrap, got %d", n)
	}
}
