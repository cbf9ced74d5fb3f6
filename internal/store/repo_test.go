package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/model"
)

func openRepo(t *testing.T) *Repo {
	t.Helper()
	// Use a unique in-memory DB per test to avoid cross-test contamination
	// when tests run in parallel.
	dsn := "file:store_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo, err := New(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func TestRecordAndLatestMetric(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()

	if err := repo.RecordMetric(ctx, "aa:bb:cc", "soil/moisture", "41", model.TypeInt); err != nil {
		t.Fatalf("record: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := repo.RecordMetric(ctx, "aa:bb:cc", "soil/moisture", "39", model.TypeInt); err != nil {
		t.Fatalf("record: %v", err)
	}

	m, err := repo.LatestMetric(ctx, "aa:bb:cc", "soil/moisture")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if m.Value != "39" {
		t.Fatalf("expected latest value 39, got %q", m.Value)
	}
}

func TestUpsertDeviceStateCreatesAndPatches(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()

	online := true
	seen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.UpsertDeviceState(ctx, "aa:bb:cc", DeviceFields{Online: &online, LastSeen: &seen}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	ip := "192.168.1.40"
	port := 8765
	if err := repo.UpsertDeviceState(ctx, "aa:bb:cc", DeviceFields{LanIP: &ip, LanWSPort: &port}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	dev, err := repo.GetDeviceSnapshot(ctx, "aa:bb:cc")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !dev.Online {
		t.Fatalf("online flag lost by partial update")
	}
	if dev.LanIP != ip || dev.LanWSPort != port {
		t.Fatalf("lan fields not applied: %+v", dev)
	}
}

func TestGetDeviceSnapshotUnknown(t *testing.T) {
	repo := openRepo(t)
	if _, err := repo.GetDeviceSnapshot(context.Background(), "no:such:mac"); err != ErrDeviceNotFound {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestSaveWindowScheduleReplacesActive(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()

	first := &model.WindowSchedule{Mac: "aa:bb:cc", OnAt: time.Now(), OffAt: time.Now(), Enabled: true}
	if err := repo.SaveWindowSchedule(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	second := &model.WindowSchedule{Mac: "aa:bb:cc", OnAt: time.Now(), OffAt: time.Now(), Enabled: true}
	if err := repo.SaveWindowSchedule(ctx, second); err != nil {
		t.Fatalf("save: %v", err)
	}

	windows, _, err := repo.ActiveSchedules(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected a single active window schedule, got %d", len(windows))
	}
	if windows[0].ID != second.ID {
		t.Fatalf("expected the newest schedule to be the active one")
	}
}

func TestActiveSchedulesBothFamilies(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()

	if err := repo.SaveWindowSchedule(ctx, &model.WindowSchedule{Mac: "aa:bb:cc", Enabled: true}); err != nil {
		t.Fatalf("save window: %v", err)
	}
	if err := repo.SavePulseSchedule(ctx, &model.PulseSchedule{Mac: "dd:ee:ff", TimesPerDay: 3, DurationSec: 30}); err != nil {
		t.Fatalf("save pulse: %v", err)
	}
	if err := repo.DeactivatePulseSchedule(ctx, "dd:ee:ff"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	windows, pulses, err := repo.ActiveSchedules(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(windows) != 1 || len(pulses) != 0 {
		t.Fatalf("expected 1 window / 0 pulses, got %d/%d", len(windows), len(pulses))
	}
}
