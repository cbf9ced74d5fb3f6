package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/raiz-vertical-farms/ortus-app-sub000/internal/model"
)

// ErrDeviceNotFound is returned by snapshot reads for unknown macs.
var ErrDeviceNotFound = errors.New("device not found")

type Repo struct {
	db *gorm.DB
}

func OpenPostgres(user, password, dbName, host, port, sslMode string) (*gorm.DB, error) {
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC", host, user, password, dbName, port, sslMode)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

func New(db *gorm.DB) (*Repo, error) {
	if err := db.AutoMigrate(&model.Device{}, &model.Metric{}, &model.WindowSchedule{}, &model.PulseSchedule{}); err != nil {
		return nil, err
	}
	return &Repo{db: db}, nil
}

// RecordMetric appends one telemetry row. The metric log is append-only;
// nothing in this repo updates or deletes metric rows.
func (r *Repo) RecordMetric(ctx context.Context, mac, name, value string, typ model.ValueType) error {
	m := &model.Metric{
		Mac:        mac,
		Name:       name,
		Value:      value,
		Type:       typ,
		RecordedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Create(m).Error
}

// LatestMetric returns the most recent row for (mac, name), which by
// definition is the metric's current value.
func (r *Repo) LatestMetric(ctx context.Context, mac, name string) (model.Metric, error) {
	var m model.Metric
	err := r.db.WithContext(ctx).
		Where("mac = ? AND name = ?", mac, name).
		Order("recorded_at DESC").
		First(&m).Error
	return m, err
}

// DeviceFields carries a partial device-state update. Nil fields are left
// untouched.
type DeviceFields struct {
	Online        *bool
	LastSeen      *time.Time
	Brightness    *int
	LightSchedule []byte
	LanIP         *string
	LanWSPort     *int
}

// UpsertDeviceState applies the non-nil fields to the device row, creating
// the row if the device has never been seen before.
func (r *Repo) UpsertDeviceState(ctx context.Context, mac string, f DeviceFields) error {
	updates := map[string]any{}
	if f.Online != nil {
		updates["online"] = *f.Online
	}
	if f.LastSeen != nil {
		updates["last_seen"] = f.LastSeen.UTC()
	}
	if f.Brightness != nil {
		updates["brightness"] = *f.Brightness
	}
	if f.LightSchedule != nil {
		updates["light_schedule"] = f.LightSchedule
	}
	if f.LanIP != nil {
		updates["lan_ip"] = *f.LanIP
	}
	if f.LanWSPort != nil {
		updates["lan_ws_port"] = *f.LanWSPort
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dev model.Device
		err := tx.Where("mac = ?", mac).First(&dev).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			dev = model.Device{Mac: mac}
			if err := tx.Create(&dev).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&model.Device{}).Where("mac = ?", mac).Updates(updates).Error
	})
}

func (r *Repo) GetDeviceSnapshot(ctx context.Context, mac string) (model.Device, error) {
	var dev model.Device
	err := r.db.WithContext(ctx).Where("mac = ?", mac).First(&dev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Device{}, ErrDeviceNotFound
	}
	return dev, err
}

// SaveWindowSchedule deactivates any previous window schedule for the device
// and stores the new one as the single active row.
func (r *Repo) SaveWindowSchedule(ctx context.Context, s *model.WindowSchedule) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.WindowSchedule{}).
			Where("mac = ? AND active = ?", s.Mac, true).
			Update("active", false).Error; err != nil {
			return err
		}
		s.Active = true
		return tx.Create(s).Error
	})
}

// SavePulseSchedule deactivates any previous pulse schedule for the device
// and stores the new one as the single active row.
func (r *Repo) SavePulseSchedule(ctx context.Context, s *model.PulseSchedule) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.PulseSchedule{}).
			Where("mac = ? AND active = ?", s.Mac, true).
			Update("active", false).Error; err != nil {
			return err
		}
		s.Active = true
		return tx.Create(s).Error
	})
}

func (r *Repo) DeactivateWindowSchedule(ctx context.Context, mac string) error {
	return r.db.WithContext(ctx).Model(&model.WindowSchedule{}).
		Where("mac = ? AND active = ?", mac, true).
		Update("active", false).Error
}

func (r *Repo) DeactivatePulseSchedule(ctx context.Context, mac string) error {
	return r.db.WithContext(ctx).Model(&model.PulseSchedule{}).
		Where("mac = ? AND active = ?", mac, true).
		Update("active", false).Error
}

// ActiveSchedules returns every schedule currently marked active, used to
// reseed the engine at process start.
func (r *Repo) ActiveSchedules(ctx context.Context) ([]model.WindowSchedule, []model.PulseSchedule, error) {
	var windows []model.WindowSchedule
	if err := r.db.WithContext(ctx).Where("active = ?", true).Find(&windows).Error; err != nil {
		return nil, nil, err
	}
	var pulses []model.PulseSchedule
	if err := r.db.WithContext(ctx).Where("active = ?", true).Find(&pulses).Error; err != nil {
		return nil, nil, err
	}
	return windows, pulses, nil
}
