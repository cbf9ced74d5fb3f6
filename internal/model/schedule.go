package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WindowSchedule is the durable form of a daily on/off light window. Only the
// time-of-day of OnAt/OffAt matters; the date component is ignored by the
// engine. At most one active row per device.
type WindowSchedule struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Mac       string    `gorm:"index;not null" json:"mac"`
	OnAt      time.Time `json:"on_at"`
	OffAt     time.Time `json:"off_at"`
	Enabled   bool      `json:"enabled"`
	Active    bool      `gorm:"index" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *WindowSchedule) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// PulseSchedule is the durable form of an N-times-per-day irrigation pulse
// plan. StartAt contributes only its time-of-day. At most one active row per
// device.
type PulseSchedule struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Mac         string    `gorm:"index;not null" json:"mac"`
	StartAt     time.Time `json:"start_at"`
	TimesPerDay int       `json:"times_per_day"`
	DurationSec int       `json:"duration_sec"`
	Active      bool      `gorm:"index" json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *PulseSchedule) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
