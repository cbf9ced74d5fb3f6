package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Device is the controller record keyed by its hardware address. The mac
// address is the stable identifier used on the bus; the row itself is created
// by the provisioning flow and only mutated here.
type Device struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Mac           string         `gorm:"uniqueIndex;not null" json:"mac"`
	Name          string         `json:"name"`
	Online        bool           `json:"online"`
	LastSeen      time.Time      `json:"last_seen"`
	Brightness    *int           `json:"brightness"`
	LightSchedule datatypes.JSON `gorm:"type:jsonb" json:"light_schedule"`
	LanIP         string         `json:"lan_ip"`
	LanWSPort     int            `json:"lan_ws_port"`
	PlantCount    int            `json:"plant_count"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// BeforeCreate GORM hook: ensure UUID is set
func (d *Device) BeforeCreate(tx *gorm.DB) (err error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// LightScheduleSpec is the daily on/off window pushed to a device, expressed
// as hour:minute pairs the firmware understands.
type LightScheduleSpec struct {
	FromHour   int  `json:"from_hour"`
	FromMinute int  `json:"from_minute"`
	ToHour     int  `json:"to_hour"`
	ToMinute   int  `json:"to_minute"`
	Enabled    bool `json:"enabled"`
}
