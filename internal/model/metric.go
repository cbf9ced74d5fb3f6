package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ValueType classifies a metric value as recorded. Inference happens at
// ingest time; the stored value is always the raw text.
type ValueType string

const (
	TypeInt     ValueType = "int"
	TypeFloat   ValueType = "float"
	TypeBoolean ValueType = "boolean"
	TypeText    ValueType = "text"
	TypeJSON    ValueType = "json"
)

// Metric is one append-only telemetry row. Rows are never updated or
// deleted; the current value of a metric is the most recent row.
type Metric struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Mac        string    `gorm:"index:idx_metrics_mac_name_ts,priority:1" json:"mac"`
	Name       string    `gorm:"index:idx_metrics_mac_name_ts,priority:2" json:"name"`
	Value      string    `gorm:"type:text" json:"value"`
	Type       ValueType `json:"type"`
	RecordedAt time.Time `gorm:"index:idx_metrics_mac_name_ts,priority:3" json:"recorded_at"`
}

func (m *Metric) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
