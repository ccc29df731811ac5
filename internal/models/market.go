package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	MarketStatusOpen      = "open"
	MarketStatusMonitored = "monitored"
	MarketStatusClosed    = "closed"
)

// Market is one prediction-market instrument eligible for news matching.
// The fingerprint (Vector + Keywords) is computed once at registration and
// never recomputed; Status is driven by the executor and the monitor.
type Market struct {
	ID          string `gorm:"primaryKey;type:text"`
	Question    string `gorm:"type:text;not null"`
	Description string `gorm:"type:text"`

	Status string `gorm:"type:varchar(20);not null;index;default:'open'"`

	Vector   datatypes.JSON `gorm:"type:jsonb;not null"`
	Keywords datatypes.JSON `gorm:"type:jsonb;not null"`

	ExternalCreatedAt time.Time `gorm:"type:timestamptz;not null;index"`
	IndexedAt         time.Time `gorm:"type:timestamptz;not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Market) TableName() string {
	return "markets"
}
