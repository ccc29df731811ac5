package models

import (
	"time"

	"gorm.io/datatypes"
)

// FeedState persists the per-source RSS dedup state (seen entry keys) so
// restarts do not replay old articles.
type FeedState struct {
	Source   string         `gorm:"primaryKey;type:varchar(100)"`
	SeenKeys datatypes.JSON `gorm:"type:jsonb;not null"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (FeedState) TableName() string {
	return "feed_states"
}
