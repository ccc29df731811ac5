package models

import (
	"time"
)

// NewsItem is an ingested article. Rows are retained only for the feed
// dedup/recency window and pruned by the cleanup job.
type NewsItem struct {
	ID      string `gorm:"primaryKey;type:text"`
	Source  string `gorm:"type:varchar(100);not null;index"`
	Title   string `gorm:"type:text;not null"`
	Summary string `gorm:"type:text"`
	Link    string `gorm:"type:text"`

	PublishedAt time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt   time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (NewsItem) TableName() string {
	return "news_items"
}
