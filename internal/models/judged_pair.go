package models

import (
	"time"
)

const (
	RelevanceRelevant    = "relevant"
	RelevanceNotRelevant = "not_relevant"
)

// JudgedPair records the relevance verdict for one (market, news) pair.
// not_relevant rows exist only to suppress re-judging the same pair inside
// the dedup window; expired rows are pruned by the cleanup job.
type JudgedPair struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	MarketID   string `gorm:"type:text;not null;uniqueIndex:idx_judged_pair"`
	NewsItemID string `gorm:"type:text;not null;uniqueIndex:idx_judged_pair"`

	Relevance string  `gorm:"type:varchar(20);not null;index"`
	Rationale string  `gorm:"type:text"`
	Score     float64 `gorm:"not null"`

	ExpiresAt time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (JudgedPair) TableName() string {
	return "judged_pairs"
}
