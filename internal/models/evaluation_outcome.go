package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EvalTriggerSpike    = "spike"
	EvalTriggerDeadline = "deadline"
)

// EvaluationOutcome is the append-only result written by the monitor when an
// executed trade is evaluated (spike crossed or deadline elapsed).
type EvaluationOutcome struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	TradeRecordID uint64 `gorm:"not null;index"`
	MarketID      string `gorm:"type:text;not null;index"`

	Trigger string `gorm:"type:varchar(20);not null"`
	Correct bool   `gorm:"not null"`

	Price       decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	Volume      decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	PriceDelta  decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	VolumeDelta decimal.Decimal `gorm:"type:numeric(20,10);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (EvaluationOutcome) TableName() string {
	return "evaluation_outcomes"
}
