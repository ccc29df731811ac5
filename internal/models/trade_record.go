package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TradeStatusPending   = "pending"
	TradeStatusExecuted  = "executed"
	TradeStatusFailed    = "failed"
	TradeStatusEvaluated = "evaluated"
)

const (
	ActionBuy  = "buy"
	ActionSell = "sell"
	ActionHold = "hold"

	SideYes = "yes"
	SideNo  = "no"
)

// TradeRecord is one accepted decision and its execution outcome. The
// originating decision fields are embedded and immutable once written;
// status only moves forward: pending -> executed|failed, executed -> evaluated.
type TradeRecord struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	MarketID   string `gorm:"type:text;not null;index"`
	NewsItemID string `gorm:"type:text;not null;index"`

	Action     string          `gorm:"type:varchar(10);not null"`
	Side       string          `gorm:"type:varchar(10);not null"`
	Size       decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Confidence float64         `gorm:"not null"`
	Rationale  string          `gorm:"type:text"`

	Status        string `gorm:"type:varchar(20);not null;index;default:'pending'"`
	FailureReason string `gorm:"type:text"`

	FillPrice *decimal.Decimal `gorm:"type:numeric(20,10)"`
	FillSize  *decimal.Decimal `gorm:"type:numeric(30,10)"`

	// Snapshot of the market at decision time; the monitor compares
	// against these to detect spikes.
	BaselinePrice  decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	BaselineVolume decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	ExecutedAt *time.Time `gorm:"type:timestamptz;index"`
	CreatedAt  time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt  time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TradeRecord) TableName() string {
	return "trade_records"
}
