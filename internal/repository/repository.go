package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"newsmarket/internal/models"
)

type ListTradeRecordsParams struct {
	Status *string
	Market *string
	Limit  int
	Offset int
}

type ListOutcomesParams struct {
	Market *string
	Limit  int
	Offset int
}

// Repository is the durable store behind the pipeline. The market index is
// rebuilt from UpsertMarket rows at startup; trade records and evaluation
// outcomes are the audit trail.
type Repository interface {
	// Markets.
	UpsertMarket(ctx context.Context, item *models.Market) error
	GetMarket(ctx context.Context, id string) (*models.Market, error)
	ListIndexableMarkets(ctx context.Context) ([]models.Market, error)
	ListMarkets(ctx context.Context, limit, offset int) ([]models.Market, error)
	UpdateMarketStatus(ctx context.Context, id string, from, to string) error

	// News items.
	InsertNewsItem(ctx context.Context, item *models.NewsItem) error
	GetNewsItem(ctx context.Context, id string) (*models.NewsItem, error)
	ListRecentRelevantNews(ctx context.Context, marketID string, limit int) ([]models.NewsItem, error)
	DeleteNewsItemsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Judged pairs (relevance verdicts + dedup window).
	InsertJudgedPair(ctx context.Context, item *models.JudgedPair) error
	ListNotRelevantMarketIDs(ctx context.Context, newsItemID string, now time.Time) ([]string, error)
	DeleteExpiredJudgedPairs(ctx context.Context, before time.Time) (int64, error)

	// Trade records. Status updates are guarded by the expected current
	// status so transitions stay monotonic.
	InsertTradeRecord(ctx context.Context, item *models.TradeRecord) error
	GetTradeRecord(ctx context.Context, id uint64) (*models.TradeRecord, error)
	ListTradeRecords(ctx context.Context, params ListTradeRecordsParams) ([]models.TradeRecord, error)
	MarkTradeExecuted(ctx context.Context, id uint64, fillPrice, fillSize decimal.Decimal, executedAt time.Time) error
	MarkTradeFailed(ctx context.Context, id uint64, reason string) error
	MarkTradeEvaluated(ctx context.Context, id uint64) error

	// Evaluation outcomes (append-only).
	InsertEvaluationOutcome(ctx context.Context, item *models.EvaluationOutcome) error
	ListEvaluationOutcomes(ctx context.Context, params ListOutcomesParams) ([]models.EvaluationOutcome, error)

	// Feed poller state.
	GetFeedState(ctx context.Context, source string) (*models.FeedState, error)
	UpsertFeedState(ctx context.Context, item *models.FeedState) error
}
