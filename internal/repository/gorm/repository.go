package gormrepository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"newsmarket/internal/models"
	"newsmarket/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- Markets ----------------------------------------------------------------

func (s *Store) UpsertMarket(ctx context.Context, item *models.Market) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	// The fingerprint is immutable: conflicts only refresh status bookkeeping.
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(item).Error
}

func (s *Store) GetMarket(ctx context.Context, id string) (*models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Market
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListIndexableMarkets(ctx context.Context) ([]models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Market
	err := s.db.WithContext(ctx).
		Where("status <> ?", models.MarketStatusClosed).
		Order("external_created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListMarkets(ctx context.Context, limit, offset int) ([]models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Market
	err := s.db.WithContext(ctx).
		Order("external_created_at DESC").
		Limit(normalizeLimit(limit, 200)).
		Offset(normalizeOffset(offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateMarketStatus(ctx context.Context, id string, from, to string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Market{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to).Error
}

// --- News items -------------------------------------------------------------

func (s *Store) InsertNewsItem(ctx context.Context, item *models.NewsItem) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(item).Error
}

func (s *Store) GetNewsItem(ctx context.Context, id string) (*models.NewsItem, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.NewsItem
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListRecentRelevantNews(ctx context.Context, marketID string, limit int) ([]models.NewsItem, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.NewsItem
	err := s.db.WithContext(ctx).
		Joins("JOIN judged_pairs ON judged_pairs.news_item_id = news_items.id").
		Where("judged_pairs.market_id = ? AND judged_pairs.relevance = ?", marketID, models.RelevanceRelevant).
		Order("news_items.published_at DESC").
		Limit(normalizeLimit(limit, 10)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DeleteNewsItemsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.NewsItem{})
	return res.RowsAffected, res.Error
}

// --- Judged pairs -----------------------------------------------------------

func (s *Store) InsertJudgedPair(ctx context.Context, item *models.JudgedPair) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "market_id"}, {Name: "news_item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"relevance", "rationale", "score", "expires_at"}),
	}).Create(item).Error
}

func (s *Store) ListNotRelevantMarketIDs(ctx context.Context, newsItemID string, now time.Time) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.JudgedPair{}).
		Where("news_item_id = ? AND relevance = ? AND expires_at > ?", newsItemID, models.RelevanceNotRelevant, now).
		Pluck("market_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) DeleteExpiredJudgedPairs(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", before).
		Delete(&models.JudgedPair{})
	return res.RowsAffected, res.Error
}

// --- Trade records ----------------------------------------------------------

func (s *Store) InsertTradeRecord(ctx context.Context, item *models.TradeRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetTradeRecord(ctx context.Context, id uint64) (*models.TradeRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.TradeRecord
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListTradeRecords(ctx context.Context, params repository.ListTradeRecordsParams) ([]models.TradeRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.TradeRecord{})
	if params.Status != nil && *params.Status != "" {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Market != nil && *params.Market != "" {
		query = query.Where("market_id = ?", *params.Market)
	}
	var items []models.TradeRecord
	err := query.
		Order("created_at DESC").
		Limit(normalizeLimit(params.Limit, 100)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Status transitions are guarded with the expected current status in the
// WHERE clause so a late writer cannot move a record backwards.

func (s *Store) MarkTradeExecuted(ctx context.Context, id uint64, fillPrice, fillSize decimal.Decimal, executedAt time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.TradeRecord{}).
		Where("id = ? AND status = ?", id, models.TradeStatusPending).
		Updates(map[string]any{
			"status":      models.TradeStatusExecuted,
			"fill_price":  fillPrice,
			"fill_size":   fillSize,
			"executed_at": executedAt,
		}).Error
}

func (s *Store) MarkTradeFailed(ctx context.Context, id uint64, reason string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.TradeRecord{}).
		Where("id = ? AND status = ?", id, models.TradeStatusPending).
		Updates(map[string]any{
			"status":         models.TradeStatusFailed,
			"failure_reason": reason,
		}).Error
}

func (s *Store) MarkTradeEvaluated(ctx context.Context, id uint64) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.TradeRecord{}).
		Where("id = ? AND status = ?", id, models.TradeStatusExecuted).
		Update("status", models.TradeStatusEvaluated).Error
}

// --- Evaluation outcomes ----------------------------------------------------

func (s *Store) InsertEvaluationOutcome(ctx context.Context, item *models.EvaluationOutcome) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListEvaluationOutcomes(ctx context.Context, params repository.ListOutcomesParams) ([]models.EvaluationOutcome, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.EvaluationOutcome{})
	if params.Market != nil && *params.Market != "" {
		query = query.Where("market_id = ?", *params.Market)
	}
	var items []models.EvaluationOutcome
	err := query.
		Order("created_at DESC").
		Limit(normalizeLimit(params.Limit, 100)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Feed state -------------------------------------------------------------

func (s *Store) GetFeedState(ctx context.Context, source string) (*models.FeedState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.FeedState
	err := s.db.WithContext(ctx).First(&item, "source = ?", source).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertFeedState(ctx context.Context, item *models.FeedState) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source"}},
		DoUpdates: clause.AssignmentColumns([]string{"seen_keys", "updated_at"}),
	}).Create(item).Error
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
