// Package memory provides an in-process Repository used by tests and by
// the pipeline's dry-run mode. Semantics mirror the gorm-backed store:
// upserts keep fingerprints immutable and trade status updates are guarded
// by the expected current status.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"newsmarket/internal/models"
	"newsmarket/internal/repository"
)

type Store struct {
	mu sync.Mutex

	markets    map[string]models.Market
	news       map[string]models.NewsItem
	pairs      map[string]models.JudgedPair // key marketID|newsItemID
	trades     map[uint64]models.TradeRecord
	outcomes   []models.EvaluationOutcome
	feedStates map[string]models.FeedState

	nextPairID    uint64
	nextTradeID   uint64
	nextOutcomeID uint64
}

var _ repository.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		markets:    make(map[string]models.Market),
		news:       make(map[string]models.NewsItem),
		pairs:      make(map[string]models.JudgedPair),
		trades:     make(map[uint64]models.TradeRecord),
		feedStates: make(map[string]models.FeedState),
	}
}

func pairKey(marketID, newsItemID string) string {
	return marketID + "|" + newsItemID
}

// --- Markets ----------------------------------------------------------------

func (s *Store) UpsertMarket(ctx context.Context, item *models.Market) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.markets[item.ID]; ok {
		existing.Status = item.Status
		existing.UpdatedAt = time.Now().UTC()
		s.markets[item.ID] = existing
		return nil
	}
	stored := *item
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.markets[item.ID] = stored
	return nil
}

func (s *Store) GetMarket(ctx context.Context, id string) (*models.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.markets[id]; ok {
		out := m
		return &out, nil
	}
	return nil, nil
}

func (s *Store) ListIndexableMarkets(ctx context.Context) ([]models.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Market
	for _, m := range s.markets {
		if m.Status != models.MarketStatusClosed {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExternalCreatedAt.After(out[j].ExternalCreatedAt)
	})
	return out, nil
}

func (s *Store) ListMarkets(ctx context.Context, limit, offset int) ([]models.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExternalCreatedAt.After(out[j].ExternalCreatedAt)
	})
	return page(out, limit, offset), nil
}

func (s *Store) UpdateMarketStatus(ctx context.Context, id string, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.markets[id]; ok && m.Status == from {
		m.Status = to
		m.UpdatedAt = time.Now().UTC()
		s.markets[id] = m
	}
	return nil
}

// --- News items -------------------------------------------------------------

func (s *Store) InsertNewsItem(ctx context.Context, item *models.NewsItem) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.news[item.ID]; ok {
		return nil
	}
	stored := *item
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.news[item.ID] = stored
	return nil
}

func (s *Store) GetNewsItem(ctx context.Context, id string) (*models.NewsItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.news[id]; ok {
		out := n
		return &out, nil
	}
	return nil, nil
}

func (s *Store) ListRecentRelevantNews(ctx context.Context, marketID string, limit int) ([]models.NewsItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.NewsItem
	for _, p := range s.pairs {
		if p.MarketID != marketID || p.Relevance != models.RelevanceRelevant {
			continue
		}
		if n, ok := s.news[p.NewsItemID]; ok {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	if limit <= 0 {
		limit = 10
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DeleteNewsItemsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, n := range s.news {
		if n.CreatedAt.Before(cutoff) {
			delete(s.news, id)
			deleted++
		}
	}
	return deleted, nil
}

// --- Judged pairs -----------------------------------------------------------

func (s *Store) InsertJudgedPair(ctx context.Context, item *models.JudgedPair) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(item.MarketID, item.NewsItemID)
	if existing, ok := s.pairs[key]; ok {
		existing.Relevance = item.Relevance
		existing.Rationale = item.Rationale
		existing.Score = item.Score
		existing.ExpiresAt = item.ExpiresAt
		s.pairs[key] = existing
		item.ID = existing.ID
		return nil
	}
	s.nextPairID++
	stored := *item
	stored.ID = s.nextPairID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.pairs[key] = stored
	item.ID = stored.ID
	return nil
}

func (s *Store) ListNotRelevantMarketIDs(ctx context.Context, newsItemID string, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, p := range s.pairs {
		if p.NewsItemID == newsItemID && p.Relevance == models.RelevanceNotRelevant && p.ExpiresAt.After(now) {
			ids = append(ids, p.MarketID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) DeleteExpiredJudgedPairs(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for key, p := range s.pairs {
		if !p.ExpiresAt.After(before) {
			delete(s.pairs, key)
			deleted++
		}
	}
	return deleted, nil
}

// --- Trade records ----------------------------------------------------------

func (s *Store) InsertTradeRecord(ctx context.Context, item *models.TradeRecord) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTradeID++
	stored := *item
	stored.ID = s.nextTradeID
	if stored.Status == "" {
		stored.Status = models.TradeStatusPending
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.trades[stored.ID] = stored
	item.ID = stored.ID
	item.Status = stored.Status
	return nil
}

func (s *Store) GetTradeRecord(ctx context.Context, id uint64) (*models.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.trades[id]; ok {
		out := t
		return &out, nil
	}
	return nil, nil
}

func (s *Store) ListTradeRecords(ctx context.Context, params repository.ListTradeRecordsParams) ([]models.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TradeRecord
	for _, t := range s.trades {
		if params.Status != nil && *params.Status != "" && t.Status != *params.Status {
			continue
		}
		if params.Market != nil && *params.Market != "" && t.MarketID != *params.Market {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, params.Limit, params.Offset), nil
}

func (s *Store) MarkTradeExecuted(ctx context.Context, id uint64, fillPrice, fillSize decimal.Decimal, executedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.trades[id]; ok && t.Status == models.TradeStatusPending {
		t.Status = models.TradeStatusExecuted
		t.FillPrice = &fillPrice
		t.FillSize = &fillSize
		t.ExecutedAt = &executedAt
		s.trades[id] = t
	}
	return nil
}

func (s *Store) MarkTradeFailed(ctx context.Context, id uint64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.trades[id]; ok && t.Status == models.TradeStatusPending {
		t.Status = models.TradeStatusFailed
		t.FailureReason = reason
		s.trades[id] = t
	}
	return nil
}

func (s *Store) MarkTradeEvaluated(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.trades[id]; ok && t.Status == models.TradeStatusExecuted {
		t.Status = models.TradeStatusEvaluated
		s.trades[id] = t
	}
	return nil
}

// --- Evaluation outcomes ----------------------------------------------------

func (s *Store) InsertEvaluationOutcome(ctx context.Context, item *models.EvaluationOutcome) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOutcomeID++
	stored := *item
	stored.ID = s.nextOutcomeID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.outcomes = append(s.outcomes, stored)
	item.ID = stored.ID
	return nil
}

func (s *Store) ListEvaluationOutcomes(ctx context.Context, params repository.ListOutcomesParams) ([]models.EvaluationOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EvaluationOutcome
	for _, o := range s.outcomes {
		if params.Market != nil && *params.Market != "" && o.MarketID != *params.Market {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, params.Limit, params.Offset), nil
}

// --- Feed state -------------------------------------------------------------

func (s *Store) GetFeedState(ctx context.Context, source string) (*models.FeedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.feedStates[source]; ok {
		out := f
		return &out, nil
	}
	return nil, nil
}

func (s *Store) UpsertFeedState(ctx context.Context, item *models.FeedState) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *item
	stored.UpdatedAt = time.Now().UTC()
	s.feedStates[item.Source] = stored
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit <= 0 {
		limit = 100
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
