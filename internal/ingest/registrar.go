package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"newsmarket/internal/db"
	"newsmarket/internal/fingerprint"
	"newsmarket/internal/index"
	"newsmarket/internal/models"
	"newsmarket/internal/repository"
)

// MarketAdded is a market-creation event from the upstream feed.
type MarketAdded struct {
	MarketID    string    `json:"id"`
	Question    string    `json:"question"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Registrar owns market lifecycle ingestion: it fingerprints new markets
// into the durable store and the in-process index, evicts resolved ones,
// and rebuilds the index from the store at startup.
type Registrar struct {
	Repo     repository.Repository
	Index    index.Index
	Embedder fingerprint.Embedder
	Logger   *zap.Logger
}

func NewRegistrar(repo repository.Repository, idx index.Index, embedder fingerprint.Embedder, logger *zap.Logger) *Registrar {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registrar{Repo: repo, Index: idx, Embedder: embedder, Logger: logger}
}

// MarketText is the canonical text a market is fingerprinted from.
func MarketText(question, description string) string {
	question = strings.TrimSpace(question)
	description = strings.TrimSpace(description)
	if description == "" {
		return question
	}
	return question + "\n\n" + description
}

// Register fingerprints and indexes one new market. Re-registration of an
// already indexed market is a no-op: the original fingerprint stays.
func (r *Registrar) Register(ctx context.Context, ev MarketAdded) error {
	if ev.MarketID == "" || strings.TrimSpace(ev.Question) == "" {
		return errors.New("market id and question are required")
	}
	existing, err := r.Repo.GetMarket(ctx, ev.MarketID)
	if err != nil {
		return fmt.Errorf("lookup market: %w", err)
	}
	if existing != nil {
		r.Logger.Debug("market already registered", zap.String("market_id", ev.MarketID))
		return nil
	}

	fp, err := r.Embedder.Fingerprint(ctx, MarketText(ev.Question, ev.Description))
	if err != nil {
		return fmt.Errorf("fingerprint market: %w", err)
	}
	vectorJSON, err := json.Marshal(fp.Vector)
	if err != nil {
		return fmt.Errorf("encode vector: %w", err)
	}
	keywordsJSON, err := json.Marshal(fp.Keywords)
	if err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = db.NowUTC()
	}
	market := &models.Market{
		ID:                ev.MarketID,
		Question:          ev.Question,
		Description:       ev.Description,
		Status:            models.MarketStatusOpen,
		Vector:            datatypes.JSON(vectorJSON),
		Keywords:          datatypes.JSON(keywordsJSON),
		ExternalCreatedAt: createdAt,
		IndexedAt:         db.NowUTC(),
	}
	if err := r.Repo.UpsertMarket(ctx, market); err != nil {
		return fmt.Errorf("persist market: %w", err)
	}

	err = r.Index.Add(index.Entry{
		MarketID:  ev.MarketID,
		Vector:    fp.Vector,
		Keywords:  fp.Keywords,
		CreatedAt: createdAt,
	})
	if errors.Is(err, index.ErrDuplicateMarket) {
		r.Logger.Warn("market already in index", zap.String("market_id", ev.MarketID))
		return nil
	}
	if err != nil {
		return err
	}
	r.Logger.Info("market registered",
		zap.String("market_id", ev.MarketID),
		zap.Int("keywords", len(fp.Keywords)),
	)
	return nil
}

// Resolve closes a market and evicts it from the matchable set. Unknown
// markets are ignored.
func (r *Registrar) Resolve(ctx context.Context, marketID string) error {
	market, err := r.Repo.GetMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("lookup market: %w", err)
	}
	if market == nil {
		r.Logger.Debug("resolve for unknown market", zap.String("market_id", marketID))
		return nil
	}
	market.Status = models.MarketStatusClosed
	if err := r.Repo.UpsertMarket(ctx, market); err != nil {
		return fmt.Errorf("close market: %w", err)
	}
	r.Index.Remove(marketID)
	r.Logger.Info("market resolved", zap.String("market_id", marketID))
	return nil
}

// Rebuild reloads all non-closed market fingerprints from the store into
// the index. Called once at startup before ingestion begins.
func (r *Registrar) Rebuild(ctx context.Context) (int, error) {
	markets, err := r.Repo.ListIndexableMarkets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list markets: %w", err)
	}
	loaded := 0
	for _, m := range markets {
		var vector []float32
		var keywords []string
		if err := json.Unmarshal(m.Vector, &vector); err != nil {
			r.Logger.Warn("skipping market with bad vector", zap.String("market_id", m.ID), zap.Error(err))
			continue
		}
		if len(m.Keywords) > 0 {
			if err := json.Unmarshal(m.Keywords, &keywords); err != nil {
				r.Logger.Warn("skipping market with bad keywords", zap.String("market_id", m.ID), zap.Error(err))
				continue
			}
		}
		err := r.Index.Add(index.Entry{
			MarketID:  m.ID,
			Vector:    vector,
			Keywords:  keywords,
			CreatedAt: m.ExternalCreatedAt,
		})
		if err != nil && !errors.Is(err, index.ErrDuplicateMarket) {
			return loaded, err
		}
		if err == nil {
			loaded++
		}
	}
	r.Logger.Info("market index rebuilt", zap.Int("markets", loaded))
	return loaded, nil
}
