package matcher

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"newsmarket/internal/config"
	"newsmarket/internal/fingerprint"
	"newsmarket/internal/index"
	"newsmarket/internal/repository"
)

// Candidate is one (market, news) pair that cleared the hybrid-score
// threshold, ranked among the candidates for its news item.
type Candidate struct {
	MarketID   string
	NewsItemID string
	Score      float64
	Rank       int
}

// Matcher turns a news fingerprint into a ranked candidate list. Scoring is
// a weighted blend of embedding cosine similarity and keyword overlap;
// pairs already judged not relevant inside the dedup window are excluded.
type Matcher struct {
	Index  index.Index
	Repo   repository.Repository
	Logger *zap.Logger

	topK          int
	minScore      float64
	vectorWeight  float64
	lexicalWeight float64
}

func New(idx index.Index, repo repository.Repository, cfg config.MatcherConfig, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Matcher{
		Index:         idx,
		Repo:          repo,
		Logger:        logger,
		topK:          cfg.TopK,
		minScore:      cfg.MinScore,
		vectorWeight:  cfg.VectorWeight,
		lexicalWeight: cfg.LexicalWeight,
	}
	if m.topK <= 0 {
		m.topK = 5
	}
	if m.vectorWeight <= 0 && m.lexicalWeight <= 0 {
		m.vectorWeight, m.lexicalWeight = 0.7, 0.3
	}
	return m
}

// Match is idempotent against an unchanged index: the same news item
// always yields the same ordered candidates.
func (m *Matcher) Match(ctx context.Context, newsItemID string, fp fingerprint.Fingerprint, now time.Time) ([]Candidate, error) {
	// Overfetch so hybrid reranking and dedup exclusion still fill topK.
	hits := m.Index.Query(fp.Vector, m.topK*3)
	if len(hits) == 0 {
		return nil, nil
	}

	excluded, err := m.Repo.ListNotRelevantMarketIDs(ctx, newsItemID, now)
	if err != nil {
		return nil, fmt.Errorf("list judged pairs: %w", err)
	}
	skip := make(map[string]struct{}, len(excluded))
	for _, id := range excluded {
		skip[id] = struct{}{}
	}

	type scored struct {
		hit   index.Match
		score float64
	}
	candidates := make([]scored, 0, len(hits))
	for _, hit := range hits {
		if _, ok := skip[hit.MarketID]; ok {
			continue
		}
		lexical := fingerprint.LexicalScore(hit.Keywords, fp.Keywords)
		score := m.vectorWeight*hit.Similarity + m.lexicalWeight*lexical
		if score < m.minScore {
			continue
		}
		candidates = append(candidates, scored{hit: hit, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if !candidates[i].hit.CreatedAt.Equal(candidates[j].hit.CreatedAt) {
			return candidates[i].hit.CreatedAt.After(candidates[j].hit.CreatedAt)
		}
		return candidates[i].hit.MarketID < candidates[j].hit.MarketID
	})
	if len(candidates) > m.topK {
		candidates = candidates[:m.topK]
	}

	out := make([]Candidate, 0, len(candidates))
	for i, c := range candidates {
		out = append(out, Candidate{
			MarketID:   c.hit.MarketID,
			NewsItemID: newsItemID,
			Score:      c.score,
			Rank:       i + 1,
		})
	}
	m.Logger.Debug("matched candidates",
		zap.String("news_item_id", newsItemID),
		zap.Int("hits", len(hits)),
		zap.Int("candidates", len(out)),
	)
	return out, nil
}
