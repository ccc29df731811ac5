package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"newsmarket/internal/client/gamma"
	"newsmarket/internal/config"
	"newsmarket/internal/db"
	"newsmarket/internal/executor"
	"newsmarket/internal/fingerprint"
	"newsmarket/internal/matcher"
	"newsmarket/internal/models"
	"newsmarket/internal/oracle"
	"newsmarket/internal/repository"
)

type relevanceJudge interface {
	Judge(ctx context.Context, marketText, newsText string) oracle.Verdict
}

type decisionOracle interface {
	Decide(ctx context.Context, mc oracle.MarketContext) oracle.Decision
}

type tradeExecutor interface {
	Execute(ctx context.Context, req executor.Request) (*models.TradeRecord, error)
}

type quoteSource interface {
	FetchSnapshot(ctx context.Context, marketID string) (gamma.Snapshot, error)
}

// Pipeline drives one news item through match, judge, decide and execute.
// Distinct news items run in parallel up to the worker cap; the per-market
// serialization lives inside the executor.
type Pipeline struct {
	Repo     repository.Repository
	Matcher  *matcher.Matcher
	Embedder fingerprint.Embedder
	Judge    relevanceJudge
	Decider  decisionOracle
	Executor tradeExecutor
	Quotes   quoteSource
	Logger   *zap.Logger

	dedupWindow time.Duration
	sem         *semaphore.Weighted
	wg          sync.WaitGroup
}

func New(
	repo repository.Repository,
	m *matcher.Matcher,
	embedder fingerprint.Embedder,
	judge relevanceJudge,
	decider decisionOracle,
	exec tradeExecutor,
	quotes quoteSource,
	cfg config.PipelineConfig,
	dedupWindow time.Duration,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	if dedupWindow <= 0 {
		dedupWindow = 24 * time.Hour
	}
	return &Pipeline{
		Repo:        repo,
		Matcher:     m,
		Embedder:    embedder,
		Judge:       judge,
		Decider:     decider,
		Executor:    exec,
		Quotes:      quotes,
		Logger:      logger,
		dedupWindow: dedupWindow,
		sem:         semaphore.NewWeighted(int64(workers)),
	}
}

// NewsText is the canonical text an article is matched and judged on.
func NewsText(title, summary string) string {
	return strings.TrimSpace(strings.TrimSpace(title) + " " + strings.TrimSpace(summary))
}

// Submit schedules one news item for processing, bounded by the worker
// cap. It blocks only while all workers are busy.
func (p *Pipeline) Submit(ctx context.Context, item models.NewsItem) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		p.Process(ctx, item)
	}()
}

// Wait blocks until all submitted items have finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Process runs the full stage sequence for one news item. Stage failures
// degrade per candidate; nothing here is fatal to the process.
func (p *Pipeline) Process(ctx context.Context, item models.NewsItem) {
	newsText := NewsText(item.Title, item.Summary)
	if newsText == "" {
		return
	}
	fp, err := p.Embedder.Fingerprint(ctx, newsText)
	if err != nil {
		p.Logger.Warn("failed to fingerprint news item",
			zap.String("news_id", item.ID),
			zap.Error(err),
		)
		return
	}

	now := db.NowUTC()
	candidates, err := p.Matcher.Match(ctx, item.ID, fp, now)
	if err != nil {
		p.Logger.Error("candidate matching failed",
			zap.String("news_id", item.ID),
			zap.Error(err),
		)
		return
	}
	if len(candidates) == 0 {
		return
	}
	p.Logger.Debug("processing candidates",
		zap.String("news_id", item.ID),
		zap.Int("count", len(candidates)),
	)
	for _, candidate := range candidates {
		p.processCandidate(ctx, item, newsText, candidate)
	}
}

func (p *Pipeline) processCandidate(ctx context.Context, item models.NewsItem, newsText string, candidate matcher.Candidate) {
	market, err := p.Repo.GetMarket(ctx, candidate.MarketID)
	if err != nil || market == nil {
		p.Logger.Warn("candidate market not found",
			zap.String("market_id", candidate.MarketID),
			zap.Error(err),
		)
		return
	}
	marketText := market.Question
	if market.Description != "" {
		marketText = market.Question + "\n\n" + market.Description
	}

	verdict := p.Judge.Judge(ctx, marketText, newsText)
	pair := &models.JudgedPair{
		MarketID:   candidate.MarketID,
		NewsItemID: item.ID,
		Relevance:  verdict.Relevance,
		Rationale:  verdict.Rationale,
		Score:      candidate.Score,
		ExpiresAt:  db.NowUTC().Add(p.dedupWindow),
	}
	if err := p.Repo.InsertJudgedPair(ctx, pair); err != nil {
		p.Logger.Error("failed to persist verdict",
			zap.String("market_id", candidate.MarketID),
			zap.String("news_id", item.ID),
			zap.Error(err),
		)
	}
	if !verdict.Relevant() {
		return
	}
	p.Logger.Info("candidate judged relevant",
		zap.String("market_id", candidate.MarketID),
		zap.String("news_id", item.ID),
		zap.Float64("score", candidate.Score),
	)

	snapshot, err := p.Quotes.FetchSnapshot(ctx, candidate.MarketID)
	if err != nil {
		p.Logger.Warn("metadata fetch failed, skipping decision",
			zap.String("market_id", candidate.MarketID),
			zap.Error(err),
		)
		return
	}

	decision := p.Decider.Decide(ctx, p.decisionContext(ctx, market, snapshot))
	if decision.Hold() {
		p.Logger.Info("decision is hold",
			zap.String("market_id", candidate.MarketID),
			zap.String("rationale", decision.Rationale),
		)
		return
	}

	record, err := p.Executor.Execute(ctx, executor.Request{
		MarketID:   candidate.MarketID,
		NewsItemID: item.ID,
		Decision:   decision,
		Snapshot:   snapshot,
	})
	if errors.Is(err, executor.ErrMarketBusy) {
		p.Logger.Info("market busy, decision dropped",
			zap.String("market_id", candidate.MarketID),
			zap.String("news_id", item.ID),
		)
		return
	}
	if err != nil {
		p.Logger.Error("execution failed",
			zap.String("market_id", candidate.MarketID),
			zap.Error(err),
		)
		return
	}
	if record != nil {
		p.Logger.Info("candidate lifecycle complete",
			zap.String("market_id", candidate.MarketID),
			zap.Uint64("trade_id", record.ID),
			zap.String("status", record.Status),
		)
	}
}

// decisionContext enriches the snapshot with every article recently judged
// relevant for the market, so follow-up coverage feeds one decision.
func (p *Pipeline) decisionContext(ctx context.Context, market *models.Market, snapshot gamma.Snapshot) oracle.MarketContext {
	pairs := make([]oracle.OutcomePair, 0, len(snapshot.OutcomePairs))
	for _, op := range snapshot.OutcomePairs {
		pairs = append(pairs, oracle.OutcomePair{Outcome: op.Outcome, Price: op.Price})
	}

	var articles []oracle.Article
	related, err := p.Repo.ListRecentRelevantNews(ctx, market.ID, 10)
	if err != nil {
		p.Logger.Warn("failed to load related articles",
			zap.String("market_id", market.ID),
			zap.Error(err),
		)
	}
	for _, n := range related {
		articles = append(articles, oracle.Article{Title: n.Title, Summary: n.Summary})
	}

	question := snapshot.Question
	if question == "" {
		question = market.Question
	}
	description := snapshot.Description
	if description == "" {
		description = market.Description
	}
	return oracle.MarketContext{
		MarketID:         market.ID,
		Question:         question,
		Description:      description,
		EndDate:          snapshot.EndDate,
		CurrentDate:      snapshot.CurrentDate,
		TimeToExpiryDays: snapshot.TimeToExpiryDays,
		Spread:           snapshot.Spread,
		Extremeness:      snapshot.Extremeness,
		PriceSum:         snapshot.PriceSum,
		Volume24h:        snapshot.Volume24h,
		OutcomePairs:     pairs,
		RelatedArticles:  articles,
	}
}
