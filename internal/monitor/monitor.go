package monitor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"newsmarket/internal/client/gamma"
	"newsmarket/internal/config"
	"newsmarket/internal/models"
	"newsmarket/internal/repository"
)

// QuoteSource provides current market price/volume for executed trades.
type QuoteSource interface {
	FetchSnapshot(ctx context.Context, marketID string) (gamma.Snapshot, error)
}

// Service periodically re-examines executed trades. A trade is evaluated
// when its market moves past the spike threshold relative to the execution
// baseline, or when the evaluation deadline elapses, whichever comes first.
// Evaluated trades leave the watch set permanently.
type Service struct {
	Repo   repository.Repository
	Quotes QuoteSource
	Logger *zap.Logger

	Interval          time.Duration
	SpikeThresholdPct float64
	EvalDeadline      time.Duration
}

func New(repo repository.Repository, quotes QuoteSource, cfg config.MonitorConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		Repo:              repo,
		Quotes:            quotes,
		Logger:            logger,
		Interval:          cfg.Interval,
		SpikeThresholdPct: cfg.SpikeThresholdPct,
		EvalDeadline:      cfg.EvalDeadline,
	}
	if s.Interval <= 0 {
		s.Interval = time.Minute
	}
	if s.SpikeThresholdPct <= 0 {
		s.SpikeThresholdPct = 0.15
	}
	if s.EvalDeadline <= 0 {
		s.EvalDeadline = 48 * time.Hour
	}
	return s
}

func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// watchPageSize is the list page size for the executed-trade scan.
const watchPageSize = 500

// RunOnce walks the executed-trade watch set. Transient quote failures keep
// the trade in the set for the next pass; they never trigger evaluation.
func (s *Service) RunOnce(ctx context.Context) {
	if s == nil || s.Repo == nil || s.Quotes == nil {
		return
	}
	status := models.TradeStatusExecuted
	var watch []models.TradeRecord
	for offset := 0; ; offset += watchPageSize {
		trades, err := s.Repo.ListTradeRecords(ctx, repository.ListTradeRecordsParams{
			Status: &status,
			Limit:  watchPageSize,
			Offset: offset,
		})
		if err != nil {
			s.Logger.Error("failed to list executed trades", zap.Error(err))
			return
		}
		watch = append(watch, trades...)
		if len(trades) < watchPageSize {
			break
		}
	}
	now := time.Now().UTC()
	for i := range watch {
		s.evaluate(ctx, &watch[i], now)
	}
}

func (s *Service) evaluate(ctx context.Context, trade *models.TradeRecord, now time.Time) {
	snapshot, err := s.Quotes.FetchSnapshot(ctx, trade.MarketID)
	if err != nil {
		s.Logger.Warn("quote fetch failed, keeping trade in watch set",
			zap.String("market_id", trade.MarketID),
			zap.Uint64("trade_id", trade.ID),
			zap.Error(err),
		)
		return
	}

	p, ok := snapshot.PriceFor(trade.Side)
	if !ok {
		s.Logger.Warn("trade side missing from market quote, keeping trade in watch set",
			zap.String("market_id", trade.MarketID),
			zap.Uint64("trade_id", trade.ID),
			zap.String("side", trade.Side),
		)
		return
	}
	price := decimal.NewFromFloat(p)
	volume := decimal.NewFromFloat(snapshot.Volume24h)
	priceDelta := relativeDelta(trade.BaselinePrice, price)
	volumeDelta := relativeDelta(trade.BaselineVolume, volume)

	threshold := decimal.NewFromFloat(s.SpikeThresholdPct)
	spiked := priceDelta.Abs().GreaterThanOrEqual(threshold) || volumeDelta.Abs().GreaterThanOrEqual(threshold)
	deadline := trade.ExecutedAt != nil && now.Sub(*trade.ExecutedAt) >= s.EvalDeadline
	if !spiked && !deadline {
		return
	}

	trigger := models.EvalTriggerDeadline
	if spiked {
		trigger = models.EvalTriggerSpike
	}
	outcome := &models.EvaluationOutcome{
		TradeRecordID: trade.ID,
		MarketID:      trade.MarketID,
		Trigger:       trigger,
		Correct:       directionAligned(trade.Action, priceDelta),
		Price:         price,
		Volume:        volume,
		PriceDelta:    priceDelta,
		VolumeDelta:   volumeDelta,
	}
	if err := s.Repo.InsertEvaluationOutcome(ctx, outcome); err != nil {
		s.Logger.Error("failed to write evaluation outcome",
			zap.Uint64("trade_id", trade.ID),
			zap.Error(err),
		)
		return
	}
	if err := s.Repo.MarkTradeEvaluated(ctx, trade.ID); err != nil {
		s.Logger.Error("failed to mark trade evaluated",
			zap.Uint64("trade_id", trade.ID),
			zap.Error(err),
		)
		return
	}
	// Evaluation frees the market for new decisions.
	if err := s.Repo.UpdateMarketStatus(ctx, trade.MarketID, models.MarketStatusMonitored, models.MarketStatusOpen); err != nil {
		s.Logger.Warn("failed to reopen market after evaluation",
			zap.String("market_id", trade.MarketID),
			zap.Error(err),
		)
	}

	s.Logger.Info("trade evaluated",
		zap.Uint64("trade_id", trade.ID),
		zap.String("market_id", trade.MarketID),
		zap.String("trigger", trigger),
		zap.Bool("correct", outcome.Correct),
		zap.String("price_delta", priceDelta.String()),
		zap.String("volume_delta", volumeDelta.String()),
	)
}

// relativeDelta is (current-baseline)/baseline; a zero baseline yields zero
// so a missing decision-time quote can only evaluate via the deadline.
func relativeDelta(baseline, current decimal.Decimal) decimal.Decimal {
	if baseline.IsZero() {
		return decimal.Zero
	}
	return current.Sub(baseline).Div(baseline)
}

// directionAligned labels the trade correct when the side's price moved the
// way the action bet it would: up for buys, down for sells.
func directionAligned(action string, priceDelta decimal.Decimal) bool {
	switch action {
	case models.ActionBuy:
		return priceDelta.Sign() > 0
	case models.ActionSell:
		return priceDelta.Sign() < 0
	default:
		return false
	}
}
