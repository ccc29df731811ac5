package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"newsmarket/internal/client/gamma"
	"newsmarket/internal/db"
	"newsmarket/internal/models"
	"newsmarket/internal/oracle"
	"newsmarket/internal/repository"
	"newsmarket/internal/venue"
)

// ErrMarketBusy rejects a decision for a market that already has an
// unresolved trade in flight. It is a business rejection, not a fault.
var ErrMarketBusy = errors.New("market has a decision in flight")

// Request carries one accepted decision into execution, with the market
// snapshot taken at decision time as the evaluation baseline.
type Request struct {
	MarketID   string
	NewsItemID string
	Decision   oracle.Decision
	Snapshot   gamma.Snapshot
}

// Executor submits decisions to the trading venue and owns the trade
// record lifecycle up to its terminal status. The per-market lock
// guarantees at most one unresolved trade per market.
type Executor struct {
	Repo   repository.Repository
	Venue  venue.Venue
	Logger *zap.Logger

	policy oracle.RetryPolicy
	locks  *marketLocks
}

func New(repo repository.Repository, v venue.Venue, policy oracle.RetryPolicy, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		Repo:   repo,
		Venue:  v,
		Logger: logger,
		policy: policy,
		locks:  newMarketLocks(),
	}
}

// terminalWriteTimeout bounds the detached context used for terminal-status
// writes once a pending row exists.
const terminalWriteTimeout = 5 * time.Second

// detach returns a context for terminal-status writes that survives
// cancellation of the request context. A shutdown or timeout mid-submit
// must still resolve the pending row to executed or failed.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
}

// Execute drives one decision to a terminal trade status. Hold decisions
// are a no-op. Every accepted decision leaves a persisted record: executed
// with fill details, or failed with a reason, never a dangling pending row.
func (e *Executor) Execute(ctx context.Context, req Request) (*models.TradeRecord, error) {
	if e == nil || e.Repo == nil || e.Venue == nil {
		return nil, errors.New("executor is not configured")
	}
	if req.Decision.Hold() {
		return nil, nil
	}
	if err := req.Decision.Validate(); err != nil {
		return nil, fmt.Errorf("invalid decision: %w", err)
	}

	if !e.locks.TryAcquire(req.MarketID) {
		return nil, ErrMarketBusy
	}
	defer e.locks.Release(req.MarketID)

	baselinePrice := decimal.Zero
	if price, ok := req.Snapshot.PriceFor(req.Decision.Side); ok {
		baselinePrice = decimal.NewFromFloat(price)
	}
	record := &models.TradeRecord{
		MarketID:       req.MarketID,
		NewsItemID:     req.NewsItemID,
		Action:         req.Decision.Action,
		Side:           req.Decision.Side,
		Size:           decimal.NewFromFloat(req.Decision.Size),
		Confidence:     req.Decision.Confidence,
		Rationale:      req.Decision.Rationale,
		Status:         models.TradeStatusPending,
		BaselinePrice:  baselinePrice,
		BaselineVolume: decimal.NewFromFloat(req.Snapshot.Volume24h),
	}
	if err := e.Repo.InsertTradeRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("persist trade record: %w", err)
	}

	var result venue.SubmitResult
	err := e.policy.Do(ctx, func(ctx context.Context) error {
		var submitErr error
		result, submitErr = e.Venue.Submit(ctx, venue.SubmitRequest{
			MarketID: req.MarketID,
			Action:   req.Decision.Action,
			Side:     req.Decision.Side,
			Size:     record.Size,
		})
		return submitErr
	})
	if err != nil {
		reason := fmt.Sprintf("venue unreachable: %v", err)
		markCtx, cancel := detach(ctx)
		markErr := e.Repo.MarkTradeFailed(markCtx, record.ID, reason)
		cancel()
		if markErr != nil {
			e.Logger.Error("failed to mark trade failed",
				zap.Uint64("trade_id", record.ID),
				zap.Error(markErr),
			)
			return nil, markErr
		}
		record.Status = models.TradeStatusFailed
		record.FailureReason = reason
		e.Logger.Warn("trade failed after retry exhaustion",
			zap.String("market_id", req.MarketID),
			zap.Uint64("trade_id", record.ID),
			zap.Error(err),
		)
		return record, nil
	}

	if !result.Filled {
		markCtx, cancel := detach(ctx)
		markErr := e.Repo.MarkTradeFailed(markCtx, record.ID, result.Reason)
		cancel()
		if markErr != nil {
			return nil, markErr
		}
		record.Status = models.TradeStatusFailed
		record.FailureReason = result.Reason
		e.Logger.Info("trade rejected by venue",
			zap.String("market_id", req.MarketID),
			zap.Uint64("trade_id", record.ID),
			zap.String("reason", result.Reason),
		)
		return record, nil
	}

	executedAt := db.NowUTC()
	markCtx, cancel := detach(ctx)
	defer cancel()
	if err := e.Repo.MarkTradeExecuted(markCtx, record.ID, result.FillPrice, result.FillSize, executedAt); err != nil {
		return nil, fmt.Errorf("mark trade executed: %w", err)
	}
	record.Status = models.TradeStatusExecuted
	record.FillPrice = &result.FillPrice
	record.FillSize = &result.FillSize
	record.ExecutedAt = &executedAt

	// The market moves into the monitor's watch set until evaluation.
	if err := e.Repo.UpdateMarketStatus(markCtx, req.MarketID, models.MarketStatusOpen, models.MarketStatusMonitored); err != nil {
		e.Logger.Warn("failed to move market to monitored",
			zap.String("market_id", req.MarketID),
			zap.Error(err),
		)
	}

	e.Logger.Info("trade executed",
		zap.String("market_id", req.MarketID),
		zap.Uint64("trade_id", record.ID),
		zap.String("action", record.Action),
		zap.String("side", record.Side),
		zap.String("fill_price", result.FillPrice.String()),
		zap.String("fill_size", result.FillSize.String()),
	)
	return record, nil
}

// SweepPending fails every trade row a previous run left pending, so a
// crash between the insert and the terminal write cannot strand a record.
// Called once at startup before new executions begin.
func (e *Executor) SweepPending(ctx context.Context) (int, error) {
	if e == nil || e.Repo == nil {
		return 0, errors.New("executor is not configured")
	}
	status := models.TradeStatusPending
	swept := 0
	for {
		records, err := e.Repo.ListTradeRecords(ctx, repository.ListTradeRecordsParams{Status: &status, Limit: 500})
		if err != nil {
			return swept, fmt.Errorf("list pending trades: %w", err)
		}
		if len(records) == 0 {
			break
		}
		for i := range records {
			if err := e.Repo.MarkTradeFailed(ctx, records[i].ID, "interrupted before submission completed"); err != nil {
				return swept, fmt.Errorf("fail stale trade %d: %w", records[i].ID, err)
			}
			swept++
		}
	}
	if swept > 0 {
		e.Logger.Warn("failed stale pending trades from previous run", zap.Int("count", swept))
	}
	return swept, nil
}
