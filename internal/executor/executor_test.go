package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"newsmarket/internal/client/gamma"
	"newsmarket/internal/models"
	"newsmarket/internal/oracle"
	"newsmarket/internal/repository"
	"newsmarket/internal/repository/memory"
	"newsmarket/internal/venue"
)

type stubVenue struct {
	mu      sync.Mutex
	result  venue.SubmitResult
	err     error
	block   chan struct{}
	calls   int
	entered chan struct{}
}

func (v *stubVenue) Submit(ctx context.Context, req venue.SubmitRequest) (venue.SubmitResult, error) {
	v.mu.Lock()
	v.calls++
	v.mu.Unlock()
	if v.entered != nil {
		v.entered <- struct{}{}
	}
	if v.block != nil {
		<-v.block
	}
	return v.result, v.err
}

func testPolicy(attempts int) oracle.RetryPolicy {
	return oracle.RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Multiplier:  2,
		Timeout:     time.Second,
	}
}

func buyRequest(marketID string) Request {
	return Request{
		MarketID:   marketID,
		NewsItemID: "n1",
		Decision: oracle.Decision{
			Action:     models.ActionBuy,
			Side:       models.SideYes,
			Size:       10,
			Confidence: 0.8,
			Rationale:  "strong catalyst",
		},
		Snapshot: gamma.Snapshot{
			MarketID:     marketID,
			Volume24h:    5000,
			OutcomePairs: []gamma.OutcomePair{{Outcome: "Yes", Price: 0.62}, {Outcome: "No", Price: 0.38}},
		},
	}
}

func TestExecuteFill(t *testing.T) {
	repo := memory.New()
	seedMarket(t, repo, "m1")
	v := &stubVenue{result: venue.SubmitResult{
		Filled:    true,
		FillPrice: decimal.NewFromFloat(0.63),
		FillSize:  decimal.NewFromInt(10),
	}}
	e := New(repo, v, testPolicy(3), zap.NewNop())

	record, err := e.Execute(context.Background(), buyRequest("m1"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if record.Status != models.TradeStatusExecuted {
		t.Fatalf("status = %s, want executed", record.Status)
	}
	if record.FillPrice == nil || !record.FillPrice.Equal(decimal.NewFromFloat(0.63)) {
		t.Fatalf("fill price = %v", record.FillPrice)
	}

	stored, err := repo.GetTradeRecord(context.Background(), record.ID)
	if err != nil || stored == nil {
		t.Fatalf("stored record: %v, %v", stored, err)
	}
	if stored.Status != models.TradeStatusExecuted || stored.ExecutedAt == nil {
		t.Fatalf("stored = %+v", stored)
	}
	if !stored.BaselinePrice.Equal(decimal.NewFromFloat(0.62)) {
		t.Fatalf("baseline price = %s, want decision-time quote", stored.BaselinePrice)
	}

	market, err := repo.GetMarket(context.Background(), "m1")
	if err != nil || market == nil {
		t.Fatalf("market: %v, %v", market, err)
	}
	if market.Status != models.MarketStatusMonitored {
		t.Fatalf("market status = %s, want monitored", market.Status)
	}
}

func TestExecuteVenueRejection(t *testing.T) {
	repo := memory.New()
	seedMarket(t, repo, "m1")
	v := &stubVenue{result: venue.SubmitResult{Reason: "insufficient liquidity"}}
	e := New(repo, v, testPolicy(3), zap.NewNop())

	record, err := e.Execute(context.Background(), buyRequest("m1"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if record.Status != models.TradeStatusFailed || record.FailureReason != "insufficient liquidity" {
		t.Fatalf("record = %+v", record)
	}
	if v.calls != 1 {
		t.Fatalf("venue calls = %d, rejection must not retry", v.calls)
	}

	market, _ := repo.GetMarket(context.Background(), "m1")
	if market.Status != models.MarketStatusOpen {
		t.Fatalf("market status = %s, failed trade must not move it", market.Status)
	}
}

func TestExecuteTransportExhaustion(t *testing.T) {
	repo := memory.New()
	seedMarket(t, repo, "m1")
	v := &stubVenue{err: errors.New("connection refused")}
	e := New(repo, v, testPolicy(3), zap.NewNop())

	record, err := e.Execute(context.Background(), buyRequest("m1"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if record.Status != models.TradeStatusFailed {
		t.Fatalf("status = %s, want failed after exhaustion", record.Status)
	}
	if v.calls != 3 {
		t.Fatalf("venue calls = %d, want 3", v.calls)
	}
	stored, _ := repo.GetTradeRecord(context.Background(), record.ID)
	if stored.Status != models.TradeStatusFailed {
		t.Fatalf("stored status = %s, no record may stay pending", stored.Status)
	}
}

func TestExecuteMarketBusy(t *testing.T) {
	repo := memory.New()
	seedMarket(t, repo, "m1")
	block := make(chan struct{})
	entered := make(chan struct{}, 1)
	v := &stubVenue{
		result: venue.SubmitResult{
			Filled:    true,
			FillPrice: decimal.NewFromFloat(0.6),
			FillSize:  decimal.NewFromInt(10),
		},
		block:   block,
		entered: entered,
	}
	e := New(repo, v, testPolicy(1), zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := e.Execute(context.Background(), buyRequest("m1"))
		done <- err
	}()
	<-entered // first execution is inside the venue call, lock held

	_, err := e.Execute(context.Background(), buyRequest("m1"))
	if !errors.Is(err, ErrMarketBusy) {
		t.Fatalf("second execute = %v, want ErrMarketBusy", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first execute: %v", err)
	}

	records, err := repo.ListTradeRecords(context.Background(), repository.ListTradeRecordsParams{})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("trade records = %d, busy rejection must not create one", len(records))
	}

	// Lock released after resolution: a later decision is accepted again.
	if _, err := e.Execute(context.Background(), buyRequest("m1")); err != nil {
		t.Fatalf("execute after release: %v", err)
	}
}

func TestExecuteHoldIsNoop(t *testing.T) {
	repo := memory.New()
	v := &stubVenue{}
	e := New(repo, v, testPolicy(1), zap.NewNop())

	record, err := e.Execute(context.Background(), Request{
		MarketID: "m1",
		Decision: oracle.Decision{Action: models.ActionHold, Rationale: "weak signal"},
	})
	if err != nil || record != nil {
		t.Fatalf("hold = %v, %v, want no-op", record, err)
	}
	if v.calls != 0 {
		t.Fatalf("venue calls = %d, want 0", v.calls)
	}
}

// ctxStore rejects writes once the caller's context is canceled, the way a
// real database session does.
type ctxStore struct {
	*memory.Store
}

func (s *ctxStore) InsertTradeRecord(ctx context.Context, item *models.TradeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.InsertTradeRecord(ctx, item)
}

func (s *ctxStore) MarkTradeFailed(ctx context.Context, id uint64, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.MarkTradeFailed(ctx, id, reason)
}

func (s *ctxStore) MarkTradeExecuted(ctx context.Context, id uint64, fillPrice, fillSize decimal.Decimal, executedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.MarkTradeExecuted(ctx, id, fillPrice, fillSize, executedAt)
}

type cancelingVenue struct {
	cancel context.CancelFunc
}

func (v *cancelingVenue) Submit(ctx context.Context, req venue.SubmitRequest) (venue.SubmitResult, error) {
	v.cancel()
	return venue.SubmitResult{}, ctx.Err()
}

func TestExecuteShutdownResolvesPending(t *testing.T) {
	base := memory.New()
	seedMarket(t, base, "m1")
	repo := &ctxStore{Store: base}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := New(repo, &cancelingVenue{cancel: cancel}, testPolicy(1), zap.NewNop())

	record, err := e.Execute(ctx, buyRequest("m1"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if record.Status != models.TradeStatusFailed {
		t.Fatalf("status = %s, want failed", record.Status)
	}
	stored, err := base.GetTradeRecord(context.Background(), record.ID)
	if err != nil || stored == nil {
		t.Fatalf("stored record: %v, %v", stored, err)
	}
	if stored.Status != models.TradeStatusFailed {
		t.Fatalf("stored status = %s, shutdown must not strand a pending row", stored.Status)
	}
}

func TestSweepPendingFailsStaleRows(t *testing.T) {
	repo := memory.New()
	stale := &models.TradeRecord{
		MarketID:   "m1",
		NewsItemID: "n1",
		Action:     models.ActionBuy,
		Side:       models.SideYes,
		Size:       decimal.NewFromInt(10),
		Status:     models.TradeStatusPending,
	}
	if err := repo.InsertTradeRecord(context.Background(), stale); err != nil {
		t.Fatal(err)
	}
	done := &models.TradeRecord{
		MarketID:   "m2",
		NewsItemID: "n2",
		Action:     models.ActionBuy,
		Side:       models.SideYes,
		Size:       decimal.NewFromInt(5),
		Status:     models.TradeStatusPending,
	}
	if err := repo.InsertTradeRecord(context.Background(), done); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkTradeExecuted(context.Background(), done.ID, decimal.NewFromFloat(0.6), decimal.NewFromInt(5), time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	e := New(repo, &stubVenue{}, testPolicy(1), zap.NewNop())
	swept, err := e.SweepPending(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}
	staleStored, _ := repo.GetTradeRecord(context.Background(), stale.ID)
	if staleStored.Status != models.TradeStatusFailed || staleStored.FailureReason == "" {
		t.Fatalf("stale record = %+v, want failed with reason", staleStored)
	}
	doneStored, _ := repo.GetTradeRecord(context.Background(), done.ID)
	if doneStored.Status != models.TradeStatusExecuted {
		t.Fatalf("executed record = %+v, sweep must not touch it", doneStored)
	}
}

func seedMarket(t *testing.T, repo *memory.Store, id string) {
	t.Helper()
	if err := repo.UpsertMarket(context.Background(), &models.Market{
		ID:       id,
		Question: "Will X happen?",
		Status:   models.MarketStatusOpen,
	}); err != nil {
		t.Fatal(err)
	}
}
