package venue

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"newsmarket/internal/client/gamma"
)

// QuoteSource provides the current market snapshot used to price paper
// fills.
type QuoteSource interface {
	FetchSnapshot(ctx context.Context, marketID string) (gamma.Snapshot, error)
}

// Paper simulates execution: every order fills in full at the current
// snapshot price of the requested side. An unknown side or an unpriced
// outcome is a rejection, not an error.
type Paper struct {
	quotes QuoteSource
}

func NewPaper(quotes QuoteSource) *Paper {
	return &Paper{quotes: quotes}
}

func (p *Paper) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if req.Size.Sign() <= 0 {
		return SubmitResult{Reason: "size must be positive"}, nil
	}
	snapshot, err := p.quotes.FetchSnapshot(ctx, req.MarketID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("fetch quote: %w", err)
	}
	price, ok := snapshot.PriceFor(req.Side)
	if !ok {
		return SubmitResult{Reason: fmt.Sprintf("no quote for side %q", req.Side)}, nil
	}
	if price <= 0 || price >= 1 {
		return SubmitResult{Reason: fmt.Sprintf("side %q is unpriced or saturated at %v", req.Side, price)}, nil
	}
	return SubmitResult{
		Filled:    true,
		FillPrice: decimal.NewFromFloat(price),
		FillSize:  req.Size,
	}, nil
}
