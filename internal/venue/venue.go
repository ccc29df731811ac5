package venue

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"newsmarket/internal/config"
)

// SubmitRequest is one order to the trading venue.
type SubmitRequest struct {
	MarketID string
	Action   string
	Side     string
	Size     decimal.Decimal
}

// SubmitResult is the venue's answer. Filled=false with a Reason is a
// venue-level rejection, not a transport error.
type SubmitResult struct {
	Filled    bool
	FillPrice decimal.Decimal
	FillSize  decimal.Decimal
	Reason    string
}

// Venue accepts orders. Transport errors are returned as errors and may be
// retried; a rejection comes back as an unfilled SubmitResult.
type Venue interface {
	Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error)
}

const (
	ModePaper = "paper"
	ModeHTTP  = "http"
)

// New builds the venue named by cfg.Mode.
func New(cfg config.VenueConfig, quotes QuoteSource) (Venue, error) {
	switch cfg.Mode {
	case "", ModePaper:
		return NewPaper(quotes), nil
	case ModeHTTP:
		return NewHTTP(cfg)
	default:
		return nil, fmt.Errorf("unknown venue mode: %s", cfg.Mode)
	}
}
