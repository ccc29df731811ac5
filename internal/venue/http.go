package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"newsmarket/internal/config"
)

// HTTP submits orders to an external paper-trading endpoint.
type HTTP struct {
	host       string
	httpClient *http.Client
}

func NewHTTP(cfg config.VenueConfig) (*HTTP, error) {
	host := strings.TrimRight(cfg.BaseURL, "/")
	if host == "" {
		return nil, errors.New("venue base_url is required in http mode")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{
		host:       host,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type orderPayload struct {
	MarketID string          `json:"market_id"`
	Action   string          `json:"action"`
	Side     string          `json:"side"`
	Size     decimal.Decimal `json:"size"`
}

type orderResponse struct {
	Status    string          `json:"status"`
	FillPrice decimal.Decimal `json:"fill_price"`
	FillSize  decimal.Decimal `json:"fill_size"`
	Reason    string          `json:"reason"`
}

func (v *HTTP) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	body, err := json.Marshal(orderPayload{
		MarketID: req.MarketID,
		Action:   req.Action,
		Side:     req.Side,
		Size:     req.Size,
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("encode order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.host+"/orders", bytes.NewReader(body))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return SubmitResult{}, fmt.Errorf("venue error (%d): %s", resp.StatusCode, string(respBody))
	}

	var order orderResponse
	if err := json.Unmarshal(respBody, &order); err != nil {
		return SubmitResult{}, fmt.Errorf("decode order response: %w", err)
	}
	switch strings.ToLower(order.Status) {
	case "filled":
		return SubmitResult{Filled: true, FillPrice: order.FillPrice, FillSize: order.FillSize}, nil
	case "rejected":
		reason := order.Reason
		if reason == "" {
			reason = "rejected by venue"
		}
		return SubmitResult{Reason: reason}, nil
	default:
		return SubmitResult{}, fmt.Errorf("unexpected order status %q", order.Status)
	}
}
