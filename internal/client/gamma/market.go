package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// OutcomePair is one tradeable outcome with its current price.
type OutcomePair struct {
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
}

// Snapshot is the cleaned market view used for decision context and trade
// evaluation. The engineered fields (spread, extremeness, priceSum) are
// derived from the raw outcome prices.
type Snapshot struct {
	MarketID         string
	Question         string
	Description      string
	EndDate          string
	CurrentDate      string
	TimeToExpiryDays float64
	Spread           float64
	Extremeness      float64
	PriceSum         float64
	Volume24h        float64
	OutcomePairs     []OutcomePair
}

// PriceFor returns the current price of the named outcome (case-insensitive)
// and whether it was present.
func (s Snapshot) PriceFor(outcome string) (float64, bool) {
	for _, p := range s.OutcomePairs {
		if strings.EqualFold(p.Outcome, outcome) {
			return p.Price, true
		}
	}
	return 0, false
}

type rawMarket struct {
	Question      string          `json:"question"`
	Description   string          `json:"description"`
	EndDate       string          `json:"endDate"`
	EndDateISO    string          `json:"endDateIso"`
	Outcomes      json.RawMessage `json:"outcomes"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`
	Volume24h     json.Number     `json:"volume24hr"`
}

// FetchSnapshot fetches one market from Gamma and derives the snapshot
// fields. Returns an error when the market is unknown.
func (c *Client) FetchSnapshot(ctx context.Context, marketID string) (Snapshot, error) {
	query := url.Values{}
	query.Set("condition_ids", marketID)
	body, err := c.doRequest(ctx, "/markets", query)
	if err != nil {
		return Snapshot{}, err
	}

	var markets []rawMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		// Some deployments wrap the list in a data envelope.
		var envelope struct {
			Data []rawMarket `json:"data"`
		}
		if err2 := json.Unmarshal(body, &envelope); err2 != nil {
			return Snapshot{}, fmt.Errorf("decode markets response: %w", err)
		}
		markets = envelope.Data
	}
	if len(markets) == 0 {
		return Snapshot{}, fmt.Errorf("no market data for id %s", marketID)
	}
	return buildSnapshot(marketID, markets[0], time.Now().UTC()), nil
}

func buildSnapshot(marketID string, m rawMarket, now time.Time) Snapshot {
	outcomes := parseStringList(m.Outcomes)
	prices := parseFloatList(m.OutcomePrices)

	n := len(outcomes)
	if len(prices) < n {
		n = len(prices)
	}
	pairs := make([]OutcomePair, 0, n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, OutcomePair{Outcome: outcomes[i], Price: prices[i]})
	}

	endDate := dateOnly(firstNonEmpty(m.EndDateISO, m.EndDate))
	expiry := 0.0
	if end, err := time.Parse("2006-01-02", endDate); err == nil {
		expiry = math.Max(end.Sub(now).Hours()/24, 0)
	}

	spread := 0.0
	if len(prices) >= 2 {
		spread = math.Abs(prices[0] - prices[1])
	}
	extremeness := 0.0
	sum := 0.0
	for i, p := range prices {
		if i == 0 || p < extremeness {
			extremeness = p
		}
		sum += p
	}
	volume, _ := m.Volume24h.Float64()

	return Snapshot{
		MarketID:         marketID,
		Question:         m.Question,
		Description:      m.Description,
		EndDate:          endDate,
		CurrentDate:      now.Format("2006-01-02"),
		TimeToExpiryDays: expiry,
		Spread:           spread,
		Extremeness:      extremeness,
		PriceSum:         sum,
		Volume24h:        volume,
		OutcomePairs:     pairs,
	}
}

// parseStringList accepts a JSON array of strings or a JSON string that
// itself contains a serialized array, which Gamma emits for some fields.
func parseStringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err == nil {
		inner = strings.TrimSpace(inner)
		if strings.HasPrefix(inner, "[") {
			return parseStringList(json.RawMessage(inner))
		}
		if inner != "" {
			return []string{inner}
		}
		return nil
	}
	// Mixed or numeric elements: stringify each.
	var anyList []json.Number
	if err := json.Unmarshal(raw, &anyList); err == nil {
		out := make([]string, 0, len(anyList))
		for _, n := range anyList {
			out = append(out, n.String())
		}
		return out
	}
	return nil
}

func parseFloatList(raw json.RawMessage) []float64 {
	strs := parseStringList(raw)
	out := make([]float64, 0, len(strs))
	for _, s := range strs {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}

func dateOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC().Format("2006-01-02")
	}
	if i := strings.Index(s, "T"); i > 0 {
		return s[:i]
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
