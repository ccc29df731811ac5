package gamma

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestBuildSnapshotStringifiedLists(t *testing.T) {
	raw := rawMarket{
		Question:      "Will X happen by Friday?",
		Description:   "Resolves yes if X happens.",
		EndDateISO:    "2026-09-04T00:00:00Z",
		Outcomes:      json.RawMessage(`"[\"Yes\", \"No\"]"`),
		OutcomePrices: json.RawMessage(`"[\"0.62\", \"0.38\"]"`),
		Volume24h:     json.Number("12345.5"),
	}
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	s := buildSnapshot("m1", raw, now)

	if len(s.OutcomePairs) != 2 || s.OutcomePairs[0].Outcome != "Yes" || s.OutcomePairs[0].Price != 0.62 {
		t.Fatalf("outcome pairs = %+v", s.OutcomePairs)
	}
	if math.Abs(s.Spread-0.24) > 1e-9 {
		t.Fatalf("spread = %v, want 0.24", s.Spread)
	}
	if s.Extremeness != 0.38 {
		t.Fatalf("extremeness = %v, want 0.38", s.Extremeness)
	}
	if math.Abs(s.PriceSum-1.0) > 1e-9 {
		t.Fatalf("priceSum = %v, want 1.0", s.PriceSum)
	}
	if s.Volume24h != 12345.5 {
		t.Fatalf("volume24h = %v", s.Volume24h)
	}
	if s.EndDate != "2026-09-04" {
		t.Fatalf("endDate = %q", s.EndDate)
	}
	if s.TimeToExpiryDays <= 6 || s.TimeToExpiryDays >= 7 {
		t.Fatalf("timeToExpiryDays = %v, want in (6,7)", s.TimeToExpiryDays)
	}
}

func TestBuildSnapshotNativeLists(t *testing.T) {
	raw := rawMarket{
		Question:      "Multi outcome",
		EndDate:       "2026-12-31T23:59:59Z",
		Outcomes:      json.RawMessage(`["Team A","Team B","Draw"]`),
		OutcomePrices: json.RawMessage(`[0.5, 0.3, 0.2]`),
	}
	s := buildSnapshot("m2", raw, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC))
	if len(s.OutcomePairs) != 3 {
		t.Fatalf("outcome pairs = %+v", s.OutcomePairs)
	}
	if s.Extremeness != 0.2 {
		t.Fatalf("extremeness = %v, want 0.2", s.Extremeness)
	}
	price, ok := s.PriceFor("team b")
	if !ok || price != 0.3 {
		t.Fatalf("PriceFor(team b) = %v, %v", price, ok)
	}
	if _, ok := s.PriceFor("missing"); ok {
		t.Fatal("PriceFor(missing) should not match")
	}
}

func TestBuildSnapshotDegenerate(t *testing.T) {
	s := buildSnapshot("m3", rawMarket{Question: "empty"}, time.Now().UTC())
	if len(s.OutcomePairs) != 0 || s.Spread != 0 || s.PriceSum != 0 {
		t.Fatalf("snapshot = %+v, want zeroed derived fields", s)
	}
}
