package matcher

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"newsmarket/internal/config"
	"newsmarket/internal/fingerprint"
	"newsmarket/internal/index"
	"newsmarket/internal/models"
	"newsmarket/internal/repository/memory"
)

func testConfig() config.MatcherConfig {
	return config.MatcherConfig{
		TopK:          5,
		MinScore:      0.5,
		VectorWeight:  0.7,
		LexicalWeight: 0.3,
		DedupWindow:   24 * time.Hour,
	}
}

// vectorWithCosine returns a unit vector whose cosine similarity to (1,0)
// is exactly c.
func vectorWithCosine(c float64) []float32 {
	return []float32{float32(c), float32(math.Sqrt(1 - c*c))}
}

func TestMatchHybridScoreAboveThreshold(t *testing.T) {
	idx := index.NewMemory()
	repo := memory.New()
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	// Cosine 0.82 against the query, lexical overlap 2/sqrt(5*5) = 0.40.
	if err := idx.Add(index.Entry{
		MarketID:  "M1",
		Vector:    vectorWithCosine(0.82),
		Keywords:  []string{"x", "happen", "friday", "deadline", "event"},
		CreatedAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	m := New(idx, repo, testConfig(), zap.NewNop())
	fp := fingerprint.Fingerprint{
		Vector:   []float32{1, 0},
		Keywords: []string{"x", "happen", "reports", "today", "sources"},
	}
	got, err := m.Match(context.Background(), "N1", fp, now)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("candidates = %+v, want 1", got)
	}
	want := 0.7*0.82 + 0.3*0.40
	if math.Abs(got[0].Score-want) > 1e-6 {
		t.Fatalf("score = %v, want %v", got[0].Score, want)
	}
	if got[0].Rank != 1 || got[0].MarketID != "M1" || got[0].NewsItemID != "N1" {
		t.Fatalf("candidate = %+v", got[0])
	}
}

func TestMatchDiscardsBelowThreshold(t *testing.T) {
	idx := index.NewMemory()
	now := time.Now().UTC()
	if err := idx.Add(index.Entry{
		MarketID: "weak",
		Vector:   vectorWithCosine(0.3),
		Keywords: []string{"unrelated", "topic"},
	}); err != nil {
		t.Fatal(err)
	}
	m := New(idx, memory.New(), testConfig(), zap.NewNop())
	got, err := m.Match(context.Background(), "N1", fingerprint.Fingerprint{
		Vector:   []float32{1, 0},
		Keywords: []string{"something", "else"},
	}, now)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("candidates = %+v, want none", got)
	}
}

func TestMatchIdempotent(t *testing.T) {
	idx := index.NewMemory()
	now := time.Now().UTC()
	for i, c := range []float64{0.9, 0.8, 0.7} {
		id := string(rune('a' + i))
		if err := idx.Add(index.Entry{
			MarketID:  id,
			Vector:    vectorWithCosine(c),
			Keywords:  []string{"shared", "topic", id},
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatal(err)
		}
	}
	m := New(idx, memory.New(), testConfig(), zap.NewNop())
	fp := fingerprint.Fingerprint{Vector: []float32{1, 0}, Keywords: []string{"shared", "topic"}}

	first, err := m.Match(context.Background(), "N1", fp, now)
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Match(context.Background(), "N1", fp, now)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("match not deterministic:\nfirst  = %+v\nsecond = %+v", first, second)
	}
}

func TestMatchExcludesRecentNotRelevant(t *testing.T) {
	idx := index.NewMemory()
	repo := memory.New()
	now := time.Now().UTC()
	keywords := []string{"fed", "rates", "cut"}
	for _, id := range []string{"excluded", "fresh"} {
		if err := idx.Add(index.Entry{MarketID: id, Vector: vectorWithCosine(0.9), Keywords: keywords}); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.InsertJudgedPair(context.Background(), &models.JudgedPair{
		MarketID:   "excluded",
		NewsItemID: "N1",
		Relevance:  models.RelevanceNotRelevant,
		ExpiresAt:  now.Add(12 * time.Hour),
	}); err != nil {
		t.Fatal(err)
	}
	// A relevant verdict is audit state, not a dedup exclusion.
	if err := repo.InsertJudgedPair(context.Background(), &models.JudgedPair{
		MarketID:   "fresh",
		NewsItemID: "N1",
		Relevance:  models.RelevanceRelevant,
		ExpiresAt:  now.Add(12 * time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	m := New(idx, repo, testConfig(), zap.NewNop())
	got, err := m.Match(context.Background(), "N1", fingerprint.Fingerprint{
		Vector:   []float32{1, 0},
		Keywords: keywords,
	}, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].MarketID != "fresh" {
		t.Fatalf("candidates = %+v, want only fresh", got)
	}
}

func TestMatchExpiredExclusionReturns(t *testing.T) {
	idx := index.NewMemory()
	repo := memory.New()
	now := time.Now().UTC()
	keywords := []string{"fed", "rates", "cut"}
	if err := idx.Add(index.Entry{MarketID: "m1", Vector: vectorWithCosine(0.9), Keywords: keywords}); err != nil {
		t.Fatal(err)
	}
	if err := repo.InsertJudgedPair(context.Background(), &models.JudgedPair{
		MarketID:   "m1",
		NewsItemID: "N1",
		Relevance:  models.RelevanceNotRelevant,
		ExpiresAt:  now.Add(-time.Minute),
	}); err != nil {
		t.Fatal(err)
	}
	m := New(idx, repo, testConfig(), zap.NewNop())
	got, err := m.Match(context.Background(), "N1", fingerprint.Fingerprint{
		Vector:   []float32{1, 0},
		Keywords: keywords,
	}, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("candidates = %+v, want m1 back after window expiry", got)
	}
}

func TestMatchCapsAtTopK(t *testing.T) {
	idx := index.NewMemory()
	now := time.Now().UTC()
	keywords := []string{"shared", "topic"}
	for _, id := range []string{"a", "b", "c", "d"} {
		if err := idx.Add(index.Entry{MarketID: id, Vector: vectorWithCosine(0.9), Keywords: keywords}); err != nil {
			t.Fatal(err)
		}
	}
	cfg := testConfig()
	cfg.TopK = 2
	m := New(idx, memory.New(), cfg, zap.NewNop())
	got, err := m.Match(context.Background(), "N1", fingerprint.Fingerprint{
		Vector:   []float32{1, 0},
		Keywords: keywords,
	}, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("candidates = %d, want 2", len(got))
	}
	if got[0].Rank != 1 || got[1].Rank != 2 {
		t.Fatalf("ranks = %d, %d", got[0].Rank, got[1].Rank)
	}
}

func TestMatchEmptyIndex(t *testing.T) {
	m := New(index.NewMemory(), memory.New(), testConfig(), zap.NewNop())
	got, err := m.Match(context.Background(), "N1", fingerprint.Fingerprint{Vector: []float32{1, 0}}, time.Now().UTC())
	if err != nil {
		t.Fatalf("empty index should not error, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("candidates = %+v, want none", got)
	}
}
