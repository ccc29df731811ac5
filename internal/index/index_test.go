package index

import (
	"errors"
	"testing"
	"time"
)

func TestAddDuplicate(t *testing.T) {
	idx := NewMemory()
	e := Entry{MarketID: "m1", Vector: []float32{1, 0}}
	if err := idx.Add(e); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := idx.Add(e); !errors.Is(err, ErrDuplicateMarket) {
		t.Fatalf("second add = %v, want ErrDuplicateMarket", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("len = %d, want 1", idx.Len())
	}
}

func TestQueryOrdering(t *testing.T) {
	idx := NewMemory()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	must := func(e Entry) {
		t.Helper()
		if err := idx.Add(e); err != nil {
			t.Fatalf("add %s: %v", e.MarketID, err)
		}
	}
	must(Entry{MarketID: "far", Vector: []float32{0, 1}, CreatedAt: base})
	must(Entry{MarketID: "near", Vector: []float32{1, 0.1}, CreatedAt: base})
	must(Entry{MarketID: "exact", Vector: []float32{1, 0}, CreatedAt: base})

	got := idx.Query([]float32{1, 0}, 2)
	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2", len(got))
	}
	if got[0].MarketID != "exact" || got[1].MarketID != "near" {
		t.Fatalf("order = %s, %s", got[0].MarketID, got[1].MarketID)
	}
	if got[0].Similarity <= got[1].Similarity {
		t.Fatalf("similarities not descending: %v, %v", got[0].Similarity, got[1].Similarity)
	}
}

func TestQueryTieBreakNewest(t *testing.T) {
	idx := NewMemory()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := idx.Add(Entry{MarketID: "older", Vector: []float32{1, 0}, CreatedAt: old}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(Entry{MarketID: "newer", Vector: []float32{1, 0}, CreatedAt: old.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	got := idx.Query([]float32{1, 0}, 1)
	if len(got) != 1 || got[0].MarketID != "newer" {
		t.Fatalf("tie-break picked %v, want newer", got)
	}
}

func TestQueryEmpty(t *testing.T) {
	idx := NewMemory()
	if got := idx.Query([]float32{1, 0}, 5); len(got) != 0 {
		t.Fatalf("empty index query = %v, want empty", got)
	}
	if err := idx.Add(Entry{MarketID: "m1", Vector: []float32{1, 0}}); err != nil {
		t.Fatal(err)
	}
	if got := idx.Query(nil, 5); len(got) != 0 {
		t.Fatalf("nil vector query = %v, want empty", got)
	}
}

func TestRemove(t *testing.T) {
	idx := NewMemory()
	if err := idx.Add(Entry{MarketID: "m1", Vector: []float32{1, 0}}); err != nil {
		t.Fatal(err)
	}
	idx.Remove("m1")
	idx.Remove("m1") // idempotent
	if idx.Len() != 0 {
		t.Fatalf("len = %d, want 0", idx.Len())
	}
}
