package ingest

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"newsmarket/internal/fingerprint"
	"newsmarket/internal/index"
	"newsmarket/internal/models"
	"newsmarket/internal/repository/memory"
)

type stubEmbedder struct {
	calls int
}

func (s *stubEmbedder) Fingerprint(ctx context.Context, text string) (fingerprint.Fingerprint, error) {
	s.calls++
	return fingerprint.Fingerprint{
		Vector:   []float32{1, 0},
		Keywords: fingerprint.Tokenize(text),
	}, nil
}

func TestRegisterIndexesMarket(t *testing.T) {
	repo := memory.New()
	idx := index.NewMemory()
	embedder := &stubEmbedder{}
	r := NewRegistrar(repo, idx, embedder, zap.NewNop())

	ev := MarketAdded{
		MarketID:    "m1",
		Question:    "Will X happen by Friday?",
		Description: "Resolves yes if X happens.",
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.Register(context.Background(), ev); err != nil {
		t.Fatalf("register: %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("index len = %d, want 1", idx.Len())
	}
	market, err := repo.GetMarket(context.Background(), "m1")
	if err != nil || market == nil {
		t.Fatalf("market: %v, %v", market, err)
	}
	if market.Status != models.MarketStatusOpen {
		t.Fatalf("status = %s, want open", market.Status)
	}
	if len(market.Vector) == 0 || len(market.Keywords) == 0 {
		t.Fatal("fingerprint not persisted")
	}
}

func TestRegisterDuplicateKeepsFingerprint(t *testing.T) {
	repo := memory.New()
	idx := index.NewMemory()
	embedder := &stubEmbedder{}
	r := NewRegistrar(repo, idx, embedder, zap.NewNop())

	ev := MarketAdded{MarketID: "m1", Question: "Will X happen?"}
	if err := r.Register(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	ev.Question = "Changed question"
	if err := r.Register(context.Background(), ev); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if embedder.calls != 1 {
		t.Fatalf("embedder calls = %d, fingerprint must be computed once", embedder.calls)
	}
	market, _ := repo.GetMarket(context.Background(), "m1")
	if market.Question != "Will X happen?" {
		t.Fatalf("question = %q, original row must stand", market.Question)
	}
}

func TestResolveEvictsMarket(t *testing.T) {
	repo := memory.New()
	idx := index.NewMemory()
	r := NewRegistrar(repo, idx, &stubEmbedder{}, zap.NewNop())

	if err := r.Register(context.Background(), MarketAdded{MarketID: "m1", Question: "Will X happen?"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Resolve(context.Background(), "m1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if idx.Len() != 0 {
		t.Fatalf("index len = %d, want 0 after resolve", idx.Len())
	}
	market, _ := repo.GetMarket(context.Background(), "m1")
	if market.Status != models.MarketStatusClosed {
		t.Fatalf("status = %s, want closed", market.Status)
	}

	// Unknown market is a no-op, not an error.
	if err := r.Resolve(context.Background(), "ghost"); err != nil {
		t.Fatalf("resolve unknown: %v", err)
	}
}

func TestRebuildRestoresIndex(t *testing.T) {
	repo := memory.New()
	first := NewRegistrar(repo, index.NewMemory(), &stubEmbedder{}, zap.NewNop())
	for _, id := range []string{"m1", "m2"} {
		if err := first.Register(context.Background(), MarketAdded{MarketID: id, Question: "Will " + id + " happen?"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := first.Resolve(context.Background(), "m2"); err != nil {
		t.Fatal(err)
	}

	// Fresh process: a new empty index rebuilt from the store.
	idx := index.NewMemory()
	second := NewRegistrar(repo, idx, &stubEmbedder{}, zap.NewNop())
	loaded, err := second.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if loaded != 1 || idx.Len() != 1 {
		t.Fatalf("loaded = %d, index len = %d; closed markets must stay out", loaded, idx.Len())
	}
	if got := idx.Query([]float32{1, 0}, 5); len(got) != 1 || got[0].MarketID != "m1" {
		t.Fatalf("query after rebuild = %+v", got)
	}
}

func TestMarketText(t *testing.T) {
	if got := MarketText("Q?", "Body."); got != "Q?\n\nBody." {
		t.Fatalf("MarketText = %q", got)
	}
	if got := MarketText("Q?", "  "); got != "Q?" {
		t.Fatalf("MarketText without description = %q", got)
	}
}
