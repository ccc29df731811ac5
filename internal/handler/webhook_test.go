package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"newsmarket/internal/fingerprint"
	"newsmarket/internal/index"
	"newsmarket/internal/ingest"
	"newsmarket/internal/models"
	"newsmarket/internal/repository/memory"
)

type stubEmbedder struct{}

func (stubEmbedder) Fingerprint(ctx context.Context, text string) (fingerprint.Fingerprint, error) {
	return fingerprint.Fingerprint{Vector: []float32{1, 0}, Keywords: fingerprint.Tokenize(text)}, nil
}

func setupWebhook(t *testing.T) (*gin.Engine, *memory.Store, *index.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := memory.New()
	idx := index.NewMemory()
	registrar := ingest.NewRegistrar(repo, idx, stubEmbedder{}, nil)
	engine := gin.New()
	h := &WebhookHandler{Registrar: registrar}
	h.Register(engine)
	return engine, repo, idx
}

func postEvent(engine *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/market-event", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)
	return w
}

func TestMarketAddedEvent(t *testing.T) {
	engine, repo, idx := setupWebhook(t)
	w := postEvent(engine, `{
		"type": "market_added",
		"market": {
			"id": "m1",
			"question": "Will X happen by Friday?",
			"description": "Resolves yes if X happens.",
			"createdAt": "2026-08-28T10:00:00Z"
		}
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if idx.Len() != 1 {
		t.Fatalf("index len = %d, want 1", idx.Len())
	}
	market, err := repo.GetMarket(context.Background(), "m1")
	if err != nil || market == nil {
		t.Fatalf("market = %v, %v", market, err)
	}
}

func TestMarketResolvedEvent(t *testing.T) {
	engine, repo, idx := setupWebhook(t)
	if w := postEvent(engine, `{"type":"market_added","market":{"id":"m1","question":"Will X happen?"}}`); w.Code != http.StatusOK {
		t.Fatalf("add status = %d", w.Code)
	}
	if w := postEvent(engine, `{"type":"market_resolved","market":{"id":"m1"}}`); w.Code != http.StatusOK {
		t.Fatalf("resolve status = %d", w.Code)
	}
	if idx.Len() != 0 {
		t.Fatalf("index len = %d, want 0", idx.Len())
	}
	market, _ := repo.GetMarket(context.Background(), "m1")
	if market.Status != models.MarketStatusClosed {
		t.Fatalf("status = %s, want closed", market.Status)
	}
}

func TestMarketEventValidation(t *testing.T) {
	engine, _, _ := setupWebhook(t)
	if w := postEvent(engine, `{"type":"market_added","market":{"id":"m1"}}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing question: status = %d", w.Code)
	}
	if w := postEvent(engine, `{"type":"market_exploded","market":{"id":"m1"}}`); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown type: status = %d", w.Code)
	}
	if w := postEvent(engine, `not json`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad payload: status = %d", w.Code)
	}
}
