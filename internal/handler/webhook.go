package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"newsmarket/internal/ingest"
)

const (
	EventMarketAdded    = "market_added"
	EventMarketResolved = "market_resolved"
)

type marketEventRequest struct {
	Type   string `json:"type" binding:"required"`
	Market struct {
		ID          string    `json:"id" binding:"required"`
		Question    string    `json:"question"`
		Description string    `json:"description"`
		CreatedAt   time.Time `json:"createdAt"`
	} `json:"market" binding:"required"`
}

// WebhookHandler receives market lifecycle events from the upstream feed.
type WebhookHandler struct {
	Registrar *ingest.Registrar
}

func (h *WebhookHandler) Register(r *gin.Engine) {
	r.POST("/webhooks/market-event", h.marketEvent)
}

func (h *WebhookHandler) marketEvent(c *gin.Context) {
	if h.Registrar == nil {
		Error(c, http.StatusInternalServerError, "registrar unavailable", nil)
		return
	}
	var req marketEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	ctx := c.Request.Context()
	switch req.Type {
	case EventMarketAdded:
		if req.Market.Question == "" {
			Error(c, http.StatusBadRequest, "market.question is required", nil)
			return
		}
		err := h.Registrar.Register(ctx, ingest.MarketAdded{
			MarketID:    req.Market.ID,
			Question:    req.Market.Question,
			Description: req.Market.Description,
			CreatedAt:   req.Market.CreatedAt,
		})
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
	case EventMarketResolved:
		if err := h.Registrar.Resolve(ctx, req.Market.ID); err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
	default:
		Error(c, http.StatusBadRequest, "unknown event type: "+req.Type, nil)
		return
	}
	Ok(c, gin.H{"event": req.Type, "market_id": req.Market.ID}, nil)
}
