package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"newsmarket/internal/repository"
)

type TradeHandler struct {
	Repo repository.Repository
}

func (h *TradeHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1")
	group.GET("/trades", h.listTrades)
	group.GET("/outcomes", h.listOutcomes)
}

func (h *TradeHandler) listTrades(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	status := strings.TrimSpace(c.Query("status"))
	market := strings.TrimSpace(c.Query("market"))
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	var statusPtr, marketPtr *string
	if status != "" {
		statusPtr = &status
	}
	if market != "" {
		marketPtr = &market
	}

	items, err := h.Repo.ListTradeRecords(c.Request.Context(), repository.ListTradeRecordsParams{
		Status: statusPtr,
		Market: marketPtr,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, int64(len(items))))
}

func (h *TradeHandler) listOutcomes(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	market := strings.TrimSpace(c.Query("market"))
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	var marketPtr *string
	if market != "" {
		marketPtr = &market
	}

	items, err := h.Repo.ListEvaluationOutcomes(c.Request.Context(), repository.ListOutcomesParams{
		Market: marketPtr,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, int64(len(items))))
}
