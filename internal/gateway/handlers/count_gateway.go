package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"stockledger/internal/database/models"
	"stockledger/internal/services/count"
)

type CountHTTPHandler struct {
	svc *count.Service
}

func NewCountHTTPHandler(svc *count.Service) *CountHTTPHandler {
	return &CountHTTPHandler{svc: svc}
}

func (h *CountHTTPHandler) StartCount(c *gin.Context) {
	session, err := h.svc.Start(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	success(c, session)
}

func (h *CountHTTPHandler) GetCount(c *gin.Context) {
	session, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	success(c, session)
}

func (h *CountHTTPHandler) GetProgress(c *gin.Context) {
	progress, err := h.svc.GetProgress(c.Request.Context(), c.Param("id"), parseInt64Query(c, "category_id"))
	if err != nil {
		fail(c, err)
		return
	}

	success(c, gin.H{
		"total_items":   progress.TotalItems,
		"counted_items": progress.CountedItems,
	})
}

type recordCountRequest struct {
	ItemID   int64           `json:"item_id" binding:"required"`
	BatchID  *int64          `json:"batch_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

func (h *CountHTTPHandler) RecordCount(c *gin.Context) {
	var req recordCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	batchID := models.NoBatch
	if req.BatchID != nil {
		batchID = *req.BatchID
	}

	entry, err := h.svc.RecordCount(c.Request.Context(), c.Param("id"), req.ItemID, batchID, req.Quantity)
	if err != nil {
		fail(c, err)
		return
	}

	success(c, entry)
}

func (h *CountHTTPHandler) ListEntries(c *gin.Context) {
	entries, err := h.svc.ListEntries(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	success(c, entries)
}

func (h *CountHTTPHandler) FinishCount(c *gin.Context) {
	countID := c.Param("id")
	if err := h.svc.Finish(c.Request.Context(), countID); err != nil {
		fail(c, err)
		return
	}

	success(c, gin.H{"finished": countID})
}

func (h *CountHTTPHandler) DeleteCount(c *gin.Context) {
	countID := c.Param("id")
	if err := h.svc.Delete(c.Request.Context(), countID); err != nil {
		fail(c, err)
		return
	}

	success(c, gin.H{"deleted": countID})
}

func (h *CountHTTPHandler) ActiveCountsForItem(c *gin.Context) {
	itemID, err := parseIDParam(c, "id")
	if err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid item id")
		return
	}

	sessions, err := h.svc.GetActiveCountsForItem(c.Request.Context(), itemID)
	if err != nil {
		fail(c, err)
		return
	}

	success(c, sessions)
}
