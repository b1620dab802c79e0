package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"stockledger/internal/database/models"
	"stockledger/internal/services/batch"
	"stockledger/internal/services/stock"
)

type StockHTTPHandler struct {
	stock   *stock.Service
	batches *batch.Service
}

func NewStockHTTPHandler(stockSvc *stock.Service, batchSvc *batch.Service) *StockHTTPHandler {
	return &StockHTTPHandler{
		stock:   stockSvc,
		batches: batchSvc,
	}
}

type receiveRequest struct {
	Quantity     decimal.Decimal  `json:"quantity"`
	UnitBuyPrice *decimal.Decimal `json:"unit_buy_price"`
	SupplierID   *int64           `json:"supplier_id"`
	LocationID   *int64           `json:"location_id"`
	ExpiresAt    *time.Time       `json:"expires_at"`
}

func (h *StockHTTPHandler) ReceiveBatch(c *gin.Context) {
	itemID, err := parseIDParam(c, "id")
	if err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid item id")
		return
	}

	var req receiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	created, err := h.stock.Receive(c.Request.Context(), stock.ReceiveParams{
		ItemID:       itemID,
		Quantity:     req.Quantity,
		UnitBuyPrice: req.UnitBuyPrice,
		SupplierID:   req.SupplierID,
		LocationID:   req.LocationID,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		fail(c, err)
		return
	}

	success(c, created)
}

func (h *StockHTTPHandler) ListBatches(c *gin.Context) {
	itemID, err := parseIDParam(c, "id")
	if err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid item id")
		return
	}

	sortKeys, err := batch.ParseSortSpec(c.QueryArray("sort"))
	if err != nil {
		fail(c, err)
		return
	}

	var statusFilter *models.BatchStatus
	if raw := c.Query("status"); raw != "" {
		st := models.BatchStatus(raw)
		statusFilter = &st
	}

	limit, offset := parsePagination(c)

	batches, total, err := h.batches.ListByItem(c.Request.Context(), itemID, batch.ListParams{
		StatusFilter: statusFilter,
		SortKeys:     sortKeys,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		fail(c, err)
		return
	}

	success(c, gin.H{"batches": batches, "total": total})
}

func (h *StockHTTPHandler) BatchSummary(c *gin.Context) {
	itemID, err := parseIDParam(c, "id")
	if err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid item id")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))

	summary, err := h.batches.Summary(c.Request.Context(), itemID, limit)
	if err != nil {
		fail(c, err)
		return
	}

	success(c, summary)
}

func (h *StockHTTPHandler) GetBatch(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid batch id")
		return
	}

	found, err := h.batches.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	success(c, found)
}

type updateBatchRequest struct {
	Quantity     *decimal.Decimal `json:"quantity"`
	UnitBuyPrice *decimal.Decimal `json:"unit_buy_price"`
	Status       *string          `json:"status"`
	SupplierID   *int64           `json:"supplier_id"`
	LocationID   *int64           `json:"location_id"`
	ExpiresAt    *time.Time       `json:"expires_at"`
}

func (h *StockHTTPHandler) UpdateBatch(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid batch id")
		return
	}

	var req updateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	params := batch.UpdateParams{
		Quantity:     req.Quantity,
		UnitBuyPrice: req.UnitBuyPrice,
		SupplierID:   req.SupplierID,
		LocationID:   req.LocationID,
		ExpiresAt:    req.ExpiresAt,
	}
	if req.Status != nil {
		st := models.BatchStatus(*req.Status)
		params.Status = &st
	}

	updated, err := h.batches.Update(c.Request.Context(), id, params)
	if err != nil {
		fail(c, err)
		return
	}

	success(c, updated)
}

func (h *StockHTTPHandler) DeleteBatch(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid batch id")
		return
	}

	if err := h.batches.Remove(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}

	success(c, gin.H{"deleted": id})
}

type consumeRequest struct {
	Quantity   decimal.Decimal `json:"quantity"`
	Policy     string          `json:"policy"`
	LocationID *int64          `json:"location_id"`
}

func (h *StockHTTPHandler) Consume(c *gin.Context) {
	itemID, err := parseIDParam(c, "id")
	if err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid item id")
		return
	}

	var req consumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	policy, err := stock.ParsePolicy(req.Policy)
	if err != nil {
		fail(c, err)
		return
	}

	result, err := h.stock.Consume(c.Request.Context(), stock.ConsumeParams{
		ItemID:     itemID,
		Quantity:   req.Quantity,
		Policy:     policy,
		LocationID: req.LocationID,
	})
	if err != nil {
		fail(c, err)
		return
	}

	success(c, gin.H{
		"consumed":  result.Consumed,
		"remainder": result.Remainder,
	})
}

func (h *StockHTTPHandler) ExpireSweep(c *gin.Context) {
	expired, err := h.stock.MarkExpired(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	success(c, gin.H{"expired": expired})
}

func (h *StockHTTPHandler) ListMovements(c *gin.Context) {
	itemID, err := parseIDParam(c, "id")
	if err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid item id")
		return
	}

	limit, offset := parsePagination(c)

	movements, total, err := h.stock.ListMovements(c.Request.Context(), itemID, limit, offset)
	if err != nil {
		fail(c, err)
		return
	}

	success(c, gin.H{"movements": movements, "total": total})
}
