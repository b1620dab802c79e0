package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"stockledger/internal/services/catalog"
)

type CatalogHTTPHandler struct {
	svc *catalog.Service
}

func NewCatalogHTTPHandler(svc *catalog.Service) *CatalogHTTPHandler {
	return &CatalogHTTPHandler{svc: svc}
}

type itemRequest struct {
	Name              string           `json:"name"`
	UnitOfMeasure     string           `json:"unit_of_measure"`
	CategoryID        *int64           `json:"category_id"`
	DefaultSupplierID *int64           `json:"default_supplier_id"`
	DefaultLocationID *int64           `json:"default_location_id"`
	WarningThreshold  *decimal.Decimal `json:"warning_threshold"`
	BuyPrice          *decimal.Decimal `json:"buy_price"`
	MarginPercent     *decimal.Decimal `json:"margin_percent"`
}

func (h *CatalogHTTPHandler) CreateItem(c *gin.Context) {
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	item, err := h.svc.CreateItem(c.Request.Context(), catalog.ItemParams{
		Name:              req.Name,
		UnitOfMeasure:     req.UnitOfMeasure,
		CategoryID:        req.CategoryID,
		DefaultSupplierID: req.DefaultSupplierID,
		DefaultLocationID: req.DefaultLocationID,
		WarningThreshold:  req.WarningThreshold,
		BuyPrice:          req.BuyPrice,
		MarginPercent:     req.MarginPercent,
	})
	if err != nil {
		fail(c, err)
		return
	}

	success(c, item)
}

func (h *CatalogHTTPHandler) GetItem(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid item id")
		return
	}

	item, err := h.svc.GetItem(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	success(c, item)
}

type updateItemRequest struct {
	Name              *string          `json:"name"`
	UnitOfMeasure     *string          `json:"unit_of_measure"`
	CategoryID        *int64           `json:"category_id"`
	DefaultSupplierID *int64           `json:"default_supplier_id"`
	DefaultLocationID *int64           `json:"default_location_id"`
	WarningThreshold  *decimal.Decimal `json:"warning_threshold"`
	BuyPrice          *decimal.Decimal `json:"buy_price"`
	MarginPercent     *decimal.Decimal `json:"margin_percent"`
}

func (h *CatalogHTTPHandler) UpdateItem(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid item id")
		return
	}

	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	item, err := h.svc.UpdateItem(c.Request.Context(), id, catalog.UpdateItemParams{
		Name:              req.Name,
		UnitOfMeasure:     req.UnitOfMeasure,
		CategoryID:        req.CategoryID,
		DefaultSupplierID: req.DefaultSupplierID,
		DefaultLocationID: req.DefaultLocationID,
		WarningThreshold:  req.WarningThreshold,
		BuyPrice:          req.BuyPrice,
		MarginPercent:     req.MarginPercent,
	})
	if err != nil {
		fail(c, err)
		return
	}

	success(c, item)
}

func (h *CatalogHTTPHandler) DeleteItem(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid item id")
		return
	}

	if err := h.svc.DeleteItem(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}

	success(c, gin.H{"deleted": id})
}

func (h *CatalogHTTPHandler) ListItems(c *gin.Context) {
	limit, offset := parsePagination(c)

	items, total, err := h.svc.ListItems(c.Request.Context(), catalog.ListItemsParams{
		CategoryID: parseInt64Query(c, "category_id"),
		SupplierID: parseInt64Query(c, "supplier_id"),
		SearchTerm: parseStringQuery(c, "search"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		fail(c, err)
		return
	}

	success(c, gin.H{"items": items, "total": total})
}

func (h *CatalogHTTPHandler) ListLowStock(c *gin.Context) {
	low, err := h.svc.ListLowStock(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	success(c, low)
}

type supplierRequest struct {
	SupplierName  string  `json:"supplier_name"`
	ContactPerson *string `json:"contact_person"`
	Phone         *string `json:"phone"`
	Email         *string `json:"email"`
	Address       *string `json:"address"`
}

func (h *CatalogHTTPHandler) CreateSupplier(c *gin.Context) {
	var req supplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	supplier, err := h.svc.CreateSupplier(c.Request.Context(), catalog.SupplierParams{
		SupplierName:  req.SupplierName,
		ContactPerson: req.ContactPerson,
		Phone:         req.Phone,
		Email:         req.Email,
		Address:       req.Address,
	})
	if err != nil {
		fail(c, err)
		return
	}

	success(c, supplier)
}

func (h *CatalogHTTPHandler) GetSupplier(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid supplier id")
		return
	}

	supplier, err := h.svc.GetSupplier(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	success(c, supplier)
}

func (h *CatalogHTTPHandler) ListSuppliers(c *gin.Context) {
	limit, offset := parsePagination(c)

	suppliers, total, err := h.svc.ListSuppliers(c.Request.Context(), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}

	success(c, gin.H{"suppliers": suppliers, "total": total})
}

type updateSupplierRequest struct {
	SupplierName  *string `json:"supplier_name"`
	ContactPerson *string `json:"contact_person"`
	Phone         *string `json:"phone"`
	Email         *string `json:"email"`
	Address       *string `json:"address"`
	IsActive      *bool   `json:"is_active"`
}

func (h *CatalogHTTPHandler) UpdateSupplier(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid supplier id")
		return
	}

	var req updateSupplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	supplier, err := h.svc.UpdateSupplier(c.Request.Context(), id, catalog.UpdateSupplierParams{
		SupplierName:  req.SupplierName,
		ContactPerson: req.ContactPerson,
		Phone:         req.Phone,
		Email:         req.Email,
		Address:       req.Address,
		IsActive:      req.IsActive,
	})
	if err != nil {
		fail(c, err)
		return
	}

	success(c, supplier)
}

type locationRequest struct {
	LocationName string  `json:"location_name"`
	Description  *string `json:"description"`
}

func (h *CatalogHTTPHandler) CreateLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	location, err := h.svc.CreateLocation(c.Request.Context(), catalog.LocationParams{
		LocationName: req.LocationName,
		Description:  req.Description,
	})
	if err != nil {
		fail(c, err)
		return
	}

	success(c, location)
}

func (h *CatalogHTTPHandler) GetLocation(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid location ID")
		return
	}

	location, err := h.svc.GetLocation(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	success(c, location)
}

func (h *CatalogHTTPHandler) ListLocations(c *gin.Context) {
	limit, offset := parsePagination(c)

	locations, total, err := h.svc.ListLocations(c.Request.Context(), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}

	success(c, gin.H{"locations": locations, "total": total})
}

type categoryRequest struct {
	CategoryName string  `json:"category_name"`
	Description  *string `json:"description"`
}

func (h *CatalogHTTPHandler) CreateCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failMsg(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	category, err := h.svc.CreateCategory(c.Request.Context(), catalog.CategoryParams{
		CategoryName: req.CategoryName,
		Description:  req.Description,
	})
	if err != nil {
		fail(c, err)
		return
	}

	success(c, category)
}

func (h *CatalogHTTPHandler) ListCategories(c *gin.Context) {
	limit, offset := parsePagination(c)

	categories, total, err := h.svc.ListCategories(c.Request.Context(), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}

	success(c, gin.H{"categories": categories, "total": total})
}
