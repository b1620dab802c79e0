package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"stockledger/internal/database/models"
)

const (
	LOW_STOCK_CACHE_KEY        = "catalog:low-stock"
	BATCH_SUMMARY_CACHE_PREFIX = "batch:summary:"
	CACHE_TTL_SHORT            = 5 * time.Minute
)

type Service struct {
	db    *gorm.DB
	redis *redis.Client
	now   func() time.Time
}

func NewService(db *gorm.DB, redisClient *redis.Client) *Service {
	return &Service{
		db:    db,
		redis: redisClient,
		now:   time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) invalidateLowStock(ctx context.Context) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Del(ctx, LOW_STOCK_CACHE_KEY)
}

type ItemParams struct {
	Name              string
	UnitOfMeasure     string
	CategoryID        *int64
	DefaultSupplierID *int64
	DefaultLocationID *int64
	WarningThreshold  *decimal.Decimal
	BuyPrice          *decimal.Decimal
	MarginPercent     *decimal.Decimal
}

func (s *Service) CreateItem(ctx context.Context, p ItemParams) (models.Item, error) {
	if p.Name == "" {
		return models.Item{}, status.Errorf(codes.InvalidArgument, "Item name is required")
	}

	item := models.Item{
		Name:              p.Name,
		UnitOfMeasure:     p.UnitOfMeasure,
		CategoryID:        p.CategoryID,
		DefaultSupplierID: p.DefaultSupplierID,
		DefaultLocationID: p.DefaultLocationID,
		WarningThreshold:  p.WarningThreshold,
		BuyPrice:          p.BuyPrice,
		MarginPercent:     p.MarginPercent,
	}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		return models.Item{}, dbErr(err)
	}

	s.invalidateLowStock(ctx)
	return item, nil
}

func (s *Service) GetItem(ctx context.Context, id int64) (models.Item, error) {
	var item models.Item
	err := s.db.WithContext(ctx).
		Preload("Category").
		Preload("DefaultSupplier").
		Preload("DefaultLocation").
		First(&item, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return models.Item{}, status.Errorf(codes.NotFound, "Item with ID %d not found", id)
		}
		return models.Item{}, dbErr(err)
	}
	return item, nil
}

type UpdateItemParams struct {
	Name              *string
	UnitOfMeasure     *string
	CategoryID        *int64
	DefaultSupplierID *int64
	DefaultLocationID *int64
	WarningThreshold  *decimal.Decimal
	BuyPrice          *decimal.Decimal
	MarginPercent     *decimal.Decimal
}

func (s *Service) UpdateItem(ctx context.Context, id int64, p UpdateItemParams) (models.Item, error) {
	var item models.Item
	if err := s.db.WithContext(ctx).First(&item, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return models.Item{}, status.Errorf(codes.NotFound, "Item with ID %d not found", id)
		}
		return models.Item{}, dbErr(err)
	}

	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.UnitOfMeasure != nil {
		item.UnitOfMeasure = *p.UnitOfMeasure
	}
	if p.CategoryID != nil {
		item.CategoryID = p.CategoryID
	}
	if p.DefaultSupplierID != nil {
		item.DefaultSupplierID = p.DefaultSupplierID
	}
	if p.DefaultLocationID != nil {
		item.DefaultLocationID = p.DefaultLocationID
	}
	if p.WarningThreshold != nil {
		item.WarningThreshold = p.WarningThreshold
	}
	if p.BuyPrice != nil {
		item.BuyPrice = p.BuyPrice
	}
	if p.MarginPercent != nil {
		item.MarginPercent = p.MarginPercent
	}

	if err := s.db.WithContext(ctx).Save(&item).Error; err != nil {
		return models.Item{}, dbErr(err)
	}

	s.invalidateLowStock(ctx)
	return item, nil
}

type ListItemsParams struct {
	CategoryID *int64
	SupplierID *int64
	SearchTerm *string
	Limit      int
	Offset     int
}

func (s *Service) ListItems(ctx context.Context, p ListItemsParams) ([]models.Item, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Item{}).
		Preload("Category").
		Preload("DefaultSupplier").
		Preload("DefaultLocation")

	if p.CategoryID != nil {
		query = query.Where("category_id = ?", *p.CategoryID)
	}
	if p.SupplierID != nil {
		query = query.Where("default_supplier_id = ?", *p.SupplierID)
	}
	if p.SearchTerm != nil {
		searchTerm := "%" + *p.SearchTerm + "%"
		query = query.Where("name ILIKE ? OR unit_of_measure ILIKE ?", searchTerm, searchTerm)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, dbErr(err)
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}

	var items []models.Item
	if err := query.Order("name ASC, id ASC").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, 0, dbErr(err)
	}

	return items, total, nil
}

// DeleteItem removes an item together with its batches, movements, counts
// and drift rows.
func (s *Service) DeleteItem(ctx context.Context, id int64) error {
	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var item models.Item
	if err := tx.First(&item, id).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return status.Errorf(codes.NotFound, "Item with ID %d not found", id)
		}
		return dbErr(err)
	}

	for _, model := range []interface{}{
		&models.Drift{},
		&models.ItemCount{},
		&models.StockMovement{},
		&models.Batch{},
	} {
		if err := tx.Where("item_id = ?", id).Delete(model).Error; err != nil {
			tx.Rollback()
			return dbErr(err)
		}
	}

	if err := tx.Delete(&item).Error; err != nil {
		tx.Rollback()
		return dbErr(err)
	}

	if err := tx.Commit().Error; err != nil {
		return dbErr(err)
	}

	s.invalidateLowStock(ctx)
	if s.redis != nil {
		_ = s.redis.Del(ctx, fmt.Sprintf("%s%d", BATCH_SUMMARY_CACHE_PREFIX, id))
	}
	return nil
}

type LowStockItem struct {
	Item        models.Item     `json:"item"`
	ActiveStock decimal.Decimal `json:"active_stock"`
}

// ListLowStock returns items whose summed active stock is at or below their
// warning threshold.
func (s *Service) ListLowStock(ctx context.Context) ([]LowStockItem, error) {
	if s.redis != nil {
		if val, err := s.redis.Get(ctx, LOW_STOCK_CACHE_KEY).Result(); err == nil {
			var cached []LowStockItem
			if err := json.Unmarshal([]byte(val), &cached); err == nil {
				return cached, nil
			}
		}
	}

	var items []models.Item
	if err := s.db.WithContext(ctx).Where("warning_threshold IS NOT NULL").Find(&items).Error; err != nil {
		return nil, dbErr(err)
	}

	var low []LowStockItem
	for _, item := range items {
		var batches []models.Batch
		if err := s.db.WithContext(ctx).
			Where("item_id = ? AND status = ?", item.ID, models.BatchStatusActive).
			Find(&batches).Error; err != nil {
			return nil, dbErr(err)
		}

		active := decimal.Zero
		for _, b := range batches {
			active = active.Add(b.Quantity)
		}

		if active.LessThanOrEqual(*item.WarningThreshold) {
			low = append(low, LowStockItem{Item: item, ActiveStock: active})
		}
	}

	if s.redis != nil {
		if jsonData, err := json.Marshal(low); err == nil {
			_ = s.redis.Set(ctx, LOW_STOCK_CACHE_KEY, jsonData, CACHE_TTL_SHORT)
		}
	}

	return low, nil
}

func dbErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return status.Errorf(codes.Aborted, "transaction conflict: %v", err)
		}
	}
	return status.Errorf(codes.Internal, "database error: %v", err)
}
