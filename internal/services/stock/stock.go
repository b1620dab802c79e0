package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"stockledger/internal/database/models"
)

const (
	BATCH_SUMMARY_CACHE_PREFIX = "batch:summary:"
	LOW_STOCK_CACHE_KEY        = "catalog:low-stock"
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

// SetClock replaces the wall clock. Tests use it to pin timestamps; every
// top-level operation reads the clock exactly once.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) invalidateStockCaches(ctx context.Context, itemID int64) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Del(ctx,
		fmt.Sprintf("%s%d", BATCH_SUMMARY_CACHE_PREFIX, itemID),
		LOW_STOCK_CACHE_KEY,
	)
}

type ConsumeParams struct {
	ItemID     int64
	Quantity   decimal.Decimal
	Policy     Policy
	LocationID *int64
}

type ConsumeResult struct {
	Consumed  decimal.Decimal
	Remainder decimal.Decimal
}

// Consume depletes active batches of an item in policy order. Insufficient
// stock is not an error: the unconsumed remainder comes back in the result
// and callers must check it.
func (s *Service) Consume(ctx context.Context, p ConsumeParams) (ConsumeResult, error) {
	if p.Quantity.IsNegative() {
		return ConsumeResult{}, status.Errorf(codes.InvalidArgument, "quantity must not be negative")
	}
	if !p.Policy.Valid() {
		return ConsumeResult{}, status.Errorf(codes.InvalidArgument, "unknown consumption policy %q", p.Policy)
	}

	now := s.now()

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var item models.Item
	if err := tx.First(&item, p.ItemID).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return ConsumeResult{}, status.Errorf(codes.NotFound, "Item with ID %d not found", p.ItemID)
		}
		return ConsumeResult{}, dbErr(err)
	}

	var filter batchFilter
	if p.LocationID != nil {
		filter = func(q *gorm.DB) *gorm.DB {
			return q.Where("location_id = ?", *p.LocationID)
		}
	}

	remainder, err := ConsumeTx(tx, p.ItemID, p.Quantity, p.Policy, nil, filter, nil, now)
	if err != nil {
		tx.Rollback()
		return ConsumeResult{}, err
	}

	if err := tx.Commit().Error; err != nil {
		return ConsumeResult{}, dbErr(err)
	}

	s.invalidateStockCaches(ctx, p.ItemID)

	return ConsumeResult{
		Consumed:  p.Quantity.Sub(remainder),
		Remainder: remainder,
	}, nil
}

type ReceiveParams struct {
	ItemID       int64
	Quantity     decimal.Decimal
	UnitBuyPrice *decimal.Decimal
	SupplierID   *int64
	LocationID   *int64
	ExpiresAt    *time.Time
}

// Receive creates a new active batch for an item. Supplier and location
// fall back to the item's configured defaults when not given.
func (s *Service) Receive(ctx context.Context, p ReceiveParams) (models.Batch, error) {
	if p.Quantity.IsNegative() {
		return models.Batch{}, status.Errorf(codes.InvalidArgument, "quantity must not be negative")
	}

	now := s.now()

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var item models.Item
	if err := tx.First(&item, p.ItemID).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return models.Batch{}, status.Errorf(codes.NotFound, "Item with ID %d not found", p.ItemID)
		}
		return models.Batch{}, dbErr(err)
	}

	supplierID := p.SupplierID
	if supplierID == nil {
		supplierID = item.DefaultSupplierID
	}
	locationID := p.LocationID
	if locationID == nil {
		locationID = item.DefaultLocationID
	}

	batch := models.Batch{
		ItemID:       p.ItemID,
		Quantity:     p.Quantity,
		UnitBuyPrice: p.UnitBuyPrice,
		Status:       models.BatchStatusActive,
		SupplierID:   supplierID,
		LocationID:   locationID,
		ReceivedAt:   now,
		ExpiresAt:    p.ExpiresAt,
	}

	if err := tx.Create(&batch).Error; err != nil {
		tx.Rollback()
		return models.Batch{}, dbErr(err)
	}

	movement := models.StockMovement{
		ItemID:       p.ItemID,
		BatchID:      &batch.ID,
		MovementType: models.MovementTypeReceived,
		Quantity:     p.Quantity,
		CreatedAt:    now,
	}
	if err := tx.Create(&movement).Error; err != nil {
		tx.Rollback()
		return models.Batch{}, dbErr(err)
	}

	if err := RecordDriftTx(tx, p.ItemID, p.Quantity, now); err != nil {
		tx.Rollback()
		return models.Batch{}, err
	}

	if err := tx.Commit().Error; err != nil {
		return models.Batch{}, dbErr(err)
	}

	s.invalidateStockCaches(ctx, p.ItemID)

	return batch, nil
}

// CreateFoundBatchTx records stock that a count observed but the ledger did
// not know about. No supplier or location is asserted and the item's
// defaults are deliberately not inherited.
func CreateFoundBatchTx(tx *gorm.DB, itemID int64, qty decimal.Decimal, countID string, now time.Time) (models.Batch, error) {
	batch := models.Batch{
		ItemID:     itemID,
		Quantity:   qty,
		Status:     models.BatchStatusActive,
		ReceivedAt: now,
	}
	if err := tx.Create(&batch).Error; err != nil {
		return models.Batch{}, dbErr(err)
	}

	notes := "found during count"
	movement := models.StockMovement{
		ItemID:       itemID,
		BatchID:      &batch.ID,
		MovementType: models.MovementTypeCorrection,
		Quantity:     qty,
		ReferenceID:  &countID,
		Notes:        &notes,
		CreatedAt:    now,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return models.Batch{}, dbErr(err)
	}

	if err := RecordDriftTx(tx, itemID, qty, now); err != nil {
		return models.Batch{}, err
	}

	return batch, nil
}

// MarkExpired transitions every active batch whose expiry has passed to
// expired and reports how many were touched. Expiry removes the quantity
// from the active pool, so each swept batch gets a correction movement and
// the per-item totals feed drift like any other stock change.
func (s *Service) MarkExpired(ctx context.Context) (int64, error) {
	now := s.now()

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var batches []models.Batch
	if err := lockForUpdate(tx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.BatchStatusActive, now).
		Find(&batches).Error; err != nil {
		tx.Rollback()
		return 0, dbErr(err)
	}

	notes := "expired"
	perItem := make(map[int64]decimal.Decimal)
	for i := range batches {
		batch := &batches[i]
		batch.Status = models.BatchStatusExpired
		if err := tx.Save(batch).Error; err != nil {
			tx.Rollback()
			return 0, dbErr(err)
		}

		if batch.Quantity.IsZero() {
			continue
		}
		movement := models.StockMovement{
			ItemID:       batch.ItemID,
			BatchID:      &batch.ID,
			MovementType: models.MovementTypeCorrection,
			Quantity:     batch.Quantity.Neg(),
			Notes:        &notes,
			CreatedAt:    now,
		}
		if err := tx.Create(&movement).Error; err != nil {
			tx.Rollback()
			return 0, dbErr(err)
		}
		perItem[batch.ItemID] = perItem[batch.ItemID].Add(batch.Quantity)
	}

	for itemID, qty := range perItem {
		if err := RecordDriftTx(tx, itemID, qty.Neg(), now); err != nil {
			tx.Rollback()
			return 0, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return 0, dbErr(err)
	}

	for itemID := range perItem {
		s.invalidateStockCaches(ctx, itemID)
	}
	if len(batches) > 0 && s.redis != nil {
		_ = s.redis.Del(ctx, LOW_STOCK_CACHE_KEY)
	}

	return int64(len(batches)), nil
}

// ListMovements returns the movement audit trail for an item, newest first.
func (s *Service) ListMovements(ctx context.Context, itemID int64, limit, offset int) ([]models.StockMovement, int64, error) {
	var item models.Item
	if err := s.db.WithContext(ctx).First(&item, itemID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, 0, status.Errorf(codes.NotFound, "Item with ID %d not found", itemID)
		}
		return nil, 0, dbErr(err)
	}

	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).Model(&models.StockMovement{}).Where("item_id = ?", itemID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, dbErr(err)
	}

	var movements []models.StockMovement
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&movements).Error; err != nil {
		return nil, 0, dbErr(err)
	}

	return movements, total, nil
}
