package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"stockledger/internal/database/models"
	"stockledger/internal/services/stock"
)

const (
	BATCH_SUMMARY_CACHE_PREFIX = "batch:summary:"
	CACHE_TTL_SHORT            = 5 * time.Minute
)

const DefaultSummaryLimit = 5

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

func (s *Service) invalidateSummary(ctx context.Context, itemID int64) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Del(ctx, fmt.Sprintf("%s%d", BATCH_SUMMARY_CACHE_PREFIX, itemID))
}

func (s *Service) Get(ctx context.Context, id int64) (models.Batch, error) {
	var batch models.Batch
	if err := s.db.WithContext(ctx).First(&batch, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return models.Batch{}, status.Errorf(codes.NotFound, "Batch with ID %d not found", id)
		}
		return models.Batch{}, dbErr(err)
	}
	return batch, nil
}

type UpdateParams struct {
	Quantity     *decimal.Decimal
	UnitBuyPrice *decimal.Decimal
	Status       *models.BatchStatus
	SupplierID   *int64
	LocationID   *int64
	ExpiresAt    *time.Time
}

// Update applies a partial mutation to a batch record. A quantity change is
// a manual correction: it gets a movement row, and the net change to the
// active pool feeds drift like any other stock mutation.
func (s *Service) Update(ctx context.Context, id int64, p UpdateParams) (models.Batch, error) {
	if p.Quantity != nil && p.Quantity.IsNegative() {
		return models.Batch{}, status.Errorf(codes.InvalidArgument, "quantity must not be negative")
	}
	if p.Status != nil && !p.Status.Valid() {
		return models.Batch{}, status.Errorf(codes.InvalidArgument, "unknown batch status %q", *p.Status)
	}

	now := s.now()

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var batch models.Batch
	if err := tx.First(&batch, id).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return models.Batch{}, status.Errorf(codes.NotFound, "Batch with ID %d not found", id)
		}
		return models.Batch{}, dbErr(err)
	}

	oldQty := batch.Quantity
	oldStatus := batch.Status

	if p.Quantity != nil {
		batch.Quantity = *p.Quantity
	}
	if p.UnitBuyPrice != nil {
		batch.UnitBuyPrice = p.UnitBuyPrice
	}
	if p.Status != nil {
		batch.Status = *p.Status
	}
	if p.SupplierID != nil {
		batch.SupplierID = p.SupplierID
	}
	if p.LocationID != nil {
		batch.LocationID = p.LocationID
	}
	if p.ExpiresAt != nil {
		batch.ExpiresAt = p.ExpiresAt
	}

	if err := tx.Save(&batch).Error; err != nil {
		tx.Rollback()
		return models.Batch{}, dbErr(err)
	}

	if !batch.Quantity.Equal(oldQty) {
		movement := models.StockMovement{
			ItemID:       batch.ItemID,
			BatchID:      &batch.ID,
			MovementType: models.MovementTypeCorrection,
			Quantity:     batch.Quantity.Sub(oldQty),
			CreatedAt:    now,
		}
		if err := tx.Create(&movement).Error; err != nil {
			tx.Rollback()
			return models.Batch{}, dbErr(err)
		}
	}

	activeBefore := decimal.Zero
	if oldStatus == models.BatchStatusActive {
		activeBefore = oldQty
	}
	activeAfter := decimal.Zero
	if batch.Status == models.BatchStatusActive {
		activeAfter = batch.Quantity
	}
	if err := stock.RecordDriftTx(tx, batch.ItemID, activeAfter.Sub(activeBefore), now); err != nil {
		tx.Rollback()
		return models.Batch{}, err
	}

	if err := tx.Commit().Error; err != nil {
		return models.Batch{}, dbErr(err)
	}

	s.invalidateSummary(ctx, batch.ItemID)

	return batch, nil
}

func (s *Service) Remove(ctx context.Context, id int64) error {
	var batch models.Batch
	if err := s.db.WithContext(ctx).First(&batch, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return status.Errorf(codes.NotFound, "Batch with ID %d not found", id)
		}
		return dbErr(err)
	}

	if err := s.db.WithContext(ctx).Delete(&models.Batch{}, id).Error; err != nil {
		return dbErr(err)
	}

	s.invalidateSummary(ctx, batch.ItemID)
	return nil
}

type ListParams struct {
	StatusFilter *models.BatchStatus
	SortKeys     []SortKey
	Limit        int
	Offset       int
}

// ListByItem returns a page of an item's batches in the requested order.
func (s *Service) ListByItem(ctx context.Context, itemID int64, p ListParams) ([]models.Batch, int64, error) {
	if p.StatusFilter != nil && !p.StatusFilter.Valid() {
		return nil, 0, status.Errorf(codes.InvalidArgument, "unknown batch status %q", *p.StatusFilter)
	}

	var item models.Item
	if err := s.db.WithContext(ctx).First(&item, itemID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, 0, status.Errorf(codes.NotFound, "Item with ID %d not found", itemID)
		}
		return nil, 0, dbErr(err)
	}

	query := s.db.WithContext(ctx).Model(&models.Batch{}).Where("item_id = ?", itemID)
	if p.StatusFilter != nil {
		query = query.Where("status = ?", *p.StatusFilter)
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

	var batches []models.Batch
	if err := query.Order(orderClause(p.SortKeys)).Limit(limit).Offset(offset).Find(&batches).Error; err != nil {
		return nil, 0, dbErr(err)
	}

	return batches, total, nil
}

// Summary returns the batches most in need of attention for an item:
// expired first (most recently expired leading), then active oldest-stock
// first, then archived by recency of stockout. The chain is fixed so that
// clients get a useful glance without specifying sort criteria.
func (s *Service) Summary(ctx context.Context, itemID int64, limit int) ([]models.Batch, error) {
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}

	cacheKey := fmt.Sprintf("%s%d", BATCH_SUMMARY_CACHE_PREFIX, itemID)
	if s.redis != nil && limit == DefaultSummaryLimit {
		if val, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			var cached []models.Batch
			if err := json.Unmarshal([]byte(val), &cached); err == nil {
				return cached, nil
			}
		}
	}

	var item models.Item
	if err := s.db.WithContext(ctx).First(&item, itemID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, status.Errorf(codes.NotFound, "Item with ID %d not found", itemID)
		}
		return nil, dbErr(err)
	}

	var batches []models.Batch
	if err := s.db.WithContext(ctx).Where("item_id = ?", itemID).Find(&batches).Error; err != nil {
		return nil, dbErr(err)
	}

	sort.SliceStable(batches, func(i, j int) bool {
		return summaryLess(batches[i], batches[j])
	})

	if len(batches) > limit {
		batches = batches[:limit]
	}

	if s.redis != nil && limit == DefaultSummaryLimit {
		if jsonData, err := json.Marshal(batches); err == nil {
			_ = s.redis.Set(ctx, cacheKey, jsonData, CACHE_TTL_SHORT)
		}
	}

	return batches, nil
}

func statusRank(s models.BatchStatus) int {
	switch s {
	case models.BatchStatusExpired:
		return 0
	case models.BatchStatusActive:
		return 1
	case models.BatchStatusArchived:
		return 2
	}
	return 3
}

func summaryLess(a, b models.Batch) bool {
	ra, rb := statusRank(a.Status), statusRank(b.Status)
	if ra != rb {
		return ra < rb
	}

	switch a.Status {
	case models.BatchStatusExpired:
		// Most recently expired first, unknown expiry last.
		if a.ExpiresAt == nil {
			return false
		}
		if b.ExpiresAt == nil {
			return true
		}
		return a.ExpiresAt.After(*b.ExpiresAt)
	case models.BatchStatusActive:
		return a.ReceivedAt.Before(b.ReceivedAt)
	case models.BatchStatusArchived:
		return archivedKey(a).After(archivedKey(b))
	}
	return false
}

func archivedKey(b models.Batch) time.Time {
	if b.StockedOutAt != nil {
		return *b.StockedOutAt
	}
	return b.ReceivedAt
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
