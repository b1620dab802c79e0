package count

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
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

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Start opens a new count session.
func (s *Service) Start(ctx context.Context) (models.CountSession, error) {
	session := models.CountSession{
		ID:        uuid.NewString(),
		StartedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return models.CountSession{}, dbErr(err)
	}
	return session, nil
}

func (s *Service) Get(ctx context.Context, countID string) (models.CountSession, error) {
	var session models.CountSession
	if err := s.db.WithContext(ctx).First(&session, "id = ?", countID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return models.CountSession{}, status.Errorf(codes.NotFound, "Count session %s not found", countID)
		}
		return models.CountSession{}, dbErr(err)
	}
	return session, nil
}

// Delete removes a session and everything recorded against it. Valid for
// both open and finished sessions.
func (s *Service) Delete(ctx context.Context, countID string) error {
	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var session models.CountSession
	if err := tx.First(&session, "id = ?", countID).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return status.Errorf(codes.NotFound, "Count session %s not found", countID)
		}
		return dbErr(err)
	}

	if err := tx.Where("count_id = ?", countID).Delete(&models.ItemCount{}).Error; err != nil {
		tx.Rollback()
		return dbErr(err)
	}
	if err := tx.Where("count_id = ?", countID).Delete(&models.Drift{}).Error; err != nil {
		tx.Rollback()
		return dbErr(err)
	}
	if err := tx.Delete(&session).Error; err != nil {
		tx.Rollback()
		return dbErr(err)
	}

	if err := tx.Commit().Error; err != nil {
		return dbErr(err)
	}
	return nil
}

// RecordCount upserts a counted observation keyed by (count, item, batch).
// BatchID models.NoBatch records a generic item-level count. A fresh count
// supersedes whatever drift had accumulated for the item in this session.
func (s *Service) RecordCount(ctx context.Context, countID string, itemID, batchID int64, qty decimal.Decimal) (models.ItemCount, error) {
	if qty.IsNegative() {
		return models.ItemCount{}, status.Errorf(codes.InvalidArgument, "counted quantity must not be negative")
	}

	now := s.now()

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var session models.CountSession
	if err := tx.First(&session, "id = ?", countID).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return models.ItemCount{}, status.Errorf(codes.NotFound, "Count session %s not found", countID)
		}
		return models.ItemCount{}, dbErr(err)
	}
	if session.FinishedAt != nil {
		tx.Rollback()
		return models.ItemCount{}, status.Errorf(codes.FailedPrecondition, "Count session %s is already finished", countID)
	}

	var item models.Item
	if err := tx.First(&item, itemID).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return models.ItemCount{}, status.Errorf(codes.NotFound, "Item with ID %d not found", itemID)
		}
		return models.ItemCount{}, dbErr(err)
	}

	if batchID != models.NoBatch {
		var batch models.Batch
		if err := tx.First(&batch, batchID).Error; err != nil {
			tx.Rollback()
			if err == gorm.ErrRecordNotFound {
				return models.ItemCount{}, status.Errorf(codes.NotFound, "Batch with ID %d not found", batchID)
			}
			return models.ItemCount{}, dbErr(err)
		}
		if batch.ItemID != itemID {
			tx.Rollback()
			return models.ItemCount{}, status.Errorf(codes.InvalidArgument, "Batch %d does not belong to item %d", batchID, itemID)
		}
	}

	var entry models.ItemCount
	err := tx.Where("count_id = ? AND item_id = ? AND batch_id = ?", countID, itemID, batchID).
		First(&entry).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		entry = models.ItemCount{
			CountID:   countID,
			ItemID:    itemID,
			BatchID:   batchID,
			Quantity:  qty,
			CountedAt: now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			tx.Rollback()
			return models.ItemCount{}, dbErr(err)
		}
	case err != nil:
		tx.Rollback()
		return models.ItemCount{}, dbErr(err)
	default:
		entry.Quantity = qty
		entry.CountedAt = now
		// Keyed update: Save would treat the zero BatchID of a generic
		// entry as unset and insert instead.
		err := tx.Model(&models.ItemCount{}).
			Where("count_id = ? AND item_id = ? AND batch_id = ?", countID, itemID, batchID).
			Updates(map[string]interface{}{"quantity": qty, "counted_at": now}).Error
		if err != nil {
			tx.Rollback()
			return models.ItemCount{}, dbErr(err)
		}
	}

	if err := tx.Where("count_id = ? AND item_id = ?", countID, itemID).
		Delete(&models.Drift{}).Error; err != nil {
		tx.Rollback()
		return models.ItemCount{}, dbErr(err)
	}

	if err := tx.Commit().Error; err != nil {
		return models.ItemCount{}, dbErr(err)
	}

	return entry, nil
}

type Progress struct {
	TotalItems   int64
	CountedItems int64
}

// GetProgress reports coverage of a session: items in scope vs distinct
// items counted so far. Drift is not reflected here.
func (s *Service) GetProgress(ctx context.Context, countID string, categoryID *int64) (Progress, error) {
	if _, err := s.Get(ctx, countID); err != nil {
		return Progress{}, err
	}

	itemQuery := s.db.WithContext(ctx).Model(&models.Item{})
	if categoryID != nil {
		itemQuery = itemQuery.Where("category_id = ?", *categoryID)
	}

	var progress Progress
	if err := itemQuery.Count(&progress.TotalItems).Error; err != nil {
		return Progress{}, dbErr(err)
	}

	countedQuery := s.db.WithContext(ctx).Model(&models.ItemCount{}).
		Where("item_counts.count_id = ?", countID).
		Distinct("item_counts.item_id")
	if categoryID != nil {
		countedQuery = countedQuery.
			Joins("JOIN items ON items.id = item_counts.item_id").
			Where("items.category_id = ?", *categoryID)
	}
	if err := countedQuery.Count(&progress.CountedItems).Error; err != nil {
		return Progress{}, dbErr(err)
	}

	return progress, nil
}

// GetActiveCountsForItem returns the open sessions that have already counted
// the item. These sessions are the audience for drift propagation.
func (s *Service) GetActiveCountsForItem(ctx context.Context, itemID int64) ([]models.CountSession, error) {
	var sessions []models.CountSession
	err := s.db.WithContext(ctx).Model(&models.CountSession{}).
		Distinct("count_sessions.*").
		Joins("JOIN item_counts ON item_counts.count_id = count_sessions.id").
		Where("item_counts.item_id = ? AND count_sessions.finished_at IS NULL", itemID).
		Find(&sessions).Error
	if err != nil {
		return nil, dbErr(err)
	}
	return sessions, nil
}

// ListEntries returns the observations recorded against a session.
func (s *Service) ListEntries(ctx context.Context, countID string) ([]models.ItemCount, error) {
	if _, err := s.Get(ctx, countID); err != nil {
		return nil, err
	}

	var entries []models.ItemCount
	err := s.db.WithContext(ctx).
		Where("count_id = ?", countID).
		Order("item_id ASC, batch_id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, dbErr(err)
	}
	return entries, nil
}

func (s *Service) invalidateStockCaches(ctx context.Context, itemIDs map[int64]bool) {
	if s.redis == nil || len(itemIDs) == 0 {
		return
	}
	keys := []string{LOW_STOCK_CACHE_KEY}
	for id := range itemIDs {
		keys = append(keys, fmt.Sprintf("%s%d", BATCH_SUMMARY_CACHE_PREFIX, id))
	}
	_ = s.redis.Del(ctx, keys...)
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
