package count

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"stockledger/internal/database/models"
	"stockledger/internal/services/stock"
)

// Finish reconciles every observation of a session against the ledger,
// purges the session's drift and stamps it finished, all in one
// transaction. Any failure rolls the whole thing back and leaves the
// session open.
//
// Batch-scoped entries are authoritative corrections and go first. Generic
// entries are then resolved against the item's remaining active stock,
// excluding batches a batch-scoped entry already adjusted: a shortfall is
// consumed FIFO, a surplus becomes a found-stock batch. A shortfall the
// consumption walk cannot cover means the ledger and the physical count
// disagree beyond what this session can explain, and the finish fails.
func (s *Service) Finish(ctx context.Context, countID string) error {
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
			return status.Errorf(codes.NotFound, "Count session %s not found", countID)
		}
		return dbErr(err)
	}
	if session.FinishedAt != nil {
		tx.Rollback()
		return status.Errorf(codes.FailedPrecondition, "Count session %s is already finished", countID)
	}

	var entries []models.ItemCount
	if err := tx.Where("count_id = ?", countID).
		Order("item_id ASC, batch_id ASC").
		Find(&entries).Error; err != nil {
		tx.Rollback()
		return dbErr(err)
	}

	var batchScoped, generic []models.ItemCount
	for _, entry := range entries {
		if entry.BatchID != models.NoBatch {
			batchScoped = append(batchScoped, entry)
		} else {
			generic = append(generic, entry)
		}
	}

	touched := make(map[int64]bool)
	adjusted := make(map[int64][]int64)

	for _, entry := range batchScoped {
		if err := s.applyBatchCorrection(tx, entry, countID, now); err != nil {
			tx.Rollback()
			return err
		}
		adjusted[entry.ItemID] = append(adjusted[entry.ItemID], entry.BatchID)
		touched[entry.ItemID] = true
	}

	for _, entry := range generic {
		if err := s.applyGenericCount(tx, entry, adjusted[entry.ItemID], countID, now); err != nil {
			tx.Rollback()
			return err
		}
		touched[entry.ItemID] = true
	}

	if err := tx.Where("count_id = ?", countID).Delete(&models.Drift{}).Error; err != nil {
		tx.Rollback()
		return dbErr(err)
	}

	session.FinishedAt = &now
	if err := tx.Save(&session).Error; err != nil {
		tx.Rollback()
		return dbErr(err)
	}

	if err := tx.Commit().Error; err != nil {
		return dbErr(err)
	}

	s.invalidateStockCaches(ctx, touched)
	return nil
}

// applyBatchCorrection overwrites the named batch with the counted quantity,
// bypassing consumption ordering entirely. Zero archives the batch; anything
// else makes it active again, including previously archived or expired ones.
func (s *Service) applyBatchCorrection(tx *gorm.DB, entry models.ItemCount, countID string, now time.Time) error {
	var batch models.Batch
	if err := tx.First(&batch, entry.BatchID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return status.Errorf(codes.NotFound, "Batch with ID %d not found", entry.BatchID)
		}
		return dbErr(err)
	}

	oldQty := batch.Quantity
	batch.Quantity = entry.Quantity
	if batch.Quantity.IsZero() {
		batch.Status = models.BatchStatusArchived
		stockedOut := now
		batch.StockedOutAt = &stockedOut
	} else {
		batch.Status = models.BatchStatusActive
		batch.StockedOutAt = nil
	}

	if err := tx.Save(&batch).Error; err != nil {
		return dbErr(err)
	}

	delta := entry.Quantity.Sub(oldQty)
	if !delta.IsZero() {
		movement := models.StockMovement{
			ItemID:       entry.ItemID,
			BatchID:      &batch.ID,
			MovementType: models.MovementTypeCorrection,
			Quantity:     delta,
			ReferenceID:  &countID,
			CreatedAt:    now,
		}
		if err := tx.Create(&movement).Error; err != nil {
			return dbErr(err)
		}
		if err := stock.RecordDriftTx(tx, entry.ItemID, delta, now); err != nil {
			return err
		}
	}

	return nil
}

// applyGenericCount resolves an item-level count against the item's
// remaining active stock, excluding batches already corrected by
// batch-scoped entries of the same reconciliation.
func (s *Service) applyGenericCount(tx *gorm.DB, entry models.ItemCount, excludeBatchIDs []int64, countID string, now time.Time) error {
	remaining, err := remainingActiveQty(tx, entry.ItemID, excludeBatchIDs)
	if err != nil {
		return err
	}

	offset := entry.Quantity.Sub(remaining)
	switch {
	case offset.IsZero():
		return nil
	case offset.IsNegative():
		leftover, err := stock.ConsumeTx(tx, entry.ItemID, offset.Neg(), stock.DefaultPolicy, excludeBatchIDs, nil, &countID, now)
		if err != nil {
			return err
		}
		if !leftover.IsZero() {
			return status.Errorf(codes.FailedPrecondition,
				"ledger inconsistency for item %d: counted %s but %s of the shortfall could not be consumed",
				entry.ItemID, entry.Quantity.String(), leftover.String())
		}
		return nil
	default:
		_, err := stock.CreateFoundBatchTx(tx, entry.ItemID, offset, countID, now)
		return err
	}
}

func remainingActiveQty(tx *gorm.DB, itemID int64, excludeBatchIDs []int64) (decimal.Decimal, error) {
	query := tx.Where("item_id = ? AND status = ?", itemID, models.BatchStatusActive)
	if len(excludeBatchIDs) > 0 {
		query = query.Where("id NOT IN ?", excludeBatchIDs)
	}

	var batches []models.Batch
	if err := query.Find(&batches).Error; err != nil {
		return decimal.Zero, dbErr(err)
	}

	total := decimal.Zero
	for _, b := range batches {
		total = total.Add(b.Quantity)
	}
	return total, nil
}
