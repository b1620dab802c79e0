package stock

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"stockledger/internal/database/models"
)

// RecordDriftTx fans a stock change out to every open count session that has
// already counted the item. The delta accumulates signed, so changes that
// net out leave a zero-valued row behind rather than no row. Must run inside
// the same transaction as the stock mutation that triggered it.
func RecordDriftTx(tx *gorm.DB, itemID int64, delta decimal.Decimal, now time.Time) error {
	if delta.IsZero() {
		return nil
	}

	var countIDs []string
	err := tx.Model(&models.ItemCount{}).
		Distinct("item_counts.count_id").
		Joins("JOIN count_sessions ON count_sessions.id = item_counts.count_id").
		Where("item_counts.item_id = ? AND count_sessions.finished_at IS NULL", itemID).
		Pluck("item_counts.count_id", &countIDs).Error
	if err != nil {
		return dbErr(err)
	}

	for _, countID := range countIDs {
		var drift models.Drift
		err := tx.Where("count_id = ? AND item_id = ?", countID, itemID).First(&drift).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			drift = models.Drift{
				CountID:   countID,
				ItemID:    itemID,
				QtyChange: delta,
				DriftedAt: now,
			}
			if err := tx.Create(&drift).Error; err != nil {
				return dbErr(err)
			}
		case err != nil:
			return dbErr(err)
		default:
			drift.QtyChange = drift.QtyChange.Add(delta)
			drift.DriftedAt = now
			if err := tx.Save(&drift).Error; err != nil {
				return dbErr(err)
			}
		}
	}

	return nil
}
