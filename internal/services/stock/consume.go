package stock

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stockledger/internal/database/models"
)

// Policy selects which active batch a consumption depletes first.
type Policy string

const (
	PolicyFIFO Policy = "FIFO"
	PolicyLIFO Policy = "LIFO"
	PolicyFEFO Policy = "FEFO"
)

// DefaultPolicy is what reconciliation uses to resolve generic count offsets.
const DefaultPolicy = PolicyFIFO

func (p Policy) Valid() bool {
	switch p {
	case PolicyFIFO, PolicyLIFO, PolicyFEFO:
		return true
	}
	return false
}

func ParsePolicy(raw string) (Policy, error) {
	if raw == "" {
		return DefaultPolicy, nil
	}
	p := Policy(raw)
	if !p.Valid() {
		return "", status.Errorf(codes.InvalidArgument, "unknown consumption policy %q", raw)
	}
	return p, nil
}

func (p Policy) orderClause() string {
	switch p {
	case PolicyFIFO:
		return "received_at ASC, id ASC"
	case PolicyLIFO:
		return "received_at DESC, id DESC"
	case PolicyFEFO:
		// Batches without an expiry sort last, received date breaks ties.
		return "CASE WHEN expires_at IS NULL THEN 1 ELSE 0 END ASC, expires_at ASC, received_at ASC, id ASC"
	}
	return "received_at ASC, id ASC"
}

type batchFilter func(*gorm.DB) *gorm.DB

// lockForUpdate takes row locks on the batches a walk will touch. SQLite
// (tests) has no FOR UPDATE; there the database write lock serializes.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// ConsumeTx walks the item's active batches in policy order inside the
// caller's transaction, taking min(batch quantity, remaining) from each.
// A batch drained to exactly zero is archived and stamped with a stockout
// timestamp. Returns the quantity that could not be consumed.
func ConsumeTx(tx *gorm.DB, itemID int64, qty decimal.Decimal, policy Policy, excludeBatchIDs []int64, filter batchFilter, referenceID *string, now time.Time) (decimal.Decimal, error) {
	if qty.IsNegative() {
		return decimal.Zero, status.Errorf(codes.InvalidArgument, "quantity must not be negative")
	}

	query := lockForUpdate(tx).
		Where("item_id = ? AND status = ?", itemID, models.BatchStatusActive)
	if len(excludeBatchIDs) > 0 {
		query = query.Where("id NOT IN ?", excludeBatchIDs)
	}
	if filter != nil {
		query = filter(query)
	}

	var batches []models.Batch
	if err := query.Order(policy.orderClause()).Find(&batches).Error; err != nil {
		return decimal.Zero, dbErr(err)
	}

	remaining := qty
	for i := range batches {
		if remaining.IsZero() {
			break
		}

		batch := &batches[i]
		take := decimal.Min(batch.Quantity, remaining)
		batch.Quantity = batch.Quantity.Sub(take)
		remaining = remaining.Sub(take)

		if batch.Quantity.IsZero() {
			batch.Status = models.BatchStatusArchived
			stockedOut := now
			batch.StockedOutAt = &stockedOut
		}

		if err := tx.Save(batch).Error; err != nil {
			return decimal.Zero, dbErr(err)
		}

		movement := models.StockMovement{
			ItemID:       itemID,
			BatchID:      &batch.ID,
			MovementType: models.MovementTypeConsumed,
			Quantity:     take.Neg(),
			ReferenceID:  referenceID,
			CreatedAt:    now,
		}
		if err := tx.Create(&movement).Error; err != nil {
			return decimal.Zero, dbErr(err)
		}
	}

	consumed := qty.Sub(remaining)
	if !consumed.IsZero() {
		if err := RecordDriftTx(tx, itemID, consumed.Neg(), now); err != nil {
			return decimal.Zero, err
		}
	}

	return remaining, nil
}

// dbErr maps storage failures onto the service error taxonomy. Serialization
// failures and deadlocks come back as Aborted so callers know a retry is
// reasonable.
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
