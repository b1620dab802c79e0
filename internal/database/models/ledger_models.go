package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BatchStatus is the closed set of batch lifecycle states. Branching code
// must switch over all three values.
type BatchStatus string

const (
	BatchStatusActive   BatchStatus = "active"
	BatchStatusArchived BatchStatus = "archived"
	BatchStatusExpired  BatchStatus = "expired"
)

func (s BatchStatus) Valid() bool {
	switch s {
	case BatchStatusActive, BatchStatusArchived, BatchStatusExpired:
		return true
	}
	return false
}

// Batch is a discrete received quantity of one item. Quantity never goes
// below zero; hitting exactly zero through consumption archives the batch
// and stamps StockedOutAt.
type Batch struct {
	ID           int64            `gorm:"primaryKey;autoIncrement"`
	ItemID       int64            `gorm:"index;not null"`
	Quantity     decimal.Decimal  `gorm:"type:numeric;not null"`
	UnitBuyPrice *decimal.Decimal `gorm:"type:numeric"`
	Status       BatchStatus      `gorm:"size:20;index;not null;default:active"`
	SupplierID   *int64
	LocationID   *int64
	ReceivedAt   time.Time `gorm:"index;not null"`
	StockedOutAt *time.Time
	ExpiresAt    *time.Time `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Item     *Item     `gorm:"foreignKey:ItemID"`
	Supplier *Supplier `gorm:"foreignKey:SupplierID"`
	Location *Location `gorm:"foreignKey:LocationID"`
}

// CountSession is a stocktake. FinishedAt null means the session is open
// and still accepts counts and drift.
type CountSession struct {
	ID         string `gorm:"size:36;primaryKey"`
	StartedAt  time.Time
	FinishedAt *time.Time

	ItemCounts []ItemCount `gorm:"foreignKey:CountID"`
	Drifts     []Drift     `gorm:"foreignKey:CountID"`
}

// NoBatch is the BatchID sentinel for a generic item-level count.
const NoBatch int64 = 0

type ItemCount struct {
	CountID   string          `gorm:"size:36;primaryKey"`
	ItemID    int64           `gorm:"primaryKey;autoIncrement:false"`
	BatchID   int64           `gorm:"primaryKey;autoIncrement:false;default:0"`
	Quantity  decimal.Decimal `gorm:"type:numeric;not null"`
	CountedAt time.Time       `gorm:"not null"`
}

// Drift accumulates the net stock change for an item that was counted in a
// still-open session. Rows that net to zero are kept, not deleted.
type Drift struct {
	CountID   string          `gorm:"size:36;primaryKey"`
	ItemID    int64           `gorm:"primaryKey;autoIncrement:false"`
	QtyChange decimal.Decimal `gorm:"type:numeric;not null"`
	DriftedAt time.Time       `gorm:"not null"`
}

type MovementType string

const (
	MovementTypeReceived   MovementType = "received"
	MovementTypeConsumed   MovementType = "consumed"
	MovementTypeCorrection MovementType = "correction"
)

type StockMovement struct {
	ID           int64 `gorm:"primaryKey;autoIncrement"`
	ItemID       int64 `gorm:"index;not null"`
	BatchID      *int64
	MovementType MovementType    `gorm:"size:20;not null"`
	Quantity     decimal.Decimal `gorm:"type:numeric;not null"`
	ReferenceID  *string         `gorm:"size:100"`
	Notes        *string         `gorm:"size:255"`
	CreatedAt    time.Time
}
