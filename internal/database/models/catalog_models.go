package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Item struct {
	ID                int64  `gorm:"primaryKey;autoIncrement"`
	Name              string `gorm:"size:255;not null"`
	UnitOfMeasure     string `gorm:"size:50"`
	CategoryID        *int64
	DefaultSupplierID *int64
	DefaultLocationID *int64
	WarningThreshold  *decimal.Decimal `gorm:"type:numeric"`
	BuyPrice          *decimal.Decimal `gorm:"type:numeric"`
	MarginPercent     *decimal.Decimal `gorm:"type:numeric"`
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Category        *Category `gorm:"foreignKey:CategoryID"`
	DefaultSupplier *Supplier `gorm:"foreignKey:DefaultSupplierID"`
	DefaultLocation *Location `gorm:"foreignKey:DefaultLocationID"`
	Batches         []Batch   `gorm:"foreignKey:ItemID"`
}

type Supplier struct {
	ID            int64   `gorm:"primaryKey;autoIncrement"`
	SupplierName  string  `gorm:"size:255;not null"`
	ContactPerson *string `gorm:"size:100"`
	Phone         *string `gorm:"size:50"`
	Email         *string `gorm:"size:100"`
	Address       *string `gorm:"size:255"`
	IsActive      bool    `gorm:"default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Items []Item `gorm:"foreignKey:DefaultSupplierID"`
}

type Location struct {
	ID           int64   `gorm:"primaryKey;autoIncrement"`
	LocationName string  `gorm:"size:255;not null"`
	Description  *string `gorm:"size:255"`
	IsActive     bool    `gorm:"default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Items []Item `gorm:"foreignKey:DefaultLocationID"`
}

type Category struct {
	ID           int64   `gorm:"primaryKey;autoIncrement"`
	CategoryName string  `gorm:"size:100;not null"`
	Description  *string `gorm:"size:255"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Items []Item `gorm:"foreignKey:CategoryID"`
}
