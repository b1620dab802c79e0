package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"stockledger/internal/database"
	"stockledger/internal/database/models"
	batchsvc "stockledger/internal/services/batch"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(database.NewTestDB(t), nil)
}

func TestItemCRUD(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, CategoryParams{CategoryName: "Dairy"})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	threshold := decimal.RequireFromString("5")
	item, err := svc.CreateItem(ctx, ItemParams{
		Name:             "Milk",
		UnitOfMeasure:    "l",
		CategoryID:       &category.ID,
		WarningThreshold: &threshold,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	if _, err := svc.CreateItem(ctx, ItemParams{}); status.Code(err) != codes.InvalidArgument {
		t.Errorf("nameless item: expected InvalidArgument, got %v", err)
	}

	got, err := svc.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Category == nil || got.Category.CategoryName != "Dairy" {
		t.Errorf("expected category preloaded, got %+v", got.Category)
	}

	name := "Whole milk"
	updated, err := svc.UpdateItem(ctx, item.ID, UpdateItemParams{Name: &name})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if updated.Name != name || updated.UnitOfMeasure != "l" {
		t.Errorf("partial update mangled item: %+v", updated)
	}

	if _, err := svc.GetItem(ctx, 999); status.Code(err) != codes.NotFound {
		t.Errorf("unknown item: expected NotFound, got %v", err)
	}
	if _, err := svc.UpdateItem(ctx, 999, UpdateItemParams{}); status.Code(err) != codes.NotFound {
		t.Errorf("unknown item update: expected NotFound, got %v", err)
	}
}

func TestListItems(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	category, _ := svc.CreateCategory(ctx, CategoryParams{CategoryName: "Baking"})
	svc.CreateItem(ctx, ItemParams{Name: "Flour", UnitOfMeasure: "kg", CategoryID: &category.ID})
	svc.CreateItem(ctx, ItemParams{Name: "Yeast", UnitOfMeasure: "g", CategoryID: &category.ID})
	svc.CreateItem(ctx, ItemParams{Name: "Milk", UnitOfMeasure: "l"})

	items, total, err := svc.ListItems(ctx, ListItemsParams{})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("expected 3 items, got total %d len %d", total, len(items))
	}
	if items[0].Name != "Flour" {
		t.Errorf("expected name ordering, got %q first", items[0].Name)
	}

	items, total, err = svc.ListItems(ctx, ListItemsParams{CategoryID: &category.ID})
	if err != nil {
		t.Fatalf("ListItems filtered: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 items in category, got %d", total)
	}

	items, total, err = svc.ListItems(ctx, ListItemsParams{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListItems paged: %v", err)
	}
	if total != 3 || len(items) != 1 {
		t.Errorf("expected page of 1 with total 3, got total %d len %d", total, len(items))
	}
}

func TestDeleteItemCascades(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	item, _ := svc.CreateItem(ctx, ItemParams{Name: "Eggs", UnitOfMeasure: "pcs"})

	batch := models.Batch{
		ItemID:     item.ID,
		Quantity:   decimal.RequireFromString("12"),
		Status:     models.BatchStatusActive,
		ReceivedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	svc.db.Create(&batch)
	svc.db.Create(&models.StockMovement{
		ItemID:       item.ID,
		BatchID:      &batch.ID,
		MovementType: models.MovementTypeReceived,
		Quantity:     decimal.RequireFromString("12"),
	})
	session := models.CountSession{ID: "sess-1", StartedAt: time.Now()}
	svc.db.Create(&session)
	svc.db.Create(&models.ItemCount{CountID: session.ID, ItemID: item.ID, BatchID: models.NoBatch,
		Quantity: decimal.RequireFromString("10"), CountedAt: time.Now()})
	svc.db.Create(&models.Drift{CountID: session.ID, ItemID: item.ID,
		QtyChange: decimal.RequireFromString("-2"), DriftedAt: time.Now()})

	if err := svc.DeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}

	for _, model := range []interface{}{
		&models.Batch{}, &models.StockMovement{}, &models.ItemCount{}, &models.Drift{},
	} {
		var n int64
		svc.db.Model(model).Where("item_id = ?", item.ID).Count(&n)
		if n != 0 {
			t.Errorf("expected %T rows removed, found %d", model, n)
		}
	}
	if err := svc.db.First(&models.Item{}, item.ID).Error; err != gorm.ErrRecordNotFound {
		t.Errorf("expected item gone, got %v", err)
	}

	// The session itself survives; only its rows for this item go.
	if err := svc.db.First(&models.CountSession{}, "id = ?", session.ID).Error; err != nil {
		t.Errorf("count session must survive item deletion: %v", err)
	}

	if err := svc.DeleteItem(ctx, item.ID); status.Code(err) != codes.NotFound {
		t.Errorf("expected NotFound on second delete, got %v", err)
	}

	batchSvc := batchsvc.NewService(svc.db, nil)
	if _, err := batchSvc.Summary(ctx, item.ID, 0); status.Code(err) != codes.NotFound {
		t.Errorf("summary of deleted item: expected NotFound, got %v", err)
	}
}

func TestListLowStock(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	threshold := decimal.RequireFromString("10")
	low, _ := svc.CreateItem(ctx, ItemParams{Name: "Saffron", UnitOfMeasure: "g", WarningThreshold: &threshold})
	stocked, _ := svc.CreateItem(ctx, ItemParams{Name: "Salt", UnitOfMeasure: "kg", WarningThreshold: &threshold})
	svc.CreateItem(ctx, ItemParams{Name: "Untracked", UnitOfMeasure: "pcs"})

	received := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	svc.db.Create(&models.Batch{ItemID: low.ID, Quantity: decimal.RequireFromString("4"),
		Status: models.BatchStatusActive, ReceivedAt: received})
	// Archived stock does not count toward availability.
	svc.db.Create(&models.Batch{ItemID: low.ID, Quantity: decimal.RequireFromString("50"),
		Status: models.BatchStatusArchived, ReceivedAt: received})
	svc.db.Create(&models.Batch{ItemID: stocked.ID, Quantity: decimal.RequireFromString("25"),
		Status: models.BatchStatusActive, ReceivedAt: received})

	result, err := svc.ListLowStock(ctx)
	if err != nil {
		t.Fatalf("ListLowStock: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected one low-stock item, got %d", len(result))
	}
	if result[0].Item.ID != low.ID {
		t.Errorf("expected item %d, got %d", low.ID, result[0].Item.ID)
	}
	if !result[0].ActiveStock.Equal(decimal.RequireFromString("4")) {
		t.Errorf("expected active stock 4, got %s", result[0].ActiveStock)
	}
}

func TestPartners(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	supplier, err := svc.CreateSupplier(ctx, SupplierParams{SupplierName: "Mlekarna"})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}
	if !supplier.IsActive {
		t.Error("new supplier must start active")
	}
	if _, err := svc.CreateSupplier(ctx, SupplierParams{}); status.Code(err) != codes.InvalidArgument {
		t.Errorf("nameless supplier: expected InvalidArgument, got %v", err)
	}

	inactive := false
	updated, err := svc.UpdateSupplier(ctx, supplier.ID, UpdateSupplierParams{IsActive: &inactive})
	if err != nil {
		t.Fatalf("UpdateSupplier: %v", err)
	}
	if updated.IsActive {
		t.Error("expected supplier deactivated")
	}

	if _, err := svc.GetSupplier(ctx, 999); status.Code(err) != codes.NotFound {
		t.Errorf("unknown supplier: expected NotFound, got %v", err)
	}

	location, err := svc.CreateLocation(ctx, LocationParams{LocationName: "Cold room"})
	if err != nil {
		t.Fatalf("CreateLocation: %v", err)
	}
	if got, err := svc.GetLocation(ctx, location.ID); err != nil || got.LocationName != "Cold room" {
		t.Errorf("GetLocation: %v %+v", err, got)
	}

	if _, err := svc.CreateCategory(ctx, CategoryParams{}); status.Code(err) != codes.InvalidArgument {
		t.Errorf("nameless category: expected InvalidArgument, got %v", err)
	}

	suppliers, total, err := svc.ListSuppliers(ctx, 0, 0)
	if err != nil || total != 1 || len(suppliers) != 1 {
		t.Errorf("ListSuppliers: %v total %d len %d", err, total, len(suppliers))
	}
	locations, total, err := svc.ListLocations(ctx, 0, 0)
	if err != nil || total != 1 || len(locations) != 1 {
		t.Errorf("ListLocations: %v total %d len %d", err, total, len(locations))
	}
}
