package batch

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
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(database.NewTestDB(t), nil)
	svc.SetClock(func() time.Time {
		return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	})
	return svc
}

func createItem(t *testing.T, svc *Service, name string) models.Item {
	t.Helper()
	item := models.Item{Name: name, UnitOfMeasure: "pcs"}
	if err := svc.db.Create(&item).Error; err != nil {
		t.Fatalf("creating item: %v", err)
	}
	return item
}

func createBatch(t *testing.T, svc *Service, b models.Batch) models.Batch {
	t.Helper()
	if b.Status == "" {
		b.Status = models.BatchStatusActive
	}
	if err := svc.db.Create(&b).Error; err != nil {
		t.Fatalf("creating batch: %v", err)
	}
	return b
}

func day(n int) time.Time {
	return time.Date(2025, 6, n, 0, 0, 0, 0, time.UTC)
}

func TestParseSortSpec(t *testing.T) {
	keys, err := ParseSortSpec([]string{"-expires_at", "received_at", " quantity ", "received_at"})
	if err != nil {
		t.Fatalf("ParseSortSpec: %v", err)
	}
	want := []SortKey{
		{Field: "expires_at", Desc: true},
		{Field: "received_at", Desc: false},
		{Field: "quantity", Desc: false},
	}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d: %v", len(want), len(keys), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d: expected %+v, got %+v", i, want[i], keys[i])
		}
	}

	if _, err := ParseSortSpec([]string{"colour"}); status.Code(err) != codes.InvalidArgument {
		t.Errorf("unknown key: expected InvalidArgument, got %v", err)
	}

	empty, err := ParseSortSpec([]string{"", "  "})
	if err != nil || len(empty) != 0 {
		t.Errorf("blank entries must be skipped, got %v / %v", empty, err)
	}
}

func TestOrderClause(t *testing.T) {
	if got := orderClause(nil); got != "received_at ASC, id ASC" {
		t.Errorf("default ordering: got %q", got)
	}
	got := orderClause([]SortKey{{Field: "quantity", Desc: true}, {Field: "id"}})
	if got != "quantity DESC, id ASC" {
		t.Errorf("got %q", got)
	}
}

func TestListByItem(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	item := createItem(t, svc, "Flour")
	other := createItem(t, svc, "Sugar")

	a := createBatch(t, svc, models.Batch{ItemID: item.ID, Quantity: decimal.RequireFromString("10"), ReceivedAt: day(1)})
	b := createBatch(t, svc, models.Batch{ItemID: item.ID, Quantity: decimal.RequireFromString("5"), ReceivedAt: day(2)})
	archived := day(3)
	c := createBatch(t, svc, models.Batch{
		ItemID: item.ID, Quantity: decimal.Zero, ReceivedAt: day(3),
		Status: models.BatchStatusArchived, StockedOutAt: &archived,
	})
	createBatch(t, svc, models.Batch{ItemID: other.ID, Quantity: decimal.RequireFromString("99"), ReceivedAt: day(1)})

	batches, total, err := svc.ListByItem(ctx, item.ID, ListParams{})
	if err != nil {
		t.Fatalf("ListByItem: %v", err)
	}
	if total != 3 || len(batches) != 3 {
		t.Fatalf("expected 3 batches, got total %d len %d", total, len(batches))
	}
	if batches[0].ID != a.ID || batches[1].ID != b.ID || batches[2].ID != c.ID {
		t.Errorf("expected default received_at ordering a,b,c, got %d,%d,%d",
			batches[0].ID, batches[1].ID, batches[2].ID)
	}

	active := models.BatchStatusActive
	batches, total, err = svc.ListByItem(ctx, item.ID, ListParams{StatusFilter: &active})
	if err != nil {
		t.Fatalf("ListByItem filtered: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 active batches, got %d", total)
	}

	keys, _ := ParseSortSpec([]string{"-quantity"})
	batches, _, err = svc.ListByItem(ctx, item.ID, ListParams{SortKeys: keys})
	if err != nil {
		t.Fatalf("ListByItem sorted: %v", err)
	}
	if batches[0].ID != a.ID {
		t.Errorf("expected largest batch first, got %d", batches[0].ID)
	}

	batches, total, err = svc.ListByItem(ctx, item.ID, ListParams{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListByItem paged: %v", err)
	}
	if total != 3 || len(batches) != 1 {
		t.Errorf("expected page of 1 with total 3, got total %d len %d", total, len(batches))
	}

	bogus := models.BatchStatus("stale")
	if _, _, err := svc.ListByItem(ctx, item.ID, ListParams{StatusFilter: &bogus}); status.Code(err) != codes.InvalidArgument {
		t.Errorf("invalid status filter: expected InvalidArgument, got %v", err)
	}
	if _, _, err := svc.ListByItem(ctx, 999, ListParams{}); status.Code(err) != codes.NotFound {
		t.Errorf("unknown item: expected NotFound, got %v", err)
	}
}

func TestSummaryOrdering(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	item := createItem(t, svc, "Yoghurt")

	expOld, expNew := day(5), day(10)
	expiredOld := createBatch(t, svc, models.Batch{
		ItemID: item.ID, Quantity: decimal.RequireFromString("1"), ReceivedAt: day(1),
		Status: models.BatchStatusExpired, ExpiresAt: &expOld,
	})
	expiredNew := createBatch(t, svc, models.Batch{
		ItemID: item.ID, Quantity: decimal.RequireFromString("1"), ReceivedAt: day(2),
		Status: models.BatchStatusExpired, ExpiresAt: &expNew,
	})
	activeOld := createBatch(t, svc, models.Batch{
		ItemID: item.ID, Quantity: decimal.RequireFromString("3"), ReceivedAt: day(3),
	})
	activeNew := createBatch(t, svc, models.Batch{
		ItemID: item.ID, Quantity: decimal.RequireFromString("3"), ReceivedAt: day(8),
	})
	out := day(12)
	archivedRecent := createBatch(t, svc, models.Batch{
		ItemID: item.ID, Quantity: decimal.Zero, ReceivedAt: day(4),
		Status: models.BatchStatusArchived, StockedOutAt: &out,
	})
	archivedStale := createBatch(t, svc, models.Batch{
		ItemID: item.ID, Quantity: decimal.Zero, ReceivedAt: day(6),
		Status: models.BatchStatusArchived,
	})

	batches, err := svc.Summary(ctx, item.ID, 10)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	wantOrder := []int64{expiredNew.ID, expiredOld.ID, activeOld.ID, activeNew.ID, archivedRecent.ID, archivedStale.ID}
	if len(batches) != len(wantOrder) {
		t.Fatalf("expected %d batches, got %d", len(wantOrder), len(batches))
	}
	for i, want := range wantOrder {
		if batches[i].ID != want {
			t.Errorf("position %d: expected batch %d, got %d", i, want, batches[i].ID)
		}
	}

	truncated, err := svc.Summary(ctx, item.ID, 0)
	if err != nil {
		t.Fatalf("Summary default limit: %v", err)
	}
	if len(truncated) != DefaultSummaryLimit {
		t.Errorf("expected truncation to %d, got %d", DefaultSummaryLimit, len(truncated))
	}

	if _, err := svc.Summary(ctx, 999, 0); status.Code(err) != codes.NotFound {
		t.Errorf("unknown item: expected NotFound, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	item := createItem(t, svc, "Butter")
	batch := createBatch(t, svc, models.Batch{ItemID: item.ID, Quantity: decimal.RequireFromString("8"), ReceivedAt: day(1)})

	qty := decimal.RequireFromString("6")
	price := decimal.RequireFromString("2.50")
	expires := day(20)
	updated, err := svc.Update(ctx, batch.ID, UpdateParams{
		Quantity:     &qty,
		UnitBuyPrice: &price,
		ExpiresAt:    &expires,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !updated.Quantity.Equal(qty) || updated.UnitBuyPrice == nil || !updated.UnitBuyPrice.Equal(price) {
		t.Errorf("partial update not applied: %+v", updated)
	}
	if updated.ExpiresAt == nil || !updated.ExpiresAt.Equal(expires) {
		t.Errorf("expected expiry %v, got %v", expires, updated.ExpiresAt)
	}
	if !updated.ReceivedAt.Equal(day(1)) {
		t.Errorf("untouched field changed: %v", updated.ReceivedAt)
	}

	negative := decimal.RequireFromString("-1")
	if _, err := svc.Update(ctx, batch.ID, UpdateParams{Quantity: &negative}); status.Code(err) != codes.InvalidArgument {
		t.Errorf("negative quantity: expected InvalidArgument, got %v", err)
	}

	bogus := models.BatchStatus("stale")
	if _, err := svc.Update(ctx, batch.ID, UpdateParams{Status: &bogus}); status.Code(err) != codes.InvalidArgument {
		t.Errorf("invalid status: expected InvalidArgument, got %v", err)
	}

	if _, err := svc.Update(ctx, 999, UpdateParams{}); status.Code(err) != codes.NotFound {
		t.Errorf("unknown batch: expected NotFound, got %v", err)
	}
}

func TestUpdateQuantityWritesCorrectionAndDrift(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	item := createItem(t, svc, "Tofu")
	batch := createBatch(t, svc, models.Batch{ItemID: item.ID, Quantity: decimal.RequireFromString("8"), ReceivedAt: day(1)})

	session := models.CountSession{ID: "open", StartedAt: day(1)}
	svc.db.Create(&session)
	svc.db.Create(&models.ItemCount{
		CountID:   session.ID,
		ItemID:    item.ID,
		BatchID:   models.NoBatch,
		Quantity:  decimal.RequireFromString("8"),
		CountedAt: day(1),
	})

	qty := decimal.RequireFromString("6")
	if _, err := svc.Update(ctx, batch.ID, UpdateParams{Quantity: &qty}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	var movement models.StockMovement
	err := svc.db.Where("batch_id = ? AND movement_type = ?", batch.ID, models.MovementTypeCorrection).
		First(&movement).Error
	if err != nil {
		t.Fatalf("expected correction movement for manual quantity change: %v", err)
	}
	if !movement.Quantity.Equal(decimal.RequireFromString("-2")) {
		t.Errorf("expected movement -2, got %s", movement.Quantity)
	}

	var drift models.Drift
	if err := svc.db.Where("count_id = ? AND item_id = ?", session.ID, item.ID).First(&drift).Error; err != nil {
		t.Fatalf("expected drift row for counted open session: %v", err)
	}
	if !drift.QtyChange.Equal(decimal.RequireFromString("-2")) {
		t.Errorf("expected drift -2, got %s", drift.QtyChange)
	}

	// Archiving the batch pulls the rest of its quantity out of the
	// active pool without changing the stored quantity.
	archived := models.BatchStatusArchived
	if _, err := svc.Update(ctx, batch.ID, UpdateParams{Status: &archived}); err != nil {
		t.Fatalf("Update status: %v", err)
	}
	svc.db.Where("count_id = ? AND item_id = ?", session.ID, item.ID).First(&drift)
	if !drift.QtyChange.Equal(decimal.RequireFromString("-8")) {
		t.Errorf("expected accumulated drift -8 after archiving, got %s", drift.QtyChange)
	}
}

func TestGetAndRemove(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	item := createItem(t, svc, "Cream")
	batch := createBatch(t, svc, models.Batch{ItemID: item.ID, Quantity: decimal.RequireFromString("2"), ReceivedAt: day(1)})

	got, err := svc.Get(ctx, batch.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != batch.ID {
		t.Errorf("expected batch %d, got %d", batch.ID, got.ID)
	}

	if err := svc.Remove(ctx, batch.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := svc.db.First(&models.Batch{}, batch.ID).Error; err != gorm.ErrRecordNotFound {
		t.Errorf("expected batch gone, got %v", err)
	}

	if err := svc.Remove(ctx, batch.ID); status.Code(err) != codes.NotFound {
		t.Errorf("expected NotFound on second remove, got %v", err)
	}
	if _, err := svc.Get(ctx, batch.ID); status.Code(err) != codes.NotFound {
		t.Errorf("expected NotFound on Get, got %v", err)
	}
}
