package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"smartqr/internal/models"
	"smartqr/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	s.Now = func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegisterOrReset_NewItem(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	item, err := s.RegisterOrReset(ctx, "Widget", "W1", 10, "")
	if err != nil {
		t.Fatalf("RegisterOrReset failed: %v", err)
	}
	if item.TotalStock != 10 {
		t.Errorf("Expected total_stock 10, got %d", item.TotalStock)
	}
	if item.CreatedAt != "2025-03-01T09:30:00" {
		t.Errorf("Unexpected created_at %q", item.CreatedAt)
	}

	items, err := s.ListItems(ctx)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 1 || items[0].ItemCode != "W1" {
		t.Fatalf("Expected exactly one W1 row, got %+v", items)
	}
}

func TestRegisterOrReset_OverwritesStock(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.RegisterOrReset(ctx, "Widget", "W1", 10, "tools"); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	s.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	item, err := s.RegisterOrReset(ctx, "Widget v2", "W1", 4, "")
	if err != nil {
		t.Fatalf("second register failed: %v", err)
	}

	if item.TotalStock != 4 {
		t.Errorf("Expected stock reset to 4, got %d", item.TotalStock)
	}
	if item.ItemName != "Widget" {
		t.Errorf("Expected name to stay 'Widget', got %q", item.ItemName)
	}
	if item.Category != "tools" {
		t.Errorf("Expected category to stay 'tools', got %q", item.Category)
	}
	if item.CreatedAt != "2025-03-01T09:30:00" {
		t.Errorf("Expected created_at to be immutable, got %q", item.CreatedAt)
	}

	items, _ := s.ListItems(ctx)
	if len(items) != 1 {
		t.Errorf("Expected one row per code, got %d", len(items))
	}
}

func TestAdjust(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	s.RegisterOrReset(ctx, "Widget", "W1", 10, "")

	item, err := s.Adjust(ctx, "W1", -3)
	if err != nil {
		t.Fatalf("Adjust failed: %v", err)
	}
	if item.TotalStock != 7 {
		t.Errorf("Expected 7, got %d", item.TotalStock)
	}

	item, err = s.Adjust(ctx, "W1", -12)
	if err != nil {
		t.Fatalf("Adjust failed: %v", err)
	}
	if item.TotalStock != -5 {
		t.Errorf("Expected unguarded negative stock -5, got %d", item.TotalStock)
	}
}

func TestAdjust_UnknownCode(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	s.RegisterOrReset(ctx, "Widget", "W1", 10, "")

	if _, err := s.Adjust(ctx, "NOPE", 5); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	item, _ := s.GetItem(ctx, "W1")
	if item.TotalStock != 10 {
		t.Errorf("Expected untouched stock 10, got %d", item.TotalStock)
	}
}

func TestGetItem_ZeroStockIsNotMissing(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	s.RegisterOrReset(ctx, "Empty", "E0", 0, "")

	item, err := s.GetItem(ctx, "E0")
	if err != nil {
		t.Fatalf("Expected zero-stock item to resolve, got %v", err)
	}
	if item.TotalStock != 0 {
		t.Errorf("Expected 0, got %d", item.TotalStock)
	}
	if _, err := s.GetItem(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestListItems_Empty(t *testing.T) {
	s := setupTestStore(t)
	items, err := s.ListItems(context.Background())
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", items)
	}
}

func TestListItems_InsertionOrder(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	for _, code := range []string{"Z9", "A1", "M5"} {
		s.RegisterOrReset(ctx, "item "+code, code, 1, "")
	}
	items, _ := s.ListItems(ctx)
	got := []string{items[0].ItemCode, items[1].ItemCode, items[2].ItemCode}
	want := []string{"Z9", "A1", "M5"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}
}

func TestClearItems_KeepsRequestLog(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	s.RegisterOrReset(ctx, "Widget", "W1", 10, "")
	s.RegisterOrReset(ctx, "Gadget", "G1", 3, "")
	err := s.AppendRequests(ctx, []models.RequestEntry{
		{ItemCode: "W1", ItemName: "Widget", QuantityRequested: 2, RequestDate: "2025-03-01T10:00:00"},
	})
	if err != nil {
		t.Fatalf("AppendRequests failed: %v", err)
	}

	n, err := s.ClearItems(ctx)
	if err != nil {
		t.Fatalf("ClearItems failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 rows deleted, got %d", n)
	}
	items, _ := s.ListItems(ctx)
	if len(items) != 0 {
		t.Errorf("Expected empty inventory, got %d rows", len(items))
	}
	reqs, _ := s.ListRequests(ctx)
	if len(reqs) != 1 {
		t.Errorf("Expected request log to survive, got %d rows", len(reqs))
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	boom := errors.New("spreadsheet failed")

	err := s.WithTx(ctx, func(tx *store.Tx) error {
		e := models.RequestEntry{ItemCode: "W1", ItemName: "Widget", QuantityRequested: 1, RequestDate: "2025-03-01T10:00:00"}
		if err := tx.AppendRequest(ctx, &e); err != nil {
			return err
		}
		if e.ID == 0 {
			t.Errorf("Expected AppendRequest to assign an ID")
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected callback error, got %v", err)
	}
	reqs, _ := s.ListRequests(ctx)
	if len(reqs) != 0 {
		t.Errorf("Expected rollback to leave request log empty, got %d rows", len(reqs))
	}
}

func TestListRequests_RequesterOptional(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	err := s.AppendRequests(ctx, []models.RequestEntry{
		{ItemCode: "G1", ItemName: "Gadget", QuantityRequested: 5, RequestDate: "2025-03-01T10:00:00"},
		{ItemCode: "X1", ItemName: "Gone", QuantityRequested: 1, RequestDate: "2025-03-01T10:00:00", Requester: "kim"},
	})
	if err != nil {
		t.Fatalf("AppendRequests failed: %v", err)
	}
	reqs, _ := s.ListRequests(ctx)
	if len(reqs) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(reqs))
	}
	if reqs[0].Requester != "" || reqs[1].Requester != "kim" {
		t.Errorf("Unexpected requesters: %q, %q", reqs[0].Requester, reqs[1].Requester)
	}
}

func TestOpen_FileReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ctx := context.Background()
	if _, err := s.RegisterOrReset(ctx, "Widget", "W1", 10, ""); err != nil {
		t.Fatalf("RegisterOrReset failed: %v", err)
	}
	s.Close()

	s2, err := store.Open(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s2.Close()
	item, err := s2.GetItem(ctx, "W1")
	if err != nil || item.TotalStock != 10 {
		t.Errorf("Expected persisted W1=10, got %+v err=%v", item, err)
	}
}
