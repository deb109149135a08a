package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pricememory/internal/core"
	"pricememory/internal/storage"
)

func purchase(id string, at time.Time) core.Purchase {
	return core.Purchase{ID: id, ItemName: "item " + id, Amount: decimal.NewFromInt(10), PurchasedAt: at}
}

func TestStoreAddListDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

	for _, p := range []core.Purchase{
		purchase("a", base.Add(-time.Hour)),
		purchase("b", base),
		purchase("c", base.Add(-48*time.Hour)),
	} {
		if err := s.Add(ctx, p); err != nil {
			t.Fatalf("Add %s: %v", p.ID, err)
		}
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 || list[0].ID != "b" || list[1].ID != "a" || list[2].ID != "c" {
		t.Fatalf("unexpected order: %v", list)
	}

	if err := s.Add(ctx, purchase("a", base)); !errors.Is(err, storage.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	if deleted, err := s.Delete(ctx, "a"); err != nil || !deleted {
		t.Fatalf("Delete: deleted=%v err=%v", deleted, err)
	}
	if deleted, err := s.Delete(ctx, "a"); err != nil || deleted {
		t.Fatalf("Delete absent: deleted=%v err=%v", deleted, err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Fatalf("expected 2 purchases, got %d", n)
	}
}

func TestStoreListReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New(purchase("a", time.Now()))

	list, _ := s.List(ctx)
	list[0].ItemName = "mutated"

	got, _ := s.Get(ctx, "a")
	if got.ItemName != "item a" {
		t.Fatalf("store mutated through List result: %q", got.ItemName)
	}
}

func TestStoreFailWith(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk on fire")
	s := New(purchase("a", time.Now()))
	s.FailWith = boom

	if _, err := s.List(ctx); !errors.Is(err, boom) {
		t.Fatalf("List: expected forced error, got %v", err)
	}
	if err := s.Add(ctx, purchase("b", time.Now())); !errors.Is(err, boom) {
		t.Fatalf("Add: expected forced error, got %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, boom) {
		t.Fatalf("Ping: expected forced error, got %v", err)
	}
}
