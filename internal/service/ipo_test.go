package service

import (
	"path/filepath"
	"testing"

	"github.com/UnironicHeyMoon/HMSE/internal/domain"
	"github.com/UnironicHeyMoon/HMSE/internal/infra/storage"
	"github.com/UnironicHeyMoon/HMSE/internal/orderbook"
)

var house = domain.User{ID: 0, Name: "HMSE"}

func TestIPOListsAssetWithSellOrders(t *testing.T) {
	s, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	book, err := orderbook.Load(s)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	asset, err := IPO(s, book, house, "putin", 3, 120)
	if err != nil {
		t.Fatalf("IPO failed: %v", err)
	}
	if asset.Name != "PUTIN" {
		t.Errorf("expected canonical name PUTIN, got %s", asset.Name)
	}

	reserved, _ := s.EscrowHolding(house, asset)
	if reserved != 3 {
		t.Errorf("house should hold the float in escrow, got %d", reserved)
	}

	orders := book.Orders()
	if len(orders) != 3 {
		t.Fatalf("expected 3 sell orders, got %d", len(orders))
	}
	for _, o := range orders {
		if o.Kind != domain.KindSell || o.LimitPrice != 120 || o.TicksRemaining != IPOOrderTTL {
			t.Errorf("unexpected order: %+v", o)
		}
	}
}

func TestIPORejectsDuplicatesAtomically(t *testing.T) {
	s, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	book, _ := orderbook.Load(s)

	if _, err := IPO(s, book, house, "PUTIN", 3, 120); err != nil {
		t.Fatalf("first IPO failed: %v", err)
	}
	if _, err := IPO(s, book, house, "PUTIN", 5, 90); err == nil {
		t.Fatal("duplicate listing should fail")
	}

	// The refused listing leaves nothing behind.
	if len(book.Orders()) != 3 {
		t.Errorf("expected only the original 3 orders, got %d", len(book.Orders()))
	}
}

func TestIPOValidatesArguments(t *testing.T) {
	s, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	book, _ := orderbook.Load(s)

	if _, err := IPO(s, book, house, "PUTIN", 0, 120); err == nil {
		t.Error("zero float should be rejected")
	}
	if _, err := IPO(s, book, house, "PUTIN", 3, -1); err == nil {
		t.Error("negative price should be rejected")
	}
}
