package orderbook

import (
	"path/filepath"
	"testing"

	"github.com/UnironicHeyMoon/HMSE/internal/domain"
	"github.com/UnironicHeyMoon/HMSE/internal/infra/storage"
)

var (
	alice = domain.User{ID: 1, Name: "alice"}
	bob   = domain.User{ID: 2, Name: "bob"}
)

func setupBook(t *testing.T) (*Book, domain.Store, domain.Asset) {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	asset, err := s.AddAsset("PUTIN")
	if err != nil {
		t.Fatalf("AddAsset failed: %v", err)
	}
	book, err := Load(s)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return book, s, asset
}

func TestAddAssignsIDAndOrdersByArrival(t *testing.T) {
	book, _, asset := setupBook(t)

	first := domain.Order{Owner: alice, Asset: asset, Kind: domain.KindBuy, LimitPrice: 100, TicksRemaining: 1}
	second := domain.Order{Owner: bob, Asset: asset, Kind: domain.KindSell, LimitPrice: 80, TicksRemaining: 1}
	if err := book.Add(&first); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := book.Add(&second); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	orders := book.Orders()
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if orders[0].ID != first.ID || orders[1].ID != second.ID {
		t.Errorf("orders not in arrival order")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	book, _, asset := setupBook(t)
	o := domain.Order{Owner: alice, Asset: asset, Kind: domain.KindBuy, LimitPrice: 100, TicksRemaining: 1}
	book.Add(&o)

	removed, err := book.Remove(o)
	if err != nil || !removed {
		t.Fatalf("expected removal, got removed=%v err=%v", removed, err)
	}
	removed, err = book.Remove(o)
	if err != nil || removed {
		t.Errorf("second remove should be a no-op, got removed=%v err=%v", removed, err)
	}
	if book.Contains(o) {
		t.Error("book still contains removed order")
	}
}

func TestLoadRestoresPersistedOrders(t *testing.T) {
	book, store, asset := setupBook(t)
	o := domain.Order{Owner: alice, Asset: asset, Kind: domain.KindSell, LimitPrice: 60, TicksRemaining: 3}
	book.Add(&o)

	reloaded, err := Load(store)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reloaded.Contains(o) {
		t.Error("reloaded book lost the persisted order")
	}
}

func TestSideQueries(t *testing.T) {
	book, _, asset := setupBook(t)
	buy := domain.Order{Owner: alice, Asset: asset, Kind: domain.KindBuy, LimitPrice: 100, TicksRemaining: 1}
	book.Add(&buy)

	if !book.IsBuying(alice, asset) {
		t.Error("expected IsBuying true")
	}
	if book.IsSelling(alice, asset) {
		t.Error("expected IsSelling false")
	}
	if book.IsBuying(bob, asset) {
		t.Error("bob has no orders")
	}

	got := book.OrdersFor(alice, asset)
	if len(got) != 1 || got[0].ID != buy.ID {
		t.Errorf("unexpected OrdersFor result: %+v", got)
	}
}

func TestDecrementExpiry(t *testing.T) {
	book, _, asset := setupBook(t)
	o := domain.Order{Owner: alice, Asset: asset, Kind: domain.KindBuy, LimitPrice: 100, TicksRemaining: 2}
	book.Add(&o)

	expired, err := book.DecrementExpiry(o)
	if err != nil {
		t.Fatalf("DecrementExpiry failed: %v", err)
	}
	if expired {
		t.Fatal("order with 2 ticks left expired on first decrement")
	}
	if got := book.Orders()[0].TicksRemaining; got != 1 {
		t.Errorf("expected 1 tick remaining, got %d", got)
	}

	expired, err = book.DecrementExpiry(o)
	if err != nil {
		t.Fatalf("DecrementExpiry failed: %v", err)
	}
	if !expired {
		t.Fatal("order with 1 tick left should expire")
	}
	if book.Contains(o) {
		t.Error("expired order still in book")
	}

	// Absent order is left alone.
	expired, err = book.DecrementExpiry(o)
	if err != nil || expired {
		t.Errorf("decrement of absent order should be a no-op, got expired=%v err=%v", expired, err)
	}
}

func TestBindSharesTheMirror(t *testing.T) {
	book, store, asset := setupBook(t)

	var o domain.Order
	err := store.Unit(func(tx domain.Store) error {
		bound := book.Bind(tx)
		o = domain.Order{Owner: alice, Asset: asset, Kind: domain.KindBuy, LimitPrice: 100, TicksRemaining: 1}
		return bound.Add(&o)
	})
	if err != nil {
		t.Fatalf("Unit failed: %v", err)
	}

	if !book.Contains(o) {
		t.Error("order added inside the unit not visible to the parent book")
	}
}
