// Package orderbook tracks the currently open orders. The book keeps an
// in-memory mirror of the order rows so per-user and per-asset queries do not
// hit storage; every mutation writes through to the store first.
package orderbook

import (
	"sort"

	"github.com/UnironicHeyMoon/HMSE/internal/domain"
)

// Book is the live collection of open orders. One Book is loaded per process
// run; the mirror map is shared by every Bind view, so mutations made inside
// a unit of work are visible to the parent.
type Book struct {
	store domain.Store
	open  map[int64]domain.Order
}

// Load reads all open orders from store and builds the book.
func Load(store domain.Store) (*Book, error) {
	orders, err := store.OpenOrders()
	if err != nil {
		return nil, err
	}
	open := make(map[int64]domain.Order, len(orders))
	for _, o := range orders {
		open[o.ID] = o
	}
	return &Book{store: store, open: open}, nil
}

// Bind returns a view of the same book writing through the given store.
// Used inside Store.Unit callbacks so order-row changes join the unit's
// transaction.
func (b *Book) Bind(store domain.Store) *Book {
	return &Book{store: store, open: b.open}
}

// Add persists the order (assigning its id) and inserts it into the book.
func (b *Book) Add(o *domain.Order) error {
	if err := b.store.InsertOrder(o); err != nil {
		return err
	}
	b.open[o.ID] = *o
	return nil
}

// Remove deletes the order. Removing an order that is not open is a no-op
// and reports false.
func (b *Book) Remove(o domain.Order) (bool, error) {
	if _, ok := b.open[o.ID]; !ok {
		return false, nil
	}
	if _, err := b.store.DeleteOrder(o.ID); err != nil {
		return false, err
	}
	delete(b.open, o.ID)
	return true, nil
}

// Contains reports whether the order is currently open.
func (b *Book) Contains(o domain.Order) bool {
	_, ok := b.open[o.ID]
	return ok
}

// Orders returns a snapshot of all open orders in arrival (id) order.
func (b *Book) Orders() []domain.Order {
	orders := make([]domain.Order, 0, len(b.open))
	for _, o := range b.open {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders
}

// OrdersFor returns the user's open orders for one asset, in arrival order.
func (b *Book) OrdersFor(user domain.User, asset domain.Asset) []domain.Order {
	var orders []domain.Order
	for _, o := range b.Orders() {
		if o.Owner == user && o.Asset == asset {
			orders = append(orders, o)
		}
	}
	return orders
}

// IsBuying reports whether the user has an open buy order for the asset.
func (b *Book) IsBuying(user domain.User, asset domain.Asset) bool {
	return b.hasKind(user, asset, domain.KindBuy)
}

// IsSelling reports whether the user has an open sell order for the asset.
func (b *Book) IsSelling(user domain.User, asset domain.Asset) bool {
	return b.hasKind(user, asset, domain.KindSell)
}

func (b *Book) hasKind(user domain.User, asset domain.Asset, kind domain.OrderKind) bool {
	for _, o := range b.open {
		if o.Owner == user && o.Asset == asset && o.Kind == kind {
			return true
		}
	}
	return false
}

// DecrementExpiry decreases the order's remaining lifetime by one tick.
// When the lifetime reaches zero the order is removed and expired is true.
// An order that is not open is left alone and reported as not expired.
func (b *Book) DecrementExpiry(o domain.Order) (expired bool, err error) {
	current, ok := b.open[o.ID]
	if !ok {
		return false, nil
	}
	if current.TicksRemaining <= 1 {
		if _, err := b.store.DeleteOrder(o.ID); err != nil {
			return false, err
		}
		delete(b.open, o.ID)
		return true, nil
	}
	current.TicksRemaining--
	if err := b.store.SetOrderTicks(o.ID, current.TicksRemaining); err != nil {
		return false, err
	}
	b.open[o.ID] = current
	return false, nil
}
