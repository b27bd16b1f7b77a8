package domain

// Store is the persistence boundary. The sqlite implementation lives in
// internal/infra/storage; components depend on this interface only.
//
// Balance and holding reads return 0 for accounts that were never touched;
// the corresponding writes create the row lazily. All mutations issued inside
// one Unit callback commit or roll back together.
type Store interface {
	// Unit runs fn inside a single transactional unit of work. The Store
	// handed to fn is scoped to that unit and must not be retained.
	Unit(fn func(Store) error) error

	UpsertUser(u User) error

	Balance(u User) (int64, error)
	EscrowBalance(u User) (int64, error)
	SetBalance(u User, amount int64) error
	SetEscrowBalance(u User, amount int64) error

	Holding(u User, a Asset) (int64, error)
	EscrowHolding(u User, a Asset) (int64, error)
	SetHolding(u User, a Asset, count int64) error
	SetEscrowHolding(u User, a Asset, count int64) error

	AddAsset(name string) (Asset, error)
	AssetByName(name string) (Asset, error)
	Assets() ([]Asset, error)

	// InsertOrder assigns o.ID from the autoincrement sequence.
	InsertOrder(o *Order) error
	// DeleteOrder reports whether a row was actually removed.
	DeleteOrder(id int64) (bool, error)
	SetOrderTicks(id int64, ticks int) error
	// OpenOrders returns all open orders in arrival (id) order.
	OpenOrders() ([]Order, error)

	AppendPricePoint(pp PricePoint) error
	// PricesInRange returns points with fromTick <= tick <= toTick.
	PricesInRange(a Asset, fromTick, toTick int64) ([]PricePoint, error)
	// PriceAt returns the closest point at or before tick, or nil.
	PriceAt(a Asset, tick int64) (*PricePoint, error)

	CurrentTick() (int64, error)
	SetCurrentTick(tick int64) error

	// IngestCursor is the id of the newest platform notification already
	// processed by the ingest loop.
	IngestCursor() (int64, error)
	SetIngestCursor(id int64) error
}
