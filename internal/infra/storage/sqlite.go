// Package storage is the persistence collaborator: a pure-Go SQLite database
// behind gorm. It owns the schema and implements domain.Store, including the
// per-unit commit/rollback semantics the tick processor relies on.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/UnironicHeyMoon/HMSE/internal/domain"
)

// Storage implements domain.Store over a gorm DB handle. Unit hands out a
// Storage scoped to the transaction, so the same methods work inside and
// outside a unit of work.
type Storage struct {
	db *gorm.DB
}

// Row models. User and asset ids come from the platform, so only order rows
// use the autoincrement sequence (which doubles as arrival order).

type userRow struct {
	ID              int64 `gorm:"primaryKey;autoIncrement:false"`
	Name            string
	Balance         int64
	BalanceInEscrow int64
}

func (userRow) TableName() string { return "users" }

type assetRow struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex"`
}

func (assetRow) TableName() string { return "assets" }

type holdingRow struct {
	UserID         int64 `gorm:"primaryKey;autoIncrement:false"`
	AssetID        int64 `gorm:"primaryKey;autoIncrement:false"`
	Amount         int64
	AmountInEscrow int64
}

func (holdingRow) TableName() string { return "holdings" }

type orderRow struct {
	ID             int64 `gorm:"primaryKey"`
	UserID         int64 `gorm:"index"`
	AssetID        int64 `gorm:"index"`
	Kind           string
	LimitPrice     int64
	TicksRemaining int
}

func (orderRow) TableName() string { return "orders" }

type priceRow struct {
	Tick         int64 `gorm:"primaryKey;autoIncrement:false"`
	AssetID      int64 `gorm:"primaryKey;autoIncrement:false"`
	Price        int64
	DayAverage   int64
	WeekAverage  int64
	MonthAverage int64
}

func (priceRow) TableName() string { return "prices" }

type stateRow struct {
	ID           int64 `gorm:"primaryKey;autoIncrement:false"`
	CurrentTick  int64
	IngestCursor int64
}

func (stateRow) TableName() string { return "state" }

// Open connects to (creating if needed) the SQLite database at path and
// migrates the schema.
func Open(path string) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&userRow{}, &assetRow{}, &holdingRow{}, &orderRow{}, &priceRow{}, &stateRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Unit runs fn inside one transaction.
func (s *Storage) Unit(fn func(domain.Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Storage{db: tx})
	})
}

// ======================================================================================
// Users and balances
// ======================================================================================

// UpsertUser creates the user row or refreshes a changed name.
func (s *Storage) UpsertUser(u domain.User) error {
	var row userRow
	err := s.db.First(&row, "id = ?", u.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(&userRow{ID: u.ID, Name: u.Name}).Error
	}
	if err != nil {
		return err
	}
	if row.Name != u.Name {
		return s.db.Model(&userRow{}).Where("id = ?", u.ID).Update("name", u.Name).Error
	}
	return nil
}

func (s *Storage) ensureUser(u domain.User) error {
	// String conditions, not a struct condition: gorm drops zero-value
	// struct fields, which would match any row when u.ID is 0.
	return s.db.Where("id = ?", u.ID).Attrs(userRow{ID: u.ID, Name: u.Name}).FirstOrCreate(&userRow{}).Error
}

// Balance returns the user's available balance, 0 for unknown users.
func (s *Storage) Balance(u domain.User) (int64, error) {
	var row userRow
	err := s.db.First(&row, "id = ?", u.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return row.Balance, err
}

// EscrowBalance returns the user's reserved balance, 0 for unknown users.
func (s *Storage) EscrowBalance(u domain.User) (int64, error) {
	var row userRow
	err := s.db.First(&row, "id = ?", u.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return row.BalanceInEscrow, err
}

func (s *Storage) SetBalance(u domain.User, amount int64) error {
	if err := s.ensureUser(u); err != nil {
		return err
	}
	return s.db.Model(&userRow{}).Where("id = ?", u.ID).Update("balance", amount).Error
}

func (s *Storage) SetEscrowBalance(u domain.User, amount int64) error {
	if err := s.ensureUser(u); err != nil {
		return err
	}
	return s.db.Model(&userRow{}).Where("id = ?", u.ID).Update("balance_in_escrow", amount).Error
}

// ======================================================================================
// Holdings
// ======================================================================================

func (s *Storage) ensureHolding(u domain.User, a domain.Asset) error {
	return s.db.Where("user_id = ? AND asset_id = ?", u.ID, a.ID).
		Attrs(holdingRow{UserID: u.ID, AssetID: a.ID}).
		FirstOrCreate(&holdingRow{}).Error
}

// Holding returns how many units the user owns outright, 0 if never touched.
func (s *Storage) Holding(u domain.User, a domain.Asset) (int64, error) {
	var row holdingRow
	err := s.db.First(&row, "user_id = ? AND asset_id = ?", u.ID, a.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return row.Amount, err
}

// EscrowHolding returns how many units the user has reserved.
func (s *Storage) EscrowHolding(u domain.User, a domain.Asset) (int64, error) {
	var row holdingRow
	err := s.db.First(&row, "user_id = ? AND asset_id = ?", u.ID, a.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return row.AmountInEscrow, err
}

func (s *Storage) SetHolding(u domain.User, a domain.Asset, count int64) error {
	if err := s.ensureHolding(u, a); err != nil {
		return err
	}
	return s.db.Model(&holdingRow{}).
		Where("user_id = ? AND asset_id = ?", u.ID, a.ID).
		Update("amount", count).Error
}

func (s *Storage) SetEscrowHolding(u domain.User, a domain.Asset, count int64) error {
	if err := s.ensureHolding(u, a); err != nil {
		return err
	}
	return s.db.Model(&holdingRow{}).
		Where("user_id = ? AND asset_id = ?", u.ID, a.ID).
		Update("amount_in_escrow", count).Error
}

// ======================================================================================
// Assets
// ======================================================================================

// AddAsset registers a new asset under its canonical upper-case name.
func (s *Storage) AddAsset(name string) (domain.Asset, error) {
	canonical := strings.ToUpper(name)
	var existing assetRow
	err := s.db.First(&existing, "name = ?", canonical).Error
	if err == nil {
		return domain.Asset{}, &domain.ValidationError{Reason: fmt.Sprintf("asset %q already exists", canonical)}
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Asset{}, err
	}

	row := assetRow{Name: canonical}
	if err := s.db.Create(&row).Error; err != nil {
		return domain.Asset{}, err
	}
	return domain.NewAsset(row.ID, row.Name), nil
}

// AssetByName looks an asset up by name, case-insensitively.
func (s *Storage) AssetByName(name string) (domain.Asset, error) {
	canonical := strings.ToUpper(name)
	var row assetRow
	err := s.db.First(&row, "name = ?", canonical).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Asset{}, &domain.NotFoundError{Kind: "asset", Name: canonical}
	}
	if err != nil {
		return domain.Asset{}, err
	}
	return domain.NewAsset(row.ID, row.Name), nil
}

// Assets returns every known asset in id order.
func (s *Storage) Assets() ([]domain.Asset, error) {
	var rows []assetRow
	if err := s.db.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	assets := make([]domain.Asset, 0, len(rows))
	for _, row := range rows {
		assets = append(assets, domain.NewAsset(row.ID, row.Name))
	}
	return assets, nil
}

// ======================================================================================
// Orders
// ======================================================================================

// InsertOrder persists the order and assigns its id.
func (s *Storage) InsertOrder(o *domain.Order) error {
	if err := s.ensureUser(o.Owner); err != nil {
		return err
	}
	row := orderRow{
		UserID:         o.Owner.ID,
		AssetID:        o.Asset.ID,
		Kind:           string(o.Kind),
		LimitPrice:     o.LimitPrice,
		TicksRemaining: o.TicksRemaining,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return err
	}
	o.ID = row.ID
	return nil
}

// DeleteOrder removes the order row, reporting whether it existed.
func (s *Storage) DeleteOrder(id int64) (bool, error) {
	res := s.db.Delete(&orderRow{}, id)
	return res.RowsAffected > 0, res.Error
}

func (s *Storage) SetOrderTicks(id int64, ticks int) error {
	return s.db.Model(&orderRow{}).Where("id = ?", id).Update("ticks_remaining", ticks).Error
}

// OpenOrders returns every open order in arrival order, with owner and asset
// resolved.
func (s *Storage) OpenOrders() ([]domain.Order, error) {
	var rows []orderRow
	if err := s.db.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	users := make(map[int64]domain.User)
	assets := make(map[int64]domain.Asset)
	{
		var userRows []userRow
		if err := s.db.Find(&userRows).Error; err != nil {
			return nil, err
		}
		for _, u := range userRows {
			users[u.ID] = domain.User{ID: u.ID, Name: u.Name}
		}
		var assetRows []assetRow
		if err := s.db.Find(&assetRows).Error; err != nil {
			return nil, err
		}
		for _, a := range assetRows {
			assets[a.ID] = domain.NewAsset(a.ID, a.Name)
		}
	}

	orders := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, domain.Order{
			ID:             row.ID,
			Owner:          users[row.UserID],
			Asset:          assets[row.AssetID],
			Kind:           domain.OrderKind(row.Kind),
			LimitPrice:     row.LimitPrice,
			TicksRemaining: row.TicksRemaining,
		})
	}
	return orders, nil
}

// ======================================================================================
// Price history
// ======================================================================================

// AppendPricePoint writes one immutable price history entry.
func (s *Storage) AppendPricePoint(pp domain.PricePoint) error {
	return s.db.Create(&priceRow{
		Tick:         pp.Tick,
		AssetID:      pp.Asset.ID,
		Price:        pp.Price,
		DayAverage:   pp.DayAverage,
		WeekAverage:  pp.WeekAverage,
		MonthAverage: pp.MonthAverage,
	}).Error
}

// PricesInRange returns points with fromTick <= tick <= toTick, oldest first.
func (s *Storage) PricesInRange(a domain.Asset, fromTick, toTick int64) ([]domain.PricePoint, error) {
	var rows []priceRow
	err := s.db.
		Where("asset_id = ? AND tick >= ? AND tick <= ?", a.ID, fromTick, toTick).
		Order("tick").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	points := make([]domain.PricePoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, rowToPricePoint(row, a))
	}
	return points, nil
}

// PriceAt returns the closest point at or before tick, or nil.
func (s *Storage) PriceAt(a domain.Asset, tick int64) (*domain.PricePoint, error) {
	var row priceRow
	err := s.db.
		Where("asset_id = ? AND tick <= ?", a.ID, tick).
		Order("tick DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pp := rowToPricePoint(row, a)
	return &pp, nil
}

func rowToPricePoint(row priceRow, a domain.Asset) domain.PricePoint {
	return domain.PricePoint{
		Tick:         row.Tick,
		Asset:        a,
		Price:        row.Price,
		DayAverage:   row.DayAverage,
		WeekAverage:  row.WeekAverage,
		MonthAverage: row.MonthAverage,
	}
}

// ======================================================================================
// Logical clock and ingest cursor
// ======================================================================================

func (s *Storage) state() (stateRow, error) {
	var row stateRow
	err := s.db.Where(stateRow{ID: 1}).FirstOrCreate(&row).Error
	return row, err
}

// CurrentTick returns the logical clock, starting at 0.
func (s *Storage) CurrentTick() (int64, error) {
	row, err := s.state()
	return row.CurrentTick, err
}

func (s *Storage) SetCurrentTick(tick int64) error {
	if _, err := s.state(); err != nil {
		return err
	}
	return s.db.Model(&stateRow{}).Where("id = 1").Update("current_tick", tick).Error
}

// IngestCursor returns the newest platform notification id already processed.
func (s *Storage) IngestCursor() (int64, error) {
	row, err := s.state()
	return row.IngestCursor, err
}

func (s *Storage) SetIngestCursor(id int64) error {
	if _, err := s.state(); err != nil {
		return err
	}
	return s.db.Model(&stateRow{}).Where("id = 1").Update("ingest_cursor", id).Error
}
