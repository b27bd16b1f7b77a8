// Package pricetracker maintains the append-only per-asset price history and
// its rolling averages. Windows are measured in ticks.
package pricetracker

import (
	"github.com/shopspring/decimal"

	"github.com/UnironicHeyMoon/HMSE/internal/domain"
)

// Rolling window lengths, in ticks. One tick is nominally an hour.
const (
	DayWindow   = 24
	WeekWindow  = DayWindow * 7
	MonthWindow = WeekWindow * 7
)

// Tracker records and queries price history through a Store.
type Tracker struct {
	store domain.Store
}

// New creates a Tracker bound to store.
func New(store domain.Store) *Tracker {
	return &Tracker{store: store}
}

// SetPrice appends a price point for the asset at tick. The day, week and
// month averages are the mean of price together with every recorded price in
// the trailing window; with no in-window history each average is price itself.
func (t *Tracker) SetPrice(asset domain.Asset, price int64, tick int64) error {
	day, err := t.windowAverage(asset, price, tick, DayWindow)
	if err != nil {
		return err
	}
	week, err := t.windowAverage(asset, price, tick, WeekWindow)
	if err != nil {
		return err
	}
	month, err := t.windowAverage(asset, price, tick, MonthWindow)
	if err != nil {
		return err
	}

	return t.store.AppendPricePoint(domain.PricePoint{
		Tick:         tick,
		Asset:        asset,
		Price:        price,
		DayAverage:   day,
		WeekAverage:  week,
		MonthAverage: month,
	})
}

// MaintainPrice carries the latest known price (or 0 with no history at all)
// forward as this tick's nominal price. Used for assets whose market was dead
// this tick so the rolling averages keep moving.
func (t *Tracker) MaintainPrice(asset domain.Asset, tick int64) error {
	latest, err := t.store.PriceAt(asset, tick)
	if err != nil {
		return err
	}
	var price int64
	if latest != nil {
		price = latest.Price
	}
	return t.SetPrice(asset, price, tick)
}

// Latest returns the most recent price point for the asset, or nil if the
// asset has no history yet.
func (t *Tracker) Latest(asset domain.Asset) (*domain.PricePoint, error) {
	tick, err := t.store.CurrentTick()
	if err != nil {
		return nil, err
	}
	return t.store.PriceAt(asset, tick)
}

// Lookback returns the closest price point at or before ticksAgo ticks in the
// past, or nil if none was recorded that far back.
func (t *Tracker) Lookback(asset domain.Asset, ticksAgo int64) (*domain.PricePoint, error) {
	tick, err := t.store.CurrentTick()
	if err != nil {
		return nil, err
	}
	return t.store.PriceAt(asset, tick-ticksAgo)
}

func (t *Tracker) windowAverage(asset domain.Asset, price, tick, window int64) (int64, error) {
	points, err := t.store.PricesInRange(asset, tick-window, tick)
	if err != nil {
		return 0, err
	}
	rest := make([]decimal.Decimal, 0, len(points))
	for _, p := range points {
		rest = append(rest, decimal.NewFromInt(p.Price))
	}
	return decimal.Avg(decimal.NewFromInt(price), rest...).IntPart(), nil
}
