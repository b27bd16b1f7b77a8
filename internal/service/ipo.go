package service

import (
	"fmt"
	"log/slog"

	"github.com/UnironicHeyMoon/HMSE/internal/domain"
	"github.com/UnironicHeyMoon/HMSE/internal/orderbook"
)

// IPOOrderTTL is how many ticks the house's initial sell orders stay open.
// Long enough that a thin market doesn't watch the whole offering expire.
const IPOOrderTTL = 100

// IPO lists a new asset: the house account receives the full float in escrow
// and a sell order per share is placed at the asking price. Everything happens
// in one unit, so a duplicate listing leaves no trace.
func IPO(store domain.Store, book *orderbook.Book, house domain.User, name string, amount, askingPrice int64) (domain.Asset, error) {
	if amount <= 0 {
		return domain.Asset{}, &domain.ValidationError{Reason: "share amount must be positive"}
	}
	if askingPrice <= 0 {
		return domain.Asset{}, &domain.ValidationError{Reason: "asking price must be positive"}
	}

	var asset domain.Asset
	err := store.Unit(func(tx domain.Store) error {
		var err error
		asset, err = tx.AddAsset(name)
		if err != nil {
			return err
		}
		if err := tx.UpsertUser(house); err != nil {
			return err
		}
		if err := tx.SetEscrowHolding(house, asset, amount); err != nil {
			return err
		}
		bound := book.Bind(tx)
		for i := int64(0); i < amount; i++ {
			o := domain.Order{Owner: house, Asset: asset, Kind: domain.KindSell, LimitPrice: askingPrice, TicksRemaining: IPOOrderTTL}
			if err := bound.Add(&o); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Asset{}, fmt.Errorf("ipo %s: %w", name, err)
	}

	slog.Default().Info("asset listed",
		slog.String("asset", asset.Name),
		slog.Int64("float", amount),
		slog.Int64("asking_price", askingPrice))
	return asset, nil
}
