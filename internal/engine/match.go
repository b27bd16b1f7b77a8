// Package engine implements the per-tick order matching algorithm. Matching
// is a pure function: it never touches the ledger or the order book, it only
// classifies the orders it was given.
package engine

import (
	"sort"

	"github.com/UnironicHeyMoon/HMSE/internal/domain"
)

// Sale pairs a buy and a sell order that matched this tick.
type Sale struct {
	Buy       domain.Order
	Sell      domain.Order
	SalePrice int64
}

// Failures partitions the orders that did not match, by reason. The five
// classes are mutually exclusive.
type Failures struct {
	// Outbidded buy orders lost to higher bids in a seller's market.
	Outbidded []domain.Order
	// Outpriced sell orders asked more than the few buyers would pay.
	Outpriced []domain.Order
	// NoSellers buy orders found a market with no supply at all.
	NoSellers []domain.Order
	// NoBuyers sell orders found a market with no demand at all.
	NoBuyers []domain.Order
	// Stingy buy orders bid below the cheapest ask in a buyer's market.
	Stingy []domain.Order
}

// Market is the settlement result for one asset.
type Market struct {
	Asset      domain.Asset
	BuyOffers  []domain.Order
	SellOffers []domain.Order

	CompletedSales []Sale
	DeadMarket     bool
	// BuyersMarket is true when sell offers outnumber buy offers; the sale
	// price is then the seller's limit. Otherwise the buyer's limit wins.
	BuyersMarket bool
	Failed       Failures
}

// Match computes one tick's settlement for every known asset. Orders must be
// supplied in arrival order; equal-priced offers keep that order (stable
// sort), which is the only tie-break rule.
func Match(orders []domain.Order, assets []domain.Asset) map[domain.Asset]*Market {
	buys := groupByAsset(orders, domain.KindBuy)
	sells := groupByAsset(orders, domain.KindSell)

	result := make(map[domain.Asset]*Market, len(assets))

	for asset, buyOffers := range buys {
		m := &Market{Asset: asset, BuyOffers: buyOffers}
		result[asset] = m

		sellOffers, ok := sells[asset]
		if !ok {
			// Supply-starved market: nothing to match against.
			m.DeadMarket = true
			m.Failed.NoSellers = buyOffers
			continue
		}
		m.SellOffers = sellOffers

		remaining := make([]domain.Order, len(sellOffers))
		copy(remaining, sellOffers)
		sort.SliceStable(remaining, func(i, j int) bool {
			return remaining[i].LimitPrice < remaining[j].LimitPrice
		})

		prioritized := make([]domain.Order, len(buyOffers))
		copy(prioritized, buyOffers)
		sort.SliceStable(prioritized, func(i, j int) bool {
			return prioritized[i].LimitPrice > prioritized[j].LimitPrice
		})

		m.BuyersMarket = len(remaining) > len(prioritized)

		for _, buy := range prioritized {
			if len(remaining) == 0 {
				// Only reachable in a seller's market: a buyer's market has
				// at least as many sellers as buyers by definition.
				m.Failed.Outbidded = append(m.Failed.Outbidded, buy)
				continue
			}

			cheapest := remaining[0]

			var salePrice int64
			if m.BuyersMarket {
				salePrice = cheapest.LimitPrice
				if salePrice > buy.LimitPrice {
					// Buyer's market, yet the bid is under the cheapest ask.
					// The ask stays available for the next buyer.
					m.Failed.Stingy = append(m.Failed.Stingy, buy)
					continue
				}
			} else {
				salePrice = buy.LimitPrice
			}

			m.CompletedSales = append(m.CompletedSales, Sale{Buy: buy, Sell: cheapest, SalePrice: salePrice})
			remaining = remaining[1:]
		}

		m.Failed.Outpriced = remaining
	}

	// Assets with no buy orders at all: demand-starved (or fully idle).
	for _, asset := range assets {
		if _, ok := result[asset]; ok {
			continue
		}
		m := &Market{Asset: asset, DeadMarket: true, BuyersMarket: true}
		if sellOffers, ok := sells[asset]; ok {
			m.SellOffers = sellOffers
			m.Failed.NoBuyers = sellOffers
		}
		result[asset] = m
	}

	return result
}

func groupByAsset(orders []domain.Order, kind domain.OrderKind) map[domain.Asset][]domain.Order {
	groups := make(map[domain.Asset][]domain.Order)
	for _, o := range orders {
		if o.Kind != kind {
			continue
		}
		groups[o.Asset] = append(groups[o.Asset], o)
	}
	return groups
}
