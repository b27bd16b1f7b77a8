// Package report renders user-facing tables and summaries: account balances,
// the exchange-wide ticker, and per-asset market status.
package report

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/UnironicHeyMoon/HMSE/internal/domain"
	"github.com/UnironicHeyMoon/HMSE/internal/engine"
	"github.com/UnironicHeyMoon/HMSE/internal/ledger"
	"github.com/UnironicHeyMoon/HMSE/internal/pricetracker"
)

// Balance renders the user's coin balance and every non-empty asset holding,
// split into available and escrow buckets.
func Balance(led *ledger.Ledger, assets []domain.Asset, user domain.User) (string, error) {
	balance, err := led.Balance(user)
	if err != nil {
		return "", err
	}
	escrow, err := led.EscrowBalance(user)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Currently, you have %d coins in your account. Of these, %d are available, and the rest are in escrow.\n\n",
		balance+escrow, balance)

	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"What", "Available", "In Escrow", "Total"})
	table.Append([]string{"(coins)", fmt.Sprint(balance), fmt.Sprint(escrow), fmt.Sprint(balance + escrow)})

	for _, asset := range assets {
		owned, err := led.Holding(user, asset)
		if err != nil {
			return "", err
		}
		reserved, err := led.EscrowHolding(user, asset)
		if err != nil {
			return "", err
		}
		if owned+reserved == 0 {
			continue
		}
		table.Append([]string{asset.Name, fmt.Sprint(owned), fmt.Sprint(reserved), fmt.Sprint(owned + reserved)})
	}
	table.Render()

	return b.String(), nil
}

// Ticker renders the latest price of every asset next to its one-tick, day,
// week and month lookbacks, each with a growth percentage.
func Ticker(tracker *pricetracker.Tracker, assets []domain.Asset) (string, error) {
	var b strings.Builder
	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"Stock", "Price", "Last Price", "Daily Average", "Weekly Average", "Monthly Average"})

	for _, asset := range assets {
		latest, err := tracker.Latest(asset)
		if err != nil {
			return "", err
		}

		var price, dayAvg, weekAvg, monthAvg int64
		if latest != nil {
			price = latest.Price
			dayAvg = latest.DayAverage
			weekAvg = latest.WeekAverage
			monthAvg = latest.MonthAverage
		}

		lastPrice, err := lookbackPrice(tracker, asset, 1, price, func(pp *domain.PricePoint) int64 { return pp.Price })
		if err != nil {
			return "", err
		}
		dayAgo, err := lookbackPrice(tracker, asset, pricetracker.DayWindow, price, func(pp *domain.PricePoint) int64 { return pp.DayAverage })
		if err != nil {
			return "", err
		}
		weekAgo, err := lookbackPrice(tracker, asset, pricetracker.WeekWindow, price, func(pp *domain.PricePoint) int64 { return pp.WeekAverage })
		if err != nil {
			return "", err
		}
		monthAgo, err := lookbackPrice(tracker, asset, pricetracker.MonthWindow, price, func(pp *domain.PricePoint) int64 { return pp.MonthAverage })
		if err != nil {
			return "", err
		}

		table.Append([]string{
			asset.Name,
			fmt.Sprint(price),
			fmt.Sprintf("%d (%d%%)", lastPrice, growthPercent(price, lastPrice)),
			fmt.Sprintf("%d (%d%%)", dayAvg, growthPercent(dayAvg, dayAgo)),
			fmt.Sprintf("%d (%d%%)", weekAvg, growthPercent(weekAvg, weekAgo)),
			fmt.Sprintf("%d (%d%%)", monthAvg, growthPercent(monthAvg, monthAgo)),
		})
	}
	table.Render()

	return b.String(), nil
}

// MarketStatus summarizes one asset's market for the MARKET command.
func MarketStatus(m *engine.Market) string {
	var b strings.Builder
	fmt.Fprintf(&b, "There are %d sellers and %d buyers. ", len(m.SellOffers), len(m.BuyOffers))
	if m.BuyersMarket {
		b.WriteString("That makes the market a *buyer's market*, meaning that the buyer will pay the seller's price.")
	} else {
		b.WriteString("That makes the market a *seller's market*, meaning that the buyer will pay the buyer's max price.")
	}
	b.WriteString("\n\n")

	if bid, ok := maxLimit(m.BuyOffers); ok {
		fmt.Fprintf(&b, "Highest Bid: %d\n\n", bid)
	}
	if len(m.CompletedSales) > 0 {
		lowestWinningBid := m.CompletedSales[0].Buy.LimitPrice
		highestWinningAsk := m.CompletedSales[0].Sell.LimitPrice
		for _, sale := range m.CompletedSales[1:] {
			if sale.Buy.LimitPrice < lowestWinningBid {
				lowestWinningBid = sale.Buy.LimitPrice
			}
			if sale.Sell.LimitPrice > highestWinningAsk {
				highestWinningAsk = sale.Sell.LimitPrice
			}
		}
		fmt.Fprintf(&b, "Lowest Winning Bid: %d\n\n", lowestWinningBid)
		fmt.Fprintf(&b, "Highest Winning Asking Price: %d\n\n", highestWinningAsk)
	}
	if ask, ok := minLimit(m.SellOffers); ok {
		fmt.Fprintf(&b, "Lowest Asking Price: %d\n\n", ask)
	}

	return b.String()
}

func lookbackPrice(tracker *pricetracker.Tracker, asset domain.Asset, ticksAgo int64, fallback int64, pick func(*domain.PricePoint) int64) (int64, error) {
	pp, err := tracker.Lookback(asset, ticksAgo)
	if err != nil {
		return 0, err
	}
	if pp == nil {
		return fallback, nil
	}
	return pick(pp), nil
}

// growthPercent is the percentage change from past to current, truncated to
// whole percent. Reported as 0 when either side is 0 (no meaningful baseline).
func growthPercent(current, past int64) int64 {
	if current == 0 || past == 0 {
		return 0
	}
	cur := decimal.NewFromInt(current)
	prev := decimal.NewFromInt(past)
	return cur.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).IntPart()
}

func maxLimit(orders []domain.Order) (int64, bool) {
	if len(orders) == 0 {
		return 0, false
	}
	best := orders[0].LimitPrice
	for _, o := range orders[1:] {
		if o.LimitPrice > best {
			best = o.LimitPrice
		}
	}
	return best, true
}

func minLimit(orders []domain.Order) (int64, bool) {
	if len(orders) == 0 {
		return 0, false
	}
	best := orders[0].LimitPrice
	for _, o := range orders[1:] {
		if o.LimitPrice < best {
			best = o.LimitPrice
		}
	}
	return best, true
}
