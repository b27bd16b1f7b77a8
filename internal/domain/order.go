package domain

import "fmt"

// OrderKind tags an Order as a buy or sell intent.
type OrderKind string

const (
	KindBuy  OrderKind = "BUY"
	KindSell OrderKind = "SELL"
)

// Order is a time-limited intent to trade exactly one unit of an asset.
// For a buy order LimitPrice is the maximum the owner will pay; for a sell
// order it is the minimum the owner will accept. ID is zero until the order
// book persists it; assigned ids are monotonically increasing, so id order
// is arrival order.
type Order struct {
	ID             int64     `json:"id"`
	Owner          User      `json:"owner"`
	Asset          Asset     `json:"asset"`
	Kind           OrderKind `json:"kind"`
	LimitPrice     int64     `json:"limit_price"`
	TicksRemaining int       `json:"ticks_remaining"`
}

// Description renders the order the way users see it in notifications.
func (o Order) Description() string {
	switch o.Kind {
	case KindBuy:
		return fmt.Sprintf("BUY %s FOR <= %d (%d TICKS LEFT)", o.Asset.Name, o.LimitPrice, o.TicksRemaining)
	case KindSell:
		return fmt.Sprintf("SELL %s FOR >= %d (%d TICKS LEFT)", o.Asset.Name, o.LimitPrice, o.TicksRemaining)
	default:
		return fmt.Sprintf("%s %s @ %d", o.Kind, o.Asset.Name, o.LimitPrice)
	}
}
