// Package service orchestrates the exchange: the per-tick settlement cycle,
// user command handling, inbound platform ingestion and asset issuance. It
// owns no persistent state itself; it borrows the store, order book and
// notification queue it was constructed with.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/UnironicHeyMoon/HMSE/internal/domain"
	"github.com/UnironicHeyMoon/HMSE/internal/engine"
	"github.com/UnironicHeyMoon/HMSE/internal/ledger"
	"github.com/UnironicHeyMoon/HMSE/internal/notify"
	"github.com/UnironicHeyMoon/HMSE/internal/orderbook"
	"github.com/UnironicHeyMoon/HMSE/internal/pricetracker"
)

// DigestSender delivers one rendered digest to a user. The platform client
// implements it; tests substitute a recorder.
type DigestSender interface {
	SendDigest(ctx context.Context, user domain.User, body string) error
}

// PriceBroadcaster receives the finished price points of a tick. The
// websocket hub implements it.
type PriceBroadcaster interface {
	BroadcastTick(tick int64, points []domain.PricePoint)
}

// TickProcessor drives one discrete settlement cycle: match, settle, expire,
// notify, price, advance. Each trade and each expiry is its own unit of
// work; a failure in one unit never aborts the rest of the tick.
type TickProcessor struct {
	store  domain.Store
	book   *orderbook.Book
	queue  *notify.Queue
	sender DigestSender
	caster PriceBroadcaster
	log    *slog.Logger
}

// NewTickProcessor wires a processor. sender may be nil, in which case
// digests are rendered and dropped (offline mode).
func NewTickProcessor(store domain.Store, book *orderbook.Book, queue *notify.Queue, sender DigestSender) *TickProcessor {
	return &TickProcessor{
		store:  store,
		book:   book,
		queue:  queue,
		sender: sender,
		log:    slog.Default().With("module", "tick"),
	}
}

// AttachBroadcaster streams each tick's price points to caster. Used by
// serve mode; offline runs leave it unset.
func (p *TickProcessor) AttachBroadcaster(caster PriceBroadcaster) {
	p.caster = caster
}

// Process runs exactly one tick. It returns an error only when the cycle
// cannot meaningfully start or finish (storage unavailable); per-trade and
// per-expiry failures are converted into notifications and log entries.
func (p *TickProcessor) Process(ctx context.Context) error {
	tick, err := p.store.CurrentTick()
	if err != nil {
		return err
	}
	assets, err := p.store.Assets()
	if err != nil {
		return err
	}

	p.log.Info("processing tick", slog.Int64("tick", tick), slog.Int("open_orders", len(p.book.Orders())))

	markets := engine.Match(p.book.Orders(), assets)
	settled := p.settle(markets)
	p.expire(settled)
	p.flush(ctx)
	p.price(markets, assets, tick)

	if p.caster != nil {
		points := make([]domain.PricePoint, 0, len(assets))
		for _, asset := range assets {
			pp, err := p.store.PriceAt(asset, tick)
			if err != nil || pp == nil {
				continue
			}
			points = append(points, *pp)
		}
		p.caster.BroadcastTick(tick, points)
	}

	return p.store.Unit(func(tx domain.Store) error {
		return tx.SetCurrentTick(tick + 1)
	})
}

// settle applies every completed sale in engine order, one unit of work per
// trade. It returns the ids of orders consumed by successful trades.
func (p *TickProcessor) settle(markets map[domain.Asset]*engine.Market) map[int64]bool {
	settled := make(map[int64]bool)

	for _, m := range orderedMarkets(markets) {
		explanation := "Seller's market. Buyer pays buyer's max price."
		if m.BuyersMarket {
			explanation = "Buyer's market. Buyer pays seller's listed price."
		}

		for _, sale := range m.CompletedSales {
			sale := sale
			err := p.store.Unit(func(tx domain.Store) error {
				led := ledger.New(tx)
				bound := p.book.Bind(tx)
				if err := led.SettleSale(sale.Buy.Owner, sale.Sell.Owner, m.Asset, sale.SalePrice, sale.Buy.LimitPrice); err != nil {
					return err
				}
				if _, err := bound.Remove(sale.Buy); err != nil {
					return err
				}
				_, err := bound.Remove(sale.Sell)
				return err
			})

			switch {
			case err == nil:
				settled[sale.Buy.ID] = true
				settled[sale.Sell.ID] = true
				p.queue.Enqueue(sale.Sell.Owner, sale.Sell, notify.SeveritySuccess,
					fmt.Sprintf("Sold $%s for %d. (%s)", m.Asset.Name, sale.SalePrice, explanation))
				p.queue.Enqueue(sale.Buy.Owner, sale.Buy, notify.SeveritySuccess,
					fmt.Sprintf("Bought $%s for %d. (%s)", m.Asset.Name, sale.SalePrice, explanation))
			case domain.IsInvariantViolation(err):
				// Either corrupted rows or a manipulated order pair. Skip the
				// trade, keep both orders open, tell both parties.
				p.log.Warn("suspicious trade skipped",
					slog.String("asset", m.Asset.Name),
					slog.String("buyer", sale.Buy.Owner.Name),
					slog.String("seller", sale.Sell.Owner.Name),
					slog.Any("error", err))
				p.queue.Enqueue(sale.Sell.Owner, sale.Sell, notify.SeverityError,
					"Your sale of $"+m.Asset.Name+" could not be settled: the order pair did not check out. If this wasn't you, it was probably @"+sale.Buy.Owner.Name+".")
				p.queue.Enqueue(sale.Buy.Owner, sale.Buy, notify.SeverityError,
					"Your purchase of $"+m.Asset.Name+" could not be settled: the order pair did not check out. If this wasn't you, it was probably @"+sale.Sell.Owner.Name+".")
			default:
				p.log.Error("trade settlement failed",
					slog.String("asset", m.Asset.Name),
					slog.Int64("buy_order", sale.Buy.ID),
					slog.Int64("sell_order", sale.Sell.ID),
					slog.Int64("sale_price", sale.SalePrice),
					slog.Any("error", err))
			}
		}

		p.enqueueFailures(m)
	}

	return settled
}

func (p *TickProcessor) enqueueFailures(m *engine.Market) {
	for _, o := range m.Failed.Outbidded {
		p.queue.Enqueue(o.Owner, o, notify.SeverityInfo, "You were outbidded. Consider increasing your max price.")
	}
	for _, o := range m.Failed.Outpriced {
		p.queue.Enqueue(o.Owner, o, notify.SeverityInfo, "You were outpriced. Consider decreasing the listed price of the asset.")
	}
	for _, o := range m.Failed.NoSellers {
		p.queue.Enqueue(o.Owner, o, notify.SeverityInfo, "Dead market. It seems no-one is selling.")
	}
	for _, o := range m.Failed.NoBuyers {
		p.queue.Enqueue(o.Owner, o, notify.SeverityInfo, "Dead market. It seems no-one is buying.")
	}
	for _, o := range m.Failed.Stingy {
		p.queue.Enqueue(o.Owner, o, notify.SeverityWarning, "It was a buyer's market, and the asking price was still too high for you.")
	}
}

// expire decrements the lifetime of every order settlement did not touch,
// refunding the escrow reservation of orders that reach zero. Refund and
// removal share one unit of work per order.
func (p *TickProcessor) expire(settled map[int64]bool) {
	for _, o := range p.book.Orders() {
		if settled[o.ID] {
			continue
		}
		o := o
		willExpire := o.TicksRemaining <= 1

		err := p.store.Unit(func(tx domain.Store) error {
			if willExpire {
				led := ledger.New(tx)
				var err error
				if o.Kind == domain.KindBuy {
					err = led.MoveFromEscrow(o.Owner, o.LimitPrice)
				} else {
					err = led.MoveAssetFromEscrow(o.Owner, o.Asset, 1)
				}
				if err != nil {
					return err
				}
			}
			_, err := p.book.Bind(tx).DecrementExpiry(o)
			return err
		})
		if err != nil {
			p.log.Error("expiry failed",
				slog.Int64("order", o.ID),
				slog.String("owner", o.Owner.Name),
				slog.Any("error", err))
			continue
		}
		if willExpire {
			if o.Kind == domain.KindBuy {
				p.queue.Enqueue(o.Owner, o, notify.SeverityInfo, "BUY order expired. Your escrow was refunded.")
			} else {
				p.queue.Enqueue(o.Owner, o, notify.SeverityInfo, "SELL order expired. Your $"+o.Asset.Name+" was returned.")
			}
		}
	}
}

// flush delivers queued digests. Delivery failure for one user never blocks
// the others.
func (p *TickProcessor) flush(ctx context.Context) {
	digests := p.queue.Digests()
	p.queue.Reset()
	if p.sender == nil {
		return
	}
	for _, d := range digests {
		if err := p.sender.SendDigest(ctx, d.User, d.Body); err != nil {
			p.log.Error("digest delivery failed", slog.String("user", d.User.Name), slog.Any("error", err))
		}
	}
}

// price advances the history of every asset: mean sale price where trades
// happened, carried-forward price where the market was dead this tick.
func (p *TickProcessor) price(markets map[domain.Asset]*engine.Market, assets []domain.Asset, tick int64) {
	for _, asset := range assets {
		asset := asset
		m := markets[asset]
		err := p.store.Unit(func(tx domain.Store) error {
			tracker := pricetracker.New(tx)
			if m != nil && len(m.CompletedSales) > 0 {
				return tracker.SetPrice(asset, meanSalePrice(m.CompletedSales), tick)
			}
			return tracker.MaintainPrice(asset, tick)
		})
		if err != nil {
			p.log.Error("price update failed", slog.String("asset", asset.Name), slog.Any("error", err))
		}
	}
}

func meanSalePrice(sales []engine.Sale) int64 {
	prices := make([]decimal.Decimal, 0, len(sales))
	for _, s := range sales {
		prices = append(prices, decimal.NewFromInt(s.SalePrice))
	}
	return decimal.Avg(prices[0], prices[1:]...).IntPart()
}

// orderedMarkets returns the markets in asset-id order so settlement and
// logging are deterministic.
func orderedMarkets(markets map[domain.Asset]*engine.Market) []*engine.Market {
	ordered := make([]*engine.Market, 0, len(markets))
	for _, m := range markets {
		ordered = append(ordered, m)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Asset.ID < ordered[j].Asset.ID })
	return ordered
}
