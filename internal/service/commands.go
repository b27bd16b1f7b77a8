package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/UnironicHeyMoon/HMSE/internal/command"
	"github.com/UnironicHeyMoon/HMSE/internal/domain"
	"github.com/UnironicHeyMoon/HMSE/internal/engine"
	"github.com/UnironicHeyMoon/HMSE/internal/ledger"
	"github.com/UnironicHeyMoon/HMSE/internal/orderbook"
	"github.com/UnironicHeyMoon/HMSE/internal/pricetracker"
	"github.com/UnironicHeyMoon/HMSE/internal/report"
)

// CoinPayer pays platform currency out to a user, used by WITHDRAW. The
// platform client implements it.
type CoinPayer interface {
	GiveCoins(ctx context.Context, username string, amount int64) error
}

// Handler executes parsed user commands. Every command runs in its own unit
// of work, and every failure kind is converted into a human-readable reply;
// typed errors never leak to the platform.
type Handler struct {
	store      domain.Store
	book       *orderbook.Book
	payer      CoinPayer
	defaultTTL int
	log        *slog.Logger
}

// NewHandler wires a command handler. defaultTTL is the order lifetime used
// when the command gives no TIME. payer may be nil, which disables
// withdrawal payout (useful in tests).
func NewHandler(store domain.Store, book *orderbook.Book, payer CoinPayer, defaultTTL int) *Handler {
	return &Handler{
		store:      store,
		book:       book,
		payer:      payer,
		defaultTTL: defaultTTL,
		log:        slog.Default().With("module", "commands"),
	}
}

// Handle parses and executes one chat message from user, returning the reply
// text.
func (h *Handler) Handle(ctx context.Context, user domain.User, message string) string {
	req := command.Parse(message)
	if req.Ticks == 0 {
		req.Ticks = h.defaultTTL
	}

	var reply string
	err := h.store.Unit(func(tx domain.Store) error {
		r, err := h.dispatch(ctx, tx, user, req)
		reply = r
		return err
	})
	if err == nil {
		return reply
	}

	h.log.Warn("command failed",
		slog.String("user", user.Name),
		slog.String("kind", string(req.Kind)),
		slog.Any("error", err))

	switch {
	case domain.IsInvariantViolation(err):
		return fmt.Sprintf("Nice try. I thought of that edge condition. The error was: %v.", err)
	case domain.IsValidation(err):
		return fmt.Sprintf("That doesn't work: %v.", err)
	case domain.IsNotFound(err):
		return fmt.Sprintf("Sorry: %v.", err)
	default:
		return "Something got messed up :( Your command was not processed."
	}
}

func (h *Handler) dispatch(ctx context.Context, tx domain.Store, user domain.User, req command.Request) (string, error) {
	led := ledger.New(tx)
	book := h.book.Bind(tx)

	switch req.Kind {
	case command.KindBalance:
		assets, err := tx.Assets()
		if err != nil {
			return "", err
		}
		return report.Balance(led, assets, user)

	case command.KindBuy:
		return h.placeBuy(tx, led, book, user, req)

	case command.KindSell:
		return h.placeSell(tx, led, book, user, req)

	case command.KindCancel:
		return h.cancel(tx, led, book, user, req)

	case command.KindWithdraw:
		return h.withdraw(ctx, led, user, req)

	case command.KindMarket:
		asset, err := tx.AssetByName(req.Asset)
		if err != nil {
			return "", err
		}
		assets, err := tx.Assets()
		if err != nil {
			return "", err
		}
		m := engine.Match(book.Orders(), assets)[asset]
		return report.MarketStatus(m), nil

	case command.KindTicker:
		assets, err := tx.Assets()
		if err != nil {
			return "", err
		}
		return report.Ticker(pricetracker.New(tx), assets)

	case command.KindUnknown:
		return fmt.Sprintf("Sorry, I didn't understand that. %q is not a valid command.", req.Raw), nil

	case command.KindMalformed:
		return fmt.Sprintf("Malformed command: %s.", req.Problem), nil

	default:
		return "Huh. That's weird.", nil
	}
}

func (h *Handler) placeBuy(tx domain.Store, led *ledger.Ledger, book *orderbook.Book, user domain.User, req command.Request) (string, error) {
	asset, err := tx.AssetByName(req.Asset)
	if err != nil {
		return "", err
	}
	if err := validateOrderRequest(req); err != nil {
		return "", err
	}

	total := req.Price * int64(req.Count)
	balance, err := led.Balance(user)
	if err != nil {
		return "", err
	}
	if balance < total {
		return "You don't have enough money for that.", nil
	}
	if book.IsSelling(user, asset) {
		return "You aren't allowed to buy and sell an asset at the same time.", nil
	}

	if err := led.MoveToEscrow(user, total); err != nil {
		return "", err
	}
	for i := 0; i < req.Count; i++ {
		o := domain.Order{Owner: user, Asset: asset, Kind: domain.KindBuy, LimitPrice: req.Price, TicksRemaining: req.Ticks}
		if err := book.Add(&o); err != nil {
			return "", err
		}
	}

	h.log.Info("buy orders placed", slog.String("user", user.Name), slog.String("asset", asset.Name), slog.Int("count", req.Count), slog.Int64("max_price", req.Price))
	return fmt.Sprintf("Placed a BUY order for %d share(s) of %s for a maximum price of %d, expiring in %d ticks.",
		req.Count, asset.Name, req.Price, req.Ticks), nil
}

func (h *Handler) placeSell(tx domain.Store, led *ledger.Ledger, book *orderbook.Book, user domain.User, req command.Request) (string, error) {
	asset, err := tx.AssetByName(req.Asset)
	if err != nil {
		return "", err
	}
	if err := validateOrderRequest(req); err != nil {
		return "", err
	}

	owned, err := led.Holding(user, asset)
	if err != nil {
		return "", err
	}
	if owned < int64(req.Count) {
		return "You don't have enough shares for that.", nil
	}
	if book.IsBuying(user, asset) {
		return "You aren't allowed to buy and sell an asset at the same time.", nil
	}

	if err := led.MoveAssetToEscrow(user, asset, int64(req.Count)); err != nil {
		return "", err
	}
	for i := 0; i < req.Count; i++ {
		o := domain.Order{Owner: user, Asset: asset, Kind: domain.KindSell, LimitPrice: req.Price, TicksRemaining: req.Ticks}
		if err := book.Add(&o); err != nil {
			return "", err
		}
	}

	h.log.Info("sell orders placed", slog.String("user", user.Name), slog.String("asset", asset.Name), slog.Int("count", req.Count), slog.Int64("price", req.Price))
	return fmt.Sprintf("Placed a SELL order for %d share(s) of %s for a minimum price of %d, expiring in %d ticks.",
		req.Count, asset.Name, req.Price, req.Ticks), nil
}

func (h *Handler) cancel(tx domain.Store, led *ledger.Ledger, book *orderbook.Book, user domain.User, req command.Request) (string, error) {
	asset, err := tx.AssetByName(req.Asset)
	if err != nil {
		return "", err
	}

	orders := book.OrdersFor(user, asset)
	if len(orders) == 0 {
		return fmt.Sprintf("You have no open orders for %s.", asset.Name), nil
	}

	// All refunds run before the first removal. Book removals mutate the
	// shared in-memory mirror immediately, so a refused refund after an
	// earlier removal would roll back the rows but not the mirror.
	var b strings.Builder
	for _, o := range orders {
		switch o.Kind {
		case domain.KindBuy:
			if err := led.MoveFromEscrow(user, o.LimitPrice); err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "Canceled %s. Refunded %d.\n", o.Description(), o.LimitPrice)
		case domain.KindSell:
			if err := led.MoveAssetFromEscrow(user, asset, 1); err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "Canceled %s. Refunded 1 %s.\n", o.Description(), asset.Name)
		}
	}
	for _, o := range orders {
		if _, err := book.Remove(o); err != nil {
			return "", err
		}
	}

	h.log.Info("orders canceled", slog.String("user", user.Name), slog.String("asset", asset.Name), slog.Int("count", len(orders)))
	return b.String(), nil
}

func (h *Handler) withdraw(ctx context.Context, led *ledger.Ledger, user domain.User, req command.Request) (string, error) {
	if req.Amount <= 0 {
		return "", &domain.ValidationError{Reason: "withdrawal amount must be positive"}
	}
	balance, err := led.Balance(user)
	if err != nil {
		return "", err
	}
	if balance < req.Amount {
		return "Nice try. You don't have enough balance for that.", nil
	}
	if err := led.Withdraw(user, req.Amount); err != nil {
		return "", err
	}
	if h.payer != nil {
		// Payout inside the unit: if the platform refuses, the withdrawal
		// rolls back with it.
		if err := h.payer.GiveCoins(ctx, user.Name, req.Amount); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("Withdrew %d.", req.Amount), nil
}

func validateOrderRequest(req command.Request) error {
	if req.Price <= 0 {
		return &domain.ValidationError{Reason: "price must be positive"}
	}
	if req.Count <= 0 {
		return &domain.ValidationError{Reason: "count must be positive"}
	}
	if req.Ticks <= 0 {
		return &domain.ValidationError{Reason: "time must be positive"}
	}
	return nil
}
