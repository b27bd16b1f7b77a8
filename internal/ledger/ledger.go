// Package ledger moves funds and asset units between users and between their
// available and escrow buckets. Every mutation re-checks the non-negativity
// invariants and refuses with a typed error instead of writing a negative
// bucket; callers decide what to do with the refused unit of work.
package ledger

import (
	"fmt"
	"log/slog"

	"github.com/UnironicHeyMoon/HMSE/internal/domain"
)

// Ledger operates on whichever Store it was constructed with. For mutations
// that must be atomic, construct it inside a Store.Unit callback with the
// unit-scoped store.
type Ledger struct {
	store domain.Store
	log   *slog.Logger
}

// New creates a Ledger bound to store.
func New(store domain.Store) *Ledger {
	return &Ledger{
		store: store,
		log:   slog.Default().With("module", "ledger"),
	}
}

// Transfer moves amount from the giver's escrow balance to the receiver's
// available balance.
func (l *Ledger) Transfer(from, to domain.User, amount int64) error {
	fromEscrow, err := l.store.EscrowBalance(from)
	if err != nil {
		return err
	}
	toBalance, err := l.store.Balance(to)
	if err != nil {
		return err
	}

	newEscrow := fromEscrow - amount
	if newEscrow < 0 {
		return &domain.InvariantViolation{
			Op:     "transfer",
			Detail: fmt.Sprintf("%s's escrow balance would be %d", from.Name, newEscrow),
		}
	}

	if err := l.store.SetEscrowBalance(from, newEscrow); err != nil {
		return err
	}
	if err := l.store.SetBalance(to, toBalance+amount); err != nil {
		return err
	}

	l.log.Info("transfer", slog.Int64("amount", amount), slog.String("from", from.Name), slog.String("to", to.Name))
	return nil
}

// Deposit adds new money to the user's available balance.
func (l *Ledger) Deposit(user domain.User, amount int64) error {
	if amount < 0 {
		return &domain.ValidationError{Reason: "cannot deposit a negative amount"}
	}
	balance, err := l.store.Balance(user)
	if err != nil {
		return err
	}
	if err := l.store.SetBalance(user, balance+amount); err != nil {
		return err
	}
	l.log.Info("deposit", slog.Int64("amount", amount), slog.String("user", user.Name))
	return nil
}

// Withdraw removes money from the user's available balance.
func (l *Ledger) Withdraw(user domain.User, amount int64) error {
	if amount < 0 {
		return &domain.ValidationError{Reason: "cannot withdraw a negative amount"}
	}
	balance, err := l.store.Balance(user)
	if err != nil {
		return err
	}
	newBalance := balance - amount
	if newBalance < 0 {
		return &domain.InvariantViolation{
			Op:     "withdraw",
			Detail: fmt.Sprintf("%s's balance would be %d", user.Name, newBalance),
		}
	}
	if err := l.store.SetBalance(user, newBalance); err != nil {
		return err
	}
	l.log.Info("withdraw", slog.Int64("amount", amount), slog.String("user", user.Name))
	return nil
}

// TransferAsset moves exactly one unit of asset from the giver's escrow
// holding to the receiver's available holding.
func (l *Ledger) TransferAsset(from, to domain.User, asset domain.Asset) error {
	fromEscrow, err := l.store.EscrowHolding(from, asset)
	if err != nil {
		return err
	}
	toOwned, err := l.store.Holding(to, asset)
	if err != nil {
		return err
	}

	newEscrow := fromEscrow - 1
	if newEscrow < 0 {
		return &domain.InvariantViolation{
			Op:     "transferAsset",
			Detail: fmt.Sprintf("%s's escrow holding of %s would be %d", from.Name, asset.Name, newEscrow),
		}
	}

	if err := l.store.SetEscrowHolding(from, asset, newEscrow); err != nil {
		return err
	}
	if err := l.store.SetHolding(to, asset, toOwned+1); err != nil {
		return err
	}

	l.log.Info("transfer asset", slog.String("asset", asset.Name), slog.String("from", from.Name), slog.String("to", to.Name))
	return nil
}

// MoveToEscrow reserves amount of the user's available balance. The
// remaining available balance must stay strictly positive.
func (l *Ledger) MoveToEscrow(user domain.User, amount int64) error {
	if amount <= 0 {
		return &domain.ValidationError{Reason: "escrow amount must be positive"}
	}
	balance, err := l.store.Balance(user)
	if err != nil {
		return err
	}
	escrow, err := l.store.EscrowBalance(user)
	if err != nil {
		return err
	}

	newBalance := balance - amount
	if newBalance <= 0 {
		return &domain.InvariantViolation{
			Op:     "moveToEscrow",
			Detail: fmt.Sprintf("%s's available balance would be %d", user.Name, newBalance),
		}
	}

	if err := l.store.SetBalance(user, newBalance); err != nil {
		return err
	}
	if err := l.store.SetEscrowBalance(user, escrow+amount); err != nil {
		return err
	}

	l.log.Info("move to escrow", slog.Int64("amount", amount), slog.String("user", user.Name))
	return nil
}

// MoveFromEscrow releases amount of the user's escrow balance back to the
// available balance.
func (l *Ledger) MoveFromEscrow(user domain.User, amount int64) error {
	if amount <= 0 {
		return &domain.ValidationError{Reason: "escrow amount must be positive"}
	}
	balance, err := l.store.Balance(user)
	if err != nil {
		return err
	}
	escrow, err := l.store.EscrowBalance(user)
	if err != nil {
		return err
	}

	newEscrow := escrow - amount
	if newEscrow < 0 {
		return &domain.InvariantViolation{
			Op:     "moveFromEscrow",
			Detail: fmt.Sprintf("%s's escrow balance would be %d", user.Name, newEscrow),
		}
	}

	if err := l.store.SetEscrowBalance(user, newEscrow); err != nil {
		return err
	}
	if err := l.store.SetBalance(user, balance+amount); err != nil {
		return err
	}

	l.log.Info("move from escrow", slog.Int64("amount", amount), slog.String("user", user.Name))
	return nil
}

// MoveAssetToEscrow reserves count units of the user's holding.
func (l *Ledger) MoveAssetToEscrow(user domain.User, asset domain.Asset, count int64) error {
	if count <= 0 {
		return &domain.ValidationError{Reason: "escrow count must be positive"}
	}
	owned, err := l.store.Holding(user, asset)
	if err != nil {
		return err
	}
	escrow, err := l.store.EscrowHolding(user, asset)
	if err != nil {
		return err
	}

	newOwned := owned - count
	if newOwned < 0 {
		return &domain.InvariantViolation{
			Op:     "moveAssetToEscrow",
			Detail: fmt.Sprintf("%s's holding of %s would be %d", user.Name, asset.Name, newOwned),
		}
	}

	if err := l.store.SetHolding(user, asset, newOwned); err != nil {
		return err
	}
	if err := l.store.SetEscrowHolding(user, asset, escrow+count); err != nil {
		return err
	}

	l.log.Info("move asset to escrow", slog.Int64("count", count), slog.String("asset", asset.Name), slog.String("user", user.Name))
	return nil
}

// MoveAssetFromEscrow releases count units of the user's escrow holding.
func (l *Ledger) MoveAssetFromEscrow(user domain.User, asset domain.Asset, count int64) error {
	if count <= 0 {
		return &domain.ValidationError{Reason: "escrow count must be positive"}
	}
	owned, err := l.store.Holding(user, asset)
	if err != nil {
		return err
	}
	escrow, err := l.store.EscrowHolding(user, asset)
	if err != nil {
		return err
	}

	newEscrow := escrow - count
	if newEscrow < 0 {
		return &domain.InvariantViolation{
			Op:     "moveAssetFromEscrow",
			Detail: fmt.Sprintf("%s's escrow holding of %s would be %d", user.Name, asset.Name, newEscrow),
		}
	}

	if err := l.store.SetEscrowHolding(user, asset, newEscrow); err != nil {
		return err
	}
	if err := l.store.SetHolding(user, asset, owned+count); err != nil {
		return err
	}

	l.log.Info("move asset from escrow", slog.Int64("count", count), slog.String("asset", asset.Name), slog.String("user", user.Name))
	return nil
}

// SettleSale executes one trade: the sale price moves from the buyer's escrow
// to the seller, one unit moves from the seller's escrow to the buyer, and
// any difference between the buyer's limit and the sale price is refunded to
// the buyer's available balance. Run it inside a Store.Unit so the three
// steps commit or roll back together.
func (l *Ledger) SettleSale(buyer, seller domain.User, asset domain.Asset, salePrice, buyerLimit int64) error {
	l.log.Info("settling sale",
		slog.String("asset", asset.Name),
		slog.String("buyer", buyer.Name),
		slog.String("seller", seller.Name),
		slog.Int64("sale_price", salePrice))

	if err := l.Transfer(buyer, seller, salePrice); err != nil {
		return err
	}
	if err := l.TransferAsset(seller, buyer, asset); err != nil {
		return err
	}
	if buyerLimit > salePrice {
		return l.MoveFromEscrow(buyer, buyerLimit-salePrice)
	}
	return nil
}

// Balance returns the user's available balance.
func (l *Ledger) Balance(user domain.User) (int64, error) {
	return l.store.Balance(user)
}

// EscrowBalance returns the user's reserved balance.
func (l *Ledger) EscrowBalance(user domain.User) (int64, error) {
	return l.store.EscrowBalance(user)
}

// Holding returns how many units of asset the user owns outright.
func (l *Ledger) Holding(user domain.User, asset domain.Asset) (int64, error) {
	return l.store.Holding(user, asset)
}

// EscrowHolding returns how many units of asset the user has reserved.
func (l *Ledger) EscrowHolding(user domain.User, asset domain.Asset) (int64, error) {
	return l.store.EscrowHolding(user, asset)
}
