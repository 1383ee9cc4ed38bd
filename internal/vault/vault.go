package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"fundraising-escrow/internal/guard"
	"fundraising-escrow/internal/model"
	"fundraising-escrow/internal/store"
)

// Accounts is the slice of the ledger the custody model needs.
type Accounts interface {
	Get(ctx context.Context, addr model.Address) (*model.TokenAccount, error)
	Create(ctx context.Context, acct *model.TokenAccount) error
	Credit(ctx context.Context, addr model.Address, amount uint64) error
	Debit(ctx context.Context, addr model.Address, amount uint64) error
}

// Authority is the signing capability of one room's custody accounts.
// Its zero value authorizes nothing.
type Authority struct {
	roomKey model.Address
}

// AuthorityFor rebuilds the room's authority from its host and identifier.
func AuthorityFor(room *model.Room) (Authority, error) {
	key := RoomKey(room.Host, room.RoomID)
	if room.Key != key {
		return Authority{}, guard.ErrInvalidVaultAccount
	}
	return Authority{roomKey: key}, nil
}

// RoomKey returns the room this authority signs for.
func (a Authority) RoomKey() model.Address {
	return a.roomKey
}

// Transfer debits a custody account owned by the room and credits to.
func (a Authority) Transfer(ctx context.Context, accts Accounts, from, to model.Address, amount uint64) error {
	if a.roomKey.IsZero() {
		return guard.ErrUnauthorized
	}
	src, err := Load(ctx, accts, from)
	if err != nil {
		return err
	}
	if src.Owner != a.roomKey || src.Kind == model.AccountWallet {
		return guard.ErrInvalidVaultAccount
	}
	return move(ctx, accts, src, to, amount)
}

// Pay debits a wallet owned by signer and credits to.
func Pay(ctx context.Context, accts Accounts, signer, from, to model.Address, amount uint64) error {
	src, err := Load(ctx, accts, from)
	if err != nil {
		return err
	}
	if src.Kind != model.AccountWallet {
		return guard.ErrInvalidVaultAccount
	}
	if src.Owner != signer {
		return guard.ErrInvalidTokenOwner
	}
	return move(ctx, accts, src, to, amount)
}

func move(ctx context.Context, accts Accounts, src *model.TokenAccount, to model.Address, amount uint64) error {
	dst, err := Load(ctx, accts, to)
	if err != nil {
		return err
	}
	if dst.AssetType != src.AssetType {
		return guard.ErrInvalidTokenMint
	}
	if dst.Address == src.Address {
		return fmt.Errorf("failed to transfer: source and destination are the same account: %w", guard.ErrInvalidTokenOwner)
	}
	if err := accts.Debit(ctx, src.Address, amount); err != nil {
		return ledgerError("debit", err)
	}
	if err := accts.Credit(ctx, dst.Address, amount); err != nil {
		return ledgerError("credit", err)
	}

	log.Debug().
		Str("from", string(src.Address)).
		Str("to", string(dst.Address)).
		Str("asset", string(src.AssetType)).
		Uint64("amount", amount).
		Msg("Transferred")
	return nil
}

func ledgerError(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrInsufficientBalance):
		return guard.ErrInsufficientFunds
	case errors.Is(err, store.ErrBalanceOverflow):
		return guard.ErrArithmeticOverflow
	case errors.Is(err, store.ErrAccountNotFound):
		return guard.ErrAccountNotFound
	default:
		return fmt.Errorf("failed to %s account: %w", op, err)
	}
}

// Load fetches an account, mapping a missing record to guard.ErrAccountNotFound.
func Load(ctx context.Context, accts Accounts, addr model.Address) (*model.TokenAccount, error) {
	acct, err := accts.Get(ctx, addr)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, guard.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acct, nil
}

// VerifyOwnership checks that acct is a custody account of the expected room
// and asset. Any mismatch is ErrInvalidVaultAccount.
func VerifyOwnership(acct *model.TokenAccount, expectedOwner model.Address, expectedAsset model.AssetType) error {
	if acct == nil || acct.Kind == model.AccountWallet {
		return guard.ErrInvalidVaultAccount
	}
	if acct.Owner != expectedOwner || acct.AssetType != expectedAsset {
		return guard.ErrInvalidVaultAccount
	}
	return nil
}

// VerifyDestination checks a payout destination for asset and owner.
func VerifyDestination(acct *model.TokenAccount, owner model.Address, asset model.AssetType) error {
	if acct.AssetType != asset {
		return guard.ErrInvalidTokenMint
	}
	if acct.Owner != owner {
		return guard.ErrInvalidTokenOwner
	}
	return nil
}

// CreateIfAbsent opens the custody account at addr, or re-validates an
// existing one. Prior initialization is never trusted.
func CreateIfAbsent(ctx context.Context, accts Accounts, addr, owner model.Address, asset model.AssetType, kind model.AccountKind) (*model.TokenAccount, error) {
	acct, err := accts.Get(ctx, addr)
	switch {
	case err == nil:
		if acct.Kind != kind {
			return nil, guard.ErrInvalidVaultAccount
		}
		if err := VerifyOwnership(acct, owner, asset); err != nil {
			return nil, err
		}
		return acct, nil
	case !errors.Is(err, store.ErrAccountNotFound):
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	acct = &model.TokenAccount{Address: addr, Owner: owner, AssetType: asset, Kind: kind}
	if err := accts.Create(ctx, acct); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return acct, nil
}

// OpenRoomVault initializes or re-validates the room's main vault.
func OpenRoomVault(ctx context.Context, accts Accounts, room *model.Room) (*model.TokenAccount, error) {
	return CreateIfAbsent(ctx, accts, RoomVaultAddress(room.Key), room.Key, room.FeeAsset, model.AccountVault)
}

// OpenPrizeVault initializes or re-validates the vault of one prize slot.
func OpenPrizeVault(ctx context.Context, accts Accounts, room *model.Room, slot int) (*model.TokenAccount, error) {
	if slot < 0 || slot >= len(room.PrizeSlots) {
		return nil, guard.ErrInvalidWinners
	}
	return CreateIfAbsent(ctx, accts, PrizeVaultAddress(room.Key, slot), room.Key, room.PrizeSlots[slot].AssetType, model.AccountPrizeVault)
}

// Associated returns the canonical wallet of owner for asset, creating it if absent.
func Associated(ctx context.Context, accts Accounts, owner model.Address, asset model.AssetType) (*model.TokenAccount, error) {
	addr := AssociatedAddress(owner, asset)
	acct, err := accts.Get(ctx, addr)
	switch {
	case err == nil:
		if err := VerifyDestination(acct, owner, asset); err != nil {
			return nil, err
		}
		return acct, nil
	case !errors.Is(err, store.ErrAccountNotFound):
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	acct = &model.TokenAccount{Address: addr, Owner: owner, AssetType: asset, Kind: model.AccountWallet}
	if err := accts.Create(ctx, acct); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return acct, nil
}
