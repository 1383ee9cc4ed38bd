package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"fundraising-escrow/internal/guard"
	"fundraising-escrow/internal/model"
	"fundraising-escrow/internal/pkg/lock"
	"fundraising-escrow/internal/store"
	"fundraising-escrow/internal/vault"
)

// LedgerService exposes participant wallets of the value-transfer substrate.
type LedgerService struct {
	runner
}

// NewLedgerService creates a LedgerService.
func NewLedgerService(st store.Store, locks *lock.KeyLock, clock Clock) *LedgerService {
	return &LedgerService{runner: newRunner(st, locks, nil, clock)}
}

// OpenAccount returns the owner's wallet for asset, creating it if absent.
func (s *LedgerService) OpenAccount(ctx context.Context, owner model.Address, asset model.AssetType) (*model.TokenAccount, error) {
	if owner.IsZero() {
		return nil, guard.ErrUnauthorized
	}
	if asset == "" {
		return nil, guard.ErrInvalidTokenMint
	}
	var acct *model.TokenAccount
	err := s.run(ctx, "open_account", "", func(tx store.Tx, _ time.Time, _ func(*model.Event)) error {
		var err error
		acct, err = vault.Associated(ctx, tx.Ledger(), owner, asset)
		return err
	})
	return acct, err
}

// Mint credits amount to the owner's wallet. Admin only.
func (s *LedgerService) Mint(ctx context.Context, caller, owner model.Address, asset model.AssetType, amount uint64) (*model.TokenAccount, error) {
	if owner.IsZero() {
		return nil, guard.ErrInvalidAddress
	}
	if asset == "" {
		return nil, guard.ErrInvalidTokenMint
	}
	if amount == 0 {
		return nil, guard.ErrInvalidAmount
	}
	if err := guard.ValidateAmount(amount); err != nil {
		return nil, err
	}

	var acct *model.TokenAccount
	err := s.run(ctx, "mint", "", func(tx store.Tx, _ time.Time, _ func(*model.Event)) error {
		cfg, err := loadPlatform(ctx, tx)
		if err != nil {
			return err
		}
		if err := guard.VerifyAuthority(caller, cfg.Admin); err != nil {
			return err
		}
		acct, err = vault.Associated(ctx, tx.Ledger(), owner, asset)
		if err != nil {
			return err
		}
		if err := tx.Ledger().Credit(ctx, acct.Address, amount); err != nil {
			if errors.Is(err, store.ErrBalanceOverflow) {
				return guard.ErrArithmeticOverflow
			}
			return fmt.Errorf("failed to credit account: %w", err)
		}
		acct.Balance += amount
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("owner", string(owner)).
		Str("asset", string(asset)).
		Uint64("amount", amount).
		Msg("Minted")
	return acct, nil
}

// Balances lists every account the owner holds.
func (s *LedgerService) Balances(ctx context.Context, owner model.Address) ([]*model.TokenAccount, error) {
	var accts []*model.TokenAccount
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		accts, err = tx.Ledger().ListByOwner(ctx, owner)
		return err
	})
	return accts, err
}

// Balance returns the owner's wallet balance for asset, zero if it has none.
func (s *LedgerService) Balance(ctx context.Context, owner model.Address, asset model.AssetType) (uint64, error) {
	accts, err := s.Balances(ctx, owner)
	if err != nil {
		return 0, err
	}
	addr := vault.AssociatedAddress(owner, asset)
	for _, a := range accts {
		if a.Address == addr {
			return a.Balance, nil
		}
	}
	return 0, nil
}
