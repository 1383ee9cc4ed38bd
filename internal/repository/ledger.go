package repository

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"fundraising-escrow/internal/model"
	"fundraising-escrow/internal/store"
)

// LedgerRepository handles token account persistence within one transaction.
type LedgerRepository struct {
	tx pgx.Tx
}

// Get retrieves an account by address.
func (r *LedgerRepository) Get(ctx context.Context, addr model.Address) (*model.TokenAccount, error) {
	const query = `
		SELECT address, owner, asset_type, balance, kind, created_at, updated_at
		FROM token_accounts
		WHERE address = $1
	`
	acct, err := scanAccount(r.tx.QueryRow(ctx, query, string(addr)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acct, nil
}

// Create opens an account with its initial balance.
func (r *LedgerRepository) Create(ctx context.Context, acct *model.TokenAccount) error {
	const query = `
		INSERT INTO token_accounts (address, owner, asset_type, balance, kind, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`
	if acct.Balance > math.MaxInt64 {
		return store.ErrBalanceOverflow
	}
	_, err := r.tx.Exec(ctx, query,
		string(acct.Address),
		string(acct.Owner),
		string(acct.AssetType),
		int64(acct.Balance),
		string(acct.Kind),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return store.ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// Credit adds amount to the balance. Balances are capped at MaxInt64.
func (r *LedgerRepository) Credit(ctx context.Context, addr model.Address, amount uint64) error {
	const query = `
		UPDATE token_accounts
		SET balance = balance + $2, updated_at = NOW()
		WHERE address = $1 AND balance <= 9223372036854775807 - $2
	`
	if amount > math.MaxInt64 {
		return store.ErrBalanceOverflow
	}
	tag, err := r.tx.Exec(ctx, query, string(addr), int64(amount))
	if err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOr(ctx, addr, store.ErrBalanceOverflow)
	}
	return nil
}

// Debit subtracts amount from the balance if it is sufficient.
func (r *LedgerRepository) Debit(ctx context.Context, addr model.Address, amount uint64) error {
	const query = `
		UPDATE token_accounts
		SET balance = balance - $2, updated_at = NOW()
		WHERE address = $1 AND balance >= $2
	`
	if amount > math.MaxInt64 {
		return store.ErrInsufficientBalance
	}
	tag, err := r.tx.Exec(ctx, query, string(addr), int64(amount))
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOr(ctx, addr, store.ErrInsufficientBalance)
	}
	return nil
}

// missingOr tells a missing account apart from a failed balance condition.
func (r *LedgerRepository) missingOr(ctx context.Context, addr model.Address, cause error) error {
	const query = `SELECT EXISTS (SELECT 1 FROM token_accounts WHERE address = $1)`

	var exists bool
	if err := r.tx.QueryRow(ctx, query, string(addr)).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check account: %w", err)
	}
	if !exists {
		return store.ErrAccountNotFound
	}
	return cause
}

// ListByOwner returns every account owned by owner.
func (r *LedgerRepository) ListByOwner(ctx context.Context, owner model.Address) ([]*model.TokenAccount, error) {
	const query = `
		SELECT address, owner, asset_type, balance, kind, created_at, updated_at
		FROM token_accounts
		WHERE owner = $1
		ORDER BY address
	`
	rows, err := r.tx.Query(ctx, query, string(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accts []*model.TokenAccount
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accts = append(accts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accts, nil
}

func scanAccount(row pgx.Row) (*model.TokenAccount, error) {
	var (
		acct                     model.TokenAccount
		addr, owner, asset, kind string
		balance                  int64
	)
	if err := row.Scan(&addr, &owner, &asset, &balance, &kind, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
		return nil, err
	}
	acct.Address = model.Address(addr)
	acct.Owner = model.Address(owner)
	acct.AssetType = model.AssetType(asset)
	acct.Balance = uint64(balance)
	acct.Kind = model.AccountKind(kind)
	return &acct, nil
}
