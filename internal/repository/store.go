// Package repository provides the PostgreSQL implementation of store.Store.
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fundraising-escrow/internal/store"
)

// PostgresStore runs each operation in one database transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// WithTx begins a transaction, runs fn and commits only if fn succeeds.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Platform() store.PlatformRepository { return &PlatformRepository{tx: t.tx} }
func (t *pgTx) Rooms() store.RoomRepository        { return &RoomRepository{tx: t.tx} }
func (t *pgTx) Entries() store.EntryRepository     { return &EntryRepository{tx: t.tx} }
func (t *pgTx) Ledger() store.LedgerRepository     { return &LedgerRepository{tx: t.tx} }
func (t *pgTx) Events() store.EventRepository      { return &EventRepository{tx: t.tx} }
