// Package store defines the transactional persistence contract shared by the
// Postgres and in-memory implementations.
package store

import (
	"context"
	"errors"

	"fundraising-escrow/internal/model"
)

// Storage errors.
var (
	ErrRoomNotFound           = errors.New("room not found")
	ErrRoomExists             = errors.New("room already exists")
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountExists          = errors.New("account already exists")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrBalanceOverflow        = errors.New("balance overflow")
	ErrPlatformNotInitialized = errors.New("platform config not initialized")
)

// Store runs operations as all-or-nothing units.
type Store interface {
	// WithTx runs fn in a transaction. Any error from fn discards every effect.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Platform() PlatformRepository
	Rooms() RoomRepository
	Entries() EntryRepository
	Ledger() LedgerRepository
	Events() EventRepository
}

// PlatformRepository persists the platform-wide configuration.
type PlatformRepository interface {
	Get(ctx context.Context) (*model.PlatformConfig, error)
	Save(ctx context.Context, cfg *model.PlatformConfig) error
}

// RoomRepository persists rooms.
type RoomRepository interface {
	Create(ctx context.Context, room *model.Room) error
	Get(ctx context.Context, key model.Address) (*model.Room, error)
	// GetForUpdate locks the room until the transaction ends.
	GetForUpdate(ctx context.Context, key model.Address) (*model.Room, error)
	Update(ctx context.Context, room *model.Room) error
	ListByHost(ctx context.Context, host model.Address) ([]*model.Room, error)
	// ListExpired returns active, unended rooms with declared winners whose
	// expiry has been reached, oldest expiry first.
	ListExpired(ctx context.Context, now int64, limit int) ([]*model.Room, error)
}

// EntryRepository persists participant entries.
type EntryRepository interface {
	// InsertIfAbsent stores the entry unless one exists for the same
	// (room, participant). It reports whether the entry was inserted.
	InsertIfAbsent(ctx context.Context, entry *model.ParticipantEntry) (bool, error)
	Exists(ctx context.Context, roomKey, participant model.Address) (bool, error)
	List(ctx context.Context, roomKey model.Address) ([]*model.ParticipantEntry, error)
}

// LedgerRepository persists token accounts and their balances.
type LedgerRepository interface {
	Get(ctx context.Context, addr model.Address) (*model.TokenAccount, error)
	Create(ctx context.Context, acct *model.TokenAccount) error
	Credit(ctx context.Context, addr model.Address, amount uint64) error
	Debit(ctx context.Context, addr model.Address, amount uint64) error
	ListByOwner(ctx context.Context, owner model.Address) ([]*model.TokenAccount, error)
}

// EventRepository is the append-only notification log.
type EventRepository interface {
	Append(ctx context.Context, ev *model.Event) error
	ListByRoom(ctx context.Context, roomKey model.Address, limit int) ([]*model.Event, error)
}
