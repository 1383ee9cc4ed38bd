// Package memory implements store.Store in process memory. Each transaction
// works on a private copy of the state that replaces the committed state only
// when the transaction function succeeds.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"fundraising-escrow/internal/model"
	"fundraising-escrow/internal/store"
)

type entryKey struct {
	room        model.Address
	participant model.Address
}

type state struct {
	platform *model.PlatformConfig
	rooms    map[model.Address]*model.Room
	entries  map[entryKey]*model.ParticipantEntry
	accounts map[model.Address]*model.TokenAccount
	events   []*model.Event
}

func newState() *state {
	return &state{
		rooms:    make(map[model.Address]*model.Room),
		entries:  make(map[entryKey]*model.ParticipantEntry),
		accounts: make(map[model.Address]*model.TokenAccount),
	}
}

func (s *state) clone() *state {
	c := newState()
	if s.platform != nil {
		c.platform = clonePlatform(s.platform)
	}
	for k, r := range s.rooms {
		c.rooms[k] = r.Clone()
	}
	for k, e := range s.entries {
		cp := *e
		c.entries[k] = &cp
	}
	for k, a := range s.accounts {
		cp := *a
		c.accounts[k] = &cp
	}
	c.events = append([]*model.Event(nil), s.events...)
	return c
}

func clonePlatform(p *model.PlatformConfig) *model.PlatformConfig {
	cp := *p
	cp.ApprovedAssets = append([]model.AssetType(nil), p.ApprovedAssets...)
	return &cp
}

// Store is an in-memory store.Store. Transactions are fully serialized.
type Store struct {
	mu    sync.Mutex
	state *state
}

// New creates an empty Store.
func New() *Store {
	return &Store{state: newState()}
}

// WithTx runs fn against a copy of the state and commits it if fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

type tx struct {
	st *state
}

func (t *tx) Platform() store.PlatformRepository { return platformRepo{t.st} }
func (t *tx) Rooms() store.RoomRepository        { return roomRepo{t.st} }
func (t *tx) Entries() store.EntryRepository     { return entryRepo{t.st} }
func (t *tx) Ledger() store.LedgerRepository     { return ledgerRepo{t.st} }
func (t *tx) Events() store.EventRepository      { return eventRepo{t.st} }

type platformRepo struct{ st *state }

func (r platformRepo) Get(ctx context.Context) (*model.PlatformConfig, error) {
	if r.st.platform == nil {
		return nil, store.ErrPlatformNotInitialized
	}
	return clonePlatform(r.st.platform), nil
}

func (r platformRepo) Save(ctx context.Context, cfg *model.PlatformConfig) error {
	cp := clonePlatform(cfg)
	cp.UpdatedAt = time.Now()
	r.st.platform = cp
	return nil
}

type roomRepo struct{ st *state }

func (r roomRepo) Create(ctx context.Context, room *model.Room) error {
	if _, ok := r.st.rooms[room.Key]; ok {
		return store.ErrRoomExists
	}
	cp := room.Clone()
	cp.UpdatedAt = time.Now()
	r.st.rooms[room.Key] = cp
	return nil
}

func (r roomRepo) Get(ctx context.Context, key model.Address) (*model.Room, error) {
	room, ok := r.st.rooms[key]
	if !ok {
		return nil, store.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (r roomRepo) GetForUpdate(ctx context.Context, key model.Address) (*model.Room, error) {
	return r.Get(ctx, key)
}

func (r roomRepo) Update(ctx context.Context, room *model.Room) error {
	if _, ok := r.st.rooms[room.Key]; !ok {
		return store.ErrRoomNotFound
	}
	cp := room.Clone()
	cp.UpdatedAt = time.Now()
	r.st.rooms[room.Key] = cp
	return nil
}

func (r roomRepo) ListByHost(ctx context.Context, host model.Address) ([]*model.Room, error) {
	var out []*model.Room
	for _, room := range r.st.rooms {
		if room.Host == host {
			out = append(out, room.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].RoomID < out[j].RoomID
	})
	return out, nil
}

func (r roomRepo) ListExpired(ctx context.Context, now int64, limit int) ([]*model.Room, error) {
	var out []*model.Room
	for _, room := range r.st.rooms {
		if !room.Ended && room.Status == model.StatusActive && len(room.Winners) > 0 && room.Expired(now) {
			out = append(out, room.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt < out[j].ExpiresAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type entryRepo struct{ st *state }

func (r entryRepo) InsertIfAbsent(ctx context.Context, entry *model.ParticipantEntry) (bool, error) {
	k := entryKey{entry.RoomKey, entry.Participant}
	if _, ok := r.st.entries[k]; ok {
		return false, nil
	}
	cp := *entry
	cp.CreatedAt = time.Now()
	r.st.entries[k] = &cp
	return true, nil
}

func (r entryRepo) Exists(ctx context.Context, roomKey, participant model.Address) (bool, error) {
	_, ok := r.st.entries[entryKey{roomKey, participant}]
	return ok, nil
}

func (r entryRepo) List(ctx context.Context, roomKey model.Address) ([]*model.ParticipantEntry, error) {
	var out []*model.ParticipantEntry
	for k, e := range r.st.entries {
		if k.room == roomKey {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt != out[j].JoinedAt {
			return out[i].JoinedAt < out[j].JoinedAt
		}
		return out[i].Participant < out[j].Participant
	})
	return out, nil
}

type ledgerRepo struct{ st *state }

func (r ledgerRepo) Get(ctx context.Context, addr model.Address) (*model.TokenAccount, error) {
	acct, ok := r.st.accounts[addr]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

func (r ledgerRepo) Create(ctx context.Context, acct *model.TokenAccount) error {
	if _, ok := r.st.accounts[acct.Address]; ok {
		return store.ErrAccountExists
	}
	cp := *acct
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.st.accounts[acct.Address] = &cp
	return nil
}

func (r ledgerRepo) Credit(ctx context.Context, addr model.Address, amount uint64) error {
	acct, ok := r.st.accounts[addr]
	if !ok {
		return store.ErrAccountNotFound
	}
	if amount > math.MaxInt64-acct.Balance {
		return store.ErrBalanceOverflow
	}
	acct.Balance += amount
	acct.UpdatedAt = time.Now()
	return nil
}

func (r ledgerRepo) Debit(ctx context.Context, addr model.Address, amount uint64) error {
	acct, ok := r.st.accounts[addr]
	if !ok {
		return store.ErrAccountNotFound
	}
	if acct.Balance < amount {
		return store.ErrInsufficientBalance
	}
	acct.Balance -= amount
	acct.UpdatedAt = time.Now()
	return nil
}

func (r ledgerRepo) ListByOwner(ctx context.Context, owner model.Address) ([]*model.TokenAccount, error) {
	var out []*model.TokenAccount
	for _, a := range r.st.accounts {
		if a.Owner == owner {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

type eventRepo struct{ st *state }

func (r eventRepo) Append(ctx context.Context, ev *model.Event) error {
	cp := *ev
	r.st.events = append(r.st.events, &cp)
	return nil
}

func (r eventRepo) ListByRoom(ctx context.Context, roomKey model.Address, limit int) ([]*model.Event, error) {
	var out []*model.Event
	for i := len(r.st.events) - 1; i >= 0; i-- {
		if r.st.events[i].RoomKey == roomKey {
			cp := *r.st.events[i]
			out = append(out, &cp)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
