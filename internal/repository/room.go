package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"fundraising-escrow/internal/model"
	"fundraising-escrow/internal/store"
)

const roomColumns = `room_key, room_id, host, fee_asset, charity_wallet, memo, entry_fee, max_players,
	platform_fee_bps, host_fee_bps, prize_pool_bps, charity_bps, prize_distribution, prize_mode, prize_slots,
	status, player_count, total_entry_fees, total_extras_fees, ended, joining_closed, created_at, expires_at,
	winners, updated_at`

// RoomRepository handles room persistence within one transaction.
type RoomRepository struct {
	tx pgx.Tx
}

// Create inserts a new room. Returns store.ErrRoomExists on a duplicate key.
func (r *RoomRepository) Create(ctx context.Context, room *model.Room) error {
	const query = `
		INSERT INTO rooms (room_key, room_id, host, fee_asset, charity_wallet, memo, entry_fee, max_players,
			platform_fee_bps, host_fee_bps, prize_pool_bps, charity_bps, prize_distribution, prize_mode, prize_slots,
			status, player_count, total_entry_fees, total_extras_fees, ended, joining_closed, created_at, expires_at,
			winners, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, NOW())
	`

	args, err := roomArgs(room)
	if err != nil {
		return err
	}
	if _, err := r.tx.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return store.ErrRoomExists
		}
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

// Get retrieves a room by key.
func (r *RoomRepository) Get(ctx context.Context, key model.Address) (*model.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE room_key = $1`
	return scanRoom(r.tx.QueryRow(ctx, query, string(key)))
}

// GetForUpdate retrieves a room and locks its row until the transaction ends.
func (r *RoomRepository) GetForUpdate(ctx context.Context, key model.Address) (*model.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE room_key = $1 FOR UPDATE`
	return scanRoom(r.tx.QueryRow(ctx, query, string(key)))
}

// Update overwrites the mutable state of a room.
func (r *RoomRepository) Update(ctx context.Context, room *model.Room) error {
	const query = `
		UPDATE rooms SET
			prize_slots = $2, status = $3, player_count = $4, total_entry_fees = $5,
			total_extras_fees = $6, ended = $7, joining_closed = $8, winners = $9, updated_at = NOW()
		WHERE room_key = $1
	`

	slots, err := encodeSlots(room.PrizeSlots)
	if err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, query,
		string(room.Key),
		slots,
		string(room.Status),
		int32(room.PlayerCount),
		int64(room.TotalEntry),
		int64(room.TotalExtras),
		room.Ended,
		room.JoiningClosed,
		addressStrings(room.Winners),
	)
	if err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrRoomNotFound
	}
	return nil
}

// ListByHost returns the rooms of a host, oldest first.
func (r *RoomRepository) ListByHost(ctx context.Context, host model.Address) ([]*model.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE host = $1 ORDER BY created_at ASC, room_id ASC`
	return r.list(ctx, query, string(host))
}

// ListExpired returns active, unended rooms with declared winners whose
// expiry has been reached.
func (r *RoomRepository) ListExpired(ctx context.Context, now int64, limit int) ([]*model.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms
		WHERE ended = FALSE AND status = 'active' AND expires_at <> 0 AND expires_at <= $1
			AND cardinality(winners) > 0
		ORDER BY expires_at ASC
		LIMIT $2`
	return r.list(ctx, query, now, limit)
}

func (r *RoomRepository) list(ctx context.Context, query string, args ...any) ([]*model.Room, error) {
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*model.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rooms: %w", err)
	}
	return rooms, nil
}

func roomArgs(room *model.Room) ([]any, error) {
	slots, err := encodeSlots(room.PrizeSlots)
	if err != nil {
		return nil, err
	}
	dist := make([]int16, len(room.Distribution))
	for i, w := range room.Distribution {
		dist[i] = int16(w)
	}

	return []any{
		string(room.Key),
		room.RoomID,
		string(room.Host),
		string(room.FeeAsset),
		string(room.CharityWallet),
		room.Memo,
		int64(room.EntryFee),
		int32(room.MaxPlayers),
		int16(room.PlatformFeeBps),
		int16(room.HostFeeBps),
		int16(room.PrizePoolBps),
		int16(room.CharityBps),
		dist,
		string(room.PrizeMode),
		slots,
		string(room.Status),
		int32(room.PlayerCount),
		int64(room.TotalEntry),
		int64(room.TotalExtras),
		room.Ended,
		room.JoiningClosed,
		room.CreatedAt,
		room.ExpiresAt,
		addressStrings(room.Winners),
	}, nil
}

func encodeSlots(slots []model.PrizeSlot) ([]byte, error) {
	if slots == nil {
		slots = []model.PrizeSlot{}
	}
	b, err := json.Marshal(slots)
	if err != nil {
		return nil, fmt.Errorf("failed to encode prize slots: %w", err)
	}
	return b, nil
}

func scanRoom(row pgx.Row) (*model.Room, error) {
	var (
		room                              model.Room
		key, host, asset, charity         string
		mode, status                      string
		entryFee, totalEntry, totalExtras int64
		maxPlayers, playerCount           int32
		platformBps, hostBps              int16
		prizeBps, charityBps              int16
		dist                              []int16
		slots                             []byte
		winners                           []string
	)

	err := row.Scan(
		&key, &room.RoomID, &host, &asset, &charity, &room.Memo, &entryFee, &maxPlayers,
		&platformBps, &hostBps, &prizeBps, &charityBps, &dist, &mode, &slots, &status,
		&playerCount, &totalEntry, &totalExtras, &room.Ended, &room.JoiningClosed, &room.CreatedAt, &room.ExpiresAt,
		&winners, &room.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	room.Key = model.Address(key)
	room.Host = model.Address(host)
	room.FeeAsset = model.AssetType(asset)
	room.CharityWallet = model.Address(charity)
	room.PrizeMode = model.PrizeMode(mode)
	room.Status = model.RoomStatus(status)
	room.EntryFee = uint64(entryFee)
	room.TotalEntry = uint64(totalEntry)
	room.TotalExtras = uint64(totalExtras)
	room.MaxPlayers = uint32(maxPlayers)
	room.PlayerCount = uint32(playerCount)
	room.PlatformFeeBps = uint16(platformBps)
	room.HostFeeBps = uint16(hostBps)
	room.PrizePoolBps = uint16(prizeBps)
	room.CharityBps = uint16(charityBps)

	if len(dist) > 0 {
		room.Distribution = make([]uint8, len(dist))
		for i, w := range dist {
			room.Distribution[i] = uint8(w)
		}
	}
	if err := json.Unmarshal(slots, &room.PrizeSlots); err != nil {
		return nil, fmt.Errorf("failed to decode prize slots: %w", err)
	}
	if len(room.PrizeSlots) == 0 {
		room.PrizeSlots = nil
	}
	if len(winners) > 0 {
		room.Winners = make([]model.Address, len(winners))
		for i, w := range winners {
			room.Winners[i] = model.Address(w)
		}
	}

	return &room, nil
}

func addressStrings(addrs []model.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = string(a)
	}
	return out
}
