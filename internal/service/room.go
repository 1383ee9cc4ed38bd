package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"fundraising-escrow/internal/guard"
	"fundraising-escrow/internal/metrics"
	"fundraising-escrow/internal/model"
	"fundraising-escrow/internal/pkg/lock"
	"fundraising-escrow/internal/settlement"
	"fundraising-escrow/internal/store"
	"fundraising-escrow/internal/vault"
)

// CreatePoolRoomInput describes a room whose prizes are carved out of entry fees.
type CreatePoolRoomInput struct {
	Host          model.Address   `json:"-"`
	RoomID        string          `json:"room_id"`
	FeeAsset      model.AssetType `json:"fee_asset"`
	EntryFee      uint64          `json:"entry_fee"`
	MaxPlayers    uint32          `json:"max_players"`
	HostFeeBps    uint16          `json:"host_fee_bps"`
	PrizePoolBps  uint16          `json:"prize_pool_bps"`
	Distribution  model.Weights   `json:"prize_distribution"`
	CharityWallet model.Address   `json:"charity_wallet"`
	Memo          string          `json:"memo"`
	Expiration    uint64          `json:"expiration_seconds"` // 0 means never
}

// PrizeInput declares one pre-escrowed prize of an asset room.
type PrizeInput struct {
	AssetType model.AssetType `json:"asset_type"`
	Amount    uint64          `json:"amount"`
}

// CreateAssetRoomInput describes a room whose prizes the host deposits up front.
type CreateAssetRoomInput struct {
	Host          model.Address   `json:"-"`
	RoomID        string          `json:"room_id"`
	FeeAsset      model.AssetType `json:"fee_asset"`
	EntryFee      uint64          `json:"entry_fee"`
	MaxPlayers    uint32          `json:"max_players"`
	HostFeeBps    uint16          `json:"host_fee_bps"`
	CharityWallet model.Address   `json:"charity_wallet"`
	Memo          string          `json:"memo"`
	Expiration    uint64          `json:"expiration_seconds"`
	Prizes        []PrizeInput    `json:"prizes"`
}

// EndInput carries the fallback winners for rooms that never declared any,
// and optional explicit destination accounts per winner.
type EndInput struct {
	Winners        []model.Address                 `json:"winners"`
	WinnerAccounts map[model.Address]model.Address `json:"winner_accounts"`
}

// RoomService runs the room lifecycle.
type RoomService struct {
	runner
	engine *settlement.Engine
}

// NewRoomService creates a RoomService. Nil dependencies get defaults.
func NewRoomService(st store.Store, locks *lock.KeyLock, engine *settlement.Engine, pub Publisher, clock Clock) *RoomService {
	if engine == nil {
		engine = settlement.NewEngine(nil)
	}
	return &RoomService{
		runner: newRunner(st, locks, pub, clock),
		engine: engine,
	}
}

// expiresAt turns a relative expiration into an absolute checkpoint.
// An overflowing checkpoint means never.
func expiresAt(now int64, expiration uint64) int64 {
	if expiration == 0 {
		return 0
	}
	at, err := guard.CheckedAdd(uint64(now), expiration)
	if err != nil || at > math.MaxInt64 {
		return 0
	}
	return int64(at)
}

type roomParams struct {
	host       model.Address
	roomID     string
	feeAsset   model.AssetType
	entryFee   uint64
	maxPlayers uint32
	memo       string
}

func (p roomParams) validate() error {
	if p.host.IsZero() {
		return guard.ErrUnauthorized
	}
	if err := guard.ValidateRoomID(p.roomID); err != nil {
		return err
	}
	if err := guard.ValidateMemo(p.memo); err != nil {
		return err
	}
	if err := guard.ValidateEntryFee(p.entryFee); err != nil {
		return err
	}
	if p.feeAsset == "" {
		return guard.ErrTokenNotApproved
	}
	return guard.ValidateMaxPlayers(p.maxPlayers)
}

// createRoom checks the platform gates, stores the room and opens its vault.
func (s *RoomService) createRoom(ctx context.Context, tx store.Tx, room *model.Room, prizeBps uint16) error {
	cfg, err := loadPlatform(ctx, tx)
	if err != nil {
		return err
	}
	if err := guard.CheckNotPaused(cfg.Paused); err != nil {
		return err
	}
	if !isApproved(cfg, room.FeeAsset) {
		return guard.ErrTokenNotApproved
	}
	charity, err := guard.CharityBps(cfg.Policy, room.HostFeeBps, prizeBps)
	if err != nil {
		return err
	}
	room.PlatformFeeBps = cfg.Policy.PlatformFeeBps
	room.CharityBps = charity
	if room.CharityWallet.IsZero() {
		room.CharityWallet = cfg.CharityWallet
	}

	if err := tx.Rooms().Create(ctx, room); err != nil {
		if errors.Is(err, store.ErrRoomExists) {
			return guard.ErrRoomAlreadyExists
		}
		return fmt.Errorf("failed to create room: %w", err)
	}
	_, err = vault.OpenRoomVault(ctx, tx.Ledger(), room)
	return err
}

// CreatePoolRoom creates a room that is open for joining immediately.
func (s *RoomService) CreatePoolRoom(ctx context.Context, in CreatePoolRoomInput) (*model.Room, error) {
	p := roomParams{in.Host, in.RoomID, in.FeeAsset, in.EntryFee, in.MaxPlayers, in.Memo}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := guard.ValidatePrizeDistribution(in.Distribution); err != nil {
		return nil, err
	}

	key := vault.RoomKey(in.Host, in.RoomID)
	var room *model.Room
	err := s.run(ctx, "create_pool_room", string(key), func(tx store.Tx, now time.Time, emit func(*model.Event)) error {
		room = &model.Room{
			Key:           key,
			RoomID:        in.RoomID,
			Host:          in.Host,
			FeeAsset:      in.FeeAsset,
			CharityWallet: in.CharityWallet,
			Memo:          in.Memo,
			EntryFee:      in.EntryFee,
			MaxPlayers:    in.MaxPlayers,
			HostFeeBps:    in.HostFeeBps,
			PrizePoolBps:  in.PrizePoolBps,
			Distribution:  append(model.Weights(nil), in.Distribution...),
			PrizeMode:     model.PrizeModePoolSplit,
			Status:        model.StatusActive,
			CreatedAt:     now.Unix(),
			ExpiresAt:     expiresAt(now.Unix(), in.Expiration),
		}
		if err := s.createRoom(ctx, tx, room, in.PrizePoolBps); err != nil {
			return err
		}
		emit(newEvent(model.EventRoomCreated, key, now, map[string]any{
			"room_id":          room.RoomID,
			"host":             string(room.Host),
			"fee_asset":        string(room.FeeAsset),
			"entry_fee":        room.EntryFee,
			"max_players":      room.MaxPlayers,
			"platform_fee_bps": room.PlatformFeeBps,
			"host_fee_bps":     room.HostFeeBps,
			"prize_pool_bps":   room.PrizePoolBps,
			"charity_bps":      room.CharityBps,
			"expires_at":       room.ExpiresAt,
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RoomsCreated.WithLabelValues(string(model.PrizeModePoolSplit)).Inc()
	log.Info().
		Str("room_key", string(key)).
		Str("room_id", room.RoomID).
		Str("host", string(room.Host)).
		Uint64("entry_fee", room.EntryFee).
		Msg("Pool room created")
	return room, nil
}

// CreateAssetRoom creates a room that waits for its prizes to be deposited.
func (s *RoomService) CreateAssetRoom(ctx context.Context, in CreateAssetRoomInput) (*model.Room, error) {
	p := roomParams{in.Host, in.RoomID, in.FeeAsset, in.EntryFee, in.MaxPlayers, in.Memo}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if len(in.Prizes) == 0 || len(in.Prizes) > model.MaxPrizeSlots {
		return nil, guard.ErrInvalidPrizeAmount
	}
	slots := make([]model.PrizeSlot, len(in.Prizes))
	for i, prize := range in.Prizes {
		if prize.AssetType == "" {
			return nil, guard.ErrInvalidTokenMint
		}
		if prize.Amount == 0 {
			return nil, guard.ErrInvalidPrizeAmount
		}
		if err := guard.ValidateAmount(prize.Amount); err != nil {
			return nil, err
		}
		slots[i] = model.PrizeSlot{AssetType: prize.AssetType, Amount: prize.Amount}
	}

	key := vault.RoomKey(in.Host, in.RoomID)
	var room *model.Room
	err := s.run(ctx, "create_asset_room", string(key), func(tx store.Tx, now time.Time, emit func(*model.Event)) error {
		room = &model.Room{
			Key:           key,
			RoomID:        in.RoomID,
			Host:          in.Host,
			FeeAsset:      in.FeeAsset,
			CharityWallet: in.CharityWallet,
			Memo:          in.Memo,
			EntryFee:      in.EntryFee,
			MaxPlayers:    in.MaxPlayers,
			HostFeeBps:    in.HostFeeBps,
			PrizeMode:     model.PrizeModeAssetBased,
			PrizeSlots:    slots,
			Status:        model.StatusAwaitingFunding,
			CreatedAt:     now.Unix(),
			ExpiresAt:     expiresAt(now.Unix(), in.Expiration),
		}
		if err := s.createRoom(ctx, tx, room, 0); err != nil {
			return err
		}
		emit(newEvent(model.EventAssetRoomCreated, key, now, map[string]any{
			"room_id":          room.RoomID,
			"host":             string(room.Host),
			"fee_asset":        string(room.FeeAsset),
			"entry_fee":        room.EntryFee,
			"max_players":      room.MaxPlayers,
			"platform_fee_bps": room.PlatformFeeBps,
			"host_fee_bps":     room.HostFeeBps,
			"charity_bps":      room.CharityBps,
			"prize_count":      len(slots),
			"expires_at":       room.ExpiresAt,
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RoomsCreated.WithLabelValues(string(model.PrizeModeAssetBased)).Inc()
	log.Info().
		Str("room_key", string(key)).
		Str("room_id", room.RoomID).
		Str("host", string(room.Host)).
		Int("prizes", len(slots)).
		Msg("Asset room created")
	return room, nil
}

// DepositPrize moves the declared amount of one prize slot from the host's
// wallet into the slot's vault.
func (s *RoomService) DepositPrize(ctx context.Context, caller, roomKey model.Address, slot int) (*model.Room, error) {
	var room *model.Room
	err := s.run(ctx, "deposit_prize", string(roomKey), func(tx store.Tx, now time.Time, emit func(*model.Event)) error {
		var err error
		room, err = loadRoomForUpdate(ctx, tx, roomKey)
		if err != nil {
			return err
		}
		if err := guard.CheckRoomNotEnded(room); err != nil {
			return err
		}
		if room.PrizeMode != model.PrizeModeAssetBased {
			return guard.ErrInvalidRoomStatus
		}
		if room.Status != model.StatusAwaitingFunding && room.Status != model.StatusPartiallyFunded {
			return guard.ErrInvalidRoomStatus
		}
		if err := guard.VerifyAuthority(caller, room.Host); err != nil {
			return err
		}
		if slot < 0 || slot >= len(room.PrizeSlots) {
			return guard.ErrInvalidWinners
		}
		prize := &room.PrizeSlots[slot]
		if prize.Deposited {
			return guard.ErrPrizeAlreadyDeposited
		}

		prizeVault, err := vault.OpenPrizeVault(ctx, tx.Ledger(), room, slot)
		if err != nil {
			return err
		}
		src := vault.AssociatedAddress(room.Host, prize.AssetType)
		if err := vault.Pay(ctx, tx.Ledger(), room.Host, src, prizeVault.Address, prize.Amount); err != nil {
			return err
		}

		prize.Deposited = true
		if room.AllPrizesDeposited() {
			room.Status = model.StatusReady
		} else {
			room.Status = model.StatusPartiallyFunded
		}
		if err := tx.Rooms().Update(ctx, room); err != nil {
			return fmt.Errorf("failed to update room: %w", err)
		}

		emit(newEvent(model.EventPrizeDeposited, roomKey, now, map[string]any{
			"slot":   slot,
			"asset":  string(prize.AssetType),
			"amount": prize.Amount,
			"status": string(room.Status),
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("room_key", string(roomKey)).
		Int("slot", slot).
		Str("status", string(room.Status)).
		Msg("Prize deposited")
	return room, nil
}

// Join records the participant's entry and moves entry fee plus extras from
// the participant's wallet into the room vault.
func (s *RoomService) Join(ctx context.Context, participant, roomKey model.Address, extras uint64) (*model.ParticipantEntry, error) {
	if participant.IsZero() {
		return nil, guard.ErrUnauthorized
	}
	if err := guard.ValidateExtras(extras); err != nil {
		return nil, err
	}

	var (
		room  *model.Room
		entry *model.ParticipantEntry
	)
	err := s.run(ctx, "join", string(roomKey), func(tx store.Tx, now time.Time, emit func(*model.Event)) error {
		cfg, err := loadPlatform(ctx, tx)
		if err != nil {
			return err
		}
		if err := guard.CheckNotPaused(cfg.Paused); err != nil {
			return err
		}
		room, err = loadRoomForUpdate(ctx, tx, roomKey)
		if err != nil {
			return err
		}
		if room.Expired(now.Unix()) {
			return guard.ErrRoomExpired
		}
		if err := guard.CheckRoomNotEnded(room); err != nil {
			return err
		}
		if !room.Status.Joinable() {
			return guard.ErrInvalidRoomStatus
		}
		if room.JoiningClosed {
			return guard.ErrJoiningClosed
		}
		if participant == room.Host {
			return guard.ErrUnauthorized
		}
		if room.PlayerCount >= room.MaxPlayers {
			return guard.ErrMaxPlayersReached
		}

		total, err := guard.ValidateTotalPayment(room.EntryFee, extras)
		if err != nil {
			return err
		}
		totalEntry, err := guard.CheckedAdd(room.TotalEntry, room.EntryFee)
		if err != nil {
			return err
		}
		totalExtras, err := guard.CheckedAdd(room.TotalExtras, extras)
		if err != nil {
			return err
		}
		if totalEntry > guard.MaxSafeAmount || totalExtras > guard.MaxSafeAmount {
			return guard.ErrArithmeticOverflow
		}

		entry = &model.ParticipantEntry{
			RoomKey:     roomKey,
			Participant: participant,
			EntryPaid:   room.EntryFee,
			ExtrasPaid:  extras,
			JoinedAt:    now.Unix(),
		}
		inserted, err := tx.Entries().InsertIfAbsent(ctx, entry)
		if err != nil {
			return fmt.Errorf("failed to record entry: %w", err)
		}
		if !inserted {
			return guard.ErrPlayerAlreadyJoined
		}

		roomVault, err := vault.OpenRoomVault(ctx, tx.Ledger(), room)
		if err != nil {
			return err
		}
		src := vault.AssociatedAddress(participant, room.FeeAsset)
		if err := vault.Pay(ctx, tx.Ledger(), participant, src, roomVault.Address, total); err != nil {
			return err
		}

		room.PlayerCount++
		room.TotalEntry = totalEntry
		room.TotalExtras = totalExtras
		if room.Status == model.StatusReady {
			room.Status = model.StatusActive
		}
		if err := tx.Rooms().Update(ctx, room); err != nil {
			return fmt.Errorf("failed to update room: %w", err)
		}

		emit(newEvent(model.EventPlayerJoined, roomKey, now, map[string]any{
			"player":       string(participant),
			"entry_paid":   room.EntryFee,
			"extras_paid":  extras,
			"player_count": room.PlayerCount,
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Joins.Inc()
	log.Info().
		Str("room_key", string(roomKey)).
		Str("player", string(participant)).
		Uint64("extras", extras).
		Uint32("player_count", room.PlayerCount).
		Msg("Player joined")
	return entry, nil
}

// CloseJoining stops new entries. It cannot be undone.
func (s *RoomService) CloseJoining(ctx context.Context, caller, roomKey model.Address) error {
	return s.run(ctx, "close_joining", string(roomKey), func(tx store.Tx, now time.Time, emit func(*model.Event)) error {
		room, err := loadRoomForUpdate(ctx, tx, roomKey)
		if err != nil {
			return err
		}
		if err := guard.VerifyAuthority(caller, room.Host); err != nil {
			return err
		}
		if err := guard.CheckRoomNotEnded(room); err != nil {
			return err
		}
		if room.JoiningClosed {
			return guard.ErrJoiningClosed
		}
		room.JoiningClosed = true
		if err := tx.Rooms().Update(ctx, room); err != nil {
			return fmt.Errorf("failed to update room: %w", err)
		}
		emit(newEvent(model.EventJoiningClosed, roomKey, now, map[string]any{
			"player_count": room.PlayerCount,
		}))
		return nil
	})
}

// DeclareWinners records the winners ahead of End. Every winner must hold an
// entry for the room.
func (s *RoomService) DeclareWinners(ctx context.Context, caller, roomKey model.Address, winners []model.Address) error {
	return s.run(ctx, "declare_winners", string(roomKey), func(tx store.Tx, now time.Time, emit func(*model.Event)) error {
		room, err := loadRoomForUpdate(ctx, tx, roomKey)
		if err != nil {
			return err
		}
		if err := guard.VerifyAuthority(caller, room.Host); err != nil {
			return err
		}
		if err := guard.CheckRoomNotEnded(room); err != nil {
			return err
		}
		if room.Status != model.StatusActive {
			return guard.ErrInvalidRoomStatus
		}
		if len(room.Winners) > 0 {
			return guard.ErrWinnersAlreadyDeclared
		}
		if err := guard.ValidateWinners(room.Host, winners); err != nil {
			return err
		}
		for _, w := range winners {
			ok, err := tx.Entries().Exists(ctx, roomKey, w)
			if err != nil {
				return fmt.Errorf("failed to check entry: %w", err)
			}
			if !ok {
				return guard.ErrInvalidWinners
			}
		}

		room.Winners = append([]model.Address(nil), winners...)
		if err := tx.Rooms().Update(ctx, room); err != nil {
			return fmt.Errorf("failed to update room: %w", err)
		}
		emit(newEvent(model.EventWinnersDeclared, roomKey, now, map[string]any{
			"winners": addressList(winners),
		}))
		return nil
	})
}

// End closes the room for good and settles it. The host may always end an
// active room; once the room has expired anyone may.
func (s *RoomService) End(ctx context.Context, caller, roomKey model.Address, in EndInput) (*model.Settlement, error) {
	var (
		room   *model.Room
		result *model.Settlement
	)
	err := s.run(ctx, "end", string(roomKey), func(tx store.Tx, now time.Time, emit func(*model.Event)) error {
		var err error
		room, err = loadRoomForUpdate(ctx, tx, roomKey)
		if err != nil {
			return err
		}
		if err := guard.CheckRoomNotEnded(room); err != nil {
			return err
		}
		if room.Status != model.StatusActive {
			return guard.ErrInvalidRoomStatus
		}
		if !room.Expired(now.Unix()) {
			if err := guard.VerifyAuthority(caller, room.Host); err != nil {
				return err
			}
		}

		winners := room.Winners
		if len(winners) == 0 {
			if err := guard.ValidateWinners(room.Host, in.Winners); err != nil {
				return err
			}
			winners = append([]model.Address(nil), in.Winners...)
		}

		// The room is persisted as ended before any value leaves a vault.
		if err := guard.MarkEnded(room); err != nil {
			return err
		}
		room.Winners = winners
		if err := tx.Rooms().Update(ctx, room); err != nil {
			return fmt.Errorf("failed to update room: %w", err)
		}

		cfg, err := loadPlatform(ctx, tx)
		if err != nil {
			return err
		}
		result, err = s.engine.Settle(ctx, tx.Ledger(), settlement.Request{
			Room:           room,
			PlatformWallet: cfg.PlatformWallet,
			Winners:        winners,
			WinnerAccounts: in.WinnerAccounts,
			EndedAt:        now.Unix(),
		})
		if err != nil {
			return err
		}

		emit(newEvent(model.EventRoomEnded, roomKey, now, map[string]any{
			"ended_by":         string(caller),
			"winners":          addressList(winners),
			"entry_fees_total": result.EntryTotal,
			"extras_total":     result.ExtrasTotal,
			"platform_fee":     result.PlatformFee,
			"host_fee":         result.HostFee,
			"charity_amount":   result.CharityShare,
			"prize_amount":     result.PrizeShare,
			"prize_paid":       result.PrizePaid,
			"total_players":    result.PlayerCount,
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Settlements.WithLabelValues(string(room.PrizeMode)).Inc()
	for _, p := range result.Payouts {
		metrics.SettledValue.WithLabelValues(p.Role, string(p.Asset)).Add(float64(p.Amount))
	}
	return result, nil
}

// Get returns the room of host with roomID.
func (s *RoomService) Get(ctx context.Context, host model.Address, roomID string) (*model.Room, error) {
	return s.GetByKey(ctx, vault.RoomKey(host, roomID))
}

// GetByKey returns a room by its derived key.
func (s *RoomService) GetByKey(ctx context.Context, key model.Address) (*model.Room, error) {
	var room *model.Room
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		room, err = tx.Rooms().Get(ctx, key)
		if errors.Is(err, store.ErrRoomNotFound) {
			return guard.ErrRoomNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// ListByHost returns every room created by host, oldest first.
func (s *RoomService) ListByHost(ctx context.Context, host model.Address) ([]*model.Room, error) {
	if host == "" {
		return nil, guard.ErrInvalidAddress
	}
	var rooms []*model.Room
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		rooms, err = tx.Rooms().ListByHost(ctx, host)
		return err
	})
	return rooms, err
}

// Entries lists the participant entries of a room.
func (s *RoomService) Entries(ctx context.Context, key model.Address) ([]*model.ParticipantEntry, error) {
	var entries []*model.ParticipantEntry
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		entries, err = tx.Entries().List(ctx, key)
		return err
	})
	return entries, err
}

// Events lists the most recent notification records of a room.
func (s *RoomService) Events(ctx context.Context, key model.Address, limit int) ([]*model.Event, error) {
	var evs []*model.Event
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		evs, err = tx.Events().ListByRoom(ctx, key, limit)
		return err
	})
	return evs, err
}

// ListExpired returns active rooms whose expiry has been reached.
func (s *RoomService) ListExpired(ctx context.Context, limit int) ([]*model.Room, error) {
	now := s.clock.Now().Unix()
	var rooms []*model.Room
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		rooms, err = tx.Rooms().ListExpired(ctx, now, limit)
		return err
	})
	return rooms, err
}

func addressList(addrs []model.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = string(a)
	}
	return out
}
