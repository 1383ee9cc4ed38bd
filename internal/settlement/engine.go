package settlement

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"fundraising-escrow/internal/guard"
	"fundraising-escrow/internal/model"
	"fundraising-escrow/internal/vault"
)

// Request carries everything one settlement needs besides the ledger.
type Request struct {
	Room           *model.Room
	PlatformWallet model.Address
	Winners        []model.Address
	// WinnerAccounts optionally names the destination account per winner.
	// Winners without an entry are paid to their associated account.
	WinnerAccounts map[model.Address]model.Address
	EndedAt        int64
}

// Engine splits and pays out ended rooms.
type Engine struct {
	registry *Registry
}

// NewEngine creates an Engine. A nil registry uses DefaultRegistry.
func NewEngine(registry *Registry) *Engine {
	if registry == nil {
		registry = DefaultRegistry
	}
	return &Engine{registry: registry}
}

// Settle pays platform, host and charity from the room vault, then the prizes.
// The room must already be marked ended. Zero amounts are skipped.
func (e *Engine) Settle(ctx context.Context, accts vault.Accounts, req Request) (*model.Settlement, error) {
	room := req.Room
	if !room.Ended || room.Status != model.StatusEnded {
		return nil, guard.ErrInvalidRoomStatus
	}
	strategy, ok := e.registry.Get(room.PrizeMode)
	if !ok {
		return nil, fmt.Errorf("no settlement strategy for prize mode %q: %w", room.PrizeMode, guard.ErrInvalidRoomStatus)
	}

	auth, err := vault.AuthorityFor(room)
	if err != nil {
		return nil, err
	}
	roomVault, err := vault.OpenRoomVault(ctx, accts, room)
	if err != nil {
		return nil, err
	}

	var prizeBps uint16
	if room.PrizeMode == model.PrizeModePoolSplit {
		prizeBps = room.PrizePoolBps
	}
	shares, err := ComputeShares(room.TotalEntry, room.TotalExtras, room.PlatformFeeBps, room.HostFeeBps, prizeBps)
	if err != nil {
		return nil, err
	}

	result := &model.Settlement{
		RoomKey:      room.Key,
		Winners:      append([]model.Address(nil), req.Winners...),
		EntryTotal:   shares.EntryTotal,
		ExtrasTotal:  shares.Extras,
		PlatformFee:  shares.Platform,
		HostFee:      shares.Host,
		CharityShare: shares.Charity,
		PrizeShare:   shares.Prize,
		PlayerCount:  room.PlayerCount,
		EndedAt:      req.EndedAt,
	}

	fees := []struct {
		role   string
		owner  model.Address
		amount uint64
	}{
		{model.RolePlatform, req.PlatformWallet, shares.Platform},
		{model.RoleHost, room.Host, shares.Host},
		{model.RoleCharity, room.CharityWallet, shares.Charity},
	}
	for _, f := range fees {
		if f.amount == 0 {
			continue
		}
		dst, err := vault.Associated(ctx, accts, f.owner, room.FeeAsset)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s account: %w", f.role, err)
		}
		if err := auth.Transfer(ctx, accts, roomVault.Address, dst.Address, f.amount); err != nil {
			return nil, err
		}
		result.Payouts = append(result.Payouts, model.Payout{Role: f.role, To: f.owner, Asset: room.FeeAsset, Amount: f.amount})
	}

	awards, err := strategy.Plan(room, shares.Prize, req.Winners)
	if err != nil {
		return nil, err
	}
	for _, a := range awards {
		if err := e.payAward(ctx, accts, auth, room, a, req.WinnerAccounts); err != nil {
			return nil, err
		}
		result.PrizePaid += a.Amount
		result.Payouts = append(result.Payouts, model.Payout{Role: model.RoleWinner, To: a.Winner, Asset: a.Asset, Amount: a.Amount})
	}
	if room.PrizeMode == model.PrizeModePoolSplit {
		result.Residual = shares.Prize - result.PrizePaid
	}

	log.Info().
		Str("room_key", string(room.Key)).
		Str("room_id", room.RoomID).
		Uint64("entry_fees", shares.EntryTotal).
		Uint64("extras", shares.Extras).
		Uint64("platform", shares.Platform).
		Uint64("host", shares.Host).
		Uint64("charity", shares.Charity).
		Uint64("prize", shares.Prize).
		Uint64("prize_paid", result.PrizePaid).
		Msg("Room settled")

	return result, nil
}

func (e *Engine) payAward(ctx context.Context, accts vault.Accounts, auth vault.Authority, room *model.Room, a Award, explicit map[model.Address]model.Address) error {
	if a.Winner == room.Host {
		return guard.ErrHostCannotBeWinner
	}

	// The source is re-derived from the room, never taken from the plan as is.
	if a.From != vault.RoomVaultAddress(room.Key) {
		src, err := vault.Load(ctx, accts, a.From)
		if err != nil {
			return err
		}
		if err := vault.VerifyOwnership(src, room.Key, a.Asset); err != nil {
			return err
		}
		if !isPrizeVault(room, a) {
			return guard.ErrInvalidVaultAccount
		}
	}

	var dst *model.TokenAccount
	if addr, ok := explicit[a.Winner]; ok {
		acct, err := vault.Load(ctx, accts, addr)
		if err != nil {
			return guard.ErrInvalidWinners
		}
		if err := vault.VerifyDestination(acct, a.Winner, a.Asset); err != nil {
			return err
		}
		dst = acct
	} else {
		acct, err := vault.Associated(ctx, accts, a.Winner, a.Asset)
		if err != nil {
			return err
		}
		dst = acct
	}

	return auth.Transfer(ctx, accts, a.From, dst.Address, a.Amount)
}

func isPrizeVault(room *model.Room, a Award) bool {
	for _, rank := range a.Ranks {
		if a.From == vault.PrizeVaultAddress(room.Key, rank) {
			return true
		}
	}
	return false
}
