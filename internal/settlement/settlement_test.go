package settlement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"fundraising-escrow/internal/guard"
	"fundraising-escrow/internal/model"
	"fundraising-escrow/internal/store"
	"fundraising-escrow/internal/store/memory"
	"fundraising-escrow/internal/vault"
)

var policy = model.FeePolicy{PlatformFeeBps: 2000, MaxHostFeeBps: 500, MaxPrizePoolBps: 3500, MinCharityBps: 4000}

func TestComputeShares_Example(t *testing.T) {
	s, err := ComputeShares(1000, 0, 2000, 300, 2000)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), s.Platform)
	assert.Equal(t, uint64(30), s.Host)
	assert.Equal(t, uint64(200), s.Prize)
	assert.Equal(t, uint64(570), s.Charity)
}

func TestComputeShares_ExtrasGoToCharity(t *testing.T) {
	s, err := ComputeShares(1000, 250, 2000, 300, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(770+250), s.Charity)
}

func TestComputeShares_Underflow(t *testing.T) {
	_, err := ComputeShares(1000, 0, 6000, 3000, 3000)
	assert.ErrorIs(t, err, guard.ErrArithmeticUnderflow)
}

// Property 1: Shares never leak or create value.
func TestComputeSharesConservationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		entry := rapid.Uint64Range(0, guard.MaxSafeAmount).Draw(t, "entry")
		extras := rapid.Uint64Range(0, guard.MaxSafeAmount).Draw(t, "extras")
		host := rapid.Uint16Range(0, policy.MaxHostFeeBps).Draw(t, "host")
		prize := rapid.Uint16Range(0, policy.MaxPrizePoolBps).Draw(t, "prize")

		s, err := ComputeShares(entry, extras, policy.PlatformFeeBps, host, prize)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.Platform+s.Host+s.Prize+(s.Charity-s.Extras) != entry {
			t.Fatalf("shares %+v do not sum to entry total %d", s, entry)
		}
	})
}

func TestAggregatePool_DuplicateWinners(t *testing.T) {
	awards, err := AggregatePool(1000, []uint8{50, 30, 20}, []model.Address{"A", "A", "B"})
	require.NoError(t, err)
	require.Len(t, awards, 2)

	assert.Equal(t, model.Address("A"), awards[0].Winner)
	assert.Equal(t, uint64(800), awards[0].Amount)
	assert.Equal(t, []int{0, 1}, awards[0].Ranks)

	assert.Equal(t, model.Address("B"), awards[1].Winner)
	assert.Equal(t, uint64(200), awards[1].Amount)
}

func TestAggregatePool_Edges(t *testing.T) {
	tests := []struct {
		name     string
		weights  []uint8
		winners  []model.Address
		expected map[model.Address]uint64
	}{
		{"fewer winners than ranks", []uint8{50, 30, 20}, []model.Address{"A"}, map[model.Address]uint64{"A": 500}},
		{"more winners than ranks", []uint8{100}, []model.Address{"A", "B", "C"}, map[model.Address]uint64{"A": 1000}},
		{"one winner every rank", []uint8{50, 30, 20}, []model.Address{"A", "A", "A"}, map[model.Address]uint64{"A": 1000}},
		{"zero weight skipped", []uint8{100, 0}, []model.Address{"A", "B"}, map[model.Address]uint64{"A": 1000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			awards, err := AggregatePool(1000, tt.weights, tt.winners)
			require.NoError(t, err)
			got := make(map[model.Address]uint64)
			for _, a := range awards {
				got[a.Winner] += a.Amount
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

// Property 2: Aggregation issues one award per distinct winner and never pays
// more than the prize share.
func TestAggregatePoolProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prize := rapid.Uint64Range(0, guard.MaxSafeAmount).Draw(t, "prize")
		weights := rapid.SampledFrom([][]uint8{{100}, {60, 40}, {50, 30, 20}, {34, 33, 33}}).Draw(t, "weights")
		winners := rapid.SliceOfN(
			rapid.SampledFrom([]model.Address{"A", "B", "C"}), 1, guard.MaxWinners,
		).Draw(t, "winners")

		awards, err := AggregatePool(prize, weights, winners)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		seen := make(map[model.Address]bool)
		var paid uint64
		for _, a := range awards {
			if seen[a.Winner] {
				t.Fatalf("winner %s received more than one award", a.Winner)
			}
			seen[a.Winner] = true
			paid += a.Amount
		}
		if paid > prize {
			t.Fatalf("paid %d exceeds prize share %d", paid, prize)
		}
	})
}

func TestAssetStrategy_SkipsUnfunded(t *testing.T) {
	room := &model.Room{
		Key: "room",
		PrizeSlots: []model.PrizeSlot{
			{AssetType: "GOLD", Amount: 10, Deposited: true},
			{AssetType: "SILVER", Amount: 5, Deposited: false},
			{AssetType: "BRONZE", Amount: 1, Deposited: true},
		},
	}

	awards, err := AssetStrategy{}.Plan(room, 0, []model.Address{"A", "B", "C"})
	require.NoError(t, err)
	require.Len(t, awards, 2)
	assert.Equal(t, []int{0}, awards[0].Ranks)
	assert.Equal(t, model.Address("A"), awards[0].Winner)
	assert.Equal(t, []int{2}, awards[1].Ranks)
	assert.Equal(t, model.Address("C"), awards[1].Winner)

	awards, err = AssetStrategy{}.Plan(room, 0, []model.Address{"A"})
	require.NoError(t, err)
	assert.Len(t, awards, 1)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(nil))
	require.NoError(t, r.Register(PoolStrategy{}))

	s, ok := r.Get(model.PrizeModePoolSplit)
	require.True(t, ok)
	assert.Equal(t, model.PrizeModePoolSplit, s.Mode())

	_, ok = r.Get(model.PrizeModeAssetBased)
	assert.False(t, ok)
	assert.Len(t, DefaultRegistry.Modes(), 2)
}

func endedPoolRoom(t *testing.T, ctx context.Context, tx store.Tx) *model.Room {
	room := &model.Room{
		RoomID:         "r1",
		Host:           "host",
		FeeAsset:       "USDC",
		CharityWallet:  "charity",
		PlatformFeeBps: policy.PlatformFeeBps,
		HostFeeBps:     300,
		PrizePoolBps:   2000,
		Distribution:   []uint8{50, 30, 20},
		PrizeMode:      model.PrizeModePoolSplit,
		PlayerCount:    10,
		TotalEntry:     1000,
		Status:         model.StatusActive,
	}
	room.Key = vault.RoomKey(room.Host, room.RoomID)
	v, err := vault.OpenRoomVault(ctx, tx.Ledger(), room)
	require.NoError(t, err)
	require.NoError(t, tx.Ledger().Credit(ctx, v.Address, 1000))
	require.NoError(t, guard.MarkEnded(room))
	return room
}

func balance(t *testing.T, ctx context.Context, tx store.Tx, owner model.Address) uint64 {
	acct, err := tx.Ledger().Get(ctx, vault.AssociatedAddress(owner, "USDC"))
	if err != nil {
		return 0
	}
	return acct.Balance
}

func TestEngine_SettlePool(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	engine := NewEngine(nil)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		room := endedPoolRoom(t, ctx, tx)

		res, err := engine.Settle(ctx, tx.Ledger(), Request{
			Room:           room,
			PlatformWallet: "platform",
			Winners:        []model.Address{"A", "A", "B"},
		})
		require.NoError(t, err)

		assert.Equal(t, uint64(200), res.PlatformFee)
		assert.Equal(t, uint64(30), res.HostFee)
		assert.Equal(t, uint64(570), res.CharityShare)
		assert.Equal(t, uint64(200), res.PrizePaid)
		assert.Equal(t, uint64(0), res.Residual)

		assert.Equal(t, uint64(200), balance(t, ctx, tx, "platform"))
		assert.Equal(t, uint64(30), balance(t, ctx, tx, "host"))
		assert.Equal(t, uint64(570), balance(t, ctx, tx, "charity"))
		assert.Equal(t, uint64(160), balance(t, ctx, tx, "A"))
		assert.Equal(t, uint64(40), balance(t, ctx, tx, "B"))

		roles := make([]string, 0, len(res.Payouts))
		for _, p := range res.Payouts {
			roles = append(roles, p.Role)
		}
		assert.Equal(t, []string{model.RolePlatform, model.RoleHost, model.RoleCharity, model.RoleWinner, model.RoleWinner}, roles)
		return nil
	}))
}

func TestEngine_RequiresEndedRoom(t *testing.T) {
	ctx := context.Background()
	_, err := NewEngine(nil).Settle(ctx, nil, Request{Room: &model.Room{Status: model.StatusActive}})
	assert.ErrorIs(t, err, guard.ErrInvalidRoomStatus)
}

func TestEngine_ExplicitWinnerAccountVerified(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		room := endedPoolRoom(t, ctx, tx)
		wrong, err := vault.Associated(ctx, tx.Ledger(), "mallory", "USDC")
		require.NoError(t, err)

		_, err = NewEngine(nil).Settle(ctx, tx.Ledger(), Request{
			Room:           room,
			PlatformWallet: "platform",
			Winners:        []model.Address{"A"},
			WinnerAccounts: map[model.Address]model.Address{"A": wrong.Address},
		})
		return err
	})
	assert.ErrorIs(t, err, guard.ErrInvalidTokenOwner)
}
