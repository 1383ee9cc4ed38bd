package vault

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
)

func newRoom(host model.Address, id string) *model.Room {
	return &model.Room{
		Key:        RoomKey(host, id),
		RoomID:     id,
		Host:       host,
		FeeAsset:   "USDC",
		PrizeSlots: []model.PrizeSlot{{AssetType: "NFT", Amount: 1}},
	}
}

// Property 1: Derived addresses are deterministic and distinct per identity.
func TestDerivationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		host := model.Address(rapid.StringMatching(`[a-z]{1,12}`).Draw(t, "host"))
		id := rapid.StringMatching(`[a-z0-9]{1,32}`).Draw(t, "id")
		other := rapid.StringMatching(`[a-z0-9]{1,32}`).Draw(t, "other")

		key := RoomKey(host, id)
		if key != RoomKey(host, id) {
			t.Fatalf("room key not deterministic")
		}
		if !IsDerived(key) {
			t.Fatalf("room key %q not recognized as derived", key)
		}
		if other != id && RoomKey(host, other) == key {
			t.Fatalf("distinct ids %q and %q collide", id, other)
		}
		if RoomVaultAddress(key) == PrizeVaultAddress(key, 0) {
			t.Fatalf("room vault collides with prize vault")
		}
	})
}

func TestDerivation_Separation(t *testing.T) {
	assert.NotEqual(t, RoomKey("ab", "c"), RoomKey("a", "bc"))
	assert.NotEqual(t, PrizeVaultAddress("k", 0), PrizeVaultAddress("k", 1))
	assert.False(t, IsDerived("alice"))
}

func TestCreateIfAbsent_Revalidates(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	room := newRoom("host", "r1")

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		first, err := OpenRoomVault(ctx, tx.Ledger(), room)
		require.NoError(t, err)

		again, err := OpenRoomVault(ctx, tx.Ledger(), room)
		require.NoError(t, err)
		assert.Equal(t, first.Address, again.Address)
		return nil
	}))

	// A forged account planted at the derived address must be rejected.
	forged := newRoom("host", "r2")
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.Ledger().Create(ctx, &model.TokenAccount{
			Address:   RoomVaultAddress(forged.Key),
			Owner:     "attacker",
			AssetType: "USDC",
			Kind:      model.AccountVault,
		}))
		_, err := OpenRoomVault(ctx, tx.Ledger(), forged)
		assert.ErrorIs(t, err, guard.ErrInvalidVaultAccount)
		return nil
	}))
}

func TestAuthority_Transfer(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	room := newRoom("host", "r1")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		l := tx.Ledger()
		v, err := OpenRoomVault(ctx, l, room)
		require.NoError(t, err)
		require.NoError(t, l.Credit(ctx, v.Address, 1000))

		dst, err := Associated(ctx, l, "alice", "USDC")
		require.NoError(t, err)

		var zero Authority
		assert.ErrorIs(t, zero.Transfer(ctx, l, v.Address, dst.Address, 1), guard.ErrUnauthorized)

		other, err := AuthorityFor(newRoom("host", "r2"))
		require.NoError(t, err)
		assert.ErrorIs(t, other.Transfer(ctx, l, v.Address, dst.Address, 1), guard.ErrInvalidVaultAccount)

		auth, err := AuthorityFor(room)
		require.NoError(t, err)
		require.NoError(t, auth.Transfer(ctx, l, v.Address, dst.Address, 400))
		assert.ErrorIs(t, auth.Transfer(ctx, l, v.Address, dst.Address, 601), guard.ErrInsufficientFunds)

		// Wallets are never debited through a room authority.
		assert.ErrorIs(t, auth.Transfer(ctx, l, dst.Address, v.Address, 1), guard.ErrInvalidVaultAccount)

		got, err := l.Get(ctx, dst.Address)
		require.NoError(t, err)
		assert.Equal(t, uint64(400), got.Balance)
		return nil
	})
	require.NoError(t, err)
}

func TestAuthorityFor_RejectsMismatchedKey(t *testing.T) {
	room := newRoom("host", "r1")
	room.Key = RoomKey("someone-else", "r1")

	_, err := AuthorityFor(room)
	assert.ErrorIs(t, err, guard.ErrInvalidVaultAccount)
}

func TestPay(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	room := newRoom("host", "r1")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		l := tx.Ledger()
		src, err := Associated(ctx, l, "alice", "USDC")
		require.NoError(t, err)
		require.NoError(t, l.Credit(ctx, src.Address, 50))
		v, err := OpenRoomVault(ctx, l, room)
		require.NoError(t, err)

		assert.ErrorIs(t, Pay(ctx, l, "bob", src.Address, v.Address, 10), guard.ErrInvalidTokenOwner)

		nft, err := OpenPrizeVault(ctx, l, room, 0)
		require.NoError(t, err)
		assert.ErrorIs(t, Pay(ctx, l, "alice", src.Address, nft.Address, 10), guard.ErrInvalidTokenMint)

		require.NoError(t, Pay(ctx, l, "alice", src.Address, v.Address, 50))
		return nil
	})
	require.NoError(t, err)
}

func TestVerifyDestination(t *testing.T) {
	acct := &model.TokenAccount{Owner: "alice", AssetType: "USDC"}
	assert.NoError(t, VerifyDestination(acct, "alice", "USDC"))
	assert.ErrorIs(t, VerifyDestination(acct, "alice", "EURC"), guard.ErrInvalidTokenMint)
	assert.ErrorIs(t, VerifyDestination(acct, "bob", "USDC"), guard.ErrInvalidTokenOwner)
}
