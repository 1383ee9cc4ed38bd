// Package vault derives custody accounts for rooms and moves value out of
// them. Vault debits are only possible through an Authority, which is built
// from a room's identity and never from caller input.
package vault

import (
	"encoding/binary"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/crypto/blake256"

	"fundraising-escrow/internal/model"
)

// Domain separation tags for derived addresses.
const (
	tagRoom       = "room"
	tagRoomVault  = "room-vault"
	tagPrizeVault = "prize-vault"
	tagAssociated = "associated-account"
)

func derive(tag string, parts ...[]byte) model.Address {
	h := blake256.New()
	h.Write([]byte(tag))
	for _, p := range parts {
		// Length prefix keeps ("ab","c") and ("a","bc") apart.
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(p)))
		h.Write(n[:])
		h.Write(p)
	}
	var sum chainhash.Hash
	copy(sum[:], h.Sum(nil))
	return model.Address(sum.String())
}

// RoomKey derives the address of a room from its host and identifier.
func RoomKey(host model.Address, roomID string) model.Address {
	return derive(tagRoom, []byte(host), []byte(roomID))
}

// RoomVaultAddress derives the main custody account of a room.
func RoomVaultAddress(roomKey model.Address) model.Address {
	return derive(tagRoomVault, []byte(roomKey))
}

// PrizeVaultAddress derives the custody account for one prize slot.
func PrizeVaultAddress(roomKey model.Address, slot int) model.Address {
	return derive(tagPrizeVault, []byte(roomKey), []byte{byte(slot)})
}

// AssociatedAddress derives the canonical wallet of owner for asset.
func AssociatedAddress(owner model.Address, asset model.AssetType) model.Address {
	return derive(tagAssociated, []byte(owner), []byte(asset))
}

// IsDerived reports whether addr has the shape of a derived address.
func IsDerived(addr model.Address) bool {
	var h chainhash.Hash
	return len(addr) == chainhash.MaxHashStringSize && chainhash.Decode(&h, string(addr)) == nil
}
