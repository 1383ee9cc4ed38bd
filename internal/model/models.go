// Package model defines the data models for the fundraising escrow engine.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Address identifies a participant, host, platform wallet or derived account.
type Address string

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool {
	return a == ""
}

// AssetType identifies a fungible asset (the mint of a token account).
type AssetType string

// PrizeMode selects how winners are paid. It is fixed at creation.
type PrizeMode string

const (
	PrizeModePoolSplit  PrizeMode = "pool_split"  // prizes carved out of entry fees
	PrizeModeAssetBased PrizeMode = "asset_based" // prizes pre-escrowed by the host
)

// RoomStatus is the lifecycle state of a room.
type RoomStatus string

const (
	StatusAwaitingFunding RoomStatus = "awaiting_funding"
	StatusPartiallyFunded RoomStatus = "partially_funded"
	StatusReady           RoomStatus = "ready"
	StatusActive          RoomStatus = "active"
	StatusEnded           RoomStatus = "ended"
)

// Joinable reports whether participants may join a room in this status.
func (s RoomStatus) Joinable() bool {
	return s == StatusReady || s == StatusActive
}

// MaxPrizeSlots is the number of prize ranks a room can carry.
const MaxPrizeSlots = 3

// Weights are per-rank prize percentages. They encode as a JSON number array.
type Weights []uint8

// MarshalJSON implements json.Marshaler.
func (w Weights) MarshalJSON() ([]byte, error) {
	if w == nil {
		return []byte("null"), nil
	}
	ints := make([]int, len(w))
	for i, v := range w {
		ints[i] = int(v)
	}
	return json.Marshal(ints)
}

// UnmarshalJSON implements json.Unmarshaler.
func (w *Weights) UnmarshalJSON(b []byte) error {
	var ints []int
	if err := json.Unmarshal(b, &ints); err != nil {
		return err
	}
	if ints == nil {
		*w = nil
		return nil
	}
	out := make(Weights, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("weight %d out of range", v)
		}
		out[i] = uint8(v)
	}
	*w = out
	return nil
}

// PrizeSlot is one pre-escrowed prize of an asset-based room.
type PrizeSlot struct {
	AssetType AssetType `json:"asset_type"`
	Amount    uint64    `json:"amount"`
	Deposited bool      `json:"deposited"`
}

// Room is one fundraising session, keyed by (Host, RoomID).
type Room struct {
	Key            Address     `json:"room_key" db:"room_key"`
	RoomID         string      `json:"room_id" db:"room_id"`
	Host           Address     `json:"host" db:"host"`
	FeeAsset       AssetType   `json:"fee_asset" db:"fee_asset"`
	CharityWallet  Address     `json:"charity_wallet" db:"charity_wallet"`
	Memo           string      `json:"memo" db:"memo"`
	EntryFee       uint64      `json:"entry_fee" db:"entry_fee"`
	MaxPlayers     uint32      `json:"max_players" db:"max_players"`
	PlatformFeeBps uint16      `json:"platform_fee_bps" db:"platform_fee_bps"`
	HostFeeBps     uint16      `json:"host_fee_bps" db:"host_fee_bps"`
	PrizePoolBps   uint16      `json:"prize_pool_bps" db:"prize_pool_bps"`
	CharityBps     uint16      `json:"charity_bps" db:"charity_bps"`
	Distribution   Weights     `json:"prize_distribution" db:"prize_distribution"`
	PrizeMode      PrizeMode   `json:"prize_mode" db:"prize_mode"`
	PrizeSlots     []PrizeSlot `json:"prize_slots" db:"prize_slots"`
	Status         RoomStatus  `json:"status" db:"status"`
	PlayerCount    uint32      `json:"player_count" db:"player_count"`
	TotalEntry     uint64      `json:"total_entry_fees" db:"total_entry_fees"`
	TotalExtras    uint64      `json:"total_extras_fees" db:"total_extras_fees"`
	Ended          bool        `json:"ended" db:"ended"`
	JoiningClosed  bool        `json:"joining_closed" db:"joining_closed"`
	CreatedAt      int64       `json:"created_at" db:"created_at"`
	ExpiresAt      int64       `json:"expires_at" db:"expires_at"` // 0 means never
	Winners        []Address   `json:"winners" db:"winners"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// Expired reports whether the expiration checkpoint has been reached at now.
func (r *Room) Expired(now int64) bool {
	return r.ExpiresAt != 0 && now >= r.ExpiresAt
}

// AllPrizesDeposited reports whether every declared prize slot has been funded.
func (r *Room) AllPrizesDeposited() bool {
	for _, s := range r.PrizeSlots {
		if !s.Deposited {
			return false
		}
	}
	return len(r.PrizeSlots) > 0
}

// Clone returns a deep copy of the room.
func (r *Room) Clone() *Room {
	c := *r
	c.Distribution = append(Weights(nil), r.Distribution...)
	c.PrizeSlots = append([]PrizeSlot(nil), r.PrizeSlots...)
	c.Winners = append([]Address(nil), r.Winners...)
	return &c
}

// ParticipantEntry is the join receipt for one (room, participant) pair.
type ParticipantEntry struct {
	RoomKey     Address   `json:"room_key" db:"room_key"`
	Participant Address   `json:"participant" db:"participant"`
	EntryPaid   uint64    `json:"entry_paid" db:"entry_paid"`
	ExtrasPaid  uint64    `json:"extras_paid" db:"extras_paid"`
	JoinedAt    int64     `json:"joined_at" db:"joined_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// AccountKind distinguishes participant wallets from custody accounts.
type AccountKind string

const (
	AccountWallet     AccountKind = "wallet"
	AccountVault      AccountKind = "vault"
	AccountPrizeVault AccountKind = "prize_vault"
)

// TokenAccount holds a balance of one asset for one owner.
type TokenAccount struct {
	Address   Address     `json:"address" db:"address"`
	Owner     Address     `json:"owner" db:"owner"`
	AssetType AssetType   `json:"asset_type" db:"asset_type"`
	Balance   uint64      `json:"balance" db:"balance"`
	Kind      AccountKind `json:"kind" db:"kind"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// FeePolicy is the read-only snapshot of platform economics handed to each operation.
type FeePolicy struct {
	PlatformFeeBps  uint16 `json:"platform_fee_bps"`
	MaxHostFeeBps   uint16 `json:"max_host_fee_bps"`
	MaxPrizePoolBps uint16 `json:"max_prize_pool_bps"`
	MinCharityBps   uint16 `json:"min_charity_bps"`
}

// PlatformConfig is the platform-wide configuration record.
type PlatformConfig struct {
	Admin            Address     `json:"admin" db:"admin"`
	UpgradeAuthority Address     `json:"upgrade_authority" db:"upgrade_authority"`
	PlatformWallet   Address     `json:"platform_wallet" db:"platform_wallet"`
	CharityWallet    Address     `json:"charity_wallet" db:"charity_wallet"`
	Policy           FeePolicy   `json:"policy" db:"-"`
	Paused           bool        `json:"paused" db:"paused"`
	ApprovedAssets   []AssetType `json:"approved_assets" db:"-"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}

// Event kinds emitted by room and platform operations.
const (
	EventRoomCreated           = "room_created"
	EventAssetRoomCreated      = "asset_room_created"
	EventPlayerJoined          = "player_joined"
	EventJoiningClosed         = "joining_closed"
	EventPrizeDeposited        = "prize_deposited"
	EventWinnersDeclared       = "winners_declared"
	EventRoomEnded             = "room_ended"
	EventEmergencyPauseToggled = "emergency_pause_toggled"
	EventAssetApproved         = "asset_approved"
	EventAssetRemoved          = "asset_removed"
	EventFeePolicyUpdated      = "fee_policy_updated"
)

// Event is an append-only notification record.
type Event struct {
	ID        string         `json:"id" db:"id"`
	Kind      string         `json:"kind" db:"kind"`
	RoomKey   Address        `json:"room_key,omitempty" db:"room_key"`
	Payload   map[string]any `json:"payload" db:"payload"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// Payout is a single transfer issued during settlement.
type Payout struct {
	Role   string    `json:"role"`
	To     Address   `json:"to"`
	Asset  AssetType `json:"asset"`
	Amount uint64    `json:"amount"`
}

// Payout roles.
const (
	RolePlatform = "platform"
	RoleHost     = "host"
	RoleCharity  = "charity"
	RoleWinner   = "winner"
)

// Settlement is the outcome of ending a room.
type Settlement struct {
	RoomKey      Address   `json:"room_key"`
	Winners      []Address `json:"winners"`
	EntryTotal   uint64    `json:"entry_fees_total"`
	ExtrasTotal  uint64    `json:"extras_total"`
	PlatformFee  uint64    `json:"platform_fee"`
	HostFee      uint64    `json:"host_fee"`
	CharityShare uint64    `json:"charity_amount"`
	PrizeShare   uint64    `json:"prize_amount"`
	PrizePaid    uint64    `json:"prize_paid"`
	Residual     uint64    `json:"residual"`
	Payouts      []Payout  `json:"payouts"`
	PlayerCount  uint32    `json:"total_players"`
	EndedAt      int64     `json:"timestamp"`
}
