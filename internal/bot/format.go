package bot

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"fundraising-escrow/internal/model"
)

// FormatBps renders basis points as a percentage, e.g. 250 -> "2.5%".
func FormatBps(bps uint16) string {
	return decimal.New(int64(bps), -2).String() + "%"
}

// FormatShare renders part/total as a percentage with two decimals at most.
func FormatShare(part, total uint64) string {
	if total == 0 {
		return "0%"
	}
	p := decimal.NewFromBigInt(new(big.Int).SetUint64(part), 0)
	t := decimal.NewFromBigInt(new(big.Int).SetUint64(total), 0)
	return p.Div(t).Mul(decimal.NewFromInt(100)).Round(2).String() + "%"
}

// FormatAmount renders an amount in smallest units with its asset.
func FormatAmount(amount uint64, asset model.AssetType) string {
	return fmt.Sprintf("%d %s", amount, asset)
}

// FormatRoom renders a room summary.
func FormatRoom(r *model.Room) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Room %s by %s\n", r.RoomID, r.Host)
	fmt.Fprintf(&sb, "Status: %s\n", r.Status)
	fmt.Fprintf(&sb, "Entry fee: %s\n", FormatAmount(r.EntryFee, r.FeeAsset))
	fmt.Fprintf(&sb, "Players: %d/%d\n", r.PlayerCount, r.MaxPlayers)
	fmt.Fprintf(&sb, "Collected: %s + %s extras\n", FormatAmount(r.TotalEntry, r.FeeAsset), FormatAmount(r.TotalExtras, r.FeeAsset))
	fmt.Fprintf(&sb, "Host fee: %s, charity: %s", FormatBps(r.HostFeeBps), FormatBps(r.CharityBps))

	switch r.PrizeMode {
	case model.PrizeModePoolSplit:
		weights := make([]string, len(r.Distribution))
		for i, w := range r.Distribution {
			weights[i] = fmt.Sprintf("%d%%", w)
		}
		fmt.Fprintf(&sb, ", prize pool: %s (%s)", FormatBps(r.PrizePoolBps), strings.Join(weights, "/"))
	case model.PrizeModeAssetBased:
		for i, s := range r.PrizeSlots {
			state := "pending"
			if s.Deposited {
				state = "deposited"
			}
			fmt.Fprintf(&sb, "\nPrize %d: %s (%s)", i+1, FormatAmount(s.Amount, s.AssetType), state)
		}
	}
	if r.JoiningClosed {
		sb.WriteString("\nJoining closed")
	}
	return sb.String()
}

// FormatPolicy renders the platform fee policy.
func FormatPolicy(cfg *model.PlatformConfig) string {
	p := cfg.Policy
	text := fmt.Sprintf("Platform fee: %s\nMax host fee: %s\nMax prize pool: %s\nMin charity: %s\nApproved assets: %d",
		FormatBps(p.PlatformFeeBps), FormatBps(p.MaxHostFeeBps), FormatBps(p.MaxPrizePoolBps), FormatBps(p.MinCharityBps),
		len(cfg.ApprovedAssets))
	if cfg.Paused {
		text += "\nPAUSED"
	}
	return text
}

// FormatEvent renders an event for a chat. Kinds without a message render empty.
func FormatEvent(ev *model.Event) string {
	p := ev.Payload
	switch ev.Kind {
	case model.EventRoomCreated, model.EventAssetRoomCreated:
		return fmt.Sprintf("New room %v by %v: entry %v %v, up to %v players",
			p["room_id"], p["host"], p["entry_fee"], p["fee_asset"], p["max_players"])
	case model.EventPlayerJoined:
		return fmt.Sprintf("%v joined (%v players)", p["player"], p["player_count"])
	case model.EventJoiningClosed:
		return fmt.Sprintf("Joining closed with %v players", p["player_count"])
	case model.EventPrizeDeposited:
		return fmt.Sprintf("Prize %v deposited: %v %v", p["slot"], p["amount"], p["asset"])
	case model.EventWinnersDeclared:
		return fmt.Sprintf("Winners declared: %v", p["winners"])
	case model.EventRoomEnded:
		charity, _ := p["charity_amount"].(uint64)
		entry, _ := p["entry_fees_total"].(uint64)
		extras, _ := p["extras_total"].(uint64)
		return fmt.Sprintf("Room ended. Charity receives %d (%s of everything collected), winners: %v",
			charity, FormatShare(charity, entry+extras), p["winners"])
	case model.EventEmergencyPauseToggled:
		if paused, _ := p["paused"].(bool); paused {
			return "Platform paused"
		}
		return "Platform resumed"
	default:
		return ""
	}
}
