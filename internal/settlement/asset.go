package settlement

import (
	"fundraising-escrow/internal/model"
	"fundraising-escrow/internal/vault"
)

// AssetStrategy pays each funded prize slot from its own vault to the winner
// at the same rank. Unfunded slots and ranks without a winner are skipped.
type AssetStrategy struct{}

func (AssetStrategy) Mode() model.PrizeMode { return model.PrizeModeAssetBased }

func (AssetStrategy) Plan(room *model.Room, _ uint64, winners []model.Address) ([]Award, error) {
	var awards []Award
	for i, slot := range room.PrizeSlots {
		if !slot.Deposited || i >= len(winners) || slot.Amount == 0 {
			continue
		}
		awards = append(awards, Award{
			Winner: winners[i],
			Ranks:  []int{i},
			From:   vault.PrizeVaultAddress(room.Key, i),
			Asset:  slot.AssetType,
			Amount: slot.Amount,
		})
	}
	return awards, nil
}
