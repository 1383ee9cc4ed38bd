package settlement

import (
	"fundraising-escrow/internal/guard"
	"fundraising-escrow/internal/model"
	"fundraising-escrow/internal/vault"
)

// PoolStrategy splits the prize share by rank weight. A winner holding
// several ranks receives their combined share in a single transfer.
type PoolStrategy struct{}

func (PoolStrategy) Mode() model.PrizeMode { return model.PrizeModePoolSplit }

func (PoolStrategy) Plan(room *model.Room, prizeShare uint64, winners []model.Address) ([]Award, error) {
	awards, err := AggregatePool(prizeShare, room.Distribution, winners)
	if err != nil {
		return nil, err
	}
	from := vault.RoomVaultAddress(room.Key)
	for i := range awards {
		awards[i].From = from
		awards[i].Asset = room.FeeAsset
	}
	return awards, nil
}

// AggregatePool computes per-winner prize amounts. Rank i pays
// prizeShare*weights[i]/100. Ranks without a winner or with zero weight pay
// nothing, and the returned awards keep first-appearance order.
func AggregatePool(prizeShare uint64, weights []uint8, winners []model.Address) ([]Award, error) {
	n := min(len(winners), len(weights), guard.MaxWinners)
	processed := make([]bool, n)

	var awards []Award
	for i := 0; i < n; i++ {
		if processed[i] || weights[i] == 0 {
			continue
		}
		total, err := guard.MulDiv(prizeShare, uint64(weights[i]), 100)
		if err != nil {
			return nil, err
		}
		ranks := []int{i}

		for j := i + 1; j < n; j++ {
			if processed[j] || winners[j] != winners[i] || weights[j] == 0 {
				continue
			}
			extra, err := guard.MulDiv(prizeShare, uint64(weights[j]), 100)
			if err != nil {
				return nil, err
			}
			if total, err = guard.CheckedAdd(total, extra); err != nil {
				return nil, err
			}
			ranks = append(ranks, j)
			processed[j] = true
		}
		processed[i] = true

		if total > 0 {
			awards = append(awards, Award{Winner: winners[i], Ranks: ranks, Amount: total})
		}
	}
	return awards, nil
}
