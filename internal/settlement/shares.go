// Package settlement splits a room's collected value and pays it out.
package settlement

import "fundraising-escrow/internal/guard"

// Shares is the fee split of a room's collected value.
// Platform + Host + Prize + (Charity - Extras) == EntryTotal.
type Shares struct {
	EntryTotal uint64
	Extras     uint64
	Platform   uint64
	Host       uint64
	Prize      uint64
	Charity    uint64
}

// ComputeShares applies the bps split to entry fees. Extras are never split:
// they are added to the charity share in full. Pass prizeBps=0 for asset rooms.
func ComputeShares(entryTotal, extras uint64, platformBps, hostBps, prizeBps uint16) (Shares, error) {
	s := Shares{EntryTotal: entryTotal, Extras: extras}

	var err error
	if s.Platform, err = guard.Bps(entryTotal, platformBps); err != nil {
		return Shares{}, err
	}
	if s.Host, err = guard.Bps(entryTotal, hostBps); err != nil {
		return Shares{}, err
	}
	if s.Prize, err = guard.Bps(entryTotal, prizeBps); err != nil {
		return Shares{}, err
	}

	rest, err := guard.CheckedSub(entryTotal, s.Platform)
	if err != nil {
		return Shares{}, err
	}
	if rest, err = guard.CheckedSub(rest, s.Host); err != nil {
		return Shares{}, err
	}
	if rest, err = guard.CheckedSub(rest, s.Prize); err != nil {
		return Shares{}, err
	}
	if s.Charity, err = guard.CheckedAdd(rest, extras); err != nil {
		return Shares{}, err
	}
	return s, nil
}
