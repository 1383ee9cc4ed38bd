// Package guard provides the stateless validation primitives shared by every
// room operation: checked arithmetic, amount bounds, input sanitation and
// authority checks. Functions never mutate their inputs except MarkEnded.
package guard

import (
	"math"
	"math/bits"
	"strings"

	"github.com/rs/zerolog/log"

	"fundraising-escrow/internal/model"
)

// Numeric and input limits.
const (
	// MaxSafeAmount leaves headroom below the uint64 range for bps multiplication.
	MaxSafeAmount uint64 = math.MaxInt64 / 2
	// MinDustThreshold is the amount below which a warning is logged.
	MinDustThreshold uint64 = 1000

	BpsDenominator = 10000
	MaxRoomIDLen   = 32
	MaxMemoLen     = 28
	MaxPlayers     = 10000
	MaxWinners     = 10
	MinWinners     = 1
)

// CheckedAdd returns a+b or ErrArithmeticOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

// CheckedSub returns a-b or ErrArithmeticUnderflow.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrArithmeticUnderflow
	}
	return a - b, nil
}

// CheckedMul returns a*b or ErrArithmeticOverflow.
func CheckedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrArithmeticOverflow
	}
	return lo, nil
}

// CheckedDiv returns a/b or ErrDivisionByZero.
func CheckedDiv(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	return a / b, nil
}

// MulDiv computes amount*num/den through a 128-bit intermediate product.
func MulDiv(amount, num, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrDivisionByZero
	}
	hi, lo := bits.Mul64(amount, num)
	if hi >= den {
		return 0, ErrArithmeticOverflow
	}
	q, _ := bits.Div64(hi, lo, den)
	return q, nil
}

// Bps returns amount*bps/10000, rounded down.
func Bps(amount uint64, bps uint16) (uint64, error) {
	return MulDiv(amount, uint64(bps), BpsDenominator)
}

// ValidateAmount rejects amounts above MaxSafeAmount and warns on dust.
func ValidateAmount(amount uint64) error {
	if amount > MaxSafeAmount {
		return ErrInvalidAmount
	}
	if amount > 0 && amount < MinDustThreshold {
		log.Warn().Uint64("amount", amount).Msg("Amount below dust threshold")
	}
	return nil
}

// ValidateEntryFee requires a positive fee within the safety ceiling.
func ValidateEntryFee(fee uint64) error {
	if fee == 0 || fee > MaxSafeAmount {
		return ErrInvalidEntryFee
	}
	return ValidateAmount(fee)
}

// ValidateExtras bounds a voluntary extra payment. Zero is allowed.
func ValidateExtras(extras uint64) error {
	if extras == 0 {
		return nil
	}
	return ValidateAmount(extras)
}

// ValidateTotalPayment checks entry+extras as one payment.
func ValidateTotalPayment(entry, extras uint64) (uint64, error) {
	if err := ValidateEntryFee(entry); err != nil {
		return 0, err
	}
	if err := ValidateExtras(extras); err != nil {
		return 0, err
	}
	total, err := CheckedAdd(entry, extras)
	if err != nil {
		return 0, err
	}
	if total > MaxSafeAmount {
		return 0, ErrArithmeticOverflow
	}
	return total, nil
}

// ValidateRoomID requires 1..32 bytes without NUL.
func ValidateRoomID(id string) error {
	if len(id) == 0 || len(id) > MaxRoomIDLen || strings.ContainsRune(id, 0) {
		return ErrInvalidRoomID
	}
	return nil
}

// ValidateMemo allows an empty memo up to 28 bytes without NUL.
func ValidateMemo(memo string) error {
	if len(memo) > MaxMemoLen || strings.ContainsRune(memo, 0) {
		return ErrInvalidMemo
	}
	return nil
}

// ValidateMaxPlayers requires 1..10000.
func ValidateMaxPlayers(n uint32) error {
	if n == 0 || n > MaxPlayers {
		return ErrInvalidMaxPlayers
	}
	return nil
}

// ValidateWinnerCount requires 1..10 winners.
func ValidateWinnerCount(n int) error {
	if n < MinWinners || n > MaxWinners {
		return ErrInvalidWinners
	}
	return nil
}

// ValidatePrizeDistribution requires 1..3 weights summing to 100 with a
// positive first rank. Later ranks may be 0 (unpaid).
func ValidatePrizeDistribution(weights []uint8) error {
	if len(weights) == 0 || len(weights) > model.MaxPrizeSlots || weights[0] == 0 {
		return ErrInvalidPrizeDistribution
	}
	var sum int
	for _, w := range weights {
		sum += int(w)
	}
	if sum != 100 {
		return ErrInvalidPrizeDistribution
	}
	return nil
}

// ValidateFeePolicy checks platform + max host + max prize <= 10000.
func ValidateFeePolicy(p model.FeePolicy) error {
	total := uint32(p.PlatformFeeBps) + uint32(p.MaxHostFeeBps) + uint32(p.MaxPrizePoolBps)
	if total > BpsDenominator || p.MinCharityBps > BpsDenominator {
		return ErrInvalidFeePolicy
	}
	return nil
}

// CharityBps derives the charity share of entry fees and checks it against
// the platform minimum. Pass prizeBps=0 for asset rooms.
func CharityBps(p model.FeePolicy, hostBps, prizeBps uint16) (uint16, error) {
	if hostBps > p.MaxHostFeeBps {
		return 0, ErrHostFeeTooHigh
	}
	if prizeBps > p.MaxPrizePoolBps {
		return 0, ErrPrizePoolTooHigh
	}
	used := uint32(p.PlatformFeeBps) + uint32(hostBps) + uint32(prizeBps)
	if used > BpsDenominator {
		return 0, ErrCharityBelowMinimum
	}
	charity := uint16(BpsDenominator - used)
	if charity < p.MinCharityBps {
		return 0, ErrCharityBelowMinimum
	}
	return charity, nil
}

// CheckNotPaused fails with ErrEmergencyPause while the platform is paused.
func CheckNotPaused(paused bool) error {
	if paused {
		return ErrEmergencyPause
	}
	return nil
}

// VerifyAuthority requires caller to equal expected.
func VerifyAuthority(caller, expected model.Address) error {
	if caller.IsZero() || caller != expected {
		return ErrUnauthorized
	}
	return nil
}

// VerifyHostNotInList rejects a winners list that contains the host.
func VerifyHostNotInList(host model.Address, winners []model.Address) error {
	for _, w := range winners {
		if w == host {
			return ErrHostCannotBeWinner
		}
	}
	return nil
}

// ValidateWinners applies the count and host rules to a winners list.
func ValidateWinners(host model.Address, winners []model.Address) error {
	if err := ValidateWinnerCount(len(winners)); err != nil {
		return err
	}
	for _, w := range winners {
		if w.IsZero() {
			return ErrInvalidWinners
		}
	}
	return VerifyHostNotInList(host, winners)
}

// CheckRoomNotEnded fails once the room has ended.
func CheckRoomNotEnded(r *model.Room) error {
	if r.Ended {
		return ErrRoomAlreadyEnded
	}
	return nil
}

// MarkEnded flips the room into its terminal state. It must run before any
// value leaves the room's vaults.
func MarkEnded(r *model.Room) error {
	if err := CheckRoomNotEnded(r); err != nil {
		return err
	}
	r.Ended = true
	r.Status = model.StatusEnded
	return nil
}
