package guard

import "errors"

// Kind groups errors by the class of failure they signal.
type Kind int

const (
	KindAuthorization Kind = iota + 1
	KindLifecycle
	KindInput
	KindArithmetic
	KindAccount
	KindNotFound
	KindFunds
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindLifecycle:
		return "lifecycle"
	case KindInput:
		return "input"
	case KindArithmetic:
		return "arithmetic"
	case KindAccount:
		return "account"
	case KindNotFound:
		return "not_found"
	case KindFunds:
		return "funds"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is a domain failure with a stable code surfaced verbatim to callers.
type Error struct {
	Code string
	Kind Kind
	msg  string
}

func newError(code string, kind Kind, msg string) *Error {
	return &Error{Code: code, Kind: kind, msg: msg}
}

func (e *Error) Error() string {
	return e.msg
}

// As extracts the domain error from err, if any.
func As(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// CodeOf returns the domain code carried by err, or "Internal".
func CodeOf(err error) string {
	if ge, ok := As(err); ok {
		return ge.Code
	}
	return "Internal"
}

// Authorization errors.
var (
	ErrUnauthorized       = newError("Unauthorized", KindAuthorization, "unauthorized")
	ErrHostCannotBeWinner = newError("HostCannotBeWinner", KindAuthorization, "host cannot be a winner")
)

// Lifecycle errors.
var (
	ErrInvalidRoomStatus      = newError("InvalidRoomStatus", KindLifecycle, "invalid room status for this operation")
	ErrRoomAlreadyEnded       = newError("RoomAlreadyEnded", KindLifecycle, "room already ended")
	ErrJoiningClosed          = newError("JoiningClosed", KindLifecycle, "joining is closed")
	ErrWinnersAlreadyDeclared = newError("WinnersAlreadyDeclared", KindLifecycle, "winners already declared")
	ErrPrizeAlreadyDeposited  = newError("PrizeAlreadyDeposited", KindLifecycle, "prize already deposited")
	ErrRoomExpired            = newError("RoomExpired", KindLifecycle, "room expired")
	ErrMaxPlayersReached      = newError("MaxPlayersReached", KindLifecycle, "max players reached")
	ErrPlayerAlreadyJoined    = newError("PlayerAlreadyJoined", KindLifecycle, "player already joined")
	ErrEmergencyPause         = newError("EmergencyPause", KindLifecycle, "platform is paused")
	ErrRoomAlreadyExists      = newError("RoomAlreadyExists", KindLifecycle, "room already exists")
)

// Input validation errors.
var (
	ErrInvalidRoomID            = newError("InvalidRoomId", KindInput, "invalid room id")
	ErrInvalidEntryFee          = newError("InvalidEntryFee", KindInput, "invalid entry fee")
	ErrInvalidMaxPlayers        = newError("InvalidMaxPlayers", KindInput, "invalid max players")
	ErrInvalidPrizeDistribution = newError("InvalidPrizeDistribution", KindInput, "invalid prize distribution")
	ErrInvalidMemo              = newError("InvalidMemo", KindInput, "invalid memo")
	ErrInvalidPrizeAmount       = newError("InvalidPrizeAmount", KindInput, "invalid prize amount")
	ErrInvalidAmount            = newError("InvalidAmount", KindInput, "amount exceeds safety ceiling")
	ErrHostFeeTooHigh           = newError("HostFeeTooHigh", KindInput, "host fee too high")
	ErrPrizePoolTooHigh         = newError("PrizePoolTooHigh", KindInput, "prize pool too high")
	ErrCharityBelowMinimum      = newError("CharityBelowMinimum", KindInput, "charity share below minimum")
	ErrInvalidFeePolicy         = newError("InvalidFeePolicy", KindInput, "fee policy exceeds 10000 bps")
	ErrTokenNotApproved         = newError("TokenNotApproved", KindInput, "asset type not approved")
	ErrTokenAlreadyApproved     = newError("TokenAlreadyApproved", KindInput, "asset type already approved")
	ErrMaxTokensReached         = newError("MaxTokensReached", KindInput, "approved asset list is full")
	ErrInvalidAddress           = newError("InvalidAddress", KindInput, "invalid address")
)

// Arithmetic errors.
var (
	ErrArithmeticOverflow  = newError("ArithmeticOverflow", KindArithmetic, "arithmetic overflow")
	ErrArithmeticUnderflow = newError("ArithmeticUnderflow", KindArithmetic, "arithmetic underflow")
	ErrDivisionByZero      = newError("DivisionByZero", KindArithmetic, "division by zero")
)

// Account integrity errors.
var (
	ErrInvalidVaultAccount = newError("InvalidVaultAccount", KindAccount, "invalid vault account")
	ErrInvalidTokenMint    = newError("InvalidTokenMint", KindAccount, "account holds a different asset type")
	ErrInvalidTokenOwner   = newError("InvalidTokenOwner", KindAccount, "account owned by a different address")
	ErrInvalidWinners      = newError("InvalidWinners", KindAccount, "invalid winners")
)

// Lookup and funds errors.
var (
	ErrRoomNotFound      = newError("RoomNotFound", KindNotFound, "room not found")
	ErrAccountNotFound   = newError("AccountNotFound", KindNotFound, "account not found")
	ErrInsufficientFunds = newError("InsufficientFunds", KindFunds, "insufficient funds")
)

// ErrRoomBusy is returned when the room stayed locked past the wait bound.
// Nothing was applied.
var ErrRoomBusy = newError("RoomBusy", KindUnavailable, "room is busy, try again")
