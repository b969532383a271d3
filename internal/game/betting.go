package game

import (
	"errors"
	"fmt"
)

// Street represents the betting round
type Street int

const (
	Preflop Street = iota
	Flop
	Turn
	River
	Showdown
)

func (s Street) String() string {
	return [...]string{"preflop", "flop", "turn", "river", "showdown"}[s]
}

// Action represents a player action
type Action int

const (
	Fold Action = iota
	Check
	Call
	Bet
	Raise
)

func (a Action) String() string {
	return [...]string{"fold", "check", "call", "bet", "raise"}[a]
}

// ParseAction parses a wire action name.
func ParseAction(s string) (Action, error) {
	switch s {
	case "fold":
		return Fold, nil
	case "check":
		return Check, nil
	case "call":
		return Call, nil
	case "bet":
		return Bet, nil
	case "raise":
		return Raise, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

// Validation errors are surfaced to the acting seat only and never change
// table state.
var (
	ErrNotYourTurn       = errors.New("not your turn to act")
	ErrNoHandInProgress  = errors.New("no hand in progress")
	ErrHandInProgress    = errors.New("hand already in progress")
	ErrUnknownAction     = errors.New("unknown action")
	ErrCannotCheck       = errors.New("cannot check facing a bet")
	ErrNothingToCall     = errors.New("nothing to call")
	ErrBetNotAllowed     = errors.New("cannot bet, there is already a bet this street")
	ErrBetTooSmall       = errors.New("bet below table minimum")
	ErrRaiseNotAllowed   = errors.New("cannot raise, action was not reopened")
	ErrRaiseTooSmall     = errors.New("raise below minimum increment")
	ErrInsufficientChips = errors.New("insufficient chips")
	ErrSeatTaken         = errors.New("seat already occupied")
	ErrSeatVacant        = errors.New("seat is not occupied")
	ErrAlreadySeated     = errors.New("already seated at this table")
	ErrNotSeated         = errors.New("not seated at this table")
	ErrInvalidSeat       = errors.New("invalid seat number")
	ErrInvalidBuyIn      = errors.New("buy-in outside table limits")
	ErrNotEnoughPlayers  = errors.New("need at least 2 active players")
)

// InvariantError marks a fatal internal inconsistency: pot sums not
// balancing, a negative stack. Tables halt on these rather than continuing
// with corrupted money state.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "invariant violation: " + e.Msg
}

func invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}

// IsInvariant reports whether err is an invariant violation.
func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
