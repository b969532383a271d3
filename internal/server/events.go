package server

import (
	"errors"
	"fmt"

	"github.com/lox/tableserver/internal/game"
	"github.com/lox/tableserver/internal/table"
	"github.com/lox/tableserver/internal/wallet"
)

// messageFromEvent renders one game event as a wire frame. The union is
// closed, so an unhandled event type is a programming error worth failing
// loudly on.
func messageFromEvent(tableID string, ev game.Event) (*Message, error) {
	var msgType MessageType
	switch ev.(type) {
	case game.PlayerSeated:
		msgType = MessageTypePlayerSeated
	case game.BuyInApplied:
		msgType = MessageTypeBuyInApplied
	case game.PlayerLeft:
		msgType = MessageTypePlayerLeft
	case game.HandStarted:
		msgType = MessageTypeHandStarted
	case game.HoleCardsDealt:
		msgType = MessageTypeHoleCards
	case game.FlopDealt:
		msgType = MessageTypeDealFlop
	case game.TurnDealt:
		msgType = MessageTypeDealTurn
	case game.RiverDealt:
		msgType = MessageTypeDealRiver
	case game.ActionRequired:
		msgType = MessageTypeActionRequired
	case game.ActionApplied:
		msgType = MessageTypeActionApplied
	case game.ShowdownEvent:
		msgType = MessageTypeShowdown
	case game.PotAwarded:
		msgType = MessageTypePotAwarded
	case game.HandEnded:
		msgType = MessageTypeHandEnded
	case game.HandVoided:
		msgType = MessageTypeHandVoided
	case game.CashedOut:
		msgType = MessageTypeCashOutOK
	case game.Snapshot:
		msgType = MessageTypeTableSnapshot
	default:
		return nil, fmt.Errorf("no message type for event %T", ev)
	}
	return NewTableMessage(msgType, tableID, ev)
}

// errorCode maps an error to a stable wire code. Validation errors reach
// only the requester; the connection stays open.
func errorCode(err error) string {
	switch {
	case errors.Is(err, game.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, game.ErrNoHandInProgress):
		return "no_hand_in_progress"
	case errors.Is(err, game.ErrHandInProgress):
		return "hand_in_progress"
	case errors.Is(err, game.ErrUnknownAction):
		return "unknown_action"
	case errors.Is(err, game.ErrCannotCheck):
		return "cannot_check"
	case errors.Is(err, game.ErrNothingToCall):
		return "nothing_to_call"
	case errors.Is(err, game.ErrBetNotAllowed):
		return "bet_not_allowed"
	case errors.Is(err, game.ErrBetTooSmall):
		return "bet_too_small"
	case errors.Is(err, game.ErrRaiseNotAllowed):
		return "raise_not_allowed"
	case errors.Is(err, game.ErrRaiseTooSmall):
		return "raise_too_small"
	case errors.Is(err, game.ErrInsufficientChips):
		return "insufficient_chips"
	case errors.Is(err, game.ErrSeatTaken):
		return "seat_taken"
	case errors.Is(err, game.ErrSeatVacant):
		return "seat_vacant"
	case errors.Is(err, game.ErrAlreadySeated):
		return "already_seated"
	case errors.Is(err, game.ErrNotSeated):
		return "not_seated"
	case errors.Is(err, game.ErrInvalidSeat):
		return "invalid_seat"
	case errors.Is(err, game.ErrInvalidBuyIn):
		return "invalid_buy_in"
	case errors.Is(err, game.ErrNotEnoughPlayers):
		return "not_enough_players"
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, table.ErrTableHalted):
		return "table_halted"
	case errors.Is(err, table.ErrTableClosed):
		return "table_closed"
	default:
		return "request_failed"
	}
}
