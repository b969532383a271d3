package game

import "github.com/lox/tableserver/internal/deck"

// Seat is a fixed table position. It is the durable entity: it persists
// across hands, while PlayerInHand records come and go with each hand.
type Seat struct {
	Index      int
	UserID     string // empty when vacant
	Name       string
	Stack      int // minor currency units, never fractional
	SittingOut bool
	Connected  bool

	// Cash-out requested while the seat was an active hand participant;
	// applied once the hand ends.
	PendingCashOut bool

	// Buy-in already debited from the wallet but held off the stack while
	// the seat is an active hand participant; topping up mid-hand would
	// shift all-in thresholds.
	PendingBuyIn int
}

// Occupied reports whether a user holds the seat.
func (s *Seat) Occupied() bool {
	return s.UserID != ""
}

// canDeal reports whether the seat takes part in the next hand.
func (s *Seat) canDeal() bool {
	return s.Occupied() && !s.SittingOut && s.Stack > 0
}

// clear empties the seat.
func (s *Seat) clear() {
	s.UserID = ""
	s.Name = ""
	s.Stack = 0
	s.SittingOut = false
	s.Connected = false
	s.PendingCashOut = false
	s.PendingBuyIn = 0
}

// PlayerInHand is one seat's per-hand record. It is frozen once the seat
// folds or goes all-in and discarded with the hand.
type PlayerInHand struct {
	Seat      int
	HoleCards [2]deck.Card
	Folded    bool
	AllIn     bool
	StreetBet int // contribution this street
	TotalBet  int // contribution this hand

	// acted since the last full bet or raise this street; blind posts do
	// not count, which is what gives the big blind its preflop option
	acted bool
}

// active reports whether the player can still act.
func (p *PlayerInHand) active() bool {
	return !p.Folded && !p.AllIn
}
