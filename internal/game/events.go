package game

import "github.com/lox/tableserver/internal/deck"

// Event is the closed union of everything a table can tell its clients.
// The broadcaster type-switches over the concrete types below; adding a
// new event means adding a case there, which the closed interface makes
// hard to forget.
type Event interface {
	isEvent()
}

// PlayerSeated is broadcast when a seat claim succeeds.
type PlayerSeated struct {
	Seat   int    `json:"seatNo"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// BuyInApplied is broadcast after a buy-in lands on a seat's stack.
type BuyInApplied struct {
	Seat   int `json:"seatNo"`
	Amount int `json:"amount"`
	Stack  int `json:"stack"`
}

// PlayerLeft is broadcast when a seat empties (cash-out or leave).
type PlayerLeft struct {
	Seat int `json:"seatNo"`
}

// HandStarted announces a new hand and publishes the deck commitment
// before any card is revealed.
type HandStarted struct {
	HandID           uint64 `json:"handId"`
	DealerSeat       int    `json:"dealerSeat"`
	SmallBlindSeat   int    `json:"smallBlindSeat"`
	BigBlindSeat     int    `json:"bigBlindSeat"`
	DeckCommit       string `json:"deckCommit"`
	SmallBlindPosted int    `json:"smallBlindPosted"`
	BigBlindPosted   int    `json:"bigBlindPosted"`
}

// HoleCardsDealt carries a seat's own hole cards. It is delivered only to
// the owning seat, never broadcast.
type HoleCardsDealt struct {
	Seat   int          `json:"seatNo"`
	UserID string       `json:"-"`
	Cards  [2]deck.Card `json:"cards"`
}

// FlopDealt reveals the three flop cards.
type FlopDealt struct {
	Cards []deck.Card `json:"cards"`
}

// TurnDealt reveals the turn card.
type TurnDealt struct {
	Card deck.Card `json:"card"`
}

// RiverDealt reveals the river card.
type RiverDealt struct {
	Card deck.Card `json:"card"`
}

// ActionRequired tells the table whose turn it is. TimeLeftMs is filled in
// by the table session, which owns the turn timer.
type ActionRequired struct {
	Seat       int   `json:"seatNo"`
	ToCall     int   `json:"toCall"`
	MinRaise   int   `json:"minRaise"`
	TimeLeftMs int64 `json:"timeLeftMs"`
}

// ActionApplied is broadcast after a validated action mutates the hand.
// Amount is the seat's total street contribution after the action ("calls
// to 10", "raises to 30"), zero for check and fold.
type ActionApplied struct {
	Seat       int    `json:"seatNo"`
	Action     string `json:"action"`
	Amount     int    `json:"amount"`
	ToCallNext int    `json:"toCallNext"`
}

// ShowdownHand is one revealed hand at showdown.
type ShowdownHand struct {
	Seat         int          `json:"seatNo"`
	Cards        [2]deck.Card `json:"cards"`
	Description  string       `json:"description"`
	HoleIndices  []int        `json:"holeIndices"`
	BoardIndices []int        `json:"boardIndices"`
}

// ShowdownEvent exposes the non-folded hands and the final pot layering.
type ShowdownEvent struct {
	Hands []ShowdownHand `json:"hands"`
	Pots  []Pot          `json:"pots"`
}

// PotAwarded is broadcast once per winner per pot.
type PotAwarded struct {
	PotIndex int `json:"potIndex"`
	Seat     int `json:"seatNo"`
	Amount   int `json:"amount"`
}

// HandEnded closes the hand and discloses the shuffle seed so any client
// can verify the deck against the pre-hand commitment.
type HandEnded struct {
	NextDealerSeat int    `json:"nextDealerSeat"`
	Seed           string `json:"seed"`
	WaitMs         int64  `json:"waitMs"`
}

// HandVoided is broadcast when a table drains at shutdown: every in-hand
// contribution is returned unplayed.
type HandVoided struct {
	Returned map[int]int `json:"returned"` // seat -> chips returned
}

// CashedOut confirms a completed cash-out to the leaving player only; the
// rest of the table sees PlayerLeft.
type CashedOut struct {
	Seat       int    `json:"seatNo"`
	UserID     string `json:"-"`
	Amount     int    `json:"amount"`
	NewBalance int    `json:"newBalance"`
}

// TableView is the table-level half of a snapshot.
type TableView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MaxSeats   int    `json:"maxSeats"`
	SmallBlind int    `json:"smallBlind"`
	BigBlind   int    `json:"bigBlind"`
	MinBuyIn   int    `json:"minBuyIn"`
	MaxBuyIn   int    `json:"maxBuyIn"`
}

// SeatView is a seat as seen by one recipient. HoleCards is populated only
// for the recipient's own seat.
type SeatView struct {
	Index      int         `json:"seatNo"`
	UserID     string      `json:"userId,omitempty"`
	Name       string      `json:"name,omitempty"`
	Stack      int         `json:"stack"`
	SittingOut bool        `json:"sittingOut"`
	Connected  bool        `json:"connected"`
	InHand     bool        `json:"inHand"`
	Folded     bool        `json:"folded"`
	AllIn      bool        `json:"allIn"`
	StreetBet  int         `json:"streetBet"`
	TotalBet   int         `json:"totalBet"`
	HoleCards  []deck.Card `json:"holeCards,omitempty"`
}

// HandView is the hand-level half of a snapshot.
type HandView struct {
	ID         uint64      `json:"handId"`
	DealerSeat int         `json:"dealerSeat"`
	Stage      string      `json:"stage"`
	Board      []deck.Card `json:"board"`
	CurrentBet int         `json:"currentBet"`
	MinRaise   int         `json:"minRaise"`
	ToAct      int         `json:"toAct"`
	Pot        int         `json:"pot"`
	DeckCommit string      `json:"deckCommit"`
}

// Snapshot is the full player-scoped state sent on join and reconnect. It
// carries absolute state, so delivering it alongside (or instead of) live
// events is always safe.
type Snapshot struct {
	Table    TableView  `json:"table"`
	Seats    []SeatView `json:"seats"`
	Hand     *HandView  `json:"hand"`
	YourSeat int        `json:"yourSeat"` // -1 when not seated
}

func (PlayerSeated) isEvent()   {}
func (BuyInApplied) isEvent()   {}
func (PlayerLeft) isEvent()     {}
func (HandStarted) isEvent()    {}
func (HoleCardsDealt) isEvent() {}
func (FlopDealt) isEvent()      {}
func (TurnDealt) isEvent()      {}
func (RiverDealt) isEvent()     {}
func (ActionRequired) isEvent() {}
func (ActionApplied) isEvent()  {}
func (ShowdownEvent) isEvent()  {}
func (PotAwarded) isEvent()     {}
func (HandEnded) isEvent()      {}
func (HandVoided) isEvent()     {}
func (CashedOut) isEvent()      {}
func (Snapshot) isEvent()       {}
