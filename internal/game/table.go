package game

import (
	"github.com/lox/tableserver/internal/deck"
)

// TableConfig is the per-table rule set loaded from configuration.
type TableConfig struct {
	Name       string
	MaxSeats   int
	SmallBlind int
	BigBlind   int
	MinBuyIn   int
	MaxBuyIn   int
	AutoStart  bool
}

// Table owns the seats and at most one live hand. All methods assume the
// caller serializes access; the table session actor provides that.
type Table struct {
	ID     string
	Config TableConfig
	Seats  []*Seat
	Hand   *Hand

	dealer     int // last dealer seat, -1 before the first hand
	nextHandID uint64
}

// NewTable creates a table with empty seats.
func NewTable(id string, cfg TableConfig) *Table {
	seats := make([]*Seat, cfg.MaxSeats)
	for i := range seats {
		seats[i] = &Seat{Index: i}
	}
	return &Table{
		ID:         id,
		Config:     cfg,
		Seats:      seats,
		dealer:     -1,
		nextHandID: 1,
	}
}

// SeatOf returns the seat index held by the user, or -1.
func (t *Table) SeatOf(userID string) int {
	for _, s := range t.Seats {
		if s.UserID == userID {
			return s.Index
		}
	}
	return -1
}

// TakeSeat claims a vacant seat for the user. The stack starts at zero; a
// buy-in is a separate operation so its wallet debit can fail without
// losing the seat.
func (t *Table) TakeSeat(userID, name string, seatNo int) ([]Event, error) {
	if seatNo < 0 || seatNo >= len(t.Seats) {
		return nil, ErrInvalidSeat
	}
	if t.SeatOf(userID) >= 0 {
		return nil, ErrAlreadySeated
	}
	s := t.Seats[seatNo]
	if s.Occupied() {
		return nil, ErrSeatTaken
	}
	s.UserID = userID
	s.Name = name
	s.Stack = 0
	s.SittingOut = false
	s.Connected = true
	return []Event{PlayerSeated{Seat: seatNo, UserID: userID, Name: name}}, nil
}

// ValidateBuyIn checks a buy-in before the wallet is debited. deferred
// reports that the seat is an active participant in a live hand, so the
// chips must be held back until the hand ends.
func (t *Table) ValidateBuyIn(userID string, amount int) (seatNo int, deferred bool, err error) {
	seatNo = t.SeatOf(userID)
	if seatNo < 0 {
		return -1, false, ErrNotSeated
	}
	s := t.Seats[seatNo]
	total := s.Stack + s.PendingBuyIn + amount
	if total < t.Config.MinBuyIn || total > t.Config.MaxBuyIn {
		return -1, false, ErrInvalidBuyIn
	}
	deferred = t.Hand != nil && t.Hand.ActiveParticipant(seatNo)
	return seatNo, deferred, nil
}

// ApplyBuyIn lands an already-debited buy-in on the seat's stack.
func (t *Table) ApplyBuyIn(seatNo, amount int) []Event {
	s := t.Seats[seatNo]
	s.Stack += amount
	return []Event{BuyInApplied{Seat: seatNo, Amount: amount, Stack: s.Stack}}
}

// DeferBuyIn parks an already-debited buy-in until the live hand ends.
func (t *Table) DeferBuyIn(seatNo, amount int) {
	t.Seats[seatNo].PendingBuyIn += amount
}

// TakePendingBuyIns applies top-ups that were deferred mid-hand. Call once
// the hand has completed, before pending cash-outs, so a leaving seat
// takes its pending chips along.
func (t *Table) TakePendingBuyIns() []Event {
	var events []Event
	for _, s := range t.Seats {
		if s.PendingBuyIn > 0 {
			amount := s.PendingBuyIn
			s.PendingBuyIn = 0
			events = append(events, t.ApplyBuyIn(s.Index, amount)...)
		}
	}
	return events
}

// CashOut is the result of a cash-out request.
type CashOut struct {
	Seat   int
	UserID string
	Amount int
}

// RequestCashOut removes the seat's stack, or defers the removal to hand
// end while the seat is still an active participant with chips in a live
// pot.
func (t *Table) RequestCashOut(userID string) (CashOut, bool, []Event, error) {
	seatNo := t.SeatOf(userID)
	if seatNo < 0 {
		return CashOut{}, false, nil, ErrNotSeated
	}
	if t.Hand != nil && t.Hand.ActiveParticipant(seatNo) {
		t.Seats[seatNo].PendingCashOut = true
		return CashOut{}, true, nil, nil
	}
	return t.cashOutNow(seatNo), false, []Event{PlayerLeft{Seat: seatNo}}, nil
}

func (t *Table) cashOutNow(seatNo int) CashOut {
	s := t.Seats[seatNo]
	out := CashOut{Seat: seatNo, UserID: s.UserID, Amount: s.Stack + s.PendingBuyIn}
	if t.Hand != nil && !t.Hand.Complete && t.Hand.InHand(seatNo) {
		// The seat's folded contribution is still in a live pot; remember
		// who it belongs to in case the hand is voided.
		t.Hand.noteDeparture(seatNo, s.UserID)
	}
	s.clear()
	return out
}

// TakePendingCashOuts applies cash-outs that were deferred mid-hand. Call
// once the hand has completed.
func (t *Table) TakePendingCashOuts() ([]CashOut, []Event) {
	var outs []CashOut
	var events []Event
	for _, s := range t.Seats {
		if s.PendingCashOut {
			outs = append(outs, t.cashOutNow(s.Index))
			events = append(events, PlayerLeft{Seat: s.Index})
		}
	}
	return outs, events
}

// CanStart reports whether a new hand may begin.
func (t *Table) CanStart() bool {
	if t.Hand != nil && !t.Hand.Complete {
		return false
	}
	return t.dealableCount() >= 2
}

func (t *Table) dealableCount() int {
	count := 0
	for _, s := range t.Seats {
		if s.canDeal() {
			count++
		}
	}
	return count
}

// StartHand rotates the dealer button and deals a new hand from the seed.
func (t *Table) StartHand(seed deck.Seed) ([]Event, error) {
	if t.Hand != nil && !t.Hand.Complete {
		return nil, ErrHandInProgress
	}
	if t.dealableCount() < 2 {
		return nil, ErrNotEnoughPlayers
	}

	dealer := t.nextDealerFrom(t.dealer)
	hand, events, err := newHand(t.nextHandID, t.Seats, dealer, t.Config.SmallBlind, t.Config.BigBlind, seed)
	if err != nil {
		return nil, err
	}
	t.dealer = dealer
	t.Hand = hand
	t.nextHandID++
	return events, nil
}

// ClearHand destroys a completed hand after the inter-hand pause.
func (t *Table) ClearHand() {
	if t.Hand != nil && t.Hand.Complete {
		t.Hand = nil
	}
}

// NextDealer is the seat that will hold the button next hand.
func (t *Table) NextDealer() int {
	return t.nextDealerFrom(t.dealer)
}

func (t *Table) nextDealerFrom(from int) int {
	n := len(t.Seats)
	for i := 1; i <= n; i++ {
		seat := ((from+i)%n + n) % n
		if t.Seats[seat].canDeal() {
			return seat
		}
	}
	return -1
}

// Apply routes a user's action into the live hand.
func (t *Table) Apply(userID string, action Action, amount int) ([]Event, error) {
	if t.Hand == nil || t.Hand.Complete {
		return nil, ErrNoHandInProgress
	}
	seatNo := t.SeatOf(userID)
	if seatNo < 0 {
		return nil, ErrNotSeated
	}
	return t.Hand.Apply(seatNo, action, amount)
}

// ApplyTimeout synthesizes the default action for a seat whose turn timer
// expired: check when legal, otherwise fold.
func (t *Table) ApplyTimeout(seatNo int) ([]Event, error) {
	if t.Hand == nil || t.Hand.Complete {
		return nil, ErrNoHandInProgress
	}
	return t.Hand.Apply(seatNo, t.Hand.DefaultAction(seatNo), 0)
}

// SetConnected flags the user's seat connectivity; the seat stays in the
// hand either way.
func (t *Table) SetConnected(userID string, connected bool) (int, bool) {
	seatNo := t.SeatOf(userID)
	if seatNo < 0 {
		return -1, false
	}
	t.Seats[seatNo].Connected = connected
	return seatNo, true
}

// Drain voids the live hand, returning all contributions unplayed. Seated
// contributors get their chips back on the stack; contributions of seats
// that emptied mid-hand come back as wallet refunds. Used on shutdown so a
// table never stops with a half-settled pot.
func (t *Table) Drain() ([]Event, []CashOut) {
	if t.Hand == nil || t.Hand.Complete {
		return nil, nil
	}
	voided, refunds := t.Hand.Void()
	return []Event{voided}, refunds
}

// CashOutAll empties every occupied seat, for settling stacks back to the
// wallet at shutdown.
func (t *Table) CashOutAll() []CashOut {
	var outs []CashOut
	for _, s := range t.Seats {
		if s.Occupied() {
			outs = append(outs, t.cashOutNow(s.Index))
		}
	}
	return outs
}

// Empty reports whether no seat is occupied.
func (t *Table) Empty() bool {
	for _, s := range t.Seats {
		if s.Occupied() {
			return false
		}
	}
	return true
}

// OccupiedCount returns the number of claimed seats.
func (t *Table) OccupiedCount() int {
	count := 0
	for _, s := range t.Seats {
		if s.Occupied() {
			count++
		}
	}
	return count
}

// ChipTotal sums all stacks plus the pot in flight; conserved across a
// hand except for explicit wallet movement.
func (t *Table) ChipTotal() int {
	total := 0
	for _, s := range t.Seats {
		total += s.Stack
	}
	if t.Hand != nil && !t.Hand.Complete {
		total += t.Hand.TotalPot()
	}
	return total
}

// Snapshot builds the full player-scoped state for one viewer. Hole cards
// are included only for the viewer's own seat; this is the sole recovery
// path on reconnect and is safe to deliver alongside live events.
func (t *Table) Snapshot(viewerSeat int) Snapshot {
	snap := Snapshot{
		Table: TableView{
			ID:         t.ID,
			Name:       t.Config.Name,
			MaxSeats:   t.Config.MaxSeats,
			SmallBlind: t.Config.SmallBlind,
			BigBlind:   t.Config.BigBlind,
			MinBuyIn:   t.Config.MinBuyIn,
			MaxBuyIn:   t.Config.MaxBuyIn,
		},
		YourSeat: viewerSeat,
	}

	for _, s := range t.Seats {
		if !s.Occupied() {
			continue
		}
		sv := SeatView{
			Index:      s.Index,
			UserID:     s.UserID,
			Name:       s.Name,
			Stack:      s.Stack,
			SittingOut: s.SittingOut,
			Connected:  s.Connected,
		}
		if t.Hand != nil && !t.Hand.Complete {
			if p, ok := t.Hand.Players[s.Index]; ok {
				sv.InHand = true
				sv.Folded = p.Folded
				sv.AllIn = p.AllIn
				sv.StreetBet = p.StreetBet
				sv.TotalBet = p.TotalBet
				if s.Index == viewerSeat {
					cards := p.HoleCards
					sv.HoleCards = cards[:]
				}
			}
		}
		snap.Seats = append(snap.Seats, sv)
	}

	if t.Hand != nil && !t.Hand.Complete {
		h := t.Hand
		snap.Hand = &HandView{
			ID:         h.ID,
			Stage:      h.Stage.String(),
			DealerSeat: h.DealerSeat,
			Board:      append([]deck.Card(nil), h.Board...),
			Pot:        h.TotalPot(),
			CurrentBet: h.CurrentBet,
			MinRaise:   h.MinRaise,
			ToAct:      h.ToAct,
			DeckCommit: h.Commit,
		}
	}
	return snap
}
