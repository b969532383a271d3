package game

import (
	"github.com/lox/tableserver/internal/deck"
)

// Hand is one played hand from blinds to showdown or uncontested award.
// It is mutated exclusively through Apply (and the dealing helpers it
// calls); the table session guarantees those calls are serialized.
type Hand struct {
	ID             uint64
	DealerSeat     int
	SmallBlindSeat int
	BigBlindSeat   int
	Seed           deck.Seed
	Commit         string
	Stage          Street
	Board          []deck.Card
	Players        map[int]*PlayerInHand
	CurrentBet     int
	MinRaise       int
	ToAct          int // -1 when nobody can act
	Pots           []Pot
	Complete       bool

	deck     *deck.Deck
	seats    []*Seat
	bigBlind int

	// contributors who emptied their seat mid-hand, by seat; their voided
	// contributions go back to the wallet, not to whoever sits down next
	departed map[int]string
}

// newHand creates the hand, posts blinds, deals hole cards and determines
// the first seat to act. The returned events end with either an
// ActionRequired or, if the blinds already put everyone all-in, the full
// fast-forward to showdown.
func newHand(id uint64, seats []*Seat, dealer, smallBlind, bigBlind int, seed deck.Seed) (*Hand, []Event, error) {
	h := &Hand{
		ID:         id,
		DealerSeat: dealer,
		Seed:       seed,
		Stage:      Preflop,
		Players:    make(map[int]*PlayerInHand),
		CurrentBet: bigBlind,
		MinRaise:   bigBlind,
		ToAct:      -1,
		deck:       deck.NewShuffled(seed),
		seats:      seats,
		bigBlind:   bigBlind,
	}
	h.Commit = h.deck.Commitment(seed)

	dealt := 0
	for _, s := range seats {
		if s.canDeal() {
			h.Players[s.Index] = &PlayerInHand{Seat: s.Index}
			dealt++
		}
	}
	if dealt < 2 {
		return nil, nil, ErrNotEnoughPlayers
	}

	// Heads-up the dealer posts the small blind; otherwise the blinds are
	// the next two eligible seats clockwise.
	if dealt == 2 {
		h.SmallBlindSeat = dealer
	} else {
		h.SmallBlindSeat = h.nextDealt(dealer)
	}
	h.BigBlindSeat = h.nextDealt(h.SmallBlindSeat)

	// Blinds are capped at the stack; a short stack is simply all-in.
	sbPosted := h.pay(h.Players[h.SmallBlindSeat], smallBlind)
	bbPosted := h.pay(h.Players[h.BigBlindSeat], bigBlind)

	events := []Event{HandStarted{
		HandID:           id,
		DealerSeat:       dealer,
		SmallBlindSeat:   h.SmallBlindSeat,
		BigBlindSeat:     h.BigBlindSeat,
		DeckCommit:       h.Commit,
		SmallBlindPosted: sbPosted,
		BigBlindPosted:   bbPosted,
	}}

	// Hole cards go out in seat order starting left of the dealer, two at
	// a time, dealer last.
	n := len(seats)
	for offset := 1; offset <= n; offset++ {
		seat := (dealer + offset) % n
		p, ok := h.Players[seat]
		if !ok {
			continue
		}
		cards := h.deck.Deal(2)
		p.HoleCards = [2]deck.Card{cards[0], cards[1]}
		events = append(events, HoleCardsDealt{Seat: seat, UserID: seats[seat].UserID, Cards: p.HoleCards})
	}

	// resume advances clockwise from the seat that "acted" last, which for
	// the opening round is the big blind.
	h.ToAct = h.BigBlindSeat
	next, err := h.resume()
	if err != nil {
		return nil, nil, err
	}
	return h, append(events, next...), nil
}

// Apply validates and applies one action for the seat currently to act.
// Validation failures leave the hand untouched and are surfaced to the
// acting seat only.
func (h *Hand) Apply(seat int, action Action, amount int) ([]Event, error) {
	if h.Complete || h.Stage == Showdown {
		return nil, ErrNoHandInProgress
	}
	if seat != h.ToAct {
		return nil, ErrNotYourTurn
	}
	p := h.Players[seat]
	if p == nil || !p.active() {
		return nil, ErrNotYourTurn
	}

	applied := ActionApplied{Seat: seat, Action: action.String()}

	switch action {
	case Fold:
		p.Folded = true
		p.acted = true

	case Check:
		if h.toCall(p) != 0 {
			return nil, ErrCannotCheck
		}
		p.acted = true

	case Call:
		toCall := h.toCall(p)
		if toCall == 0 {
			return nil, ErrNothingToCall
		}
		h.pay(p, toCall)
		applied.Amount = p.StreetBet
		p.acted = true

	case Bet:
		if h.CurrentBet != 0 {
			return nil, ErrBetNotAllowed
		}
		stack := h.seats[seat].Stack
		if amount > stack {
			return nil, ErrInsufficientChips
		}
		if amount < h.bigBlind && amount != stack {
			return nil, ErrBetTooSmall
		}
		if amount <= 0 {
			return nil, ErrBetTooSmall
		}
		h.pay(p, amount)
		applied.Amount = p.StreetBet
		h.CurrentBet = p.StreetBet
		if amount >= h.bigBlind {
			h.MinRaise = amount
			h.reopenAction(seat)
		}
		p.acted = true

	case Raise:
		if h.CurrentBet == 0 {
			return nil, ErrBetNotAllowed
		}
		if p.acted {
			// A short all-in raise does not reopen action for seats that
			// already faced the full bet this street.
			return nil, ErrRaiseNotAllowed
		}
		need := amount - p.StreetBet
		stack := h.seats[seat].Stack
		if need > stack {
			return nil, ErrInsufficientChips
		}
		if amount <= h.CurrentBet {
			return nil, ErrRaiseTooSmall
		}
		raiseBy := amount - h.CurrentBet
		allIn := need == stack
		if raiseBy < h.MinRaise && !allIn {
			return nil, ErrRaiseTooSmall
		}
		h.pay(p, need)
		applied.Amount = amount
		h.CurrentBet = amount
		if raiseBy >= h.MinRaise {
			// Only a full-size raise resets the increment and reopens
			// action for everyone else.
			h.MinRaise = raiseBy
			h.reopenAction(seat)
		}
		p.acted = true

	default:
		return nil, ErrUnknownAction
	}

	if err := h.checkStacks(); err != nil {
		return nil, err
	}

	events := []Event{applied}
	next, err := h.resume()
	if err != nil {
		return nil, err
	}
	events = append(events, next...)

	// Report what the next actor faces, for client convenience.
	if h.ToAct >= 0 && !h.Complete {
		if np := h.Players[h.ToAct]; np != nil {
			applied.ToCallNext = h.toCall(np)
			events[0] = applied
		}
	}
	return events, nil
}

// DefaultAction is what the turn timer synthesizes on expiry: check when
// checking is legal, otherwise fold.
func (h *Hand) DefaultAction(seat int) Action {
	if p := h.Players[seat]; p != nil && h.toCall(p) == 0 {
		return Check
	}
	return Fold
}

// ToCallFor returns the amount the seat must add to stay in this street.
func (h *Hand) ToCallFor(seat int) int {
	p := h.Players[seat]
	if p == nil {
		return 0
	}
	return h.toCall(p)
}

// TotalPot is the sum of all contributions so far, for display.
func (h *Hand) TotalPot() int {
	total := 0
	for _, seat := range h.seatOrder() {
		total += h.Players[seat].TotalBet
	}
	return total
}

// InHand reports whether the seat was dealt into this hand.
func (h *Hand) InHand(seat int) bool {
	return h.Players[seat] != nil
}

// ActiveParticipant reports whether the seat still has a claim on the pot.
func (h *Hand) ActiveParticipant(seat int) bool {
	p := h.Players[seat]
	return p != nil && !p.Folded && !h.Complete
}

// noteDeparture records the user behind a seat that empties mid-hand, so
// a later Void can route their contribution to the right owner.
func (h *Hand) noteDeparture(seat int, userID string) {
	if h.departed == nil {
		h.departed = make(map[int]string)
	}
	h.departed[seat] = userID
}

// Void returns every contribution unplayed, used when a table drains at
// shutdown. Contributions go back to their seat's stack, except those of
// departed contributors, which are returned as wallet refunds. The hand
// ends with no winner and no card exposure.
func (h *Hand) Void() (HandVoided, []CashOut) {
	returned := make(map[int]int)
	var refunds []CashOut
	for _, seat := range h.seatOrder() {
		p := h.Players[seat]
		if p.TotalBet == 0 {
			continue
		}
		if userID, gone := h.departed[seat]; gone {
			refunds = append(refunds, CashOut{Seat: seat, UserID: userID, Amount: p.TotalBet})
		} else {
			h.seats[seat].Stack += p.TotalBet
		}
		returned[seat] = p.TotalBet
		p.TotalBet = 0
		p.StreetBet = 0
	}
	h.Complete = true
	return HandVoided{Returned: returned}, refunds
}

// resume drives the state machine after an action (or hand setup) until
// it needs another player decision or the hand completes.
func (h *Hand) resume() ([]Event, error) {
	if h.nonFoldedCount() == 1 {
		return h.finishUncontested()
	}
	if h.roundComplete() {
		return h.advanceStreets()
	}
	h.ToAct = h.nextActive(h.ToAct + 1)
	if h.ToAct < 0 {
		return nil, invariantf("betting round open but no seat can act (hand %d, %s)", h.ID, h.Stage)
	}
	p := h.Players[h.ToAct]
	return []Event{ActionRequired{Seat: h.ToAct, ToCall: h.toCall(p), MinRaise: h.MinRaise}}, nil
}

// advanceStreets deals the next street, fast-forwarding through any street
// where fewer than two seats can still bet.
func (h *Hand) advanceStreets() ([]Event, error) {
	var events []Event
	for {
		if h.Stage == River {
			sd, err := h.showdown()
			return append(events, sd...), err
		}

		for _, seat := range h.seatOrder() {
			h.Players[seat].StreetBet = 0
			h.Players[seat].acted = false
		}
		h.CurrentBet = 0
		h.MinRaise = h.bigBlind

		h.deck.Burn()
		switch h.Stage {
		case Preflop:
			h.Stage = Flop
			cards := h.deck.Deal(3)
			h.Board = append(h.Board, cards...)
			events = append(events, FlopDealt{Cards: cards})
		case Flop:
			h.Stage = Turn
			card := h.deck.Deal(1)[0]
			h.Board = append(h.Board, card)
			events = append(events, TurnDealt{Card: card})
		case Turn:
			h.Stage = River
			card := h.deck.Deal(1)[0]
			h.Board = append(h.Board, card)
			events = append(events, RiverDealt{Card: card})
		}

		if h.roundComplete() {
			continue
		}
		h.ToAct = h.nextActive(h.DealerSeat + 1)
		if h.ToAct < 0 {
			return nil, invariantf("post-deal betting round open but no seat can act (hand %d, %s)", h.ID, h.Stage)
		}
		p := h.Players[h.ToAct]
		events = append(events, ActionRequired{Seat: h.ToAct, ToCall: h.toCall(p), MinRaise: h.MinRaise})
		return events, nil
	}
}

// finishUncontested awards the whole pot to the last non-folded seat, with
// no showdown and no card exposure.
func (h *Hand) finishUncontested() ([]Event, error) {
	winner := -1
	total := 0
	for _, seat := range h.seatOrder() {
		p := h.Players[seat]
		total += p.TotalBet
		if !p.Folded {
			winner = seat
		}
	}
	if winner < 0 {
		return nil, invariantf("hand %d ended with every seat folded", h.ID)
	}
	h.seats[winner].Stack += total
	h.Pots = []Pot{{Amount: total, Eligible: []int{winner}}}
	h.ToAct = -1
	h.Complete = true
	return []Event{
		PotAwarded{PotIndex: 0, Seat: winner, Amount: total},
		HandEnded{Seed: h.Seed.String()},
	}, nil
}

// showdown evaluates every non-folded hand, layers the pots and pays the
// winners. Pot arithmetic is checked against contributions before a single
// chip moves.
func (h *Hand) showdown() ([]Event, error) {
	h.Stage = Showdown
	h.ToAct = -1

	ordered := make([]*PlayerInHand, 0, len(h.Players))
	totalContrib := 0
	for _, seat := range h.seatOrder() {
		p := h.Players[seat]
		ordered = append(ordered, p)
		totalContrib += p.TotalBet
	}

	rankings := make(map[int]Ranking)
	var hands []ShowdownHand
	for _, p := range ordered {
		if p.Folded {
			continue
		}
		cards := append([]deck.Card{p.HoleCards[0], p.HoleCards[1]}, h.Board...)
		result, err := Evaluate(cards)
		if err != nil {
			return nil, invariantf("showdown evaluation for seat %d: %v", p.Seat, err)
		}
		rankings[p.Seat] = result.Ranking

		var holeIdx, boardIdx []int
		for _, i := range result.Best {
			if i < 2 {
				holeIdx = append(holeIdx, i)
			} else {
				boardIdx = append(boardIdx, i-2)
			}
		}
		hands = append(hands, ShowdownHand{
			Seat:         p.Seat,
			Cards:        p.HoleCards,
			Description:  Describe(result.Ranking),
			HoleIndices:  holeIdx,
			BoardIndices: boardIdx,
		})
	}

	h.Pots = BuildPots(ordered)
	if got := PotTotal(h.Pots); got != totalContrib {
		return nil, invariantf("pot total %d != contributions %d (hand %d)", got, totalContrib, h.ID)
	}

	awards := DistributePots(h.Pots, rankings, h.DealerSeat, len(h.seats))
	awarded := 0
	for _, a := range awards {
		awarded += a.Amount
	}
	if awarded != totalContrib {
		return nil, invariantf("awards total %d != contributions %d (hand %d)", awarded, totalContrib, h.ID)
	}

	events := []Event{ShowdownEvent{Hands: hands, Pots: h.Pots}}
	for _, a := range awards {
		h.seats[a.Seat].Stack += a.Amount
		events = append(events, PotAwarded{PotIndex: a.PotIndex, Seat: a.Seat, Amount: a.Amount})
	}
	events = append(events, HandEnded{Seed: h.Seed.String()})
	h.Complete = true
	return events, nil
}

// pay moves up to amount from the seat's stack into the player's
// contribution, going all-in when the stack runs out. Returns what was
// actually paid.
func (h *Hand) pay(p *PlayerInHand, amount int) int {
	s := h.seats[p.Seat]
	actual := min(amount, s.Stack)
	s.Stack -= actual
	p.StreetBet += actual
	p.TotalBet += actual
	if s.Stack == 0 {
		p.AllIn = true
	}
	return actual
}

func (h *Hand) toCall(p *PlayerInHand) int {
	return max(0, h.CurrentBet-p.StreetBet)
}

// reopenAction clears acted flags after a full bet or raise, giving every
// other live seat a fresh decision.
func (h *Hand) reopenAction(raiser int) {
	for _, seat := range h.seatOrder() {
		if seat != raiser {
			h.Players[seat].acted = false
		}
	}
}

// roundComplete reports whether the street's betting is done: every seat
// that can still act has matched the current bet and acted since the last
// full raise. With a single live bettor there is nobody to bet against, so
// the street completes as soon as they have matched.
func (h *Hand) roundComplete() bool {
	var active []*PlayerInHand
	for _, seat := range h.seatOrder() {
		if p := h.Players[seat]; p.active() {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return true
	}
	if len(active) == 1 {
		return active[0].StreetBet == h.CurrentBet
	}
	for _, p := range active {
		if !p.acted || p.StreetBet != h.CurrentBet {
			return false
		}
	}
	return true
}

// nextActive finds the next seat clockwise from the given index that can
// still act, or -1.
func (h *Hand) nextActive(from int) int {
	n := len(h.seats)
	for i := 0; i < n; i++ {
		seat := ((from + i) % n + n) % n
		if p, ok := h.Players[seat]; ok && p.active() {
			return seat
		}
	}
	return -1
}

// nextDealt finds the next seat clockwise that was dealt into the hand.
func (h *Hand) nextDealt(from int) int {
	n := len(h.seats)
	for i := 1; i <= n; i++ {
		seat := (from + i) % n
		if _, ok := h.Players[seat]; ok {
			return seat
		}
	}
	return from
}

func (h *Hand) nonFoldedCount() int {
	count := 0
	for _, p := range h.Players {
		if !p.Folded {
			count++
		}
	}
	return count
}

// seatOrder returns the in-hand seat indices ascending. Money movement
// must never depend on map iteration order.
func (h *Hand) seatOrder() []int {
	order := make([]int, 0, len(h.Players))
	for i := range h.seats {
		if _, ok := h.Players[i]; ok {
			order = append(order, i)
		}
	}
	return order
}

func (h *Hand) checkStacks() error {
	for _, seat := range h.seatOrder() {
		if h.seats[seat].Stack < 0 {
			return invariantf("seat %d has negative stack %d", seat, h.seats[seat].Stack)
		}
	}
	return nil
}
