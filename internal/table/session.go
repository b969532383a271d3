// Package table runs one goroutine per table. Every mutation of table
// state, including timer firings, flows through the session's command
// channel and is applied serially, so the game package never needs a lock.
package table

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/tableserver/internal/deck"
	"github.com/lox/tableserver/internal/game"
)

var (
	// ErrTableHalted means an invariant violation froze the table; no
	// further commands are processed.
	ErrTableHalted = errors.New("table halted")
	// ErrTableClosed means the session actor has stopped.
	ErrTableClosed = errors.New("table closed")
)

// Ledger is the wallet surface the session needs: debit before chips reach
// a stack, credit when they leave.
type Ledger interface {
	Debit(userID string, amount int, tableID string) error
	Credit(userID string, amount int, tableID string) error
	Balance(userID string) (int, error)
}

// Sink receives events for delivery. Broadcast goes to everyone watching
// the table; SendToUser goes to one user's connections only.
type Sink interface {
	Broadcast(tableID string, event game.Event)
	SendToUser(tableID, userID string, event game.Event)
}

// Config carries the session timings shared by all tables, plus the shape
// of tables created on demand by a seat claim.
type Config struct {
	ActionTimeout  time.Duration
	InterHandDelay time.Duration
	OnDemand       game.TableConfig
}

// Session is the actor owning one table. All exported methods are safe to
// call from any goroutine; they block until the actor has applied the
// command.
type Session struct {
	id     string
	table  *game.Table
	ledger Ledger
	sink   Sink
	clock  quartz.Clock
	logger *log.Logger
	cfg    Config

	// persistent tables stay registered when the last player leaves.
	persistent bool
	onEmpty    func(id string)

	cmds chan command
	done chan struct{}

	// Actor-goroutine state; never touched from outside.
	halted    bool
	turnGen   uint64
	turnTimer *quartz.Timer
	nextTimer *quartz.Timer
}

type command struct {
	fn    func() error
	reply chan error
}

// NewSession wires a table to its collaborators. Run must be called for
// commands to be processed.
func NewSession(id string, cfg game.TableConfig, sessionCfg Config, ledger Ledger, sink Sink, clock quartz.Clock, logger *log.Logger) *Session {
	return &Session{
		id:     id,
		table:  game.NewTable(id, cfg),
		ledger: ledger,
		sink:   sink,
		clock:  clock,
		logger: logger.WithPrefix("table").With("table", id),
		cfg:    sessionCfg,
		cmds:   make(chan command),
		done:   make(chan struct{}),
	}
}

// Run processes commands until the context is cancelled, then drains the
// live hand so no chips are stranded in a pot.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	s.logger.Info("table session started", "name", s.table.Config.Name)
	for {
		select {
		case <-ctx.Done():
			s.drain()
			s.logger.Info("table session stopped")
			return nil
		case cmd := <-s.cmds:
			s.handle(cmd)
		}
	}
}

func (s *Session) handle(cmd command) {
	replied := false
	defer func() {
		if r := recover(); r != nil {
			s.halt(fmt.Errorf("panic in table command: %v", r))
			if !replied {
				cmd.reply <- ErrTableHalted
			}
		}
	}()

	if s.halted {
		replied = true
		cmd.reply <- ErrTableHalted
		return
	}
	err := cmd.fn()
	if game.IsInvariant(err) {
		s.halt(err)
		err = ErrTableHalted
	}
	replied = true
	cmd.reply <- err
}

// halt freezes the table. Stacks and the pot stay as they are for manual
// reconciliation; losing a hand is better than corrupting balances.
func (s *Session) halt(err error) {
	s.logger.Error("table halted", "error", err)
	s.halted = true
	s.stopTimers()
}

func (s *Session) stopTimers() {
	if s.turnTimer != nil {
		s.turnTimer.Stop()
		s.turnTimer = nil
	}
	if s.nextTimer != nil {
		s.nextTimer.Stop()
		s.nextTimer = nil
	}
}

// drain voids the live hand and settles every stack back to the wallet.
// Chips must not die with the process: the buy-in debits are durable, so
// the shutdown credits have to be too.
// A halted table is left untouched: its stacks may already disagree
// with the ledger, and paying them out again could double-credit.
func (s *Session) drain() {
	s.stopTimers()
	if s.halted {
		return
	}
	events, refunds := s.table.Drain()
	for _, ev := range events {
		s.sink.Broadcast(s.id, ev)
	}
	for _, ev := range s.table.TakePendingBuyIns() {
		s.sink.Broadcast(s.id, ev)
	}
	for _, out := range append(refunds, s.table.CashOutAll()...) {
		if out.Amount == 0 {
			continue
		}
		if err := s.ledger.Credit(out.UserID, out.Amount, s.id); err != nil {
			s.logger.Error("crediting stack at shutdown", "user", out.UserID, "amount", out.Amount, "error", err)
			continue
		}
		s.logger.Info("cashed out at shutdown", "user", out.UserID, "amount", out.Amount)
	}
}

// do submits one command and waits for the actor to apply it.
func (s *Session) do(ctx context.Context, fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return ErrTableClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-s.done:
		return ErrTableClosed
	}
}

// enqueue is do for timer callbacks: fire-and-forget, dropped if the actor
// has stopped.
func (s *Session) enqueue(fn func() error) {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case s.cmds <- cmd:
	case <-s.done:
	}
}

// ID returns the table identifier.
func (s *Session) ID() string {
	return s.id
}

// TakeSeat claims a seat for the user.
func (s *Session) TakeSeat(ctx context.Context, userID, name string, seat int) error {
	return s.do(ctx, func() error {
		events, err := s.table.TakeSeat(userID, name, seat)
		if err != nil {
			// A failed claim on a still-empty on-demand table retires it.
			s.checkEmpty()
			return err
		}
		s.publish(events)
		s.sink.SendToUser(s.id, userID, s.table.Snapshot(seat))
		return nil
	})
}

// BuyIn debits the wallet and lands the chips on the user's stack. The
// debit happens only after the table validates the amount, so a rejected
// buy-in never touches the wallet. While the seat is an active participant
// in a live hand the chips are held back until hand end, keeping all-in
// thresholds fixed for the duration of a hand; deferred reports which
// happened.
func (s *Session) BuyIn(ctx context.Context, userID string, amount int) (deferred bool, err error) {
	err = s.do(ctx, func() error {
		seat, wait, err := s.table.ValidateBuyIn(userID, amount)
		if err != nil {
			return err
		}
		if err := s.ledger.Debit(userID, amount, s.id); err != nil {
			return err
		}
		if wait {
			s.table.DeferBuyIn(seat, amount)
			deferred = true
			return nil
		}
		s.publish(s.table.ApplyBuyIn(seat, amount))
		s.maybeAutoStart()
		return nil
	})
	return deferred, err
}

// Act applies a player action to the live hand.
func (s *Session) Act(ctx context.Context, userID string, action game.Action, amount int) error {
	return s.do(ctx, func() error {
		events, err := s.table.Apply(userID, action, amount)
		if err != nil {
			return err
		}
		s.afterHandEvents(events)
		return nil
	})
}

// CashOut empties the user's seat and credits the wallet. While the seat
// is an active participant in a live hand the cash-out is deferred to hand
// end; deferred reports which happened.
func (s *Session) CashOut(ctx context.Context, userID string) (amount int, deferred bool, err error) {
	err = s.do(ctx, func() error {
		out, wasDeferred, events, err := s.table.RequestCashOut(userID)
		if err != nil {
			return err
		}
		if wasDeferred {
			deferred = true
			return nil
		}
		if err := s.settleCashOut(out, events); err != nil {
			return err
		}
		amount = out.Amount
		return nil
	})
	return amount, deferred, err
}

// settleCashOut credits the wallet for chips already removed from a seat.
// A credit failure halts the table: the chips exist nowhere else.
func (s *Session) settleCashOut(out game.CashOut, events []game.Event) error {
	if err := s.ledger.Credit(out.UserID, out.Amount, s.id); err != nil {
		s.halt(fmt.Errorf("crediting cash-out of %d for %s: %w", out.Amount, out.UserID, err))
		return ErrTableHalted
	}
	balance, err := s.ledger.Balance(out.UserID)
	if err != nil {
		s.logger.Warn("Balance lookup failed after cash-out", "user", out.UserID, "error", err)
	}
	s.publish(events)
	s.sink.SendToUser(s.id, out.UserID, game.CashedOut{Seat: out.Seat, UserID: out.UserID, Amount: out.Amount, NewBalance: balance})
	s.checkEmpty()
	return nil
}

// StartGame starts a hand immediately, replacing auto-start for tables
// configured manual. Only a seated user may start a hand; a spectator must
// not be able to force blinds out of the seated players.
func (s *Session) StartGame(ctx context.Context, userID string) error {
	return s.do(ctx, func() error {
		if s.table.SeatOf(userID) < 0 {
			return game.ErrNotSeated
		}
		s.table.ClearHand()
		return s.startHand()
	})
}

// SetConnected updates the user's connectivity. Reconnecting delivers a
// full snapshot, which is the only state recovery mechanism.
func (s *Session) SetConnected(ctx context.Context, userID string, connected bool) error {
	return s.do(ctx, func() error {
		seat, ok := s.table.SetConnected(userID, connected)
		if !ok {
			return game.ErrNotSeated
		}
		if connected {
			s.sink.SendToUser(s.id, userID, s.table.Snapshot(seat))
		}
		return nil
	})
}

// SendSnapshot delivers the current table state to one user, scoped to
// their seat (or as a spectator when not seated).
func (s *Session) SendSnapshot(ctx context.Context, userID string) error {
	return s.do(ctx, func() error {
		s.sink.SendToUser(s.id, userID, s.table.Snapshot(s.table.SeatOf(userID)))
		return nil
	})
}

// HasUser reports whether the user currently occupies a seat.
func (s *Session) HasUser(ctx context.Context, userID string) (bool, error) {
	var seated bool
	err := s.do(ctx, func() error {
		seated = s.table.SeatOf(userID) >= 0
		return nil
	})
	return seated, err
}

// Summary is one row in a table listing.
type Summary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	SmallBlind     int    `json:"smallBlind"`
	BigBlind       int    `json:"bigBlind"`
	MinBuyIn       int    `json:"minBuyIn"`
	MaxBuyIn       int    `json:"maxBuyIn"`
	SeatsTaken     int    `json:"seatsTaken"`
	MaxSeats       int    `json:"maxSeats"`
	HandInProgress bool   `json:"handInProgress"`
}

// Summarize returns the listing row for this table.
func (s *Session) Summarize(ctx context.Context) (Summary, error) {
	var summary Summary
	err := s.do(ctx, func() error {
		cfg := s.table.Config
		summary = Summary{
			ID:             s.id,
			Name:           cfg.Name,
			SmallBlind:     cfg.SmallBlind,
			BigBlind:       cfg.BigBlind,
			MinBuyIn:       cfg.MinBuyIn,
			MaxBuyIn:       cfg.MaxBuyIn,
			SeatsTaken:     s.table.OccupiedCount(),
			MaxSeats:       cfg.MaxSeats,
			HandInProgress: s.table.Hand != nil && !s.table.Hand.Complete,
		}
		return nil
	})
	return summary, err
}

// startHand deals a fresh hand from a new crypto-random seed.
func (s *Session) startHand() error {
	seed, err := deck.NewSeed()
	if err != nil {
		return fmt.Errorf("generating shuffle seed: %w", err)
	}
	events, err := s.table.StartHand(seed)
	if err != nil {
		return err
	}
	s.logger.Info("hand started", "hand", s.table.Hand.ID, "dealer", s.table.Hand.DealerSeat)
	s.afterHandEvents(events)
	return nil
}

func (s *Session) maybeAutoStart() {
	if s.table.Config.AutoStart && s.table.CanStart() {
		if err := s.startHand(); err != nil && !errors.Is(err, game.ErrNotEnoughPlayers) {
			s.logger.Error("auto-starting hand", "error", err)
		}
	}
}

// afterHandEvents publishes hand events and runs the end-of-hand
// sequencing when the events completed the hand.
func (s *Session) afterHandEvents(events []game.Event) {
	s.publish(events)
	if s.table.Hand == nil || !s.table.Hand.Complete {
		return
	}

	s.turnGen++ // invalidate any in-flight turn timer
	if s.turnTimer != nil {
		s.turnTimer.Stop()
		s.turnTimer = nil
	}

	// Deferred top-ups land before deferred cash-outs, so a leaving seat
	// takes its pending chips along.
	s.publish(s.table.TakePendingBuyIns())

	// Deferred cash-outs settle now that the pot is paid.
	outs, leftEvents := s.table.TakePendingCashOuts()
	for i, out := range outs {
		if err := s.settleCashOut(out, leftEvents[i:i+1]); err != nil {
			return
		}
	}
	s.scheduleNextHand()
}

func (s *Session) scheduleNextHand() {
	if s.nextTimer != nil {
		s.nextTimer.Stop()
	}
	s.nextTimer = s.clock.AfterFunc(s.cfg.InterHandDelay, func() {
		s.enqueue(func() error {
			s.table.ClearHand()
			s.maybeAutoStart()
			return nil
		})
	})
}

// publish routes events to the sink: hole cards go only to their owner,
// everything else is broadcast. ActionRequired arms the turn timer and
// HandEnded is annotated with the upcoming button and pause.
func (s *Session) publish(events []game.Event) {
	for _, ev := range events {
		switch e := ev.(type) {
		case game.HoleCardsDealt:
			s.sink.SendToUser(s.id, e.UserID, e)
		case game.ActionRequired:
			e.TimeLeftMs = s.cfg.ActionTimeout.Milliseconds()
			s.armTurnTimer(e.Seat)
			s.sink.Broadcast(s.id, e)
		case game.HandEnded:
			e.NextDealerSeat = s.table.NextDealer()
			e.WaitMs = s.cfg.InterHandDelay.Milliseconds()
			s.sink.Broadcast(s.id, e)
		default:
			s.sink.Broadcast(s.id, ev)
		}
	}
}

// armTurnTimer starts the deadline for the seat to act. The generation
// number makes a timer that fires after the player already acted a no-op.
func (s *Session) armTurnTimer(seat int) {
	s.turnGen++
	gen := s.turnGen
	if s.turnTimer != nil {
		s.turnTimer.Stop()
	}
	s.turnTimer = s.clock.AfterFunc(s.cfg.ActionTimeout, func() {
		s.enqueue(func() error { return s.handleTimeout(gen, seat) })
	})
}

// handleTimeout synthesizes the default action for a seat that ran out of
// time: check when legal, otherwise fold. It runs through the same command
// path as a real action, so it can never race one.
func (s *Session) handleTimeout(gen uint64, seat int) error {
	if gen != s.turnGen {
		return nil
	}
	if s.table.Hand == nil || s.table.Hand.Complete {
		return nil
	}
	s.logger.Info("turn timer expired", "seat", seat)
	events, err := s.table.ApplyTimeout(seat)
	if err != nil {
		return err
	}
	s.afterHandEvents(events)
	return nil
}

// checkEmpty retires on-demand tables once the last player leaves.
func (s *Session) checkEmpty() {
	if !s.persistent && s.table.Empty() && s.onEmpty != nil {
		s.onEmpty(s.id)
	}
}
