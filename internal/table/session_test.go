package table

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/tableserver/internal/game"
)

var errNoFunds = errors.New("insufficient funds")

type fakeLedger struct {
	mu         sync.Mutex
	balances   map[string]int
	failCredit bool
}

func newFakeLedger(balances map[string]int) *fakeLedger {
	return &fakeLedger{balances: balances}
}

func (l *fakeLedger) Debit(userID string, amount int, tableID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[userID] < amount {
		return errNoFunds
	}
	l.balances[userID] -= amount
	return nil
}

func (l *fakeLedger) Credit(userID string, amount int, tableID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failCredit {
		return errors.New("ledger unavailable")
	}
	l.balances[userID] += amount
	return nil
}

func (l *fakeLedger) Balance(userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func (l *fakeLedger) balance(userID string) int {
	b, _ := l.Balance(userID)
	return b
}

type recordingSink struct {
	mu         sync.Mutex
	broadcasts []game.Event
	sent       map[string][]game.Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{sent: make(map[string][]game.Event)}
}

func (r *recordingSink) Broadcast(tableID string, event game.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, event)
}

func (r *recordingSink) SendToUser(tableID, userID string, event game.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[userID] = append(r.sent[userID], event)
}

func (r *recordingSink) lastBroadcast(match func(game.Event) bool) (game.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.broadcasts) - 1; i >= 0; i-- {
		if match(r.broadcasts[i]) {
			return r.broadcasts[i], true
		}
	}
	return nil, false
}

func (r *recordingSink) userEvents(userID string) []game.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]game.Event(nil), r.sent[userID]...)
}

type fixture struct {
	session *Session
	ledger  *fakeLedger
	sink    *recordingSink
	clock   *quartz.Mock
	cancel  context.CancelFunc
	done    chan struct{}
}

func newFixture(t *testing.T, balances map[string]int) *fixture {
	t.Helper()
	ledger := newFakeLedger(balances)
	sink := newRecordingSink()
	clock := quartz.NewMock(t)

	session := NewSession("tbl_test", game.TableConfig{
		Name:       "test",
		MaxSeats:   6,
		SmallBlind: 5,
		BigBlind:   10,
		MinBuyIn:   200,
		MaxBuyIn:   2000,
	}, Config{
		ActionTimeout:  30 * time.Second,
		InterHandDelay: 5 * time.Second,
	}, ledger, sink, clock, log.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = session.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &fixture{session: session, ledger: ledger, sink: sink, clock: clock, cancel: cancel, done: done}
}

// sync flushes the actor's queue so timer-enqueued commands have been
// fully applied before the test asserts.
func (f *fixture) sync(t *testing.T) {
	t.Helper()
	_, err := f.session.Summarize(context.Background())
	require.NoError(t, err)
}

func buyIn(t *testing.T, f *fixture, userID string, amount int) {
	t.Helper()
	deferred, err := f.session.BuyIn(context.Background(), userID, amount)
	require.NoError(t, err)
	require.False(t, deferred)
}

func seatTwo(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.session.TakeSeat(ctx, "alice", "Alice", 0))
	require.NoError(t, f.session.TakeSeat(ctx, "bob", "Bob", 1))
	buyIn(t, f, "alice", 500)
	buyIn(t, f, "bob", 500)
}

func TestSessionBuyInDebitsLedger(t *testing.T) {
	f := newFixture(t, map[string]int{"alice": 1000})
	ctx := context.Background()

	require.NoError(t, f.session.TakeSeat(ctx, "alice", "Alice", 0))
	buyIn(t, f, "alice", 600)
	assert.Equal(t, 400, f.ledger.balance("alice"))

	applied, ok := f.sink.lastBroadcast(func(e game.Event) bool {
		_, ok := e.(game.BuyInApplied)
		return ok
	})
	require.True(t, ok)
	assert.Equal(t, 600, applied.(game.BuyInApplied).Amount)

	// An insufficient wallet rejects the buy-in without seating changes.
	_, err := f.session.BuyIn(ctx, "alice", 600)
	assert.ErrorIs(t, err, errNoFunds)
	assert.Equal(t, 400, f.ledger.balance("alice"))

	// An invalid amount never reaches the ledger.
	_, err = f.session.BuyIn(ctx, "alice", 5)
	assert.ErrorIs(t, err, game.ErrInvalidBuyIn)
	assert.Equal(t, 400, f.ledger.balance("alice"))
}

func TestSessionStartsHandAndTimesOutTurn(t *testing.T) {
	f := newFixture(t, map[string]int{"alice": 1000, "bob": 1000})
	ctx := context.Background()
	seatTwo(t, f)

	require.NoError(t, f.session.StartGame(ctx, "alice"))

	req, ok := f.sink.lastBroadcast(func(e game.Event) bool {
		_, ok := e.(game.ActionRequired)
		return ok
	})
	require.True(t, ok)
	assert.Equal(t, int64(30000), req.(game.ActionRequired).TimeLeftMs)

	// Dealer (alice, seat 0) faces the blind and lets the timer expire:
	// the synthesized action is a fold and bob takes the pot.
	f.clock.Advance(30 * time.Second).MustWait(ctx)
	f.sync(t)

	applied, ok := f.sink.lastBroadcast(func(e game.Event) bool {
		a, ok := e.(game.ActionApplied)
		return ok && a.Action == "fold"
	})
	require.True(t, ok)
	assert.Equal(t, 0, applied.(game.ActionApplied).Seat)

	_, ended := f.sink.lastBroadcast(func(e game.Event) bool {
		_, ok := e.(game.HandEnded)
		return ok
	})
	assert.True(t, ended)
}

func TestSessionStaleTimerIsNoOp(t *testing.T) {
	f := newFixture(t, map[string]int{"alice": 1000, "bob": 1000})
	ctx := context.Background()
	seatTwo(t, f)
	require.NoError(t, f.session.StartGame(ctx, "alice"))

	// Alice acts just before her deadline; the stale timer must not
	// synthesize a second action for the next turn's seat.
	f.clock.Advance(29 * time.Second).MustWait(ctx)
	require.NoError(t, f.session.Act(ctx, "alice", game.Call, 0))

	f.clock.Advance(time.Second).MustWait(ctx)
	f.sync(t)

	folds := 0
	f.sink.mu.Lock()
	for _, e := range f.sink.broadcasts {
		if a, ok := e.(game.ActionApplied); ok && a.Action == "fold" {
			folds++
		}
	}
	f.sink.mu.Unlock()
	assert.Zero(t, folds)
}

func TestSessionActionAfterTimeoutRejected(t *testing.T) {
	f := newFixture(t, map[string]int{"alice": 1000, "bob": 1000})
	ctx := context.Background()
	seatTwo(t, f)
	require.NoError(t, f.session.StartGame(ctx, "alice"))

	f.clock.Advance(30 * time.Second).MustWait(ctx)
	f.sync(t)

	// Alice timed out and was folded; her own late action bounces.
	err := f.session.Act(ctx, "alice", game.Call, 0)
	assert.Error(t, err)
}

func TestSessionHoleCardsGoOnlyToOwner(t *testing.T) {
	f := newFixture(t, map[string]int{"alice": 1000, "bob": 1000})
	ctx := context.Background()
	seatTwo(t, f)
	require.NoError(t, f.session.StartGame(ctx, "alice"))

	_, leaked := f.sink.lastBroadcast(func(e game.Event) bool {
		_, ok := e.(game.HoleCardsDealt)
		return ok
	})
	assert.False(t, leaked, "hole cards must never be broadcast")

	for _, user := range []string{"alice", "bob"} {
		var got int
		for _, e := range f.sink.userEvents(user) {
			if _, ok := e.(game.HoleCardsDealt); ok {
				got++
			}
		}
		assert.Equal(t, 1, got, "user %s hole card events", user)
	}
}

func TestSessionCashOutImmediate(t *testing.T) {
	f := newFixture(t, map[string]int{"alice": 1000})
	ctx := context.Background()
	require.NoError(t, f.session.TakeSeat(ctx, "alice", "Alice", 0))
	buyIn(t, f, "alice", 500)

	amount, deferred, err := f.session.CashOut(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, deferred)
	assert.Equal(t, 500, amount)
	assert.Equal(t, 1000, f.ledger.balance("alice"))
}

func TestSessionCashOutDeferredUntilHandEnd(t *testing.T) {
	f := newFixture(t, map[string]int{"alice": 1000, "bob": 1000})
	ctx := context.Background()
	seatTwo(t, f)
	require.NoError(t, f.session.StartGame(ctx, "alice"))

	// Bob has a blind in the pot, so the cash-out waits.
	_, deferred, err := f.session.CashOut(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, deferred)
	assert.Equal(t, 500, f.ledger.balance("bob"))

	// Alice folds; bob wins the hand, then his cash-out settles with the
	// pot included.
	require.NoError(t, f.session.Act(ctx, "alice", game.Fold, 0))
	f.sync(t)
	assert.Equal(t, 500+495+10, f.ledger.balance("bob"))

	events := f.sink.userEvents("bob")
	var cashed *game.CashedOut
	for _, e := range events {
		if c, ok := e.(game.CashedOut); ok {
			cashed = &c
		}
	}
	require.NotNil(t, cashed)
	assert.Equal(t, 505, cashed.Amount)
	assert.Equal(t, 1005, cashed.NewBalance)
}

func TestSessionReconnectSendsScopedSnapshot(t *testing.T) {
	f := newFixture(t, map[string]int{"alice": 1000, "bob": 1000})
	ctx := context.Background()
	seatTwo(t, f)
	require.NoError(t, f.session.StartGame(ctx, "alice"))

	require.NoError(t, f.session.SetConnected(ctx, "alice", false))
	require.NoError(t, f.session.SetConnected(ctx, "alice", true))

	events := f.sink.userEvents("alice")
	var snap *game.Snapshot
	for i := len(events) - 1; i >= 0; i-- {
		if s, ok := events[i].(game.Snapshot); ok {
			snap = &s
			break
		}
	}
	require.NotNil(t, snap)
	require.NotNil(t, snap.Hand)
	assert.Equal(t, 0, snap.YourSeat)
	for _, sv := range snap.Seats {
		if sv.Index == 0 {
			assert.Len(t, sv.HoleCards, 2)
		} else {
			assert.Empty(t, sv.HoleCards)
		}
	}
}

func TestSessionAutoStartAfterInterHandDelay(t *testing.T) {
	f := newFixture(t, map[string]int{"alice": 1000, "bob": 1000})
	ctx := context.Background()

	f.session.table.Config.AutoStart = true
	seatTwo(t, f)
	f.sync(t)

	// Funding the second seat auto-started a hand.
	summary, err := f.session.Summarize(ctx)
	require.NoError(t, err)
	require.True(t, summary.HandInProgress)

	// Finish it, then the next hand deals after the pause.
	require.NoError(t, f.session.Act(ctx, "alice", game.Fold, 0))
	f.clock.Advance(5 * time.Second).MustWait(ctx)
	f.sync(t)

	starts := 0
	f.sink.mu.Lock()
	for _, e := range f.sink.broadcasts {
		if _, ok := e.(game.HandStarted); ok {
			starts++
		}
	}
	f.sink.mu.Unlock()
	assert.Equal(t, 2, starts)
}

func TestSessionDrainsOnShutdown(t *testing.T) {
	f := newFixture(t, map[string]int{"alice": 1000, "bob": 1000})
	ctx := context.Background()
	seatTwo(t, f)
	require.NoError(t, f.session.StartGame(ctx, "alice"))

	f.cancel()
	<-f.done
	err := f.session.SendSnapshot(ctx, "alice")
	assert.ErrorIs(t, err, ErrTableClosed)

	voided, ok := f.sink.lastBroadcast(func(e game.Event) bool {
		_, ok := e.(game.HandVoided)
		return ok
	})
	require.True(t, ok)
	assert.Equal(t, map[int]int{0: 5, 1: 10}, voided.(game.HandVoided).Returned)

	// The buy-in debits were durable, so the shutdown credits every stack
	// back. Blinds included: nobody loses chips to a restart.
	assert.Equal(t, 1000, f.ledger.balance("alice"))
	assert.Equal(t, 1000, f.ledger.balance("bob"))
}

func TestSessionBuyInDeferredDuringHand(t *testing.T) {
	f := newFixture(t, map[string]int{"alice": 2000, "bob": 1000})
	ctx := context.Background()
	seatTwo(t, f)
	require.NoError(t, f.session.StartGame(ctx, "alice"))

	// Alice is dealt in, so the top-up debits now but lands at hand end.
	deferred, err := f.session.BuyIn(ctx, "alice", 300)
	require.NoError(t, err)
	assert.True(t, deferred)
	assert.Equal(t, 1200, f.ledger.balance("alice"))

	_, early := f.sink.lastBroadcast(func(e game.Event) bool {
		a, ok := e.(game.BuyInApplied)
		return ok && a.Amount == 300
	})
	assert.False(t, early, "top-up must not change the stack mid-hand")

	// Alice folds her small blind; the pending chips land afterwards.
	require.NoError(t, f.session.Act(ctx, "alice", game.Fold, 0))
	f.sync(t)

	applied, ok := f.sink.lastBroadcast(func(e game.Event) bool {
		a, ok := e.(game.BuyInApplied)
		return ok && a.Amount == 300
	})
	require.True(t, ok)
	assert.Equal(t, 795, applied.(game.BuyInApplied).Stack)
}

func TestSessionStartGameRequiresSeat(t *testing.T) {
	f := newFixture(t, map[string]int{"alice": 1000, "bob": 1000})
	ctx := context.Background()
	seatTwo(t, f)

	err := f.session.StartGame(ctx, "mallory")
	assert.ErrorIs(t, err, game.ErrNotSeated)

	_, started := f.sink.lastBroadcast(func(e game.Event) bool {
		_, ok := e.(game.HandStarted)
		return ok
	})
	assert.False(t, started)
}

func TestSessionHaltsWhenCreditFails(t *testing.T) {
	f := newFixture(t, map[string]int{"alice": 1000})
	ctx := context.Background()
	require.NoError(t, f.session.TakeSeat(ctx, "alice", "Alice", 0))
	buyIn(t, f, "alice", 500)

	f.ledger.failCredit = true
	_, _, err := f.session.CashOut(ctx, "alice")
	assert.ErrorIs(t, err, ErrTableHalted)

	// A halted table refuses everything after the failure.
	err = f.session.TakeSeat(ctx, "bob", "Bob", 1)
	assert.ErrorIs(t, err, ErrTableHalted)
}
