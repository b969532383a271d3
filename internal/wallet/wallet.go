// Package wallet is the persistent chip ledger backing table buy-ins and
// cash-outs. Every balance change is journaled, so the accounts table can
// always be audited against the transaction history.
package wallet

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"
)

// ErrInsufficientFunds is returned when a debit exceeds the balance.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Wallet is safe for concurrent use; SQLite serializes the writes.
type Wallet struct {
	db     *sql.DB
	logger *log.Logger
}

// Open opens (or creates) the ledger at the given DSN. Use ":memory:" for
// tests.
func Open(dsn string, logger *log.Logger) (*Wallet, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening wallet database: %w", err)
	}
	// A single connection keeps writers serialized and makes ":memory:"
	// behave as one database instead of one per pooled connection.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging wallet database: %w", err)
	}

	w := &Wallet{db: db, logger: logger.WithPrefix("wallet")}
	if err := w.migrate(); err != nil {
		return nil, fmt.Errorf("migrating wallet database: %w", err)
	}
	w.logger.Info("wallet ledger open", "dsn", dsn)
	return w, nil
}

func (w *Wallet) migrate() error {
	_, err := w.db.Exec(`
	CREATE TABLE IF NOT EXISTS accounts (
		user_id TEXT PRIMARY KEY,
		balance INTEGER NOT NULL DEFAULT 0
	);`)
	if err != nil {
		return err
	}

	_, err = w.db.Exec(`
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		kind TEXT NOT NULL,
		table_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT (datetime('now'))
	);`)
	return err
}

func (w *Wallet) Close() error {
	return w.db.Close()
}

// Balance returns the user's balance; unknown users have zero.
func (w *Wallet) Balance(userID string) (int, error) {
	var balance int
	err := w.db.QueryRow("SELECT balance FROM accounts WHERE user_id = ?", userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Deposit credits funds from outside the table system.
func (w *Wallet) Deposit(userID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive, got %d", amount)
	}
	return w.apply(userID, amount, "deposit", "")
}

// Debit removes a table buy-in from the balance. The check and update are
// one statement, so concurrent debits can never overdraw.
func (w *Wallet) Debit(userID string, amount int, tableID string) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"UPDATE accounts SET balance = balance - ? WHERE user_id = ? AND balance >= ?",
		amount, userID, amount,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrInsufficientFunds
	}

	if err := journal(tx, userID, -amount, "buy_in", tableID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	w.logger.Debug("debit", "user", userID, "amount", amount, "table", tableID)
	return nil
}

// Credit returns a cash-out (or payout) to the balance.
func (w *Wallet) Credit(userID string, amount int, tableID string) error {
	if amount < 0 {
		return fmt.Errorf("credit amount must not be negative, got %d", amount)
	}
	if amount == 0 {
		return nil
	}
	if err := w.apply(userID, amount, "cash_out", tableID); err != nil {
		return err
	}
	w.logger.Debug("credit", "user", userID, "amount", amount, "table", tableID)
	return nil
}

func (w *Wallet) apply(userID string, amount int, kind, tableID string) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO accounts (user_id, balance) VALUES (?, ?) ON CONFLICT(user_id) DO UPDATE SET balance = balance + ?",
		userID, amount, amount,
	)
	if err != nil {
		return err
	}
	if err := journal(tx, userID, amount, kind, tableID); err != nil {
		return err
	}
	return tx.Commit()
}

func journal(tx *sql.Tx, userID string, amount int, kind, tableID string) error {
	_, err := tx.Exec(
		"INSERT INTO transactions (user_id, amount, kind, table_id) VALUES (?, ?, ?, ?)",
		userID, amount, kind, tableID,
	)
	return err
}

// Transaction is one journal row, newest first from History.
type Transaction struct {
	ID      int64
	UserID  string
	Amount  int
	Kind    string
	TableID string
	Created string
}

// History returns the user's most recent transactions.
func (w *Wallet) History(userID string, limit int) ([]Transaction, error) {
	rows, err := w.db.Query(
		"SELECT id, user_id, amount, kind, table_id, created_at FROM transactions WHERE user_id = ? ORDER BY id DESC LIMIT ?",
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.TableID, &t.Created); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}
