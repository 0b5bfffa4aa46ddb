package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteLedger implements Transactor on a SQLite database. Amounts are
// stored as decimal strings to keep money math exact.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger wraps an open database. The schema is owned by the
// store migrations; the reserve row is seeded there.
func NewSQLiteLedger(db *sql.DB) *SQLiteLedger {
	return &SQLiteLedger{db: db}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ops carries the ledger operations over either the raw connection or a
// transaction, so Transact can reuse the same implementations.
type ops struct {
	q querier
}

// TxLedger binds the ledger operations to an open transaction. The store
// uses it to settle balances inside the same transaction as a seed pair
// status claim.
func TxLedger(tx *sql.Tx) Ledger {
	return ops{tx}
}

func (s *SQLiteLedger) GetBalance(ctx context.Context, owner string) (decimal.Decimal, error) {
	return ops{s.db}.GetBalance(ctx, owner)
}

func (s *SQLiteLedger) AdjustBalance(ctx context.Context, owner string, delta decimal.Decimal) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := s.Transact(ctx, func(l Ledger) error {
		var err error
		out, err = l.AdjustBalance(ctx, owner, delta)
		return err
	})
	return out, err
}

func (s *SQLiteLedger) GetReserve(ctx context.Context) (decimal.Decimal, error) {
	return ops{s.db}.GetReserve(ctx)
}

func (s *SQLiteLedger) AdjustReserve(ctx context.Context, delta decimal.Decimal) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := s.Transact(ctx, func(l Ledger) error {
		var err error
		out, err = l.AdjustReserve(ctx, delta)
		return err
	})
	return out, err
}

func (s *SQLiteLedger) AppendHistory(ctx context.Context, rec *HistoryRecord) error {
	return ops{s.db}.AppendHistory(ctx, rec)
}

// Transact runs fn inside a database transaction, retrying the whole unit
// with backoff when SQLite reports the database busy.
func (s *SQLiteLedger) Transact(ctx context.Context, fn func(Ledger) error) error {
	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(10*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			if IsBusy(err) {
				return retry.RetryableError(err)
			}
			return fmt.Errorf("ledger: begin transaction: %w", err)
		}
		defer tx.Rollback()

		if err := fn(ops{tx}); err != nil {
			if IsBusy(err) {
				return retry.RetryableError(err)
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if IsBusy(err) {
				return retry.RetryableError(err)
			}
			return fmt.Errorf("ledger: commit: %w", err)
		}
		return nil
	})
}

// IsBusy reports whether err is SQLite's transient locked/busy condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// SeedReserve sets the reserve to amount if the reserve is currently
// zero. Used at startup to fund a fresh deployment without clobbering an
// existing reserve.
func (s *SQLiteLedger) SeedReserve(ctx context.Context, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return nil
	}
	return s.Transact(ctx, func(l Ledger) error {
		cur, err := l.GetReserve(ctx)
		if err != nil {
			return err
		}
		if cur.Sign() != 0 {
			return nil
		}
		_, err = l.AdjustReserve(ctx, amount)
		return err
	})
}

func (o ops) GetBalance(ctx context.Context, owner string) (decimal.Decimal, error) {
	const op = "ledger.GetBalance"

	var raw string
	err := o.q.QueryRowContext(ctx,
		"SELECT balance FROM player_accounts WHERE owner = ?", owner).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}
	bal, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: corrupt balance %q: %w", op, raw, err)
	}
	return bal, nil
}

func (o ops) AdjustBalance(ctx context.Context, owner string, delta decimal.Decimal) (decimal.Decimal, error) {
	const op = "ledger.AdjustBalance"

	cur, err := o.GetBalance(ctx, owner)
	if err != nil {
		return decimal.Zero, err
	}
	next := cur.Add(delta)
	if next.Sign() < 0 {
		return decimal.Zero, ErrInsufficientFunds
	}

	_, err = o.q.ExecContext(ctx, `
		INSERT INTO player_accounts (owner, balance, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (owner) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
		owner, next.String(), time.Now().UTC())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}
	return next, nil
}

func (o ops) GetReserve(ctx context.Context) (decimal.Decimal, error) {
	const op = "ledger.GetReserve"

	var raw string
	err := o.q.QueryRowContext(ctx,
		"SELECT balance FROM reserve_account WHERE id = 1").Scan(&raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}
	bal, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: corrupt reserve %q: %w", op, raw, err)
	}
	return bal, nil
}

func (o ops) AdjustReserve(ctx context.Context, delta decimal.Decimal) (decimal.Decimal, error) {
	const op = "ledger.AdjustReserve"

	cur, err := o.GetReserve(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	next := cur.Add(delta)
	if next.Sign() < 0 {
		return decimal.Zero, ErrInsufficientFunds
	}

	_, err = o.q.ExecContext(ctx,
		"UPDATE reserve_account SET balance = ?, updated_at = ? WHERE id = 1",
		next.String(), time.Now().UTC())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}
	return next, nil
}

func (o ops) AppendHistory(ctx context.Context, rec *HistoryRecord) error {
	const op = "ledger.AppendHistory"

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var reached any
	if rec.ReachedLane != nil {
		reached = *rec.ReachedLane
	}

	_, err := o.q.ExecContext(ctx, `
		INSERT INTO game_history (id, owner, seed_pair_id, wager, payout, reached_lane, crash_lane, tier, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Owner, rec.SeedPairID, rec.Wager.String(), rec.Payout.String(),
		reached, rec.CrashLane, rec.Tier, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
