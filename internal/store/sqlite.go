package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/lanerush/pf-engine-go/internal/lanes"
	"github.com/lanerush/pf-engine-go/internal/ledger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteDB implements DB on SQLite.
type SQLiteDB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path, enables WAL mode, and
// limits the pool to a single connection so read-modify-write sequences
// on the shared accounts are serialized.
func Open(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	db.SetMaxOpenConns(1)

	return &SQLiteDB{db: db}, nil
}

// Migrate applies the embedded goose migrations.
func (s *SQLiteDB) Migrate() error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("store: set dialect: %w", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Handle exposes the underlying connection so the ledger can share it.
func (s *SQLiteDB) Handle() *sql.DB {
	return s.db
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// withTx runs fn inside one transaction, retrying the whole unit with
// backoff when SQLite reports the database busy.
func (s *SQLiteDB) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(10*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			if ledger.IsBusy(err) {
				return retry.RetryableError(err)
			}
			return fmt.Errorf("store: begin: %w", err)
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			if ledger.IsBusy(err) {
				return retry.RetryableError(err)
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if ledger.IsBusy(err) {
				return retry.RetryableError(err)
			}
			return fmt.Errorf("store: commit: %w", err)
		}
		return nil
	})
}

func (s *SQLiteDB) CreateSeedPair(ctx context.Context, sp *SeedPair, settle func(ledger.Ledger) error) error {
	const op = "store.CreateSeedPair"

	tableJSON, err := json.Marshal(sp.Table)
	if err != nil {
		return fmt.Errorf("%s: encode table: %w", op, err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		// Supersede-then-insert inside one transaction: at most one
		// non-terminal seed pair per owner survives.
		_, err := tx.ExecContext(ctx, `
			UPDATE seed_pairs SET status = ?, resolved_at = ?
			WHERE owner = ? AND status IN (?, ?)`,
			StatusResolved, time.Now().UTC(), sp.Owner, StatusCreated, StatusActive)
		if err != nil {
			return fmt.Errorf("%s: supersede: %w", op, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO seed_pairs (
				id, owner, server_secret, commitment, client_seed, round_counter,
				tier, mode, crash_lane, multiplier_table, wager, status, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sp.ID, sp.Owner, sp.ServerSecret, sp.Commitment, sp.ClientSeed, sp.RoundCounter,
			string(sp.Tier), string(sp.Mode), sp.CrashLane, string(tableJSON),
			sp.Wager.String(), sp.Status, sp.CreatedAt)
		if err != nil {
			return fmt.Errorf("%s: insert: %w", op, err)
		}

		if settle != nil {
			return settle(ledger.TxLedger(tx))
		}
		return nil
	})
}

const seedPairColumns = `id, owner, server_secret, commitment, client_seed, round_counter,
	tier, mode, crash_lane, multiplier_table, wager, status, created_at, activated_at, resolved_at`

func (s *SQLiteDB) GetSeedPair(ctx context.Context, id string) (*SeedPair, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+seedPairColumns+" FROM seed_pairs WHERE id = ?", id)
	return scanSeedPair(row)
}

func (s *SQLiteDB) ActiveSeedPair(ctx context.Context, owner string) (*SeedPair, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+seedPairColumns+` FROM seed_pairs
		WHERE owner = ? AND status IN (?, ?)
		ORDER BY created_at DESC LIMIT 1`,
		owner, StatusCreated, StatusActive)
	return scanSeedPair(row)
}

func (s *SQLiteDB) MarkActivated(ctx context.Context, id string, settle func(ledger.Ledger) error) error {
	const op = "store.MarkActivated"

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE seed_pairs SET status = ?, activated_at = ?
			WHERE id = ? AND status = ?`,
			StatusActive, time.Now().UTC(), id, StatusCreated)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if n == 0 {
			return ErrAlreadyResolved
		}
		if settle != nil {
			return settle(ledger.TxLedger(tx))
		}
		return nil
	})
}

func (s *SQLiteDB) MarkResolved(ctx context.Context, id string, roundCounter uint64, settle func(ledger.Ledger) error) error {
	const op = "store.MarkResolved"

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE seed_pairs SET status = ?, resolved_at = ?, round_counter = ?
			WHERE id = ? AND status IN (?, ?)`,
			StatusResolved, time.Now().UTC(), roundCounter, id, StatusCreated, StatusActive)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if n == 0 {
			var exists int
			err := tx.QueryRowContext(ctx,
				"SELECT COUNT(1) FROM seed_pairs WHERE id = ?", id).Scan(&exists)
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			if exists == 0 {
				return ErrNotFound
			}
			return ErrAlreadyResolved
		}
		if settle != nil {
			return settle(ledger.TxLedger(tx))
		}
		return nil
	})
}

func scanSeedPair(row *sql.Row) (*SeedPair, error) {
	var (
		sp          SeedPair
		tier, mode  string
		tableJSON   string
		wagerRaw    string
		activatedAt sql.NullTime
		resolvedAt  sql.NullTime
	)

	err := row.Scan(
		&sp.ID, &sp.Owner, &sp.ServerSecret, &sp.Commitment, &sp.ClientSeed, &sp.RoundCounter,
		&tier, &mode, &sp.CrashLane, &tableJSON, &wagerRaw, &sp.Status,
		&sp.CreatedAt, &activatedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan seed pair: %w", err)
	}

	if sp.Tier, err = lanes.ParseTier(tier); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if sp.Mode, err = lanes.ParseMode(mode); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if err := json.Unmarshal([]byte(tableJSON), &sp.Table); err != nil {
		return nil, fmt.Errorf("store: decode table snapshot: %w", err)
	}
	if sp.Wager, err = decimal.NewFromString(wagerRaw); err != nil {
		return nil, fmt.Errorf("store: corrupt wager %q: %w", wagerRaw, err)
	}
	if activatedAt.Valid {
		sp.ActivatedAt = &activatedAt.Time
	}
	if resolvedAt.Valid {
		sp.ResolvedAt = &resolvedAt.Time
	}
	return &sp, nil
}
