package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned when a balance or reserve adjustment
// would drive the account negative. The session in flight keeps its prior
// state; the caller may retry with a different wager.
var ErrInsufficientFunds = errors.New("ledger: insufficient funds")

// HistoryRecord is one append-only settlement record for a resolved
// stake-mode round. Records are never mutated after insertion.
type HistoryRecord struct {
	ID          string          `json:"id"`
	Owner       string          `json:"owner"`
	SeedPairID  string          `json:"seed_pair_id"`
	Wager       decimal.Decimal `json:"wager"`
	Payout      decimal.Decimal `json:"payout"`
	ReachedLane *int            `json:"reached_lane,omitempty"`
	CrashLane   int             `json:"crash_lane"`
	Tier        string          `json:"tier"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Ledger is the reserve/player account collaborator the engine reads and
// mutates during activation and settlement. Balance mutation requires
// per-account serialization; implementations must not interleave the read
// and write of a single adjustment.
type Ledger interface {
	// GetBalance returns the player's current balance (zero for an
	// account that has never been touched).
	GetBalance(ctx context.Context, owner string) (decimal.Decimal, error)

	// AdjustBalance applies delta to the player's balance and returns the
	// new amount. Fails with ErrInsufficientFunds if the result would be
	// negative, leaving the balance unchanged.
	AdjustBalance(ctx context.Context, owner string, delta decimal.Decimal) (decimal.Decimal, error)

	// GetReserve returns the singleton house reserve balance.
	GetReserve(ctx context.Context) (decimal.Decimal, error)

	// AdjustReserve applies delta to the reserve and returns the new
	// amount. Fails with ErrInsufficientFunds if the result would be
	// negative.
	AdjustReserve(ctx context.Context, delta decimal.Decimal) (decimal.Decimal, error)

	// AppendHistory inserts a settlement record.
	AppendHistory(ctx context.Context, rec *HistoryRecord) error
}

// Transactor groups ledger operations into an all-or-nothing unit. A
// session transition's balance mutations either all commit or none do.
type Transactor interface {
	Ledger

	// Transact runs fn against a transaction-scoped Ledger. If fn returns
	// an error every mutation it made is rolled back.
	Transact(ctx context.Context, fn func(Ledger) error) error
}
